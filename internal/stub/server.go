// Package stub is a local stand-in for the question-answering backend. It
// stores scraped pages and pasted text in SQLite and answers chat questions
// by keyword overlap with the stored chunks.
package stub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/kalambet/qadesk/internal/storage"
)

const (
	maxRequestBodySize = 10 << 20 // 10MB
	scrapeTimeout      = 15 * time.Second
)

type Deps struct {
	Store      *storage.Store
	HTTPClient *http.Client // used to fetch pages for /scrape-website
	Token      string       // optional; when set every route except /health requires it
	Logger     *slog.Logger
}

type scrapeRequest struct {
	URL string `json:"url"`
}

type addTextRequest struct {
	Content string `json:"content"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Messages []chatMessage `json:"messages"`
}

// NewHandler returns the HTTP API served by the stub backend.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	fetcher := NewFetcher(deps.HTTPClient)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}
		r.Post("/scrape-website", handleScrapeWebsite(deps, fetcher))
		r.Post("/add-text", handleAddText(deps))
		r.Post("/chat", handleChat(deps))
		r.Get("/content-stats", handleContentStats(deps))
		r.Delete("/clear-content", handleClearContent(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"message": "Service running normally",
	})
}

func handleScrapeWebsite(deps Deps, fetcher *Fetcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req scrapeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
		req.URL = strings.TrimSpace(req.URL)
		if req.URL == "" {
			httpError(w, http.StatusBadRequest, "url is required")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), scrapeTimeout)
		defer cancel()

		page, err := fetcher.Fetch(ctx, req.URL)
		if err != nil {
			deps.Logger.Warn("scrape failed", "url", req.URL, "error", err)
			httpError(w, http.StatusBadGateway, "Error scraping website: %v", err)
			return
		}
		if page.Text == "" {
			httpError(w, http.StatusUnprocessableEntity, "no readable text found at %s", req.URL)
			return
		}

		chunks, err := save(deps.Store, storage.Document{
			Source:  req.URL,
			Kind:    storage.KindWebsite,
			Title:   page.Title,
			Content: page.Text,
		})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to store content: %v", err)
			return
		}

		deps.Logger.Info("website scraped", "url", req.URL, "chars", len([]rune(page.Text)), "chunks", chunks)
		writeJSON(w, http.StatusOK, map[string]any{
			"message":        fmt.Sprintf("Successfully scraped %s (%d chunks)", displayTitle(page), chunks),
			"url":            req.URL,
			"title":          page.Title,
			"chunks_created": chunks,
		})
	}
}

func handleAddText(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req addTextRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}
		content := strings.TrimSpace(req.Content)
		if content == "" {
			httpError(w, http.StatusBadRequest, "content is required")
			return
		}

		chunks, err := save(deps.Store, storage.Document{
			Source:  "text",
			Kind:    storage.KindText,
			Content: content,
		})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to store content: %v", err)
			return
		}

		deps.Logger.Info("text added", "chars", len([]rune(content)), "chunks", chunks)
		writeJSON(w, http.StatusOK, map[string]any{
			"message":        fmt.Sprintf("Added %d characters of text (%d chunks)", len([]rune(content)), chunks),
			"chunks_created": chunks,
		})
	}
}

func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
			return
		}

		question := lastUserMessage(req.Messages)
		if question == "" {
			httpError(w, http.StatusBadRequest, "No user message found")
			return
		}

		chunks, err := deps.Store.ListChunks()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to load content: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{
			"answer": composeAnswer(question, chunks),
		})
	}
}

func handleContentStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := deps.Store.Stats()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to compute stats: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func handleClearContent(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := deps.Store.Clear()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to clear content: %v", err)
			return
		}
		deps.Logger.Info("content cleared", "documents", n)
		writeJSON(w, http.StatusOK, map[string]any{
			"message":           "All content cleared successfully",
			"documents_removed": n,
		})
	}
}

func save(store *storage.Store, doc storage.Document) (int, error) {
	doc.ID = uuid.New().String()
	doc.CreatedAt = time.Now().UTC()
	chunks := storage.SplitChunks(doc.Content, storage.DefaultChunkSize, storage.DefaultChunkOverlap)
	if err := store.SaveDocument(doc, chunks); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

func lastUserMessage(msgs []chatMessage) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			if q := strings.TrimSpace(msgs[i].Content); q != "" {
				return q
			}
		}
	}
	return ""
}

func displayTitle(p Page) string {
	if p.Title != "" {
		return fmt.Sprintf("%q", p.Title)
	}
	return p.URL
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// httpError writes an error body in the {"detail": "..."} shape the chat
// client reads.
func httpError(w http.ResponseWriter, code int, format string, args ...any) {
	writeJSON(w, code, map[string]string{"detail": fmt.Sprintf(format, args...)})
}
