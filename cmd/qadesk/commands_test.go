package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/qadesk/internal/config"
	"github.com/kalambet/qadesk/internal/conversation"
	"github.com/kalambet/qadesk/internal/service"
	"github.com/kalambet/qadesk/internal/storage"
	"github.com/kalambet/qadesk/internal/stub"
	"github.com/kalambet/qadesk/internal/workflow"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
}

type testServer struct {
	server *httptest.Server

	mu       sync.Mutex
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.mu.Lock()
		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Body:   body.String(),
		})
		ts.mu.Unlock()

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail":"Not Found"}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *service.Client {
	return service.New(ts.server.URL, service.WithHTTPClient(ts.server.Client()))
}

func (ts *testServer) bodyFor(path string) map[string]any {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for _, r := range ts.requests {
		if r.Path == path {
			var body map[string]any
			json.Unmarshal([]byte(r.Body), &body)
			return body
		}
	}
	return nil
}

func (ts *testServer) requestCount() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.requests)
}

func quiet(t *testing.T) {
	t.Helper()
	old := errOut
	errOut = io.Discard
	t.Cleanup(func() { errOut = old })
}

var ctx = context.Background()

// --- ingest ---

func TestRunIngest_BothWorkflows(t *testing.T) {
	quiet(t)
	ts := newTestServer(t, map[string]string{
		"POST /scrape-website": `{"message":"Scraped example.com"}`,
		"POST /add-text":       `{}`,
	})

	outcomes, err := runIngest(ctx, ts.client(), "https://example.com", "We open at nine.")
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	assert.Equal(t, workflow.URLIngestion.Name, outcomes[0].Workflow)
	assert.Equal(t, workflow.StatusSucceeded, outcomes[0].State.Status)
	assert.Equal(t, "Scraped example.com", outcomes[0].State.Result)

	assert.Equal(t, workflow.TextIngestion.Name, outcomes[1].Workflow)
	assert.Equal(t, workflow.StatusSucceeded, outcomes[1].State.Status)
	assert.Equal(t, workflow.DefaultTextMessage, outcomes[1].State.Result)

	assert.Equal(t, map[string]any{"url": "https://example.com"}, ts.bodyFor("/scrape-website"))
	assert.Equal(t, map[string]any{"content": "We open at nine."}, ts.bodyFor("/add-text"))

	assert.NoError(t, reportIngest(outcomes))
}

func TestRunIngest_FailureIsReported(t *testing.T) {
	quiet(t)
	ts := newTestServer(t, map[string]string{
		"POST /scrape-website": `{"message":"ok"}`,
		"POST /add-text":       `<html>oops</html>`,
	})

	outcomes, err := runIngest(ctx, ts.client(), "https://example.com", "text")
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	assert.Equal(t, workflow.StatusSucceeded, outcomes[0].State.Status)
	assert.Equal(t, workflow.StatusFailed, outcomes[1].State.Status)
	assert.True(t, strings.HasPrefix(outcomes[1].State.Result, workflow.FailurePrefix))

	err = reportIngest(outcomes)
	require.Error(t, err)
	assert.Equal(t, "1 of 2 submissions failed", err.Error())
}

func TestRunIngest_InvalidURLNotSent(t *testing.T) {
	quiet(t)
	ts := newTestServer(t, nil)

	_, err := runIngest(ctx, ts.client(), "not a url", "")
	var verr *workflow.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Zero(t, ts.requestCount())
}

func TestRunIngest_InvalidURLSendsNothing(t *testing.T) {
	quiet(t)
	ts := newTestServer(t, map[string]string{
		"POST /add-text": `{"message":"stored"}`,
	})

	outcomes, err := runIngest(ctx, ts.client(), "not a url", "We open at nine.")
	var verr *workflow.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, workflow.URLIngestion.Name, verr.Workflow)
	assert.Empty(t, outcomes)
	assert.Zero(t, ts.requestCount(), "the valid text is not sent either")
}

func TestIngestCommand_RequiresInput(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"ingest"})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "one of --url, --text, or --file is required")
}

// --- chat ---

// echoChat answers with the number of messages received and the last question.
func echoChat(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []conversation.Message `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		last := req.Messages[len(req.Messages)-1]
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"answer": strings.Repeat("#", len(req.Messages)) + " " + last.Content,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunREPL(t *testing.T) {
	srv := echoChat(t)
	conv := conversation.New(service.New(srv.URL))

	in := strings.NewReader("first\n\n   \nsecond\n/exit\nnever sent\n")
	var out bytes.Buffer
	require.NoError(t, runREPL(ctx, conv, in, &out, false))

	transcript := conv.Transcript()
	require.Len(t, transcript, 5)
	assert.Equal(t, "## first", transcript[2].Content)
	assert.Equal(t, "#### second", transcript[4].Content)

	assert.Contains(t, out.String(), "## first")
	assert.Contains(t, out.String(), "#### second")
	assert.NotContains(t, out.String(), "you>")
	assert.NotContains(t, out.String(), conversation.DefaultGreeting)
}

func TestRunREPL_InteractivePrompts(t *testing.T) {
	srv := echoChat(t)
	conv := conversation.New(service.New(srv.URL), conversation.WithGreeting("Ask away."))

	var out bytes.Buffer
	require.NoError(t, runREPL(ctx, conv, strings.NewReader("hi\n"), &out, true))

	assert.Contains(t, out.String(), "Ask away.")
	assert.Contains(t, out.String(), "you>")
	assert.Equal(t, 3, conv.Len())
}

func TestChatOnce_ServiceDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	conv := conversation.New(service.New(url))
	var out bytes.Buffer
	require.NoError(t, chatOnce(ctx, conv, &out, "anyone there?"))

	assert.Equal(t, 3, conv.Len())
	assert.Contains(t, out.String(), conversation.FailurePrefix)
}

func TestChatOnce_AnswerWithFailureWordingIsNotRed(t *testing.T) {
	old := color.NoColor
	defer func() { color.NoColor = old }()
	color.NoColor = false

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"answer":"Request failed: is shown when the card is declined."}`))
	}))
	t.Cleanup(srv.Close)

	conv := conversation.New(service.New(srv.URL))
	var out bytes.Buffer
	require.NoError(t, chatOnce(ctx, conv, &out, "What does the checkout error mean?"))

	assert.Contains(t, out.String(), colorize(colorCyan, "assistant>"))
	assert.NotContains(t, out.String(), colorize(colorRed, "assistant>"))
	assert.Contains(t, out.String(), "Request failed: is shown when the card is declined.")
}

func TestChatOnce_Blank(t *testing.T) {
	conv := conversation.New(service.New("http://127.0.0.1:1"))
	err := chatOnce(ctx, conv, io.Discard, "  ")
	assert.ErrorIs(t, err, conversation.ErrEmpty)
}

func TestExportTranscript(t *testing.T) {
	srv := echoChat(t)
	conv := conversation.New(service.New(srv.URL))
	require.NoError(t, conv.Submit(ctx, "hello"))

	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "t.yaml")
	require.NoError(t, exportTranscript(conv, yamlPath))
	data, err := os.ReadFile(yamlPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "role: user")
	assert.Contains(t, string(data), "content: hello")

	jsonPath := filepath.Join(dir, "t.json")
	require.NoError(t, exportTranscript(conv, jsonPath))
	data, err = os.ReadFile(jsonPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"role": "assistant"`)

	assert.Error(t, exportTranscript(conv, filepath.Join(dir, "missing", "t.json")))
}

// --- status ---

func TestStatusCommand(t *testing.T) {
	quiet(t)
	ts := newTestServer(t, map[string]string{
		"GET /health": `{"status":"healthy","message":"Service running normally"}`,
	})

	orig := newSession
	defer func() { newSession = orig }()
	newSession = func() (*session, error) {
		return &session{client: ts.client(), logger: nil}, nil
	}

	defer rootCmd.SetArgs(nil)
	rootCmd.SetArgs([]string{"status"})
	require.NoError(t, rootCmd.Execute())

	ts.server.Close()
	rootCmd.SetArgs([]string{"status"})
	assert.Error(t, rootCmd.Execute())
}

// --- end to end ---

func TestIngestThenChat_AgainstStub(t *testing.T) {
	quiet(t)
	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	srv := httptest.NewServer(stub.NewHandler(stub.Deps{Store: store, Token: "secret"}))
	t.Cleanup(srv.Close)
	client := service.New(srv.URL, service.WithToken("secret"))

	outcomes, err := runIngest(ctx, client, "", "The salon is closed on Mondays and public holidays.")
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	require.Equal(t, workflow.StatusSucceeded, outcomes[0].State.Status, outcomes[0].State.Result)

	conv := conversation.New(client)
	var out bytes.Buffer
	require.NoError(t, chatOnce(ctx, conv, &out, "Are you open on Mondays?"))
	assert.Contains(t, out.String(), "closed on Mondays")

	unauth := conversation.New(service.New(srv.URL))
	require.NoError(t, unauth.Submit(ctx, "Mondays?"))
	transcript := unauth.Transcript()
	assert.Equal(t, conversation.NoAnswer, transcript[len(transcript)-1].Content,
		"a 401 body without an answer falls back to the placeholder")
}

// --- output ---

func TestColorize_NoColor(t *testing.T) {
	old := color.NoColor
	defer func() { color.NoColor = old }()

	color.NoColor = true
	assert.Equal(t, "hello", colorize(colorGreen, "hello"))

	color.NoColor = false
	assert.Contains(t, colorize(colorGreen, "hello"), "\x1b[")
}

func TestConfigSetCommand(t *testing.T) {
	quiet(t)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	defer rootCmd.SetArgs(nil)
	rootCmd.SetArgs([]string{"config", "set", "chat.greeting", "Howdy"})
	require.NoError(t, rootCmd.Execute())

	data, err := os.ReadFile(config.ConfigFilePath())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"chat.greeting": "Howdy"`)
}
