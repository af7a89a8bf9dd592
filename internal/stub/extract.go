package stub

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"golang.org/x/net/html/charset"
)

const maxPageSize = 5 << 20 // 5MB

// Page is the readable content of a fetched web page.
type Page struct {
	URL   string
	Title string
	Text  string
}

// Fetcher downloads web pages and reduces them to readable text.
type Fetcher struct {
	client *http.Client
}

func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	return &Fetcher{client: client}
}

// Fetch downloads rawURL and extracts its readable text.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Page{}, fmt.Errorf("invalid url: %w", err)
	}
	req.Header.Set("User-Agent", "qadesk-stub/1.0")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("failed to fetch url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Page{}, fmt.Errorf("url returned status %d", resp.StatusCode)
	}

	body, err := charset.NewReader(io.LimitReader(resp.Body, maxPageSize), resp.Header.Get("Content-Type"))
	if err != nil {
		return Page{}, fmt.Errorf("decoding page charset: %w", err)
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return Page{}, fmt.Errorf("failed to read url response: %w", err)
	}

	return ExtractPage(rawURL, string(raw))
}

// ExtractPage reduces an HTML document to its main text. The readability
// pass picks the article body; the full document is used when it finds none.
func ExtractPage(rawURL, html string) (Page, error) {
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return Page{}, err
	}

	var title, text string
	parser := readability.NewParser()
	article, err := parser.Parse(strings.NewReader(html), pageURL)
	if err == nil && strings.TrimSpace(article.Content) != "" {
		title = normalizeText(article.Title)
		if text, err = readableText(article.Content); err != nil {
			return Page{}, err
		}
	}
	if text == "" {
		if text, err = readableText(html); err != nil {
			return Page{}, err
		}
	}

	if title == "" {
		full, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err == nil {
			title = normalizeText(full.Find("title").First().Text())
		}
	}

	return Page{URL: rawURL, Title: title, Text: text}, nil
}

// readableText collects block-level text from an HTML fragment, falling back
// to all text when the fragment has no block elements.
func readableText(src string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}
	doc.Find("head,script,style,noscript,template").Remove()

	var blocks []string
	doc.Find("h1,h2,h3,h4,h5,h6,p,li,td,th,pre,blockquote").Each(func(_ int, s *goquery.Selection) {
		if s.Find("p,li").Length() > 0 {
			return
		}
		if text := normalizeText(s.Text()); text != "" {
			blocks = append(blocks, text)
		}
	})
	if len(blocks) == 0 {
		return normalizeText(doc.Text()), nil
	}
	return strings.Join(blocks, "\n\n"), nil
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
