package article

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0.0.0 Safari/537.36"

	clientTimeout = 20 * time.Second

	noiseSelector = "script, style, noscript, nav, header, footer, aside, form, figure, iframe"
)

// ErrNoArticleText is returned when a page has no readable paragraphs.
var ErrNoArticleText = errors.New("article text is not found")

// Article is the readable part of a web page.
type Article struct {
	URL   string
	Title string
	Text  string
}

// Extractor downloads pages and pulls out their article text.
type Extractor struct {
	client *http.Client
	log    *slog.Logger
}

func NewExtractor(log *slog.Logger) *Extractor {
	return &Extractor{
		client: &http.Client{Timeout: clientTimeout},
		log:    log,
	}
}

func (e *Extractor) Extract(ctx context.Context, pageURL string) (Article, error) {
	pageURL = strings.TrimSpace(pageURL)
	if pageURL == "" {
		return Article{}, errors.New("URL is empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return Article{}, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)

	resp, err := e.client.Do(req) //nolint:gosec // URL is provided by an allowed user
	if err != nil {
		return Article{}, fmt.Errorf("do request: %w", err)
	}
	defer func() {
		if err = resp.Body.Close(); err != nil {
			e.log.ErrorContext(ctx, "Failed to close response body",
				"error", err,
				"url", pageURL,
				"operation", "Extract")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return Article{}, fmt.Errorf("do request: unexpected status: %d", resp.StatusCode)
	}

	a, err := Parse(resp.Body)
	if err != nil {
		return Article{}, fmt.Errorf("parse page (URL = %s): %w", pageURL, err)
	}

	a.URL = pageURL
	if a.Title == "" {
		e.log.WarnContext(ctx, "Empty article title",
			"url", pageURL,
			"textLen", len(a.Text))
	}

	return a, nil
}

// Parse extracts the title and paragraph text of an HTML document.
func Parse(r io.Reader) (Article, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return Article{}, fmt.Errorf("create document from reader: %w", err)
	}

	var title string
	if content, ok := doc.Find("meta[property='og:title']").Attr("content"); ok {
		title = strings.TrimSpace(content)
	}
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	doc.Find(noiseSelector).Remove()

	var text string
	for _, root := range []string{"article", "main", "body"} {
		text = paragraphsText(doc.Find(root))
		if text != "" {
			break
		}
	}

	if text == "" {
		return Article{Title: title}, ErrNoArticleText
	}

	return Article{Title: title, Text: text}, nil
}

// StripHTML returns the visible text of an HTML fragment with
// whitespace collapsed.
func StripHTML(fragment string) string {
	if !strings.Contains(fragment, "<") {
		return collapseSpaces(fragment)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return collapseSpaces(fragment)
	}

	doc.Find(noiseSelector).Remove()
	doc.Find("br").Each(func(_ int, br *goquery.Selection) {
		br.ReplaceWithHtml("\n")
	})

	return collapseSpaces(doc.Text())
}

func paragraphsText(root *goquery.Selection) string {
	var b strings.Builder

	root.Find("p").Each(func(_ int, p *goquery.Selection) {
		fragment := collapseSpaces(p.Text())
		if fragment == "" {
			return
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(fragment)
	})

	return b.String()
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
