package webcontent

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"github.com/alantheprice/askweb/pkg/utils"
)

const (
	maxDocumentBytes = 5 << 20
	userAgent        = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// Elements that never carry article text.
const boilerplateSelector = "script, style, noscript, iframe, svg, canvas, template, nav, header, footer, aside, form, button, select, input"

// Block-level elements whose text makes up the article body.
const blockSelector = "h1, h2, h3, h4, h5, h6, p, li, pre, blockquote, td, th, dt, dd, figcaption"

var (
	boilerplateAttr = regexp.MustCompile(`(?i)(^|[\s_-])(comment|comments|sidebar|cookie|consent|banner|advert|ads|share|social|related|newsletter|subscribe|breadcrumb|menu|popup|modal|footer|header|nav)([\s_-]|$)`)
	whitespaceRun   = regexp.MustCompile(`\s+`)
)

// Extractor fetches one URL and returns its readable text.
type Extractor interface {
	Extract(ctx context.Context, url string) Extraction
}

// ContentExtractor downloads pages and isolates their main text.
type ContentExtractor struct {
	httpClient *http.Client
}

// NewContentExtractor creates a ContentExtractor. Per-request deadlines come
// from the context, so the client itself has only a safety timeout.
func NewContentExtractor() *ContentExtractor {
	return &ContentExtractor{
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Extract makes a single attempt to fetch url and extract its main content.
// Every failure is reported as an Extraction with empty Content.
func (e *ContentExtractor) Extract(ctx context.Context, url string) Extraction {
	content, err := e.extract(ctx, url)
	if err != nil {
		return Extraction{URL: url, Err: utils.NewExtractionError(url, err)}
	}
	if content == "" {
		return Extraction{URL: url, Err: utils.NewExtractionError(url, fmt.Errorf("no readable content"))}
	}
	return Extraction{URL: url, Content: content}
}

func (e *ContentExtractor) extract(ctx context.Context, url string) (string, error) {
	if url == "" {
		return "", fmt.Errorf("empty url")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(contentType)
	body := io.LimitReader(resp.Body, maxDocumentBytes)

	switch {
	case mediaType == "text/plain":
		raw, err := io.ReadAll(body)
		if err != nil {
			return "", fmt.Errorf("failed to read body: %w", err)
		}
		return strings.TrimSpace(string(raw)), nil
	case mediaType == "" || mediaType == "text/html" || mediaType == "application/xhtml+xml":
		utf8Body, err := charset.NewReader(body, contentType)
		if err != nil {
			return "", fmt.Errorf("failed to decode charset: %w", err)
		}
		doc, err := goquery.NewDocumentFromReader(utf8Body)
		if err != nil {
			return "", fmt.Errorf("failed to parse html: %w", err)
		}
		return ExtractMainText(doc), nil
	default:
		return "", fmt.Errorf("unsupported content type %q", mediaType)
	}
}

// ExtractMainText strips boilerplate from doc and returns the text of its
// densest content root, one block per line.
func ExtractMainText(doc *goquery.Document) string {
	doc.Find(boilerplateSelector).Remove()
	doc.Find("[class], [id], [role]").Each(func(_ int, s *goquery.Selection) {
		if isBoilerplate(s) {
			s.Remove()
		}
	})

	root := contentRoot(doc)

	var blocks []string
	root.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		// Nested blocks are covered by their outermost ancestor.
		if s.ParentsFiltered(blockSelector).Length() > 0 {
			return
		}
		if text := normalizeText(s.Text()); text != "" {
			blocks = append(blocks, text)
		}
	})

	if len(blocks) == 0 {
		return normalizeText(root.Text())
	}
	return strings.Join(blocks, "\n")
}

func isBoilerplate(s *goquery.Selection) bool {
	// Never drop the document skeleton or explicit content containers.
	if s.Is("html, body, main, article") {
		return false
	}
	if role, ok := s.Attr("role"); ok {
		switch role {
		case "navigation", "banner", "contentinfo", "complementary", "dialog":
			return true
		case "main", "article":
			return false
		}
	}
	class, _ := s.Attr("class")
	id, _ := s.Attr("id")
	return boilerplateAttr.MatchString(class) || boilerplateAttr.MatchString(id)
}

// contentRoot picks the candidate container holding the most text.
func contentRoot(doc *goquery.Document) *goquery.Selection {
	var best *goquery.Selection
	bestLen := 0
	doc.Find(`article, main, [role="main"]`).Each(func(_ int, s *goquery.Selection) {
		if n := len(normalizeText(s.Text())); n > bestLen {
			best, bestLen = s, n
		}
	})
	if best != nil {
		return best
	}
	if body := doc.Find("body"); body.Length() > 0 {
		return body
	}
	return doc.Selection
}

func normalizeText(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}
