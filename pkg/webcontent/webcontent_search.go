package webcontent

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hashicorp/go-multierror"
	"github.com/tidwall/gjson"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/sync/errgroup"

	"github.com/alantheprice/askweb/pkg/utils"
)

const (
	DefaultSearxURL     = "http://searxng:8080"
	DefaultMaxResults   = 9
	DefaultWorkers      = 10
	DefaultFetchTimeout = 5 * time.Second

	// categoryFilter scopes SearXNG to general web results.
	categoryFilter = ":all !general "
)

// SearchOptions tunes a WebSearcher. Zero values fall back to the defaults.
type SearchOptions struct {
	SearxURL     string
	MaxResults   int
	Workers      int
	FetchTimeout time.Duration
	// Deadline bounds the whole search call when positive.
	Deadline time.Duration
}

// WebSearcher queries SearXNG and extracts the pages it returns.
type WebSearcher struct {
	opts       SearchOptions
	httpClient *http.Client
	extractor  Extractor
	logger     *utils.Logger
}

// NewWebSearcher creates a searcher that extracts pages with extractor.
func NewWebSearcher(opts SearchOptions, extractor Extractor, logger *utils.Logger) *WebSearcher {
	if opts.SearxURL == "" {
		opts.SearxURL = DefaultSearxURL
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultMaxResults
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	return &WebSearcher{
		opts:       opts,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		extractor:  extractor,
		logger:     logger,
	}
}

// Search runs query against the backend and extracts the top results. It
// never fails: a backend error yields an outcome with Err set and no links,
// and extraction problems only shrink Contents.
func (s *WebSearcher) Search(ctx context.Context, query string) SearchOutcome {
	if s.opts.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Deadline)
		defer cancel()
	}

	startTime := time.Now()
	defer func() {
		s.logger.Logf("Web search completed in %v", time.Since(startTime))
	}()

	s.logger.LogProcessStep(fmt.Sprintf("Performing SearXNG search for query: %s", query))
	links, err := s.queryBackend(ctx, query)
	if err != nil {
		s.logger.LogError(err)
		return SearchOutcome{Links: []SearchLink{}, Contents: []ExtractedContent{}, Err: err}
	}
	s.logger.Logf("Received %d search results", len(links))

	urls := make([]string, 0, len(links))
	for _, link := range links {
		if link.URL != "" {
			urls = append(urls, link.URL)
		}
	}

	extractions, timeoutErr := s.extractAll(ctx, urls)

	outcome := SearchOutcome{Links: links, Contents: []ExtractedContent{}}
	var failures error
	if timeoutErr != nil {
		outcome.Partial = true
		failures = multierror.Append(failures, timeoutErr)
	}
	for _, extraction := range extractions {
		if !extraction.OK() {
			if extraction.Err != nil {
				failures = multierror.Append(failures, extraction.Err)
			}
			continue
		}
		outcome.Contents = append(outcome.Contents, ExtractedContent{
			URL:     extraction.URL,
			Content: extraction.Content,
			Length:  utf8.RuneCountInString(extraction.Content),
		})
	}
	outcome.Failures = failures
	if failures != nil {
		s.logger.LogError(failures)
	}

	s.logger.Logf("Successfully extracted content from %d/%d URLs", len(outcome.Contents), len(urls))
	return outcome
}

// SearchURL builds the backend request URL for query.
func SearchURL(baseURL, query string) string {
	return fmt.Sprintf("%s?q=%s&format=json", baseURL, url.QueryEscape(categoryFilter+query))
}

func (s *WebSearcher) queryBackend(ctx context.Context, query string) ([]SearchLink, error) {
	endpoint := SearchURL(s.opts.SearxURL, query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, utils.NewSearchBackendError(s.opts.SearxURL, fmt.Errorf("failed to create search request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, utils.NewSearchBackendError(s.opts.SearxURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, utils.NewSearchBackendError(s.opts.SearxURL, fmt.Errorf("failed to read search response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, utils.NewSearchBackendError(s.opts.SearxURL, fmt.Errorf("search backend returned status %d", resp.StatusCode))
	}

	return ParseSearchResults(body, s.opts.MaxResults)
}

// ParseSearchResults decodes a SearXNG JSON body into at most limit links.
// A body without a results array is not an error and yields no links.
func ParseSearchResults(body []byte, limit int) ([]SearchLink, error) {
	if !gjson.ValidBytes(body) {
		return nil, utils.NewSearchBackendError("", fmt.Errorf("malformed search response"))
	}

	links := []SearchLink{}
	results := gjson.GetBytes(body, "results")
	if !results.IsArray() {
		return links, nil
	}

	for _, item := range results.Array() {
		if len(links) >= limit {
			break
		}
		link := SearchLink{
			Title:   item.Get("title").String(),
			Snippet: item.Get("content").String(),
			URL:     item.Get("url").String(),
		}
		link.SiteName, link.IconURL = siteInfo(link.URL)
		links = append(links, link)
	}
	return links, nil
}

// siteInfo derives the registrable domain label and favicon location of
// rawURL, leaving both empty when the URL cannot be parsed.
func siteInfo(rawURL string) (siteName, iconURL string) {
	if rawURL == "" {
		return "", ""
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return "", ""
	}
	iconURL = parsed.Scheme + "://" + parsed.Host + "/favicon.ico"

	host := parsed.Hostname()
	if net.ParseIP(host) != nil {
		return host, iconURL
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return "", iconURL
	}
	siteName, _, _ = strings.Cut(domain, ".")
	return siteName, iconURL
}

// extractAll fetches urls on a bounded pool and collects the results in
// submission order. Each result must arrive within FetchTimeout of its
// submission; on the first miss collection stops and the pool is torn down
// without waiting for the remaining tasks.
func (s *WebSearcher) extractAll(ctx context.Context, urls []string) ([]Extraction, error) {
	if len(urls) == 0 {
		return nil, nil
	}

	poolCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	group, groupCtx := errgroup.WithContext(poolCtx)
	group.SetLimit(s.opts.Workers)

	futures := make([]chan Extraction, len(urls))
	deadlines := make([]time.Time, len(urls))
	for i := range urls {
		// Buffered so abandoned workers never block.
		futures[i] = make(chan Extraction, 1)
		deadlines[i] = time.Now().Add(s.opts.FetchTimeout)
	}

	go func() {
		for i, u := range urls {
			if groupCtx.Err() != nil {
				return
			}
			future := futures[i]
			group.Go(func() error {
				if groupCtx.Err() != nil {
					return nil
				}
				future <- s.extractor.Extract(groupCtx, u)
				return nil
			})
		}
	}()

	results := make([]Extraction, 0, len(urls))
	for i, future := range futures {
		timer := time.NewTimer(time.Until(deadlines[i]))
		select {
		case res := <-future:
			timer.Stop()
			results = append(results, res)
		case <-timer.C:
			s.logger.LogProcessStep("Extraction timed out, keeping partial results")
			return results, utils.NewExtractionTimeoutError(urls[i], s.opts.FetchTimeout)
		case <-ctx.Done():
			timer.Stop()
			return results, utils.NewExtractionTimeoutError(urls[i], time.Since(deadlines[i].Add(-s.opts.FetchTimeout)))
		}
	}
	return results, nil
}
