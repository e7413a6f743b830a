package webcontent

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alantheprice/askweb/pkg/utils"
)

const articlePage = `<!DOCTYPE html>
<html>
<head><title>Weather</title><style>body { color: red; }</style></head>
<body>
  <header><p>Site header text</p></header>
  <nav><ul><li>Home</li><li>News</li></ul></nav>
  <div class="cookie-banner"><p>We use cookies</p></div>
  <article>
    <h1>Sunny skies ahead</h1>
    <p>Temperatures   will reach
       25 degrees today.</p>
    <ul><li><p>Morning: clear</p></li><li>Evening: mild</li></ul>
    <script>var tracking = "secret";</script>
  </article>
  <aside><p>Related stories</p></aside>
  <footer><p>Copyright footer</p></footer>
</body>
</html>`

func serveHTML(body string, contentType string, status int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
}

func TestExtractMainArticleText(t *testing.T) {
	server := serveHTML(articlePage, "text/html; charset=utf-8", http.StatusOK)
	defer server.Close()

	result := NewContentExtractor().Extract(context.Background(), server.URL)

	require.True(t, result.OK(), "expected content, got error %v", result.Err)
	assert.Equal(t, server.URL, result.URL)
	assert.Equal(t, "Sunny skies ahead\nTemperatures will reach 25 degrees today.\nMorning: clear\nEvening: mild", result.Content)
	for _, unwanted := range []string{"Site header", "Home", "cookies", "tracking", "Related", "Copyright", "color: red"} {
		assert.NotContains(t, result.Content, unwanted)
	}
}

func TestExtractFallsBackToBody(t *testing.T) {
	page := `<html><body><div><p>First paragraph.</p><p>Second paragraph.</p></div></body></html>`
	server := serveHTML(page, "text/html", http.StatusOK)
	defer server.Close()

	result := NewContentExtractor().Extract(context.Background(), server.URL)

	assert.Equal(t, "First paragraph.\nSecond paragraph.", result.Content)
}

func TestExtractBareTextWithoutBlocks(t *testing.T) {
	page := `<html><body><div>Just   some text</div></body></html>`
	server := serveHTML(page, "text/html", http.StatusOK)
	defer server.Close()

	result := NewContentExtractor().Extract(context.Background(), server.URL)

	assert.Equal(t, "Just some text", result.Content)
}

func TestExtractPlainText(t *testing.T) {
	server := serveHTML("  plain body \n", "text/plain; charset=utf-8", http.StatusOK)
	defer server.Close()

	result := NewContentExtractor().Extract(context.Background(), server.URL)

	assert.Equal(t, "plain body", result.Content)
}

func TestExtractDecodesLegacyCharset(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		w.Write([]byte("<html><body><p>caf\xe9 au lait</p></body></html>"))
	}))
	defer server.Close()

	result := NewContentExtractor().Extract(context.Background(), server.URL)

	assert.Equal(t, "café au lait", result.Content)
}

func TestExtractFailuresYieldEmptyContent(t *testing.T) {
	notFound := serveHTML("<p>missing</p>", "text/html", http.StatusNotFound)
	defer notFound.Close()

	pdf := serveHTML("%PDF-1.4", "application/pdf", http.StatusOK)
	defer pdf.Close()

	empty := serveHTML("<html><body><nav>only nav</nav></body></html>", "text/html", http.StatusOK)
	defer empty.Close()

	closed := httptest.NewServer(http.NotFoundHandler())
	unreachable := closed.URL
	closed.Close()

	tests := []struct {
		name string
		url  string
	}{
		{"http 404", notFound.URL},
		{"unsupported content type", pdf.URL},
		{"nothing readable", empty.URL},
		{"unreachable host", unreachable},
		{"malformed url", "://bad"},
		{"empty url", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NewContentExtractor().Extract(context.Background(), tt.url)

			assert.Equal(t, tt.url, result.URL)
			assert.Equal(t, "", result.Content)
			assert.False(t, result.OK())
			assert.True(t, utils.HasCode(result.Err, utils.CodeExtractionFailure), "unexpected error %v", result.Err)
		})
	}
}

func TestExtractHonorsCancelledContext(t *testing.T) {
	server := serveHTML(articlePage, "text/html", http.StatusOK)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := NewContentExtractor().Extract(ctx, server.URL)

	assert.Equal(t, "", result.Content)
	assert.Error(t, result.Err)
}

func TestExtractSendsBrowserUserAgent(t *testing.T) {
	var agent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent = r.Header.Get("User-Agent")
		fmt.Fprint(w, "<p>ok</p>")
	}))
	defer server.Close()

	NewContentExtractor().Extract(context.Background(), server.URL)

	assert.True(t, strings.HasPrefix(agent, "Mozilla/5.0"), agent)
}
