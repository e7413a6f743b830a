package webui

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alantheprice/askweb/pkg/configuration"
	"github.com/alantheprice/askweb/pkg/orchestration"
)

type fakeAsker struct {
	tokens []string

	mu       sync.Mutex
	requests []orchestration.Request
}

func (f *fakeAsker) AskInternet(ctx context.Context, req orchestration.Request) iter.Seq[string] {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	return func(yield func(string) bool) {
		phase := func(p orchestration.Phase) {
			if req.OnPhase != nil {
				req.OnPhase(p)
			}
		}
		defer phase(orchestration.PhaseDone)
		if req.SearchEnabled {
			phase(orchestration.PhaseSearching)
		}
		phase(orchestration.PhaseStreamingAnswer)
		for _, token := range f.tokens {
			if !yield(token) {
				return
			}
		}
	}
}

func (f *fakeAsker) lastRequest(t *testing.T) orchestration.Request {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests)
	return f.requests[len(f.requests)-1]
}

func testSettings() configuration.Settings {
	return configuration.Settings{
		Model:         "gpt3.5",
		BaseURL:       "http://llm-freegpt35:3040/v1/",
		AuthToken:     "sk-secret",
		UseCustomLLM:  true,
		SearchEnabled: true,
		HistoryLimit:  5,
		Language:      "zh-CN",
		ContextLimit:  11000,
		SearxURL:      "http://searxng:8080",
		Addr:          "127.0.0.1:0",
	}
}

func newTestServer(t *testing.T, asker *fakeAsker) (*Server, *httptest.Server) {
	t.Helper()
	server := NewServer(asker, testSettings(), nil)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return server, ts
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t, &fakeAsker{})

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 0, body["queries"])
}

func TestIndexServesChatPage(t *testing.T) {
	_, ts := newTestServer(t, &fakeAsker{})

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, string(body), "<title>askweb</title>")

	missing, err := http.Get(ts.URL + "/nope")
	require.NoError(t, err)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestAPISettingsRedactsToken(t *testing.T) {
	_, ts := newTestServer(t, &fakeAsker{})

	resp, err := http.Get(ts.URL + "/api/settings")
	require.NoError(t, err)
	defer resp.Body.Close()

	var settings configuration.Settings
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&settings))
	assert.Equal(t, "gpt3.5", settings.Model)
	assert.Equal(t, "********", settings.AuthToken)
	assert.Equal(t, 5, settings.HistoryLimit)
}

func TestAPIAskStreamsAnswer(t *testing.T) {
	asker := &fakeAsker{tokens: []string{"It is ", "sunny.", "\n\n---\n**References:**\n", "1. [BBC](https://bbc.co.uk)\n"}}
	_, ts := newTestServer(t, asker)

	body := `{"query":"weather today","history":[{"role":"user","content":"hi"}]}`
	resp, err := http.Post(ts.URL+"/api/ask", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	answer, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Equal(t, "It is sunny.\n\n---\n**References:**\n1. [BBC](https://bbc.co.uk)\n", string(answer))

	req := asker.lastRequest(t)
	assert.Equal(t, "weather today", req.Query)
	assert.Equal(t, "gpt3.5", req.Model)
	assert.Equal(t, "sk-secret", req.AuthToken)
	assert.True(t, req.UseCustomLLM)
	assert.True(t, req.SearchEnabled)
	require.Len(t, req.History, 1)
	require.NotNil(t, req.Prompt)
	assert.Equal(t, 5, req.Prompt.HistoryLimit)
	assert.Equal(t, "zh-CN", req.Prompt.Language)
}

func TestAPIAskAppliesOverrides(t *testing.T) {
	asker := &fakeAsker{tokens: []string{"ok"}}
	_, ts := newTestServer(t, asker)

	body := `{"query":"q","model":"qwen","use_custom_llm":false,"search_enabled":false,"history_limit":0,"language":"en-US","auth_token":"other"}`
	resp, err := http.Post(ts.URL+"/api/ask", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()

	req := asker.lastRequest(t)
	assert.Equal(t, "qwen", req.Model)
	assert.Equal(t, "other", req.AuthToken)
	assert.False(t, req.UseCustomLLM)
	assert.False(t, req.SearchEnabled)
	assert.Equal(t, 0, req.Prompt.HistoryLimit)
	assert.Equal(t, "en-US", req.Prompt.Language)
	assert.False(t, req.NoStream)
}

func TestAPIAskStreamFalseRequestsCompletion(t *testing.T) {
	asker := &fakeAsker{tokens: []string{"whole answer"}}
	_, ts := newTestServer(t, asker)

	resp, err := http.Post(ts.URL+"/api/ask", "application/json", strings.NewReader(`{"query":"q","stream":false}`))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	assert.Equal(t, "whole answer", string(body))
	assert.True(t, asker.lastRequest(t).NoStream)
}

func TestAPIAskRejectsBadRequests(t *testing.T) {
	_, ts := newTestServer(t, &fakeAsker{})

	tests := []struct {
		name   string
		method string
		body   string
		status int
	}{
		{"wrong method", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"malformed json", http.MethodPost, "{", http.StatusBadRequest},
		{"empty query", http.MethodPost, `{"query":"  "}`, http.StatusBadRequest},
		{"history limit out of range", http.MethodPost, `{"query":"q","history_limit":21}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, ts.URL+"/api/ask", strings.NewReader(tt.body))
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.status, resp.StatusCode)
			var body map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func dialWebSocket(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var status struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&status))
	require.Equal(t, "connection_status", status.Type)
	return conn
}

type wsEvent struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

func TestWebSocketPingPong(t *testing.T) {
	_, ts := newTestServer(t, &fakeAsker{})
	conn := dialWebSocket(t, ts)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))

	var event wsEvent
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, "pong", event.Type)
}

func TestWebSocketAskStreamsEvents(t *testing.T) {
	asker := &fakeAsker{tokens: []string{"Hel", "lo"}}
	_, ts := newTestServer(t, asker)
	conn := dialWebSocket(t, ts)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "ask", "query": "hi", "search_enabled": true}))

	var got []string
	for {
		var event wsEvent
		require.NoError(t, conn.ReadJSON(&event))
		switch event.Type {
		case "phase":
			got = append(got, "phase:"+fmt.Sprint(event.Data["phase"]))
		case "token":
			got = append(got, "token:"+fmt.Sprint(event.Data["content"]))
		}
		if event.Type == "done" {
			assert.EqualValues(t, 2, event.Data["tokens"])
			break
		}
	}

	assert.Equal(t, []string{
		"phase:searching",
		"phase:streaming_answer",
		"token:Hel",
		"token:lo",
		"phase:done",
	}, got)
	assert.Equal(t, "hi", asker.lastRequest(t).Query)
}

func TestWebSocketRejectsInvalidMessages(t *testing.T) {
	_, ts := newTestServer(t, &fakeAsker{})
	conn := dialWebSocket(t, ts)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "ask", "query": ""}))
	var event wsEvent
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, "error", event.Type)
	assert.Equal(t, "query is required", event.Data["message"])

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "subscribe"}))
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, "error", event.Type)
}

func TestStartAndShutdown(t *testing.T) {
	server := NewServer(&fakeAsker{}, testSettings(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, server.Start(ctx))
	assert.True(t, server.IsRunning())
	assert.Error(t, server.Start(ctx), "second start must fail")

	resp, err := http.Get("http://" + server.Addr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, server.Shutdown())
	assert.False(t, server.IsRunning())
	assert.NoError(t, server.Shutdown())
}

func TestStartFailsWhenPortAlreadyInUse(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	settings := testSettings()
	settings.Addr = listener.Addr().String()
	server := NewServer(&fakeAsker{}, settings, nil)

	err = server.Start(context.Background())
	assert.Error(t, err)
	assert.False(t, server.IsRunning())
}
