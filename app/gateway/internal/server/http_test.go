package server

import (
	"context"
	"errors"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/config"
	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/engine"
	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/llm"
	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/metrics"
	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/model"
	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/nlp"
	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/search"
	"github.com/iWorld-y/answer_engine/app/gateway/internal/conf"
	"github.com/iWorld-y/answer_engine/app/gateway/internal/service"
)

const wikiURL = "https://en.wikipedia.org/wiki/Osmosis"

type stageCompleter map[string]string

func (c stageCompleter) Complete(_ context.Context, req llm.Request) (string, error) {
	return c[req.Stage], nil
}

type staticSearcher map[string][]search.Result

func (s staticSearcher) Search(_ context.Context, req *search.Request) (*search.Response, error) {
	rs, ok := s[req.Query]
	if !ok {
		return nil, errors.New("backend unavailable")
	}
	return &search.Response{Results: rs}, nil
}

func newTestServer(t *testing.T) *http.Server {
	t.Helper()
	wiki := search.Result{Title: "Osmosis", URL: wikiURL, Content: "Osmosis is the movement of water molecules across a semipermeable membrane.", Score: 0.9}
	def := search.Result{Title: "Definition", URL: "https://b.example/osmosis", Content: "Definition of osmosis: diffusion of water through a membrane.", Score: 0.5}

	var c llm.Completer = stageCompleter{
		metrics.StageSynthesize: "Osmosis is the movement of water molecules across a semipermeable membrane [1]. It is passive.",
	}
	eng := engine.New(config.Default(), engine.Deps{
		Completer: c,
		Searcher: staticSearcher{
			"what is osmosis":    {wiki},
			"osmosis definition": {def, wiki},
		},
		Caps: nlp.Capabilities{},
	})

	sc := &conf.Server{
		Http: &conf.HTTP{Timeout: "10s"},
		Cors: &conf.CORS{AllowOrigins: []string{"http://localhost:3000"}},
	}
	return NewHTTPServer(sc, service.NewAnswerService(eng, log.DefaultLogger), log.DefaultLogger)
}

func do(srv *http.Server, method, target, body string) *httptest.ResponseRecorder {
	var req *nethttp.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndRoot(t *testing.T) {
	srv := newTestServer(t)

	rec := do(srv, nethttp.MethodGet, "/health", "")
	assert.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"healthy"`)

	rec = do(srv, nethttp.MethodGet, "/", "")
	assert.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "timestamp")
}

func TestSearch(t *testing.T) {
	srv := newTestServer(t)

	rec := do(srv, nethttp.MethodPost, "/search", `{"query":"what is osmosis"}`)
	require.Equal(t, nethttp.StatusOK, rec.Code, rec.Body.String())

	var resp model.SearchResponse
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "what is osmosis", resp.OriginalQuery)
	assert.Nil(t, resp.Answer)
	require.NotNil(t, resp.WebResults)
	require.Len(t, resp.WebResults.Results, 2)
	assert.Equal(t, wikiURL, resp.WebResults.Results[0].URL)
}

func TestAnswer(t *testing.T) {
	srv := newTestServer(t)

	rec := do(srv, nethttp.MethodPost, "/answer", `{"query":"what is osmosis"}`)
	require.Equal(t, nethttp.StatusOK, rec.Code, rec.Body.String())

	var resp model.SearchResponse
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Answer)
	assert.Equal(t, 2, resp.Answer.TotalSources)
	assert.NotEmpty(t, resp.Answer.ResponseText)
}

func TestSearch_InvalidQuery(t *testing.T) {
	srv := newTestServer(t)

	rec := do(srv, nethttp.MethodPost, "/search", `{"query":"  "}`)
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_QUERY")
}

func TestChatStream(t *testing.T) {
	srv := newTestServer(t)

	rec := do(srv, nethttp.MethodGet, "/chat_stream?message=what+is+osmosis", "")
	require.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	frames := strings.Split(strings.TrimSpace(rec.Body.String()), "\n\n")
	require.NotEmpty(t, frames)
	var types []model.EventType
	for _, f := range frames {
		require.True(t, strings.HasPrefix(f, "data: "), f)
		var ev model.StreamEvent
		require.NoError(t, sonic.UnmarshalString(strings.TrimPrefix(f, "data: "), &ev))
		types = append(types, ev.Type)
	}
	assert.Equal(t, model.EventSearchStart, types[0])
	assert.Equal(t, model.EventEnd, types[len(types)-1])
	assert.Contains(t, types, model.EventSourceFound)
	assert.Contains(t, types, model.EventContentChunk)
}

func TestChatStream_Post(t *testing.T) {
	srv := newTestServer(t)

	rec := do(srv, nethttp.MethodPost, "/chat_stream", `{"message":"what is osmosis","checkpoint_id":"c1"}`)
	require.Equal(t, nethttp.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), `data: {"type":"search_start"`))
}

func TestChatStream_InvalidQuery(t *testing.T) {
	srv := newTestServer(t)

	rec := do(srv, nethttp.MethodGet, "/chat_stream?message=", "")
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_QUERY")
	assert.NotContains(t, rec.Body.String(), "data:")
}

func TestCORS(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(nethttp.MethodOptions, "/search", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, nethttp.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(nethttp.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetrics(t *testing.T) {
	srv := newTestServer(t)
	do(srv, nethttp.MethodPost, "/search", `{"query":"what is osmosis"}`)

	rec := do(srv, nethttp.MethodGet, "/metrics", "")
	assert.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "answer_engine_pipeline_runs_total")
}
