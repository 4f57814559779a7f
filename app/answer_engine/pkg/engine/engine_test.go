package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/config"
	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/llm"
	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/metrics"
	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/model"
	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/nlp"
	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/search"
)

const (
	wikiURL = "https://en.wikipedia.org/wiki/Osmosis"
	defURL  = "https://b.example/osmosis"

	synthReply = "Osmosis is the movement of water molecules across a semipermeable membrane [1]. It is passive."
)

// scriptedCompleter 按阶段返回预设回复
type scriptedCompleter struct {
	mu      sync.Mutex
	replies map[string]string
	errs    map[string]error
	panicOn string
	// onCall 在返回前调用，用于模拟调用期间发生的外部事件
	onCall func(stage string)
	calls  map[string]int
}

func (c *scriptedCompleter) Complete(_ context.Context, req llm.Request) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = map[string]int{}
	}
	c.calls[req.Stage]++
	if req.Stage == c.panicOn {
		panic("completer exploded")
	}
	if c.onCall != nil {
		c.onCall(req.Stage)
	}
	if err := c.errs[req.Stage]; err != nil {
		return "", err
	}
	return c.replies[req.Stage], nil
}

func (c *scriptedCompleter) count(stage string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[stage]
}

// mapSearcher 未配置的搜索词返回错误
type mapSearcher struct {
	results map[string][]search.Result
}

func (m *mapSearcher) Search(ctx context.Context, req *search.Request) (*search.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rs, ok := m.results[req.Query]
	if !ok {
		return nil, errors.New("search backend unavailable")
	}
	return &search.Response{Results: rs}, nil
}

func osmosisSearcher() *mapSearcher {
	wiki := search.Result{Title: "Osmosis", URL: wikiURL, Content: "Osmosis is the movement of water molecules across a semipermeable membrane.", Score: 0.9}
	def := search.Result{Title: "Definition", URL: defURL, Content: "Definition of osmosis: diffusion of water through a membrane.", Score: 0.5}
	return &mapSearcher{results: map[string][]search.Result{
		"what is osmosis":    {wiki},
		"osmosis definition": {def, wiki},
	}}
}

func newTestEngine(c llm.Completer, s search.Searcher) *Engine {
	cfg := config.Default()
	return New(cfg, Deps{Completer: c, Searcher: s, Caps: nlp.Capabilities{}})
}

func TestSearch(t *testing.T) {
	fc := &scriptedCompleter{}
	e := newTestEngine(fc, osmosisSearcher())

	resp, err := e.Search(context.Background(), &model.SearchRequest{Query: "  what is osmosis "})
	require.NoError(t, err)
	assert.Equal(t, "what is osmosis", resp.OriginalQuery)
	assert.Equal(t, model.StatusCompleted, resp.Status)
	assert.NotEmpty(t, resp.RequestID)
	assert.NotEmpty(t, resp.Timestamp)
	assert.Nil(t, resp.Answer)
	assert.Equal(t, 2, resp.Analysis.ComplexityScore)

	require.NotNil(t, resp.WebResults)
	require.Len(t, resp.WebResults.Results, 2)
	assert.Equal(t, wikiURL, resp.WebResults.Results[0].URL)
	assert.Equal(t, 1, resp.WebResults.Results[0].ID)
	assert.Equal(t, []string{"what is osmosis", "osmosis definition", "what is osmosis", "osmosis explanation"}, resp.WebResults.SearchTermsUsed)
	assert.Equal(t, 0, fc.count(metrics.StagePlan), "fast path")
}

func TestAnswer(t *testing.T) {
	fc := &scriptedCompleter{replies: map[string]string{metrics.StageSynthesize: synthReply}}
	e := newTestEngine(fc, osmosisSearcher())

	resp, err := e.Answer(context.Background(), &model.SearchRequest{Query: "what is osmosis"})
	require.NoError(t, err)
	require.NotNil(t, resp.Answer)

	a := resp.Answer
	assert.Equal(t, "what is osmosis", a.Query)
	assert.Equal(t, 2, a.TotalSources)
	assert.Contains(t, a.ResponseText, "[1]("+wikiURL+")")
	assert.True(t, strings.HasSuffix(a.ResponseText, "It is passive."))
	assert.Equal(t, len(a.CitedSources), a.CitationCount)
	for _, cs := range a.CitedSources {
		assert.Contains(t, []int{1, 2}, cs.ID)
	}
	assert.GreaterOrEqual(t, a.QualityScore, 0.0)
	assert.LessOrEqual(t, a.QualityScore, 1.0)
	assert.Equal(t, 1, fc.count(metrics.StageSynthesize))
}

func TestAnswer_Validation(t *testing.T) {
	e := newTestEngine(&scriptedCompleter{}, osmosisSearcher())
	for _, q := range []string{"", " a ", strings.Repeat("x", model.MaxQueryLength+1)} {
		_, err := e.Answer(context.Background(), &model.SearchRequest{Query: q})
		require.Error(t, err)
		assert.True(t, IsValidation(err), q)
	}
}

func TestAnswer_AllSearchesFail(t *testing.T) {
	fc := &scriptedCompleter{replies: map[string]string{metrics.StageSynthesize: synthReply}}
	e := newTestEngine(fc, &mapSearcher{})

	resp, err := e.Answer(context.Background(), &model.SearchRequest{Query: "what is osmosis"})
	require.NoError(t, err)
	assert.Empty(t, resp.WebResults.Results)

	a := resp.Answer
	require.NotNil(t, a)
	assert.Equal(t, 0, a.TotalSources)
	assert.Equal(t, 0, a.CitationCount)
	assert.Equal(t, 0.1, a.QualityScore)
	assert.Contains(t, a.ResponseText, "I apologize")
	assert.Equal(t, 0, fc.count(metrics.StageSynthesize))
}

func TestAnswer_SynthesisError(t *testing.T) {
	fc := &scriptedCompleter{errs: map[string]error{metrics.StageSynthesize: errors.New("503 service unavailable")}}
	resp, err := newTestEngine(fc, osmosisSearcher()).Answer(context.Background(), &model.SearchRequest{Query: "what is osmosis"})
	require.NoError(t, err)
	assert.Equal(t, 0.1, resp.Answer.QualityScore)
	assert.Equal(t, 0, resp.Answer.TotalSources)
}

func TestAnswer_CompleterPanic(t *testing.T) {
	fc := &scriptedCompleter{panicOn: metrics.StageSynthesize}
	resp, err := newTestEngine(fc, osmosisSearcher()).Answer(context.Background(), &model.SearchRequest{Query: "what is osmosis"})
	require.NoError(t, err)
	require.NotNil(t, resp.Answer)
	assert.Equal(t, 0.1, resp.Answer.QualityScore)
	assert.Equal(t, 0, resp.Answer.TotalSources)
	assert.Contains(t, resp.Answer.ResponseText, "completer exploded")
}

func TestAnswer_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestEngine(&scriptedCompleter{}, osmosisSearcher()).Search(ctx, &model.SearchRequest{Query: "what is osmosis"})
	assert.ErrorIs(t, err, context.Canceled)
}
