package synth

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/config"
	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/llm"
	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/model"
)

type fakeCompleter struct {
	reply string
	err   error
	panic bool
	calls int
	last  llm.Request
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.Request) (string, error) {
	f.calls++
	f.last = req
	if f.panic {
		panic("provider blew up")
	}
	return f.reply, f.err
}

func newTestSynth(c llm.Completer) *Synthesizer {
	return New(c, config.Default().Synthesis, 0.1, 2000)
}

func TestCleanContent(t *testing.T) {
	in := "Osmosis  is\n\tthe <b>movement</b> of water. ADVERTISEMENT  More text. Privacy Policy and everything after"
	assert.Equal(t, "Osmosis is the movement of water. More text.", CleanContent(in))
}

func TestPrepare(t *testing.T) {
	s := newTestSynth(nil)
	var sources []model.Source
	for i := 1; i <= 12; i++ {
		content := "useful content number " + strings.Repeat("z", i)
		if i == 2 {
			content = "<p>tiny</p>"
		}
		sources = append(sources, model.Source{ID: i * 10, Content: content})
	}
	sources[0].Content = strings.Repeat("a", 5000)

	got := s.Prepare(sources)
	require.Len(t, got, 8)
	assert.Equal(t, 10, got[0].ID)
	assert.Equal(t, 30, got[1].ID, "short source skipped, id preserved")
	assert.Equal(t, 4003, len(got[0].Content))
	assert.True(t, strings.HasSuffix(got[0].Content, "..."))
}

func TestBuildPrompt(t *testing.T) {
	sources := []model.Source{
		{ID: 3, Title: "Third", Content: strings.Repeat("c", 900)},
		{ID: 1, Title: "First", Content: "line one\nline two"},
	}
	tests := []struct {
		qt   model.QueryType
		want string
	}{
		{model.QueryFactual, "Starts with the main answer"},
		{model.QueryCurrentEvents, "Starts with the main answer"},
		{model.QueryComparison, "side by side"},
		{model.QueryHowTo, "Lists key steps"},
		{model.QueryOpinion, "Addresses the question directly"},
	}
	for _, tt := range tests {
		t.Run(string(tt.qt), func(t *testing.T) {
			p := BuildPrompt("q?", model.QueryAnalysis{QueryType: tt.qt, SearchIntent: "intent"}, sources, 800)
			assert.Contains(t, p, tt.want)
			assert.Contains(t, p, `**Query**: "q?"`)
			assert.Contains(t, p, "**Intent**: intent")
			assert.Contains(t, p, "[3] Third\n"+strings.Repeat("c", 800)+"...\n")
			assert.Contains(t, p, "[1] First\nline one line two\n")
		})
	}
}

func TestBuildPrompt_PublishedDate(t *testing.T) {
	sources := []model.Source{
		{ID: 1, Title: "Fed", Content: "Rates were held.", PublishedDate: "2024-03-05T10:00:00Z"},
		{ID: 2, Title: "Undated", Content: "No date here."},
	}

	p := BuildPrompt("fed rates", model.QueryAnalysis{QueryType: model.QueryCurrentEvents}, sources, 800)
	assert.Contains(t, p, "[1] Fed\nPublished: 2024-03-05\nRates were held.\n")
	assert.Contains(t, p, "[2] Undated\nNo date here.\n")

	p = BuildPrompt("fed rates", model.QueryAnalysis{QueryType: model.QueryFactual, RequiresRealTime: true}, sources, 800)
	assert.Contains(t, p, "Published: 2024-03-05")

	p = BuildPrompt("what is the fed", model.QueryAnalysis{QueryType: model.QueryFactual}, sources, 800)
	assert.NotContains(t, p, "Published:")
}

func TestSanitize(t *testing.T) {
	ids := map[int]bool{1: true, 2: true}
	got := Sanitize("Water moves【3†source】 across membranes [1][9]. It is passive [2†source][2].", ids)
	assert.Equal(t, "Water moves across membranes [1]. It is passive [2].", got)
}

func TestSynthesize(t *testing.T) {
	fc := &fakeCompleter{reply: "Osmosis is diffusion of water [2][7]."}
	s := newTestSynth(fc)
	d := s.Synthesize(context.Background(), "what is osmosis", model.QueryAnalysis{QueryType: model.QueryFactual},
		[]model.Source{{ID: 2, Title: "Osmosis", URL: "https://a", Content: "Osmosis is the diffusion of water."}})

	require.False(t, d.Fallback)
	assert.Equal(t, "Osmosis is diffusion of water [2].", d.Text)
	require.Len(t, d.Sources, 1)
	assert.Equal(t, systemPrompt, fc.last.System)
	assert.InDelta(t, 0.1, fc.last.Temperature, 1e-6)
	assert.Equal(t, 2000, fc.last.MaxTokens)
}

func TestSynthesize_Fallback(t *testing.T) {
	good := []model.Source{{ID: 1, Content: "enough content here"}}
	tests := []struct {
		name    string
		fc      *fakeCompleter
		sources []model.Source
		calls   int
	}{
		{name: "no sources", fc: &fakeCompleter{}, sources: nil, calls: 0},
		{name: "only short sources", fc: &fakeCompleter{}, sources: []model.Source{{ID: 1, Content: "tiny"}}, calls: 0},
		{name: "provider error", fc: &fakeCompleter{err: errors.New("503")}, sources: good, calls: 1},
		{name: "provider panic", fc: &fakeCompleter{panic: true}, sources: good, calls: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestSynth(tt.fc).Synthesize(context.Background(), "q", model.QueryAnalysis{}, tt.sources)
			assert.True(t, d.Fallback)
			assert.NotEmpty(t, d.Reason)
			assert.Contains(t, d.Text, "I apologize")
			assert.Equal(t, tt.calls, tt.fc.calls)

			a := FallbackAnswer("q", d)
			assert.Equal(t, 0, a.TotalSources)
			assert.Equal(t, 0, a.CitationCount)
			assert.Equal(t, 0.1, a.QualityScore)
			assert.Empty(t, a.CitedSources)
			assert.Positive(t, a.WordCount)
		})
	}
}
