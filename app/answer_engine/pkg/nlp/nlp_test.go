package nlp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/config"
)

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float64{1, 2}, []float64{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.Equal(t, 0.0, Cosine([]float64{1}, []float64{1, 2}))
	assert.Equal(t, 0.0, Cosine([]float64{0, 0}, []float64{1, 1}))
	assert.Equal(t, 0.0, Cosine(nil, nil))
}

func labels(ents []Entity) map[string]string {
	m := make(map[string]string, len(ents))
	for _, e := range ents {
		m[e.Text] = e.Label
	}
	return m
}

func TestRuleExtractor(t *testing.T) {
	ents, err := NewRuleExtractor().Extract(context.Background(),
		"The Federal Reserve raised rates by 0.25% in March 2023, and Jerome Powell said inflation cost $4.5 billion across 12 states.")
	require.NoError(t, err)
	got := labels(ents)

	assert.Equal(t, EntityPercent, got["0.25%"])
	assert.Equal(t, EntityDate, got["March 2023"])
	assert.Equal(t, EntityPerson, got["Jerome Powell"])
	assert.Equal(t, EntityMoney, got["$4.5 billion"])
	assert.Equal(t, EntityCardinal, got["12"])
	assert.Contains(t, got, "Federal Reserve")
	assert.NotContains(t, got, "The")
}

func TestRuleExtractor_Org(t *testing.T) {
	ents, err := NewRuleExtractor().Extract(context.Background(), "Researchers at Stanford University and NASA published it.")
	require.NoError(t, err)
	got := labels(ents)
	assert.Equal(t, EntityOrg, got["Stanford University"])
	assert.Equal(t, EntityOrg, got["NASA"])
}

func TestRuleExtractor_Plain(t *testing.T) {
	ents, err := NewRuleExtractor().Extract(context.Background(), "it is a nice day outside")
	require.NoError(t, err)
	assert.Empty(t, ents)
}

func TestNewCapabilities(t *testing.T) {
	caps, err := NewCapabilities(config.NLPConfig{})
	require.NoError(t, err)
	assert.False(t, caps.HasEmbedder())
	assert.False(t, caps.HasEntities())

	caps, err = NewCapabilities(config.NLPConfig{Entities: config.EntitiesConfig{Enabled: true}})
	require.NoError(t, err)
	assert.True(t, caps.HasEntities())

	_, err = NewCapabilities(config.NLPConfig{Embedding: config.EmbeddingConfig{Enabled: true}})
	assert.Error(t, err, "missing api key")
}

func TestOpenAIEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		// 故意乱序返回，验证按 index 还原
		_, _ = w.Write([]byte(`{"object":"list","model":"m","data":[
			{"object":"embedding","index":1,"embedding":[0,1]},
			{"object":"embedding","index":0,"embedding":[1,0]}
		]}`))
	}))
	defer srv.Close()

	emb, err := NewOpenAIEmbedder(config.EmbeddingConfig{APIKey: "k", BaseURL: srv.URL, Model: "m"})
	require.NoError(t, err)

	vecs, err := emb.EmbedStrings(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float64{1, 0}, vecs[0])
	assert.Equal(t, []float64{0, 1}, vecs[1])
}
