package factory

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/config"
	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/searxng"
	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/tavily"
)

func TestNewSearcher(t *testing.T) {
	cfg := config.Default()
	_, err := NewSearcher(cfg)
	assert.Error(t, err, "no provider and no key")

	cfg.Search.Tavily.APIKey = "k"
	s, err := NewSearcher(cfg)
	assert.NoError(t, err)
	assert.IsType(t, &tavily.Client{}, s)

	cfg.Search.Provider = "searxng"
	_, err = NewSearcher(cfg)
	assert.Error(t, err, "searxng without base url")

	cfg.Search.SearXNG.BaseURL = "http://127.0.0.1:8888"
	s, err = NewSearcher(cfg)
	assert.NoError(t, err)
	assert.IsType(t, &searxng.Client{}, s)

	cfg.Search.Provider = "bing"
	_, err = NewSearcher(cfg)
	assert.Error(t, err)
}
