package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 项目配置结构体
// 同时带 yaml 与 json tag：CLI 通过 yaml.v3 直接加载，网关通过 kratos config 扫描到 engine 节点。
type Config struct {
	LLM         LLMConfig         `yaml:"llm" json:"llm"`
	Search      SearchConfig      `yaml:"search" json:"search"`
	Retrieval   RetrievalConfig   `yaml:"retrieval" json:"retrieval"`
	Synthesis   SynthesisConfig   `yaml:"synthesis" json:"synthesis"`
	Citation    CitationConfig    `yaml:"citation" json:"citation"`
	NLP         NLPConfig         `yaml:"nlp" json:"nlp"`
	Stream      StreamConfig      `yaml:"stream" json:"stream"`
	Log         LogConfig         `yaml:"log" json:"log"`
	Concurrency ConcurrencyConfig `yaml:"concurrency" json:"concurrency"`
}

// LLMConfig LLM 相关配置
type LLMConfig struct {
	BaseURL     string  `yaml:"base_url" json:"base_url"`
	APIKey      string  `yaml:"api_key" json:"api_key"`
	Model       string  `yaml:"model" json:"model"`
	Temperature float32 `yaml:"temperature" json:"temperature"`
	MaxTokens   int     `yaml:"max_tokens" json:"max_tokens"`
	// PlannerMaxTokens 查询分析阶段的输出上限
	PlannerMaxTokens int `yaml:"planner_max_tokens" json:"planner_max_tokens"`
	Timeout          int `yaml:"timeout" json:"timeout"` // 秒
	MaxRetries       int `yaml:"max_retries" json:"max_retries"`
}

// SearchConfig 搜索相关配置
type SearchConfig struct {
	Provider          string        `yaml:"provider" json:"provider"`
	Tavily            TavilyConfig  `yaml:"tavily" json:"tavily"`
	SearXNG           SearXNGConfig `yaml:"searxng" json:"searxng"`
	MaxResultsPerTerm int           `yaml:"max_results_per_term" json:"max_results_per_term"`
	MaxTerms          int           `yaml:"max_terms" json:"max_terms"`
	Timeout           int           `yaml:"timeout" json:"timeout"` // 单个搜索词的超时（秒）
}

// TavilyConfig Tavily 配置
type TavilyConfig struct {
	APIKey         string   `yaml:"api_key" json:"api_key"`
	SearchDepth    string   `yaml:"search_depth" json:"search_depth"`
	ExcludeDomains []string `yaml:"exclude_domains" json:"exclude_domains"`
	// IncludeRawContent 请求页面全文，全文比摘要长时替换摘要
	IncludeRawContent bool `yaml:"include_raw_content" json:"include_raw_content"`
}

// SearXNGConfig SearXNG 配置
type SearXNGConfig struct {
	BaseURL string `yaml:"base_url" json:"base_url"`
	Timeout int    `yaml:"timeout" json:"timeout"`
}

// RetrievalConfig 检索结果整合配置
type RetrievalConfig struct {
	// EnrichBelow 摘要短于该长度时尝试抓取原文，0 表示关闭
	EnrichBelow          int      `yaml:"enrich_below" json:"enrich_below"`
	EnrichTimeout        int      `yaml:"enrich_timeout" json:"enrich_timeout"` // 秒
	EnrichConcurrency    int      `yaml:"enrich_concurrency" json:"enrich_concurrency"`
	AuthoritativeDomains []string `yaml:"authoritative_domains" json:"authoritative_domains"`
}

// SynthesisConfig 答案生成配置
type SynthesisConfig struct {
	MaxSources    int `yaml:"max_sources" json:"max_sources"`
	ContentBudget int `yaml:"content_budget" json:"content_budget"`
	ExcerptBudget int `yaml:"excerpt_budget" json:"excerpt_budget"`
	MinContent    int `yaml:"min_content" json:"min_content"`
}

// CitationConfig 引用归因阈值
type CitationConfig struct {
	MaxPerSentence     int     `yaml:"max_per_sentence" json:"max_per_sentence"`
	RelevanceThreshold float64 `yaml:"relevance_threshold" json:"relevance_threshold"`
	SemanticThreshold  float64 `yaml:"semantic_threshold" json:"semantic_threshold"`
	EntityThreshold    float64 `yaml:"entity_threshold" json:"entity_threshold"`
	LexicalThreshold   float64 `yaml:"lexical_threshold" json:"lexical_threshold"`
	LexicalMinOverlap  int     `yaml:"lexical_min_overlap" json:"lexical_min_overlap"`
}

// NLPConfig 可选的 NLP 能力
type NLPConfig struct {
	Embedding EmbeddingConfig `yaml:"embedding" json:"embedding"`
	Entities  EntitiesConfig  `yaml:"entities" json:"entities"`
}

// EmbeddingConfig 向量模型配置，Enabled 为 false 时归因退化为词法匹配
type EmbeddingConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	BaseURL string `yaml:"base_url" json:"base_url"`
	APIKey  string `yaml:"api_key" json:"api_key"`
	Model   string `yaml:"model" json:"model"`
}

// EntitiesConfig 实体抽取配置
type EntitiesConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// StreamConfig 流式输出节奏（毫秒），仅用于前端渲染
type StreamConfig struct {
	SourceDelayMS int `yaml:"source_delay_ms" json:"source_delay_ms"`
	ChunkDelayMS  int `yaml:"chunk_delay_ms" json:"chunk_delay_ms"`
}

// LogConfig 日志相关配置
type LogConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// ConcurrencyConfig 并发控制配置
type ConcurrencyConfig struct {
	QPS int `yaml:"qps" json:"qps"`
	RPM int `yaml:"rpm" json:"rpm"`
}

// LoadConfig 从指定路径加载配置
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.ApplyDefaults()

	return &cfg, nil
}

// Default 返回一份填充了默认值的配置
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults 为未设置的字段填充默认值
func (c *Config) ApplyDefaults() {
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.1
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 2000
	}
	if c.LLM.PlannerMaxTokens == 0 {
		c.LLM.PlannerMaxTokens = 500
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 60
	}
	if c.LLM.MaxRetries == 0 {
		c.LLM.MaxRetries = 3
	}

	if c.Search.MaxResultsPerTerm == 0 {
		c.Search.MaxResultsPerTerm = 3
	}
	if c.Search.MaxTerms == 0 {
		c.Search.MaxTerms = 4
	}
	if c.Search.Timeout == 0 {
		c.Search.Timeout = 30
	}
	if c.Search.Tavily.SearchDepth == "" {
		c.Search.Tavily.SearchDepth = "basic"
	}
	if c.Search.Tavily.ExcludeDomains == nil {
		c.Search.Tavily.ExcludeDomains = []string{"youtube.com", "tiktok.com"}
	}

	if c.Retrieval.EnrichTimeout == 0 {
		c.Retrieval.EnrichTimeout = 30
	}
	if c.Retrieval.EnrichConcurrency == 0 {
		c.Retrieval.EnrichConcurrency = 4
	}

	if c.Synthesis.MaxSources == 0 {
		c.Synthesis.MaxSources = 8
	}
	if c.Synthesis.ContentBudget == 0 {
		c.Synthesis.ContentBudget = 4000
	}
	if c.Synthesis.ExcerptBudget == 0 {
		c.Synthesis.ExcerptBudget = 800
	}
	if c.Synthesis.MinContent == 0 {
		c.Synthesis.MinContent = 10
	}

	if c.Citation.MaxPerSentence == 0 {
		c.Citation.MaxPerSentence = 2
	}
	if c.Citation.RelevanceThreshold == 0 {
		c.Citation.RelevanceThreshold = 0.3
	}
	if c.Citation.SemanticThreshold == 0 {
		c.Citation.SemanticThreshold = 0.3
	}
	if c.Citation.EntityThreshold == 0 {
		c.Citation.EntityThreshold = 0.2
	}
	if c.Citation.LexicalThreshold == 0 {
		c.Citation.LexicalThreshold = 0.15
	}
	if c.Citation.LexicalMinOverlap == 0 {
		c.Citation.LexicalMinOverlap = 3
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Concurrency.QPS == 0 {
		c.Concurrency.QPS = 2
	}
	if c.Concurrency.RPM == 0 {
		c.Concurrency.RPM = 60
	}
}

// Validate 校验运行所需的关键配置
func (c *Config) Validate() error {
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	switch c.Search.Provider {
	case "", "tavily":
		if c.Search.Tavily.APIKey == "" {
			return fmt.Errorf("search.tavily.api_key is required")
		}
	case "searxng":
		if c.Search.SearXNG.BaseURL == "" {
			return fmt.Errorf("search.searxng.base_url is required")
		}
	default:
		return fmt.Errorf("unknown search provider: %s", c.Search.Provider)
	}
	if c.Search.MaxTerms < 1 {
		return fmt.Errorf("search.max_terms must be positive")
	}
	if c.NLP.Embedding.Enabled && c.NLP.Embedding.Model == "" {
		return fmt.Errorf("nlp.embedding.model is required when embedding is enabled")
	}
	return nil
}

// SearchTimeout 单个搜索词的超时
func (c *Config) SearchTimeout() time.Duration {
	return time.Duration(c.Search.Timeout) * time.Second
}

// SourceDelay source_found 事件间隔
func (c *Config) SourceDelay() time.Duration {
	return time.Duration(c.Stream.SourceDelayMS) * time.Millisecond
}

// ChunkDelay content_chunk 事件间隔
func (c *Config) ChunkDelay() time.Duration {
	return time.Duration(c.Stream.ChunkDelayMS) * time.Millisecond
}
