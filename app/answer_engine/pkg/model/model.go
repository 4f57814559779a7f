package model

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// QueryType 查询类型
type QueryType string

const (
	QueryFactual       QueryType = "factual"
	QueryComparison    QueryType = "comparison"
	QueryHowTo         QueryType = "how_to"
	QueryCurrentEvents QueryType = "current_events"
	QueryOpinion       QueryType = "opinion"
	QueryCalculation   QueryType = "calculation"
)

// ParseQueryType 解析查询类型，未知值归为 factual
func ParseQueryType(s string) QueryType {
	switch t := QueryType(strings.ToLower(strings.TrimSpace(s))); t {
	case QueryFactual, QueryComparison, QueryHowTo, QueryCurrentEvents, QueryOpinion, QueryCalculation:
		return t
	default:
		return QueryFactual
	}
}

// 查询分析的来源
const (
	StrategyFastPath = "fast_path"
	StrategyLLM      = "llm"
	StrategyFallback = "fallback"
)

// QueryAnalysis 查询分析结果
type QueryAnalysis struct {
	QueryType         QueryType `json:"query_type"`
	SearchIntent      string    `json:"search_intent"`
	KeyEntities       []string  `json:"key_entities"`
	SuggestedSearches []string  `json:"suggested_searches"`
	ComplexityScore   int       `json:"complexity_score"`
	RequiresRealTime  bool      `json:"requires_real_time"`
	// Strategy 标记分析由哪条路径产生：fast_path / llm / fallback
	Strategy string `json:"-"`
}

// ClampComplexity 将复杂度限制在 [1,10]
func ClampComplexity(score int) int {
	if score < 1 {
		return 1
	}
	if score > 10 {
		return 10
	}
	return score
}

// RawSearchResult 搜索服务返回的原始结果
type RawSearchResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
	// PublishedDate RFC3339，无法解析时为空
	PublishedDate string `json:"published_date,omitempty"`
}

// Source 整合后的来源，ID 在一次流水线内从 1 开始分配且不再变化
type Source struct {
	ID            int     `json:"id"`
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	Domain        string  `json:"domain"`
	Content       string  `json:"content"`
	ProviderScore float64 `json:"score"`
	RankScore     float64 `json:"calculated_score"`
	PublishedDate string  `json:"published_date,omitempty"`
}

// ConsolidatedResultSet 去重排序后的结果集
type ConsolidatedResultSet struct {
	TotalResults    int           `json:"total_results"`
	SearchTermsUsed []string      `json:"search_terms_used"`
	Results         []Source      `json:"results"`
	Duration        time.Duration `json:"-"`
	DurationSeconds float64       `json:"search_duration"`
}

// CitedSource 答案中被引用的来源
type CitedSource struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// SynthesizedAnswer 带引用的最终答案
type SynthesizedAnswer struct {
	Query         string        `json:"query"`
	ResponseText  string        `json:"response"`
	CitedSources  []CitedSource `json:"sources_used"`
	TotalSources  int           `json:"total_sources"`
	WordCount     int           `json:"word_count"`
	CitationCount int           `json:"citation_count"`
	QualityScore  float64       `json:"synthesis_quality_score"`
}

// 查询长度限制
const (
	MinQueryLength = 2
	MaxQueryLength = 500
)

// SearchRequest 同步模式请求
type SearchRequest struct {
	Query     string `json:"query"`
	UserID    string `json:"user_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// StreamRequest 流式模式请求
type StreamRequest struct {
	Query        string `json:"message"`
	CheckpointID string `json:"checkpoint_id,omitempty"`
}

// SearchResponse 同步模式响应
type SearchResponse struct {
	RequestID     string                 `json:"request_id"`
	OriginalQuery string                 `json:"original_query"`
	Analysis      QueryAnalysis          `json:"analysis"`
	WebResults    *ConsolidatedResultSet `json:"web_results,omitempty"`
	Answer        *SynthesizedAnswer     `json:"answer,omitempty"`
	Status        string                 `json:"status"`
	Timestamp     string                 `json:"timestamp"`
}

// StatusCompleted 响应状态
const StatusCompleted = "completed"

// ValidationError 请求参数不合法，流水线开始前返回
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ValidateQuery 校验查询文本，返回去除首尾空白后的查询
func ValidateQuery(query string) (string, error) {
	q := strings.TrimSpace(query)
	n := utf8.RuneCountInString(q)
	if n < MinQueryLength {
		return "", &ValidationError{Field: "query", Reason: fmt.Sprintf("must be at least %d characters", MinQueryLength)}
	}
	if n > MaxQueryLength {
		return "", &ValidationError{Field: "query", Reason: fmt.Sprintf("must be at most %d characters", MaxQueryLength)}
	}
	return q, nil
}
