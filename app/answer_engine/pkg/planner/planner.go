package planner

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/bytedance/sonic"

	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/llm"
	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/logger"
	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/metrics"
	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/model"
)

const systemPrompt = "You are a query analysis expert. Always respond with valid JSON only."

const analyzePrompt = `You are an expert query analyzer for a search engine. Analyze the following user query and provide a structured response.

Query: "%s"

Provide analysis in this EXACT JSON format:
{
    "query_type": "factual|comparison|how_to|current_events|opinion|calculation",
    "search_intent": "Clear description of what user wants to know",
    "key_entities": ["entity1", "entity2", "entity3"],
    "suggested_searches": ["search_term_1", "search_term_2", "search_term_3"],
    "complexity_score": 1-10,
    "requires_real_time": true/false
}

Rules:
- complexity_score: 1-3 (simple facts), 4-6 (moderate research), 7-10 (complex multi-step)
- requires_real_time: true if query needs current/recent information
- suggested_searches: 3 optimized search terms for web search
- key_entities: important nouns, concepts, or topics from the query`

var (
	spaceRe    = regexp.MustCompile(`\s+`)
	disallowRe = regexp.MustCompile(`[^\p{L}\p{N}_\s\-?.!]`)

	simplePatterns = []*regexp.Regexp{
		regexp.MustCompile(`^what is \w+\?*$`),
		regexp.MustCompile(`^define \w+$`),
		regexp.MustCompile(`^\w+( \w+){0,2} definition$`),
	}
	termPrefixRe = regexp.MustCompile(`^(what is |define )`)
	termSuffixRe = regexp.MustCompile(`( definition|\?+)$`)
)

// Planner 查询分析：简单查询走规则，其余交给 LLM，失败时返回固定降级结果
type Planner struct {
	llm         llm.Completer
	temperature float32
	maxTokens   int
}

// Option 配置项
type Option func(*Planner)

// WithSampling 设置 LLM 采样参数
func WithSampling(temperature float32, maxTokens int) Option {
	return func(p *Planner) {
		p.temperature = temperature
		p.maxTokens = maxTokens
	}
}

// New 创建 Planner
func New(c llm.Completer, opts ...Option) *Planner {
	p := &Planner{
		llm:         c,
		temperature: 0.1,
		maxTokens:   500,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Normalize 去除首尾空白、合并空白并剔除不在白名单内的字符
func Normalize(query string) string {
	cleaned := spaceRe.ReplaceAllString(strings.TrimSpace(query), " ")
	return disallowRe.ReplaceAllString(cleaned, "")
}

// Plan 分析查询，从不返回错误
func (p *Planner) Plan(ctx context.Context, query string) model.QueryAnalysis {
	cleaned := Normalize(query)

	if term, ok := simpleTerm(cleaned); ok {
		logger.Log.Debugf("查询命中快速路径: %s", term)
		return fastPath(term)
	}

	if p.llm == nil {
		metrics.Fallbacks.WithLabelValues(metrics.StagePlan).Inc()
		return Fallback(cleaned)
	}

	raw, err := p.complete(ctx, llm.Request{
		Stage:       metrics.StagePlan,
		System:      systemPrompt,
		Prompt:      fmt.Sprintf(analyzePrompt, cleaned),
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
	})
	if err != nil {
		logger.Log.Errorf("查询分析调用失败: %v", err)
		metrics.Fallbacks.WithLabelValues(metrics.StagePlan).Inc()
		return Fallback(cleaned)
	}

	analysis, err := parseAnalysis(raw)
	if err != nil {
		logger.Log.Errorf("查询分析结果解析失败: %v", err)
		metrics.Fallbacks.WithLabelValues(metrics.StagePlan).Inc()
		return Fallback(cleaned)
	}
	return analysis
}

// complete 模型调用中的 panic 视为失败，走降级路径
func (p *Planner) complete(ctx context.Context, req llm.Request) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("llm panic: %v", r)
		}
	}()
	return p.llm.Complete(ctx, req)
}

func simpleTerm(cleaned string) (string, bool) {
	lower := strings.ToLower(cleaned)
	for _, re := range simplePatterns {
		if re.MatchString(lower) {
			term := termPrefixRe.ReplaceAllString(lower, "")
			term = strings.TrimSpace(termSuffixRe.ReplaceAllString(term, ""))
			return term, term != ""
		}
	}
	return "", false
}

func fastPath(term string) model.QueryAnalysis {
	return model.QueryAnalysis{
		QueryType:    model.QueryFactual,
		SearchIntent: fmt.Sprintf("User wants to understand what %s means", term),
		KeyEntities:  []string{term},
		SuggestedSearches: []string{
			term + " definition",
			"what is " + term,
			term + " explanation",
		},
		ComplexityScore:  2,
		RequiresRealTime: false,
		Strategy:         model.StrategyFastPath,
	}
}

// Fallback LLM 不可用或输出无法解析时的确定性结果
func Fallback(query string) model.QueryAnalysis {
	entity := query
	if utf8.RuneCountInString(entity) > 50 {
		entity = string([]rune(entity)[:50])
	}
	return model.QueryAnalysis{
		QueryType:    model.QueryFactual,
		SearchIntent: "User wants information about: " + query,
		KeyEntities:  []string{entity},
		SuggestedSearches: []string{
			query,
			query + " explanation",
			query + " definition",
		},
		ComplexityScore:  5,
		RequiresRealTime: false,
		Strategy:         model.StrategyFallback,
	}
}

// llmAnalysis 模型输出，数值与布尔字段可能被写成字符串
type llmAnalysis struct {
	QueryType         string   `json:"query_type"`
	SearchIntent      string   `json:"search_intent"`
	KeyEntities       []string `json:"key_entities"`
	SuggestedSearches []string `json:"suggested_searches"`
	ComplexityScore   any      `json:"complexity_score"`
	RequiresRealTime  any      `json:"requires_real_time"`
}

func parseAnalysis(raw string) (model.QueryAnalysis, error) {
	var out llmAnalysis
	if err := sonic.UnmarshalString(llm.CleanJSON(raw), &out); err != nil {
		return model.QueryAnalysis{}, fmt.Errorf("unmarshal analysis: %w", err)
	}

	complexity, err := toInt(out.ComplexityScore)
	if err != nil {
		return model.QueryAnalysis{}, fmt.Errorf("complexity_score: %w", err)
	}
	realTime, err := toBool(out.RequiresRealTime)
	if err != nil {
		return model.QueryAnalysis{}, fmt.Errorf("requires_real_time: %w", err)
	}

	return model.QueryAnalysis{
		QueryType:         model.ParseQueryType(out.QueryType),
		SearchIntent:      strings.TrimSpace(out.SearchIntent),
		KeyEntities:       compact(out.KeyEntities),
		SuggestedSearches: compact(out.SuggestedSearches),
		ComplexityScore:   model.ClampComplexity(complexity),
		RequiresRealTime:  realTime,
		Strategy:          model.StrategyLLM,
	}, nil
}

func toInt(v any) (int, error) {
	switch x := v.(type) {
	case nil:
		return 5, nil
	case float64:
		return int(x), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0, err
		}
		return n, nil
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

func toBool(v any) (bool, error) {
	switch x := v.(type) {
	case nil:
		return false, nil
	case bool:
		return x, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(x))
	default:
		return false, fmt.Errorf("unexpected type %T", v)
	}
}

func compact(items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
