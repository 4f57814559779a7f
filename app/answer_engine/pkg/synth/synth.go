package synth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/config"
	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/llm"
	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/logger"
	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/metrics"
	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/model"
)

const systemPrompt = "You are an expert research assistant that creates comprehensive, well-cited responses. Always use proper citations and maintain accuracy."

// FallbackQuality 降级答案的质量分
const FallbackQuality = 0.1

var errNoSources = errors.New("no usable sources")

var (
	spaceRe       = regexp.MustCompile(`\s+`)
	boilerplateRe = regexp.MustCompile(`(Cookie|Privacy Policy|Terms of Service).*`)
	adRe          = regexp.MustCompile(`(?i)Advertisement\s*`)
	tagRe         = regexp.MustCompile(`<[^>]+>`)

	badCitationRe = regexp.MustCompile(`【\d+†source】|\[\d+†source\]`)
	bareCiteRe    = regexp.MustCompile(`\[(\d+)\]`)
)

// Draft 模型生成的原始答案及其使用的来源
type Draft struct {
	Text     string
	Sources  []model.Source
	Fallback bool
	Reason   string
}

// Synthesizer 根据排序后的来源生成带 [n] 标注的答案
type Synthesizer struct {
	llm           llm.Completer
	maxSources    int
	contentBudget int
	excerptBudget int
	minContent    int
	temperature   float32
	maxTokens     int
}

// New 创建 Synthesizer
func New(c llm.Completer, cfg config.SynthesisConfig, temperature float32, maxTokens int) *Synthesizer {
	s := &Synthesizer{
		llm:           c,
		maxSources:    cfg.MaxSources,
		contentBudget: cfg.ContentBudget,
		excerptBudget: cfg.ExcerptBudget,
		minContent:    cfg.MinContent,
		temperature:   temperature,
		maxTokens:     maxTokens,
	}
	if s.maxSources <= 0 {
		s.maxSources = 8
	}
	if s.contentBudget <= 0 {
		s.contentBudget = 4000
	}
	if s.excerptBudget <= 0 {
		s.excerptBudget = 800
	}
	if s.minContent <= 0 {
		s.minContent = 10
	}
	if s.temperature <= 0 {
		s.temperature = 0.1
	}
	if s.maxTokens <= 0 {
		s.maxTokens = 2000
	}
	return s
}

// Synthesize 从不返回错误，失败时 Draft.Fallback 为 true
func (s *Synthesizer) Synthesize(ctx context.Context, query string, analysis model.QueryAnalysis, sources []model.Source) Draft {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues(metrics.StageSynthesize).Observe(time.Since(start).Seconds())
	}()

	logger.Log.Infof("根据 %d 个来源生成答案", len(sources))
	prepared := s.Prepare(sources)
	if len(prepared) == 0 {
		logger.Log.Warn("没有可用于生成答案的来源")
		return s.fallback(query, errNoSources)
	}
	if s.llm == nil {
		return s.fallback(query, errors.New("llm not configured"))
	}

	text, err := s.complete(ctx, llm.Request{
		Stage:       metrics.StageSynthesize,
		System:      systemPrompt,
		Prompt:      BuildPrompt(query, analysis, prepared, s.excerptBudget),
		Temperature: s.temperature,
		MaxTokens:   s.maxTokens,
	})
	if err != nil {
		logger.Log.Errorf("答案生成失败: %v", err)
		return s.fallback(query, err)
	}

	ids := make(map[int]bool, len(prepared))
	for _, src := range prepared {
		ids[src.ID] = true
	}
	return Draft{Text: Sanitize(text, ids), Sources: prepared}
}

func (s *Synthesizer) complete(ctx context.Context, req llm.Request) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("llm panic: %v", r)
		}
	}()
	return s.llm.Complete(ctx, req)
}

func (s *Synthesizer) fallback(query string, err error) Draft {
	metrics.Fallbacks.WithLabelValues(metrics.StageSynthesize).Inc()
	reason := err.Error()
	return Draft{Text: FallbackText(query, reason), Fallback: true, Reason: reason}
}

// Prepare 清洗并截断内容，丢弃过短的来源，按排序取前 maxSources 个
// 来源 ID 保持不变。
func (s *Synthesizer) Prepare(sources []model.Source) []model.Source {
	out := make([]model.Source, 0, s.maxSources)
	for _, src := range sources {
		if len(out) >= s.maxSources {
			break
		}
		content := truncate(CleanContent(src.Content), s.contentBudget)
		if utf8.RuneCountInString(content) < s.minContent {
			continue
		}
		src.Content = content
		out = append(out, src)
	}
	return out
}

// CleanContent 合并空白，去掉 Cookie/隐私条款尾巴、广告字样与 HTML 标签
func CleanContent(content string) string {
	content = spaceRe.ReplaceAllString(content, " ")
	content = boilerplateRe.ReplaceAllString(content, "")
	content = adRe.ReplaceAllString(content, "")
	content = tagRe.ReplaceAllString(content, "")
	return strings.TrimSpace(content)
}

func truncate(s string, budget int) string {
	if utf8.RuneCountInString(s) <= budget {
		return s
	}
	return string([]rune(s)[:budget]) + "..."
}

// Sanitize 去掉模型输出中的异常引用标记，以及指向未知来源的 [n]
func Sanitize(text string, ids map[int]bool) string {
	text = badCitationRe.ReplaceAllString(text, "")
	text = bareCiteRe.ReplaceAllStringFunc(text, func(m string) string {
		n, err := strconv.Atoi(m[1 : len(m)-1])
		if err != nil || !ids[n] {
			return ""
		}
		return m
	})
	return strings.TrimSpace(text)
}

// FallbackText 生成失败时返回给用户的说明
func FallbackText(query, reason string) string {
	detail := "This may be due to limited search results or processing issues."
	if reason != "" {
		detail = "Error details: " + reason
	}
	return fmt.Sprintf("I apologize, but I encountered difficulty synthesizing a comprehensive response for your query: %q.\n\n%s\n\nPlease try rephrasing your question or asking about a different topic.", query, detail)
}

// FallbackAnswer 降级答案：不计来源与引用，质量分固定
func FallbackAnswer(query string, d Draft) model.SynthesizedAnswer {
	return model.SynthesizedAnswer{
		Query:         query,
		ResponseText:  d.Text,
		CitedSources:  []model.CitedSource{},
		TotalSources:  0,
		WordCount:     len(strings.Fields(d.Text)),
		CitationCount: 0,
		QualityScore:  FallbackQuality,
	}
}
