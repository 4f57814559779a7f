package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/logger"
	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/metrics"
	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/model"
	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/search"
)

// DefaultMaxTerms 原始查询加最多 3 个子查询
const DefaultMaxTerms = 4

// SearchTerms 原始查询在前，之后按顺序补充建议子查询直到 maxTerms
func SearchTerms(query string, analysis model.QueryAnalysis, maxTerms int) []string {
	if maxTerms <= 0 || maxTerms > DefaultMaxTerms {
		maxTerms = DefaultMaxTerms
	}
	terms := make([]string, 0, maxTerms)
	if q := strings.TrimSpace(query); q != "" {
		terms = append(terms, q)
	}
	for _, s := range analysis.SuggestedSearches {
		if len(terms) >= maxTerms {
			break
		}
		if s = strings.TrimSpace(s); s != "" {
			terms = append(terms, s)
		}
	}
	return terms
}

// Fanout 并发检索多个搜索词，单个词失败不影响其他词
type Fanout struct {
	searcher       search.Searcher
	provider       string
	timeout        time.Duration
	searchDepth    string
	excludeDomains []string
	rawContent     bool
	enricher       Enricher
}

// FanoutOption 配置项
type FanoutOption func(*Fanout)

// WithTimeout 单个搜索词的超时
func WithTimeout(d time.Duration) FanoutOption {
	return func(f *Fanout) { f.timeout = d }
}

// WithProvider 用于日志和指标的提供方名称
func WithProvider(name string) FanoutOption {
	return func(f *Fanout) { f.provider = name }
}

// WithSearchDepth 搜索深度 basic / advanced
func WithSearchDepth(depth string) FanoutOption {
	return func(f *Fanout) { f.searchDepth = depth }
}

// WithExcludeDomains 排除的域名
func WithExcludeDomains(domains []string) FanoutOption {
	return func(f *Fanout) { f.excludeDomains = domains }
}

// WithRawContent 请求提供方返回页面全文
func WithRawContent(on bool) FanoutOption {
	return func(f *Fanout) { f.rawContent = on }
}

// WithEnricher 对短摘要抓取原文
func WithEnricher(e Enricher) FanoutOption {
	return func(f *Fanout) { f.enricher = e }
}

// NewFanout 创建并发检索器
func NewFanout(s search.Searcher, opts ...FanoutOption) *Fanout {
	f := &Fanout{
		searcher: s,
		provider: "default",
		timeout:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Retrieve 每个搜索词一个 goroutine，全部结束后按搜索词顺序展开结果
func (f *Fanout) Retrieve(ctx context.Context, terms []string, maxPerTerm int) []model.RawSearchResult {
	if len(terms) > DefaultMaxTerms {
		terms = terms[:DefaultMaxTerms]
	}
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues(metrics.StageRetrieve).Observe(time.Since(start).Seconds())
	}()

	perTerm := make([][]model.RawSearchResult, len(terms))
	// 不使用 errgroup.WithContext：单个词失败不取消其他词
	var g errgroup.Group
	for i, term := range terms {
		i, term := i, term
		g.Go(func() error {
			results, err := f.searchOne(ctx, term, maxPerTerm)
			if err != nil {
				logger.Log.Errorf("搜索失败 [%s]: %v", term, err)
				metrics.SearchRequests.WithLabelValues(f.provider, "error").Inc()
				return nil
			}
			if len(results) == 0 {
				metrics.SearchRequests.WithLabelValues(f.provider, "empty").Inc()
			} else {
				metrics.SearchRequests.WithLabelValues(f.provider, "ok").Inc()
			}
			logger.Log.Infof("搜索 [%s] 返回 %d 条结果", term, len(results))
			perTerm[i] = results
			return nil
		})
	}
	_ = g.Wait()

	var flat []model.RawSearchResult
	for _, rs := range perTerm {
		flat = append(flat, rs...)
	}

	if f.enricher != nil && len(flat) > 0 {
		flat = f.enricher.Enrich(ctx, flat)
	}
	return flat
}

func (f *Fanout) searchOne(ctx context.Context, term string, maxPerTerm int) (results []model.RawSearchResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("search panic: %v", r)
		}
	}()

	tctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	resp, err := f.searcher.Search(tctx, &search.Request{
		Query:             term,
		Topic:             "general",
		MaxResults:        maxPerTerm,
		SearchDepth:       f.searchDepth,
		ExcludeDomains:    f.excludeDomains,
		IncludeRawContent: f.rawContent,
	})
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("empty response")
	}

	results = make([]model.RawSearchResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		results = append(results, r.ToRaw())
	}
	return results, nil
}
