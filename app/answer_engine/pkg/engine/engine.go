package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/citation"
	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/config"
	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/llm"
	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/logger"
	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/metrics"
	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/model"
	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/nlp"
	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/planner"
	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/retrieval"
	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/search"
	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/search/factory"
	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/synth"
)

// 运行模式，用于指标
const (
	modeSearch = "search"
	modeAnswer = "answer"
	modeStream = "stream"
)

// Deps 外部协作方，均以接口注入
type Deps struct {
	Completer llm.Completer
	Searcher  search.Searcher
	Caps      nlp.Capabilities
	// Enricher 可选，对短摘要抓取原文
	Enricher retrieval.Enricher
}

// Engine 核心处理引擎：查询分析 -> 并发检索 -> 整合 -> 生成 -> 引用归因
type Engine struct {
	cfg          *config.Config
	planner      *planner.Planner
	fanout       *retrieval.Fanout
	consolidator *retrieval.Consolidator
	synth        *synth.Synthesizer
	attributor   *citation.Attributor
	now          func() time.Time
}

// New 使用给定的协作方组装引擎
func New(cfg *config.Config, deps Deps) *Engine {
	provider := cfg.Search.Provider
	if provider == "" {
		provider = "tavily"
	}
	fanoutOpts := []retrieval.FanoutOption{
		retrieval.WithProvider(provider),
		retrieval.WithTimeout(cfg.SearchTimeout()),
		retrieval.WithSearchDepth(cfg.Search.Tavily.SearchDepth),
		retrieval.WithExcludeDomains(cfg.Search.Tavily.ExcludeDomains),
		retrieval.WithRawContent(cfg.Search.Tavily.IncludeRawContent),
	}
	if deps.Enricher != nil {
		fanoutOpts = append(fanoutOpts, retrieval.WithEnricher(deps.Enricher))
	}

	return &Engine{
		cfg:          cfg,
		planner:      planner.New(deps.Completer, planner.WithSampling(cfg.LLM.Temperature, cfg.LLM.PlannerMaxTokens)),
		fanout:       retrieval.NewFanout(deps.Searcher, fanoutOpts...),
		consolidator: retrieval.NewConsolidator(cfg.Retrieval.AuthoritativeDomains),
		synth:        synth.New(deps.Completer, cfg.Synthesis, cfg.LLM.Temperature, cfg.LLM.MaxTokens),
		attributor:   citation.New(cfg.Citation, deps.Caps),
		now:          time.Now,
	}
}

// NewEngine 按配置初始化真实的 LLM、搜索与 NLP 客户端
func NewEngine(ctx context.Context, cfg *config.Config) (*Engine, error) {
	chatModel, err := llm.NewChatModel(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}
	completer := llm.NewChatCompleter(chatModel, llm.NewLimiter(cfg.Concurrency), cfg.LLM.MaxRetries)

	searcher, err := factory.NewSearcher(cfg)
	if err != nil {
		return nil, fmt.Errorf("搜索客户端初始化失败: %w", err)
	}

	caps, err := nlp.NewCapabilities(cfg.NLP)
	if err != nil {
		return nil, fmt.Errorf("NLP 能力初始化失败: %w", err)
	}

	deps := Deps{Completer: completer, Searcher: searcher, Caps: caps}
	if cfg.Retrieval.EnrichBelow > 0 {
		deps.Enricher = retrieval.NewReadabilityEnricher(
			cfg.Retrieval.EnrichBelow,
			time.Duration(cfg.Retrieval.EnrichTimeout)*time.Second,
			cfg.Retrieval.EnrichConcurrency,
		)
	}
	return New(cfg, deps), nil
}

// Search 同步模式：查询分析 + 检索整合
func (e *Engine) Search(ctx context.Context, req *model.SearchRequest) (*model.SearchResponse, error) {
	return e.run(ctx, modeSearch, req, false)
}

// Answer 同步模式：完整流水线
func (e *Engine) Answer(ctx context.Context, req *model.SearchRequest) (*model.SearchResponse, error) {
	return e.run(ctx, modeAnswer, req, true)
}

func (e *Engine) run(ctx context.Context, mode string, req *model.SearchRequest, withAnswer bool) (resp *model.SearchResponse, err error) {
	query, err := model.ValidateQuery(req.Query)
	if err != nil {
		metrics.PipelineRuns.WithLabelValues(mode, "invalid").Inc()
		return nil, err
	}

	requestID := uuid.NewString()
	log := logger.WithRequest(requestID).WithFields(logrus.Fields{"mode": mode, "user_id": req.UserID, "session_id": req.SessionID})
	log.Infof("收到查询: %s", query)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline panic: %v", r)
		}
		if err != nil {
			log.Errorf("流水线失败: %v", err)
			metrics.PipelineRuns.WithLabelValues(mode, "error").Inc()
			resp = nil
			return
		}
		metrics.PipelineRuns.WithLabelValues(mode, "ok").Inc()
	}()

	analysis := e.plan(ctx, query)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("plan: %w", err)
	}

	set := e.retrieve(ctx, query, analysis)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	log.Infof("检索完成，共 %d 个来源", set.TotalResults)

	resp = &model.SearchResponse{
		RequestID:     requestID,
		OriginalQuery: query,
		Analysis:      analysis,
		WebResults:    &set,
		Status:        model.StatusCompleted,
		Timestamp:     e.now().Format(time.RFC3339),
	}
	if !withAnswer {
		return resp, nil
	}

	answer, _ := e.answer(ctx, query, analysis, set.Results)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}
	log.Infof("答案生成完成，引用 %d 个来源", answer.CitationCount)
	resp.Answer = &answer
	return resp, nil
}

func (e *Engine) plan(ctx context.Context, query string) model.QueryAnalysis {
	start := time.Now()
	analysis := e.planner.Plan(ctx, query)
	metrics.StageDuration.WithLabelValues(metrics.StagePlan).Observe(time.Since(start).Seconds())
	return analysis
}

func (e *Engine) retrieve(ctx context.Context, query string, analysis model.QueryAnalysis) model.ConsolidatedResultSet {
	start := time.Now()
	terms := retrieval.SearchTerms(query, analysis, e.cfg.Search.MaxTerms)
	raw := e.fanout.Retrieve(ctx, terms, e.cfg.Search.MaxResultsPerTerm)
	return e.consolidator.Consolidate(raw, terms, time.Since(start))
}

// answer 返回最终答案以及用于流式输出的渲染句子
func (e *Engine) answer(ctx context.Context, query string, analysis model.QueryAnalysis, sources []model.Source) (model.SynthesizedAnswer, []string) {
	draft := e.synth.Synthesize(ctx, query, analysis, sources)
	if draft.Fallback {
		return synth.FallbackAnswer(query, draft), citation.SplitSentences(draft.Text)
	}
	res := e.attributor.Attribute(ctx, draft.Text, draft.Sources)
	return citation.BuildAnswer(query, res, draft.Sources), res.Sentences
}

// IsValidation 判断是否为请求参数错误
func IsValidation(err error) bool {
	var ve *model.ValidationError
	return errors.As(err, &ve)
}
