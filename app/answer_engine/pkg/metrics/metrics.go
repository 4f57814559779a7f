package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SearchRequests 按结果统计的单词搜索次数，outcome: ok / error / empty
	SearchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "answer_engine_search_requests_total",
			Help: "Total number of per-term search calls",
		},
		[]string{"provider", "outcome"},
	)

	// LLMCalls 按阶段统计的 LLM 调用
	LLMCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "answer_engine_llm_calls_total",
			Help: "Total number of LLM completions",
		},
		[]string{"stage", "outcome"},
	)

	// Fallbacks 各阶段走降级路径的次数
	Fallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "answer_engine_fallbacks_total",
			Help: "Total number of stage fallbacks",
		},
		[]string{"stage"},
	)

	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "answer_engine_pipeline_runs_total",
			Help: "Total number of pipeline runs",
		},
		[]string{"mode", "status"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "answer_engine_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	StreamEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "answer_engine_stream_events_total",
			Help: "Total number of stream events emitted",
		},
		[]string{"type"},
	)

	// CitationsAttached 每个答案附加的引用数
	CitationsAttached = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "answer_engine_citations_per_answer",
			Help:    "Number of distinct sources cited per answer",
			Buckets: []float64{0, 1, 2, 3, 5, 8},
		},
	)
)

// Stage 名称
const (
	StagePlan       = "plan"
	StageRetrieve   = "retrieve"
	StageEnrich     = "enrich"
	StageSynthesize = "synthesize"
	StageAttribute  = "attribute"
)
