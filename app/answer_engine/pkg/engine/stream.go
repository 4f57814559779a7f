package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/logger"
	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/metrics"
	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/model"
)

type streamState int

const (
	stateStart streamState = iota
	statePlan
	stateReading
	stateRetrieve
	stateWriting
	stateSynthesize
	stateFinish
	stateDone
)

var stageNames = map[streamState]string{
	stateStart:      "validate",
	statePlan:       "plan",
	stateReading:    "retrieve",
	stateRetrieve:   "retrieve",
	stateWriting:    "synthesize",
	stateSynthesize: "synthesize",
	stateFinish:     "finish",
}

type pending struct {
	ev    model.StreamEvent
	delay time.Duration
}

// Stream 单生产者、拉取式的事件序列，总以且仅以一个 end 结束
// 非并发安全，由一个消费者调用 Next。
type Stream struct {
	e      *Engine
	ctx    context.Context
	cancel context.CancelFunc
	log    *logrus.Entry

	query    string
	state    streamState
	queue    []pending
	analysis model.QueryAnalysis
	sources  []model.Source
	failed   bool
	closed   bool
}

// Stream 创建事件流，阶段在 Next 被调用时按需执行
func (e *Engine) Stream(ctx context.Context, query string) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	requestID := uuid.NewString()
	return &Stream{
		e:      e,
		ctx:    ctx,
		cancel: cancel,
		log:    logger.WithRequest(requestID).WithField("mode", modeStream),
		query:  query,
		state:  stateStart,
	}
}

// Next 返回下一个事件；end 之后或 Close 之后返回 false
func (s *Stream) Next() (model.StreamEvent, bool) {
	for {
		if s.closed {
			return model.StreamEvent{}, false
		}
		if len(s.queue) > 0 {
			p := s.queue[0]
			s.queue = s.queue[1:]
			if p.delay > 0 && !s.pace(p.delay) {
				s.fail(fmt.Errorf("stream cancelled: %w", s.ctx.Err()))
				continue
			}
			return s.emit(p.ev), true
		}
		if s.state == stateDone {
			return model.StreamEvent{}, false
		}
		s.step()
	}
}

// Close 停止生产，不再产生任何事件
func (s *Stream) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.queue = nil
	s.cancel()
}

func (s *Stream) emit(ev model.StreamEvent) model.StreamEvent {
	metrics.StreamEvents.WithLabelValues(string(ev.Type)).Inc()
	if ev.Type == model.EventEnd {
		status := "ok"
		if s.failed {
			status = "error"
		}
		metrics.PipelineRuns.WithLabelValues(modeStream, status).Inc()
		s.state = stateDone
		s.queue = nil
		s.cancel()
	}
	return ev
}

func (s *Stream) pace(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-s.ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (s *Stream) push(ev model.StreamEvent, delay time.Duration) {
	s.queue = append(s.queue, pending{ev: ev, delay: delay})
}

// fail 丢弃未发送的事件，改为 error + end
func (s *Stream) fail(err error) {
	s.log.Errorf("流式处理在 [%s] 阶段失败: %v", stageNames[s.state], err)
	s.failed = true
	s.queue = []pending{
		{ev: model.ErrorEvent(err.Error())},
		{ev: model.End()},
	}
	s.state = stateFinish
}

// step 执行当前阶段并把产生的事件放入队列
func (s *Stream) step() {
	defer func() {
		if r := recover(); r != nil {
			s.fail(fmt.Errorf("%s failed: %v", stageNames[s.state], r))
		}
	}()

	if s.state != stateStart && s.state != stateFinish {
		if err := s.ctx.Err(); err != nil {
			s.fail(fmt.Errorf("%s aborted: %w", stageNames[s.state], err))
			return
		}
	}

	switch s.state {
	case stateStart:
		q, err := model.ValidateQuery(s.query)
		if err != nil {
			s.fail(err)
			return
		}
		s.query = q
		s.log.Infof("开始流式处理: %s", q)
		s.push(model.SearchStart(q), 0)
		s.state = statePlan

	case statePlan:
		s.analysis = s.e.plan(s.ctx, s.query)
		s.push(model.OriginalQuery(s.query), 0)
		for i, sub := range s.analysis.SuggestedSearches {
			s.push(model.SubQuery(sub, i+2), 0)
		}
		s.state = stateReading

	case stateReading:
		s.push(model.ReadingStart(), 0)
		s.state = stateRetrieve

	case stateRetrieve:
		set := s.e.retrieve(s.ctx, s.query, s.analysis)
		if err := s.ctx.Err(); err != nil {
			s.fail(fmt.Errorf("retrieve aborted: %w", err))
			return
		}
		s.sources = set.Results
		s.log.Infof("检索完成，共 %d 个来源", len(s.sources))
		// 按检索顺序（来源 ID）推送
		ordered := make([]model.Source, len(s.sources))
		copy(ordered, s.sources)
		sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })
		for _, src := range ordered {
			s.push(model.SourceFound(src), s.e.cfg.SourceDelay())
		}
		s.state = stateWriting

	case stateWriting:
		s.push(model.WritingStart(), 0)
		s.state = stateSynthesize

	case stateSynthesize:
		answer, sentences := s.e.answer(s.ctx, s.query, s.analysis, s.sources)
		if err := s.ctx.Err(); err != nil {
			s.fail(fmt.Errorf("synthesize aborted: %w", err))
			return
		}
		s.log.Infof("答案生成完成，引用 %d 个来源", answer.CitationCount)
		for i, sentence := range sentences {
			if i < len(sentences)-1 {
				sentence += " "
			}
			s.push(model.ContentChunk(sentence), s.e.cfg.ChunkDelay())
		}
		s.state = stateFinish

	case stateFinish:
		s.push(model.End(), 0)
		s.state = stateDone
	}
}
