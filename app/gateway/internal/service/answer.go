package service

import (
	"context"
	"fmt"
	nethttp "net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport/http"

	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/engine"
	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/model"
)

const serviceName = "answer_engine"

// AnswerService 对外暴露检索、问答与流式问答接口
type AnswerService struct {
	eng *engine.Engine
	log *log.Helper
	now func() time.Time
}

func NewAnswerService(eng *engine.Engine, logger log.Logger) *AnswerService {
	return &AnswerService{
		eng: eng,
		log: log.NewHelper(logger),
		now: time.Now,
	}
}

// Root 服务信息
func (s *AnswerService) Root(ctx http.Context) error {
	return ctx.Result(nethttp.StatusOK, map[string]any{
		"message":   "Answer engine API is running",
		"status":    "healthy",
		"timestamp": s.now().Format(time.RFC3339),
	})
}

// Health 健康检查
func (s *AnswerService) Health(ctx http.Context) error {
	return ctx.Result(nethttp.StatusOK, map[string]any{
		"status": "healthy",
		"services": map[string]string{
			"engine": "operational",
		},
		"service":   serviceName,
		"timestamp": s.now().Format(time.RFC3339),
	})
}

// Search 查询分析与检索，不生成答案
func (s *AnswerService) Search(ctx http.Context) error {
	return s.handle(ctx, s.eng.Search)
}

// Answer 完整流水线，含带引用的答案
func (s *AnswerService) Answer(ctx http.Context) error {
	return s.handle(ctx, s.eng.Answer)
}

type pipeline func(context.Context, *model.SearchRequest) (*model.SearchResponse, error)

func (s *AnswerService) handle(ctx http.Context, run pipeline) error {
	var req model.SearchRequest
	if err := ctx.Bind(&req); err != nil {
		return errors.BadRequest("INVALID_REQUEST", err.Error())
	}

	h := ctx.Middleware(func(c context.Context, in any) (any, error) {
		return run(c, in.(*model.SearchRequest))
	})
	out, err := h(ctx, &req)
	if err != nil {
		return s.toError(err)
	}
	return ctx.Result(nethttp.StatusOK, out)
}

func (s *AnswerService) toError(err error) error {
	if engine.IsValidation(err) {
		return errors.BadRequest("INVALID_QUERY", err.Error())
	}
	s.log.Errorf("流水线执行失败: %v", err)
	return errors.InternalServer("PIPELINE_FAILED", fmt.Sprintf("search failed: %v", err))
}

// ChatStream 以 SSE 推送流式事件
// GET 读取 message 与 checkpoint_id 参数，POST 读取 JSON 请求体
func (s *AnswerService) ChatStream(w nethttp.ResponseWriter, r *nethttp.Request) {
	var req model.StreamRequest
	switch r.Method {
	case nethttp.MethodGet:
		req.Query = r.URL.Query().Get("message")
		req.CheckpointID = r.URL.Query().Get("checkpoint_id")
	case nethttp.MethodPost:
		if err := sonic.ConfigDefault.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, nethttp.StatusBadRequest, "INVALID_REQUEST", err.Error())
			return
		}
	default:
		writeError(w, nethttp.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
		return
	}

	// 参数错误在建立流之前返回
	if _, err := model.ValidateQuery(req.Query); err != nil {
		writeError(w, nethttp.StatusBadRequest, "INVALID_QUERY", err.Error())
		return
	}

	flusher, ok := w.(nethttp.Flusher)
	if !ok {
		writeError(w, nethttp.StatusInternalServerError, "STREAMING_UNSUPPORTED", "streaming not supported")
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(nethttp.StatusOK)
	flusher.Flush()

	stream := s.eng.Stream(r.Context(), req.Query)
	defer stream.Close()

	for {
		ev, ok := stream.Next()
		if !ok {
			return
		}
		data, err := sonic.Marshal(ev)
		if err != nil {
			s.log.Errorf("事件序列化失败: %v", err)
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			s.log.Warnf("客户端已断开: %v", err)
			return
		}
		flusher.Flush()
	}
}

func writeError(w nethttp.ResponseWriter, code int, reason, message string) {
	data, _ := sonic.Marshal(map[string]any{
		"code":    code,
		"reason":  reason,
		"message": message,
	})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(data)
}
