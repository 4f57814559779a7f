package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/time/rate"

	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/config"
	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/logger"
	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/metrics"
)

// Request 一次补全请求
type Request struct {
	Stage       string // 调用阶段，仅用于日志与指标
	System      string
	Prompt      string
	Temperature float32
	MaxTokens   int
}

// Completer LLM 补全能力
// 失败以 error 返回，调用方负责降级。
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// ErrEmptyCompletion 模型返回空内容
var ErrEmptyCompletion = errors.New("llm returned empty content")

// ChatCompleter 基于 eino ChatModel 的实现，带限流与 429 退避重试
type ChatCompleter struct {
	cm         model.BaseChatModel
	limiter    *rate.Limiter
	maxRetries int
	baseDelay  time.Duration
}

// NewChatModel 按配置初始化 OpenAI 兼容的 ChatModel
func NewChatModel(ctx context.Context, cfg config.LLMConfig) (model.BaseChatModel, error) {
	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		Timeout: time.Duration(cfg.Timeout) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM 初始化失败: %w", err)
	}
	return cm, nil
}

// NewLimiter Limit 设置为 RPM/60，Burst 设置为 QPS
func NewLimiter(cfg config.ConcurrencyConfig) *rate.Limiter {
	limit := rate.Limit(float64(cfg.RPM) / 60.0)
	burst := cfg.QPS
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(limit, burst)
}

// NewChatCompleter 创建补全器，limiter 为 nil 时不限流
func NewChatCompleter(cm model.BaseChatModel, limiter *rate.Limiter, maxRetries int) *ChatCompleter {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &ChatCompleter{
		cm:         cm,
		limiter:    limiter,
		maxRetries: maxRetries,
		baseDelay:  2 * time.Second,
	}
}

var _ Completer = (*ChatCompleter)(nil)

// Complete 调用模型，仅对 429 做指数退避重试
func (c *ChatCompleter) Complete(ctx context.Context, req Request) (string, error) {
	messages := []*schema.Message{
		{Role: schema.System, Content: req.System},
		{Role: schema.User, Content: req.Prompt},
	}
	var opts []model.Option
	if req.Temperature > 0 {
		opts = append(opts, model.WithTemperature(req.Temperature))
	}
	if req.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(req.MaxTokens))
	}

	var lastErr error
	for i := 0; i <= c.maxRetries; i++ {
		// 等待限流令牌
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("limiter wait error: %w", err)
		}

		resp, err := c.cm.Generate(ctx, messages, opts...)
		if err != nil {
			lastErr = err
			if isRateLimited(err) && i < c.maxRetries {
				delay := c.baseDelay * time.Duration(1<<i) // 指数退避
				logger.Log.Warnf("[%s] 触发 429 限流，等待 %v 后重试 (%d/%d)...", req.Stage, delay, i+1, c.maxRetries)
				select {
				case <-ctx.Done():
					return "", ctx.Err()
				case <-time.After(delay):
					continue
				}
			}
			metrics.LLMCalls.WithLabelValues(req.Stage, "error").Inc()
			return "", fmt.Errorf("llm generate: %w", err)
		}

		content := strings.TrimSpace(resp.Content)
		if content == "" {
			metrics.LLMCalls.WithLabelValues(req.Stage, "empty").Inc()
			return "", ErrEmptyCompletion
		}
		metrics.LLMCalls.WithLabelValues(req.Stage, "ok").Inc()
		return content, nil
	}

	metrics.LLMCalls.WithLabelValues(req.Stage, "error").Inc()
	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

func isRateLimited(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "too many requests")
}

// CleanJSON 清理模型输出中可能的 markdown 标记，截取最外层 JSON 对象
func CleanJSON(s string) string {
	clean := strings.TrimSpace(s)
	clean = strings.TrimPrefix(clean, "```json")
	clean = strings.TrimPrefix(clean, "```")
	clean = strings.TrimSuffix(clean, "```")
	clean = strings.TrimSpace(clean)

	start := strings.Index(clean, "{")
	end := strings.LastIndex(clean, "}")
	if start >= 0 && end > start {
		return clean[start : end+1]
	}
	return clean
}
