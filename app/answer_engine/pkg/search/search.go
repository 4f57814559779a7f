package search

import (
	"context"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/model"
)

// Searcher 定义通用的搜索接口
// 实现需要遵守 ctx 的超时；失败以 error 返回，由调用方决定降级。
type Searcher interface {
	Search(ctx context.Context, req *Request) (*Response, error)
}

// Request 通用搜索请求
type Request struct {
	Query             string
	Topic             string // "news" or "general"
	MaxResults        int
	SearchDepth       string // basic or advanced
	IncludeRawContent bool
	ExcludeDomains    []string
}

// Response 通用搜索响应
type Response struct {
	Results []Result
}

// Result 单条搜索结果
type Result struct {
	Title         string
	URL           string
	Content       string
	RawContent    string
	Score         float64
	PublishedDate string
}

// ToRaw 转换为流水线使用的原始结果
// 发布时间统一为 RFC3339，无法解析时丢弃；RawContent 比摘要长时替换摘要。
func (r Result) ToRaw() model.RawSearchResult {
	raw := model.RawSearchResult{
		Title:         strings.TrimSpace(r.Title),
		URL:           strings.TrimSpace(r.URL),
		Content:       r.Content,
		Score:         r.Score,
		PublishedDate: NormalizeDate(r.PublishedDate),
	}
	if len(strings.TrimSpace(r.RawContent)) > len(strings.TrimSpace(raw.Content)) {
		raw.Content = r.RawContent
	}
	return raw
}

// NormalizeDate 解析各提供方的日期格式，返回 UTC 的 RFC3339，无时区的日期按 UTC 处理
func NormalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
