package retrieval

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-shiori/go-readability"
	"golang.org/x/sync/errgroup"

	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/logger"
	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/metrics"
	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/model"
)

// Enricher 对检索结果做补充处理
type Enricher interface {
	Enrich(ctx context.Context, results []model.RawSearchResult) []model.RawSearchResult
}

// FetchFunc 抓取页面正文
type FetchFunc func(ctx context.Context, pageURL string) (string, error)

// ReadabilityEnricher 摘要过短时抓取原文并提取正文
type ReadabilityEnricher struct {
	below       int
	timeout     time.Duration
	concurrency int
	fetch       FetchFunc
}

// NewReadabilityEnricher below 为触发抓取的摘要长度
func NewReadabilityEnricher(below int, timeout time.Duration, concurrency int) *ReadabilityEnricher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	client := &http.Client{Timeout: timeout}
	return &ReadabilityEnricher{
		below:       below,
		timeout:     timeout,
		concurrency: concurrency,
		fetch: func(ctx context.Context, pageURL string) (string, error) {
			return fetchAndCleanContent(ctx, client, pageURL)
		},
	}
}

// WithFetch 替换抓取实现
func (e *ReadabilityEnricher) WithFetch(fn FetchFunc) *ReadabilityEnricher {
	e.fetch = fn
	return e
}

// Enrich 原地替换较短的内容，抓取失败保留原摘要
func (e *ReadabilityEnricher) Enrich(ctx context.Context, results []model.RawSearchResult) []model.RawSearchResult {
	if e.below <= 0 {
		return results
	}
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues(metrics.StageEnrich).Observe(time.Since(start).Seconds())
	}()

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i := range results {
		item := &results[i]
		if item.URL == "" || utf8.RuneCountInString(item.Content) >= e.below {
			continue
		}
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					logger.Log.Errorf("抓取正文异常 [%s]: %v", item.URL, r)
				}
			}()
			fctx, cancel := context.WithTimeout(ctx, e.timeout)
			defer cancel()

			fetched, err := e.fetch(fctx, item.URL)
			if err != nil {
				logger.Log.Warnf("抓取正文失败 [%s]: %v", item.URL, err)
				return nil
			}
			fetched = strings.TrimSpace(fetched)
			if len(fetched) > len(item.Content) {
				item.Content = fetched
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func fetchAndCleanContent(ctx context.Context, client *http.Client, pageURL string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	article, err := readability.FromReader(resp.Body, u)
	if err != nil {
		return "", err
	}
	return article.TextContent, nil
}
