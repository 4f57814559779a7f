package citation

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/cloudwego/eino/components/embedding"

	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/logger"
	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/model"
	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/nlp"
)

const (
	semanticContentLimit = 500
	entityContentLimit   = 800
)

// signal 一种相关性信号，bind 时对来源做一次预处理
type signal interface {
	name() string
	bind(ctx context.Context, sources []model.Source) matcher
}

// matcher 返回超过阈值的来源 ID 及其分数
type matcher func(ctx context.Context, sentence string) map[int]float64

func head(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// lexicalSignal 按空白分词的词重叠率
type lexicalSignal struct {
	minOverlap int
	threshold  float64
}

func (l lexicalSignal) name() string { return "lexical" }

func (l lexicalSignal) bind(_ context.Context, sources []model.Source) matcher {
	sets := make([]map[string]struct{}, len(sources))
	for i, src := range sources {
		sets[i] = tokenSet(src.Content)
	}
	return func(_ context.Context, sentence string) map[int]float64 {
		words := tokenSet(sentence)
		matches := make(map[int]float64)
		if len(words) == 0 {
			return matches
		}
		for i, src := range sources {
			overlap := 0
			for w := range words {
				if _, ok := sets[i][w]; ok {
					overlap++
				}
			}
			if overlap < l.minOverlap {
				continue
			}
			if ratio := float64(overlap) / float64(len(words)); ratio > l.threshold {
				matches[src.ID] = ratio
			}
		}
		return matches
	}
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// semanticSignal 句向量与来源向量的余弦相似度，调用失败时退回词法匹配
type semanticSignal struct {
	emb       embedding.Embedder
	threshold float64
	fallback  lexicalSignal
}

func (s semanticSignal) name() string { return "semantic" }

func (s semanticSignal) bind(ctx context.Context, sources []model.Source) matcher {
	var (
		texts []string
		ids   []int
	)
	for _, src := range sources {
		content := head(src.Content, semanticContentLimit)
		if strings.TrimSpace(content) == "" {
			continue
		}
		texts = append(texts, content)
		ids = append(ids, src.ID)
	}
	lexical := s.fallback.bind(ctx, sources)
	if len(texts) == 0 {
		return func(context.Context, string) map[int]float64 { return map[int]float64{} }
	}

	vecs, err := s.emb.EmbedStrings(ctx, texts)
	if err != nil || len(vecs) != len(texts) {
		logger.Log.Warnf("来源向量化失败，改用词法匹配: %v", err)
		return lexical
	}

	return func(ctx context.Context, sentence string) map[int]float64 {
		sv, err := s.emb.EmbedStrings(ctx, []string{sentence})
		if err != nil || len(sv) != 1 {
			logger.Log.Warnf("句子向量化失败，改用词法匹配: %v", err)
			return lexical(ctx, sentence)
		}
		matches := make(map[int]float64)
		for i, v := range vecs {
			if sim := nlp.Cosine(sv[0], v); sim > s.threshold {
				matches[ids[i]] = sim
			}
		}
		return matches
	}
}

// entitySignal 句子实体在来源实体中的占比
type entitySignal struct {
	extractor nlp.EntityExtractor
	threshold float64
	fallback  lexicalSignal
}

func (e entitySignal) name() string { return "entity" }

func (e entitySignal) bind(ctx context.Context, sources []model.Source) matcher {
	lexical := e.fallback.bind(ctx, sources)
	sets := make([]map[string]struct{}, len(sources))
	for i, src := range sources {
		ents, err := e.extractor.Extract(ctx, head(src.Content, entityContentLimit))
		if err != nil {
			logger.Log.Warnf("来源实体抽取失败，改用词法匹配: %v", err)
			return lexical
		}
		sets[i] = entitySet(ents)
	}

	return func(ctx context.Context, sentence string) map[int]float64 {
		ents, err := e.extractor.Extract(ctx, sentence)
		if err != nil {
			logger.Log.Warnf("句子实体抽取失败，改用词法匹配: %v", err)
			return lexical(ctx, sentence)
		}
		matches := make(map[int]float64)
		sentEnts := entitySet(ents)
		if len(sentEnts) == 0 {
			return matches
		}
		for i, src := range sources {
			overlap := 0
			for k := range sentEnts {
				if _, ok := sets[i][k]; ok {
					overlap++
				}
			}
			if overlap == 0 {
				continue
			}
			if ratio := float64(overlap) / float64(len(sentEnts)); ratio > e.threshold {
				matches[src.ID] = ratio
			}
		}
		return matches
	}
}

func entitySet(ents []nlp.Entity) map[string]struct{} {
	set := make(map[string]struct{}, len(ents))
	for _, e := range ents {
		if k := strings.ToLower(strings.TrimSpace(e.Text)); k != "" {
			set[k] = struct{}{}
		}
	}
	return set
}
