package citation

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/config"
	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/logger"
	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/metrics"
	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/model"
	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/nlp"
)

const (
	semanticWeight = 0.6
	entityWeight   = 0.4
)

var citeIDRe = regexp.MustCompile(`\[(\d+)\]`)

// Result 归因后的文本
type Result struct {
	Text string
	// Sentences 渲染后的句子，按答案顺序
	Sentences []string
	// CitedIDs 从渲染文本中解析出的来源 ID，升序
	CitedIDs []int
}

// Attributor 为答案中的事实句附加来源链接
type Attributor struct {
	semantic  signal
	entity    signal
	extractor nlp.EntityExtractor

	maxPerSentence int
	threshold      float64
}

// New 根据可用能力选择信号策略，缺失的能力以词法匹配替代
func New(cfg config.CitationConfig, caps nlp.Capabilities) *Attributor {
	lexical := lexicalSignal{minOverlap: cfg.LexicalMinOverlap, threshold: cfg.LexicalThreshold}
	a := &Attributor{
		semantic:       lexical,
		entity:         lexical,
		extractor:      caps.Entities,
		maxPerSentence: cfg.MaxPerSentence,
		threshold:      cfg.RelevanceThreshold,
	}
	if caps.HasEmbedder() {
		a.semantic = semanticSignal{emb: caps.Embedder, threshold: cfg.SemanticThreshold, fallback: lexical}
	}
	if caps.HasEntities() {
		a.entity = entitySignal{extractor: caps.Entities, threshold: cfg.EntityThreshold, fallback: lexical}
	}
	if a.maxPerSentence <= 0 {
		a.maxPerSentence = 2
	}
	logger.Log.Infof("引用归因策略: semantic=%s entity=%s", a.semantic.name(), a.entity.name())
	return a
}

type candidate struct {
	id    int
	score float64
}

// Attribute 断句、识别事实句、为每句选出至多 maxPerSentence 个来源并渲染为 [id](url)
func (a *Attributor) Attribute(ctx context.Context, text string, sources []model.Source) Result {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues(metrics.StageAttribute).Observe(time.Since(start).Seconds())
	}()

	urls := make(map[int]string, len(sources))
	for _, src := range sources {
		urls[src.ID] = src.URL
	}

	var semantic, entity matcher
	if len(sources) > 0 {
		semantic = a.semantic.bind(ctx, sources)
		entity = a.entity.bind(ctx, sources)
	}

	sentences := SplitSentences(text)
	rendered := make([]string, 0, len(sentences))
	for _, sentence := range sentences {
		if semantic == nil || !IsClaim(ctx, sentence, a.extractor) {
			rendered = append(rendered, sentence)
			continue
		}
		rendered = append(rendered, sentence+a.render(a.rank(ctx, sentence, semantic, entity), urls))
	}

	out := strings.Join(rendered, " ")
	ids := CitedIDs(out, sources)
	metrics.CitationsAttached.Observe(float64(len(ids)))
	return Result{Text: out, Sentences: rendered, CitedIDs: ids}
}

func (a *Attributor) rank(ctx context.Context, sentence string, semantic, entity matcher) []candidate {
	combined := make(map[int]float64)
	for id, s := range semantic(ctx, sentence) {
		combined[id] += s * semanticWeight
	}
	for id, s := range entity(ctx, sentence) {
		combined[id] += s * entityWeight
	}

	cands := make([]candidate, 0, len(combined))
	for id, s := range combined {
		if s > a.threshold {
			cands = append(cands, candidate{id: id, score: s})
		}
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score > cands[j].score
		}
		return cands[i].id < cands[j].id
	})
	if len(cands) > a.maxPerSentence {
		cands = cands[:a.maxPerSentence]
	}
	return cands
}

func (a *Attributor) render(cands []candidate, urls map[int]string) string {
	var sb strings.Builder
	for _, c := range cands {
		u := urls[c.id]
		if u == "" {
			u = "#"
		}
		fmt.Fprintf(&sb, "[%d](%s)", c.id, u)
	}
	return sb.String()
}

// CitedIDs 扫描文本中的 [n]，只保留属于 sources 的 ID
func CitedIDs(text string, sources []model.Source) []int {
	valid := make(map[int]bool, len(sources))
	for _, src := range sources {
		valid[src.ID] = true
	}
	seen := make(map[int]bool)
	var ids []int
	for _, m := range citeIDRe.FindAllStringSubmatch(text, -1) {
		id, err := strconv.Atoi(m[1])
		if err != nil || !valid[id] || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
