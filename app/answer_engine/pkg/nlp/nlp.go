package nlp

import (
	"context"
	"math"

	"github.com/cloudwego/eino/components/embedding"

	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/config"
)

// 实体类型，命名与常见 NER 标签一致
const (
	EntityPerson   = "PERSON"
	EntityOrg      = "ORG"
	EntityMoney    = "MONEY"
	EntityPercent  = "PERCENT"
	EntityDate     = "DATE"
	EntityCardinal = "CARDINAL"
	EntityProper   = "PROPER"
)

// Entity 抽取出的实体
type Entity struct {
	Text  string
	Label string
}

// EntityExtractor 命名实体抽取能力
type EntityExtractor interface {
	Extract(ctx context.Context, text string) ([]Entity, error)
}

// Capabilities 引用归因可选的 NLP 能力，字段为 nil 表示不可用
type Capabilities struct {
	Embedder embedding.Embedder
	Entities EntityExtractor
}

// HasEmbedder 是否具备语义相似度能力
func (c Capabilities) HasEmbedder() bool { return c.Embedder != nil }

// HasEntities 是否具备实体抽取能力
func (c Capabilities) HasEntities() bool { return c.Entities != nil }

// NewCapabilities 按配置装配可选能力
func NewCapabilities(cfg config.NLPConfig) (Capabilities, error) {
	var caps Capabilities
	if cfg.Embedding.Enabled {
		emb, err := NewOpenAIEmbedder(cfg.Embedding)
		if err != nil {
			return Capabilities{}, err
		}
		caps.Embedder = emb
	}
	if cfg.Entities.Enabled {
		caps.Entities = NewRuleExtractor()
	}
	return caps, nil
}

// Cosine 余弦相似度，维度不一致或零向量返回 0
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
