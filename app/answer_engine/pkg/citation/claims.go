package citation

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/nlp"
)

var claimPatterns = []*regexp.Regexp{
	// 数量 + 单位
	regexp.MustCompile(`\b\d+(?:[.,]\d+)?\s*(?:%|percent\b|million\b|billion\b|trillion\b|thousand\b|hours?\b|minutes?\b|seconds?\b|years?\b|months?\b|weeks?\b|days?\b|gb\b|mb\b|tb\b|ghz\b|mhz\b|mp\b|pixels\b|inches\b|km\b|kg\b|miles\b)`),
	// 金额
	regexp.MustCompile(`[$€£¥]\s?\d`),
	// 比较
	regexp.MustCompile(`\b(?:more|less|better|worse|faster|slower|higher|lower|larger|smaller|bigger|cheaper)\b.*\bthan\b`),
	// 引述
	regexp.MustCompile(`\b(?:according to|research shows|studies show|studies indicate|data reveals|announced|released|reported)\b`),
	// 时间
	regexp.MustCompile(`\b(?:in \d{4}|since \d{4}|by \d{4}|during|recently|latest|new)\b`),
}

var factualEntityTypes = map[string]bool{
	nlp.EntityPerson:   true,
	nlp.EntityOrg:      true,
	nlp.EntityMoney:    true,
	nlp.EntityPercent:  true,
	nlp.EntityDate:     true,
	nlp.EntityCardinal: true,
}

// minClaimWords 超过该词数的句子兜底视为陈述事实
const minClaimWords = 5

// matchesClaimPattern 仅依据正则判断
func matchesClaimPattern(sentence string) bool {
	lower := strings.ToLower(sentence)
	for _, re := range claimPatterns {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}

// IsClaim 判断句子是否包含需要引用的事实陈述；extractor 可为 nil
func IsClaim(ctx context.Context, sentence string, extractor nlp.EntityExtractor) bool {
	if matchesClaimPattern(sentence) {
		return true
	}
	if extractor != nil {
		if ents, err := extractor.Extract(ctx, sentence); err == nil {
			for _, e := range ents {
				if factualEntityTypes[e.Label] {
					return true
				}
			}
		}
	}
	return len(strings.Fields(sentence)) > minClaimWords
}

// SplitSentences 在 .!? 后紧跟空白处断句，丢弃空句
func SplitSentences(text string) []string {
	var (
		out   []string
		start int
	)
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		j := i + 1
		if j >= len(runes) || !unicode.IsSpace(runes[j]) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start:j])); s != "" {
			out = append(out, s)
		}
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		start = j
		i = j - 1
	}
	if start < len(runes) {
		if s := strings.TrimSpace(string(runes[start:])); s != "" {
			out = append(out, s)
		}
	}
	return out
}
