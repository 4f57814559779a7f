package citation

import (
	"strings"

	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/model"
)

// QualityScore 根据引用密度、长度和结构打分，结果在 [0,1]
func QualityScore(content string, citations, words int) float64 {
	score := 0.0

	// 引用密度：每 50 词 0.5~2 个引用为佳
	if words > 0 {
		density := float64(citations) / (float64(words) / 50)
		if density >= 0.5 && density <= 2.0 {
			score += 0.3
		} else if density > 0 {
			score += 0.1
		}
	}

	if words >= 200 && words <= 800 {
		score += 0.3
	} else if words >= 100 {
		score += 0.2
	}

	if strings.Contains(content, "##") {
		score += 0.1
	}
	if strings.Contains(content, "- ") || strings.Contains(content, "* ") {
		score += 0.1
	}
	if citations > 2 {
		score += 0.2
	}

	if score > 1.0 {
		return 1.0
	}
	return score
}

// BuildAnswer 由归因结果组装最终答案，sources 为参与生成的来源
func BuildAnswer(query string, res Result, sources []model.Source) model.SynthesizedAnswer {
	cited := make(map[int]bool, len(res.CitedIDs))
	for _, id := range res.CitedIDs {
		cited[id] = true
	}
	used := make([]model.CitedSource, 0, len(res.CitedIDs))
	for _, src := range sources {
		if cited[src.ID] {
			used = append(used, model.CitedSource{ID: src.ID, Title: src.Title, URL: src.URL})
		}
	}

	words := len(strings.Fields(res.Text))
	return model.SynthesizedAnswer{
		Query:         query,
		ResponseText:  res.Text,
		CitedSources:  used,
		TotalSources:  len(sources),
		WordCount:     words,
		CitationCount: len(res.CitedIDs),
		QualityScore:  QualityScore(res.Text, len(res.CitedIDs), words),
	}
}
