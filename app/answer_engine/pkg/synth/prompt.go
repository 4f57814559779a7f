package synth

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/model"
)

const (
	directStyle = `Write a clear, direct answer that:
1. Starts with the main answer in the first sentence
2. Provides key details and context
3. Includes relevant background information
4. Uses natural paragraph structure
5. Cites sources with [1], [2] format after relevant facts`

	comparisonStyle = `Write a balanced comparison that:
1. Briefly states the key differences upfront
2. Compares main aspects side by side
3. Provides context and background
4. Uses clear paragraph structure
5. Cites sources with [1], [2] format`

	guideStyle = `Write a helpful guide that:
1. Briefly explains what the process involves
2. Lists key steps or methods
3. Provides important details and tips
4. Uses clear paragraph and bullet structure
5. Cites sources with [1], [2] format`

	generalStyle = `Write a comprehensive answer that:
1. Addresses the question directly
2. Provides relevant details and context
3. Uses natural paragraph structure
4. Cites sources with [1], [2] format after key facts`
)

const promptTemplate = `You are an expert research assistant creating a comprehensive answer.

**Query**: %q
**Query Type**: %s
**Intent**: %s

**Sources**:
%s
**Instructions**:
%s

**Citation Rules**:
- Use the source number in brackets, e.g. [1], immediately after facts from that source
- Every major claim needs a citation
- Multiple sources can be cited like [1][2]
- Only cite the source numbers listed above
- Don't over-cite obvious facts

**Response Style**:
- Conversational but informative
- Use clear paragraphs, not rigid templates
- Include relevant details that answer the user's intent
- Use **bold** for emphasis on key names/terms
- Use bullet points only when listing multiple items

Generate a well-structured response now:`

func styleFor(t model.QueryType) string {
	switch t {
	case model.QueryFactual, model.QueryCurrentEvents:
		return directStyle
	case model.QueryComparison:
		return comparisonStyle
	case model.QueryHowTo:
		return guideStyle
	default:
		return generalStyle
	}
}

// BuildPrompt 来源按 [id] 编号，正文截取 excerpt 个字符
// 时效性查询额外附上来源的发布日期。
func BuildPrompt(query string, analysis model.QueryAnalysis, sources []model.Source, excerpt int) string {
	timely := analysis.QueryType == model.QueryCurrentEvents || analysis.RequiresRealTime
	var sb strings.Builder
	for _, src := range sources {
		content := strings.TrimSpace(strings.ReplaceAll(src.Content, "\n", " "))
		if utf8.RuneCountInString(content) > excerpt {
			content = string([]rune(content)[:excerpt]) + "..."
		}
		fmt.Fprintf(&sb, "[%d] %s\n", src.ID, src.Title)
		if d := publishedDay(src.PublishedDate); timely && d != "" {
			fmt.Fprintf(&sb, "Published: %s\n", d)
		}
		fmt.Fprintf(&sb, "%s\n\n", content)
	}
	return fmt.Sprintf(promptTemplate, query, analysis.QueryType, analysis.SearchIntent, sb.String(), styleFor(analysis.QueryType))
}

func publishedDay(rfc3339 string) string {
	t, err := time.Parse(time.RFC3339, rfc3339)
	if err != nil {
		return ""
	}
	return t.Format("2006-01-02")
}
