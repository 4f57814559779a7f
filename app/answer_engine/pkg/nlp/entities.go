package nlp

import (
	"context"
	"regexp"
	"sort"
	"strings"
)

var (
	moneyRe   = regexp.MustCompile(`[$€£¥]\s?\d[\d,]*(?:\.\d+)?(?:\s?(?:trillion|billion|million|thousand|bn|[mkb]\b))?|\b\d[\d,]*(?:\.\d+)?\s(?:dollars|euros|pounds|yen)\b`)
	percentRe = regexp.MustCompile(`\b\d+(?:\.\d+)?\s?(?:%|percent\b|per cent\b)`)
	dateRe    = regexp.MustCompile(`(?i)\b(?:(?:jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|jun(?:e)?|jul(?:y)?|aug(?:ust)?|sep(?:tember)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\.?\s+\d{1,2}(?:st|nd|rd|th)?(?:,?\s+\d{4})?|(?:jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|jun(?:e)?|jul(?:y)?|aug(?:ust)?|sep(?:tember)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\s+\d{4}|\d{4}-\d{2}-\d{2}|(?:1[5-9]|20)\d{2}s?)\b`)
	numberRe  = regexp.MustCompile(`\b\d[\d,]*(?:\.\d+)?\b`)
	properRe  = regexp.MustCompile(`\b[A-Z][\p{L}&'.-]*(?:\s+(?:of\s+(?:the\s+)?|&\s+)?[A-Z][\p{L}&'.-]*)*`)
	acronymRe = regexp.MustCompile(`^[A-Z]{2,}[s]?$`)
)

var orgMarkers = []string{
	"inc", "inc.", "corp", "corp.", "corporation", "ltd", "llc", "company", "co.",
	"university", "institute", "association", "organization", "organisation",
	"agency", "bank", "group", "foundation", "council", "committee", "ministry",
	"department", "commission", "federation", "league", "club", "college", "school",
}

// 句首常见虚词，不视为专有名词
var leadingStop = map[string]bool{
	"The": true, "A": true, "An": true, "In": true, "On": true, "At": true, "By": true,
	"This": true, "That": true, "These": true, "Those": true, "It": true, "Its": true,
	"He": true, "She": true, "They": true, "We": true, "I": true, "But": true, "And": true,
	"Or": true, "For": true, "From": true, "With": true, "As": true, "If": true, "When": true,
	"While": true, "After": true, "Before": true, "Since": true, "During": true, "According": true,
	"However": true, "Many": true, "Most": true, "Some": true, "Other": true, "There": true,
	"Recently": true, "Today": true, "Yesterday": true, "Also": true, "Both": true, "Each": true,
}

var monthNames = map[string]bool{
	"January": true, "February": true, "March": true, "April": true, "May": true, "June": true,
	"July": true, "August": true, "September": true, "October": true, "November": true, "December": true,
	"Monday": true, "Tuesday": true, "Wednesday": true, "Thursday": true, "Friday": true, "Saturday": true, "Sunday": true,
}

// RuleExtractor 基于正则的轻量实体抽取
type RuleExtractor struct{}

var _ EntityExtractor = (*RuleExtractor)(nil)

// NewRuleExtractor 创建规则抽取器
func NewRuleExtractor() *RuleExtractor { return &RuleExtractor{} }

type span struct{ start, end int }

// Extract 按 MONEY/PERCENT/DATE/专有名词/CARDINAL 的优先级抽取，区间不重叠
func (r *RuleExtractor) Extract(_ context.Context, text string) ([]Entity, error) {
	var (
		taken []span
		found []struct {
			span
			Entity
		}
	)
	overlaps := func(s span) bool {
		for _, t := range taken {
			if s.start < t.end && t.start < s.end {
				return true
			}
		}
		return false
	}
	add := func(s span, label string) {
		taken = append(taken, s)
		found = append(found, struct {
			span
			Entity
		}{s, Entity{Text: strings.TrimSpace(text[s.start:s.end]), Label: label}})
	}

	for _, p := range []struct {
		re    *regexp.Regexp
		label string
	}{
		{moneyRe, EntityMoney},
		{percentRe, EntityPercent},
		{dateRe, EntityDate},
	} {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			s := span{loc[0], loc[1]}
			if !overlaps(s) {
				add(s, p.label)
			}
		}
	}

	for _, loc := range properRe.FindAllStringIndex(text, -1) {
		s := trimLeadingStop(text, span{loc[0], loc[1]})
		if s.end <= s.start || overlaps(s) {
			continue
		}
		phrase := strings.TrimRight(text[s.start:s.end], ".'")
		s.end = s.start + len(phrase)
		if monthNames[phrase] || len(phrase) < 2 {
			continue
		}
		add(s, classifyProper(phrase))
	}

	for _, loc := range numberRe.FindAllStringIndex(text, -1) {
		s := span{loc[0], loc[1]}
		if !overlaps(s) {
			add(s, EntityCardinal)
		}
	}

	sort.SliceStable(found, func(i, j int) bool { return found[i].start < found[j].start })
	out := make([]Entity, 0, len(found))
	for _, f := range found {
		if f.Text != "" {
			out = append(out, f.Entity)
		}
	}
	return out, nil
}

func trimLeadingStop(text string, s span) span {
	for {
		word := text[s.start:s.end]
		idx := strings.IndexByte(word, ' ')
		first := word
		if idx >= 0 {
			first = word[:idx]
		}
		if !leadingStop[first] {
			return s
		}
		if idx < 0 {
			return span{s.end, s.end}
		}
		s.start += idx
		for s.start < s.end && text[s.start] == ' ' {
			s.start++
		}
	}
}

func classifyProper(phrase string) string {
	words := strings.Fields(phrase)
	for _, w := range words {
		lw := strings.ToLower(w)
		for _, m := range orgMarkers {
			if lw == m {
				return EntityOrg
			}
		}
	}
	if len(words) == 1 && acronymRe.MatchString(words[0]) {
		return EntityOrg
	}
	if len(words) >= 2 && len(words) <= 3 {
		for _, w := range words {
			if strings.ToLower(w) == w {
				return EntityProper
			}
		}
		return EntityPerson
	}
	return EntityProper
}
