package retrieval

import (
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/iWorld-y/answer_engine/app/answer_engine/pkg/model"
)

// DefaultAuthoritativeDomains 加分域名，带路径的条目还需匹配路径前缀
var DefaultAuthoritativeDomains = []string{
	// 百科与综合
	"wikipedia.org", "britannica.com", "stanford.edu", "ox.ac.uk", "mit.edu",
	// 科研
	"nature.com", "sciencedirect.com", "sciencemag.org", "springer.com", "jstor.org",
	// 技术
	"ieee.org", "acm.org", "arxiv.org", "nasa.gov", "techcrunch.com",
	// 新闻
	"bbc.com", "nytimes.com", "reuters.com", "theguardian.com", "washingtonpost.com",
	// 医疗
	"nih.gov", "who.int", "cdc.gov", "mayoclinic.org", "clevelandclinic.org",
	// 体育
	"espn.com", "skysports.com", "sports.yahoo.com", "cbssports.com", "bleacherreport.com",
	"espncricinfo.com", "icc-cricket.com", "cricbuzz.com", "wisden.com", "skysports.com/cricket",
	// 档案馆
	"archive.org", "loc.gov", "europeana.eu", "nationalarchives.gov.uk", "worlddigitalibrary.org",
}

const domainBonus = 0.15

// Consolidator 去重并按综合得分排序
type Consolidator struct {
	domains []domainRule
}

type domainRule struct {
	host string
	path string
}

// NewConsolidator domains 为空时使用内置列表
func NewConsolidator(domains []string) *Consolidator {
	if len(domains) == 0 {
		domains = DefaultAuthoritativeDomains
	}
	rules := make([]domainRule, 0, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		host, path, _ := strings.Cut(d, "/")
		if path != "" {
			path = "/" + path
		}
		rules = append(rules, domainRule{host: host, path: path})
	}
	return &Consolidator{domains: rules}
}

var defaultConsolidator = NewConsolidator(nil)

// Consolidate 使用内置域名列表整合结果
func Consolidate(raw []model.RawSearchResult, terms []string, duration time.Duration) model.ConsolidatedResultSet {
	return defaultConsolidator.Consolidate(raw, terms, duration)
}

// Consolidate 按 URL 保留首次出现的结果，ID 按去重后的原始顺序从 1 分配，再稳定降序排序
func (c *Consolidator) Consolidate(raw []model.RawSearchResult, terms []string, duration time.Duration) model.ConsolidatedResultSet {
	seen := make(map[string]bool, len(raw))
	sources := make([]model.Source, 0, len(raw))
	for _, r := range raw {
		if r.URL == "" || seen[r.URL] {
			continue
		}
		seen[r.URL] = true

		u, _ := url.Parse(r.URL)
		src := model.Source{
			ID:            len(sources) + 1,
			Title:         r.Title,
			URL:           r.URL,
			Content:       r.Content,
			ProviderScore: r.Score,
			PublishedDate: r.PublishedDate,
		}
		if u != nil {
			src.Domain = strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
		}
		src.RankScore = c.Score(r.Score, r.Content, u)
		sources = append(sources, src)
	}

	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].RankScore > sources[j].RankScore
	})

	return model.ConsolidatedResultSet{
		TotalResults:    len(sources),
		SearchTermsUsed: terms,
		Results:         sources,
		Duration:        duration,
		DurationSeconds: duration.Seconds(),
	}
}

// Score 提供方得分 + 内容长度加分 + 权威域名加分
func (c *Consolidator) Score(providerScore float64, content string, u *url.URL) float64 {
	score := providerScore
	switch n := utf8.RuneCountInString(content); {
	case n > 500:
		score += 1.0
	case n > 200:
		score += 0.5
	}
	if c.authoritative(u) {
		score += domainBonus
	}
	return score
}

func (c *Consolidator) authoritative(u *url.URL) bool {
	if u == nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	path := strings.ToLower(u.EscapedPath())
	for _, d := range c.domains {
		if host != d.host && !strings.HasSuffix(host, "."+d.host) {
			continue
		}
		if d.path == "" || strings.HasPrefix(path, d.path) {
			return true
		}
	}
	return false
}
