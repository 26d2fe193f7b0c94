package search

import (
	"sort"
	"strings"
)

// DefaultKeywords is the domain vocabulary used for relevance scoring when
// no explicit set is configured. It mirrors the subject area the bot was
// originally deployed for (AI tooling, in English and Italian).
var DefaultKeywords = []string{
	"ai", "artificial intelligence", "intelligenza artificiale",
	"machine learning", "deep learning", "neural network",
	"chatgpt", "gpt", "llm", "transformer",
	"coding", "programming", "development",
	"tool", "platform", "software",
	"editing", "video editing", "automation",
}

// SeenSet answers whether a video id was already delivered.
type SeenSet interface {
	Contains(id string) bool
}

// FilterOptions tune relevance ranking.
type FilterOptions struct {
	Keywords   []string // nil means DefaultKeywords
	MinScore   int      // candidates below this are dropped; <=0 means 1
	RecentDays int      // recency bonus threshold; <=0 means 7
}

func (o FilterOptions) withDefaults() FilterOptions {
	if o.Keywords == nil {
		o.Keywords = DefaultKeywords
	}
	if o.MinScore <= 0 {
		o.MinScore = 1
	}
	if o.RecentDays <= 0 {
		o.RecentDays = 7
	}
	return o
}

// scoreVideo computes the relevance score of one candidate against a topic:
// +3 if the topic occurs in the title, +2 per domain keyword found in the
// title and +1 per keyword found in the description, +2 if the publish label
// parses as recent. All matches are case-insensitive substrings.
func scoreVideo(v Video, topic string, opts FilterOptions) int {
	title := strings.ToLower(v.Title)
	desc := strings.ToLower(v.Description)

	score := 0
	if t := strings.ToLower(strings.TrimSpace(topic)); t != "" && strings.Contains(title, t) {
		score += 3
	}
	for _, kw := range opts.Keywords {
		k := strings.ToLower(kw)
		if strings.Contains(title, k) {
			score += 2
		}
		if strings.Contains(desc, k) {
			score += 1
		}
	}
	if publishedWithin(v.Published, opts.RecentDays) {
		score += 2
	}
	return score
}

// FilterRelevant drops already-delivered candidates, scores the rest against
// the topic, discards anything under the threshold, and returns the survivors
// sorted by score descending. The sort is stable: equal scores keep their
// source order.
func FilterRelevant(items []Video, topic string, seen SeenSet, opts FilterOptions) []Video {
	opts = opts.withDefaults()

	out := make([]Video, 0, len(items))
	for _, v := range items {
		if v.ID == "" {
			continue
		}
		if seen != nil && seen.Contains(v.ID) {
			continue
		}
		v.Score = scoreVideo(v, topic, opts)
		if v.Score < opts.MinScore {
			continue
		}
		out = append(out, v)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// sortByScore stable-sorts a merged batch descending by score.
func sortByScore(items []Video) {
	sort.SliceStable(items, func(i, j int) bool { return items[i].Score > items[j].Score })
}
