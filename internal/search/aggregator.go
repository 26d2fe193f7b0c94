package search

import (
	"context"
	"strings"
	"sync"
	"time"

	logx "tubewatch/pkg/logx"
)

// Options tune the aggregator. Zero values fall back to sensible defaults.
type Options struct {
	// Limit is the maximum ranked items returned per query.
	Limit int
	// QueryDelay is the pause between queries in SearchAll; a deliberate
	// throttle against the upstream rate limit, not a performance knob.
	QueryDelay time.Duration

	Filter FilterOptions
}

func (o Options) withDefaults() Options {
	if o.Limit <= 0 {
		o.Limit = 10
	}
	if o.QueryDelay <= 0 {
		o.QueryDelay = time.Second
	}
	o.Filter = o.Filter.withDefaults()
	return o
}

// Aggregator drives the topic x language x region search matrix and composes
// per-query results into one deduplicated, ranked batch.
type Aggregator struct {
	client Client
	seen   SeenSet
	log    logx.Logger

	mu   sync.RWMutex
	opts Options
}

func NewAggregator(client Client, seen SeenSet, opts Options, log logx.Logger) *Aggregator {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Aggregator{
		client: client,
		seen:   seen,
		log:    log,
		opts:   opts.withDefaults(),
	}
}

// SetOptions swaps the tuning knobs (hot reload).
func (a *Aggregator) SetOptions(opts Options) {
	a.mu.Lock()
	a.opts = opts.withDefaults()
	a.mu.Unlock()
}

func (a *Aggregator) options() Options {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.opts
}

// SearchTopic issues one query, parses up to twice the limit of raw results
// so the relevance filter has headroom, and truncates the ranked survivors.
// Any transport or decode failure yields an empty list; one failed query must
// never abort a whole cycle.
func (a *Aggregator) SearchTopic(ctx context.Context, topic, language, region string) []Video {
	opts := a.options()

	raw, err := a.client.Search(ctx, Query{
		Topic:    topic,
		Language: language,
		Region:   region,
		Limit:    opts.Limit * 2,
	})
	if err != nil {
		a.log.Warn("search query failed",
			logx.String("topic", topic),
			logx.String("lang", language),
			logx.String("region", region),
			logx.Err(err),
		)
		return nil
	}

	for i := range raw {
		raw[i].Language = language
		raw[i].Region = region
	}

	ranked := FilterRelevant(raw, topic, a.seen, opts.Filter)
	if len(ranked) > opts.Limit {
		ranked = ranked[:opts.Limit]
	}
	a.log.Debug("search query done",
		logx.String("topic", topic),
		logx.String("lang", language),
		logx.String("region", region),
		logx.Int("raw", len(raw)),
		logx.Int("relevant", len(ranked)),
	)
	return ranked
}

// SearchAll walks the full cross-product of topics x languages x regions
// sequentially, pausing between queries, and merges the results with
// first-occurrence-wins dedup and a final stable score sort.
func (a *Aggregator) SearchAll(ctx context.Context, topics, languages, regions []string) []Video {
	opts := a.options()
	if len(languages) == 0 {
		languages = []string{""}
	}
	if len(regions) == 0 {
		regions = []string{""}
	}

	total := len(topics) * len(languages) * len(regions)
	a.log.Info("search cycle starting",
		logx.Int("topics", len(topics)),
		logx.Int("languages", len(languages)),
		logx.Int("regions", len(regions)),
		logx.Int("queries", total),
	)

	var all []Video
	n := 0
	for _, topic := range topics {
		topic = trimmed(topic)
		if topic == "" {
			continue
		}
		for _, lang := range languages {
			for _, region := range regions {
				if ctx.Err() != nil {
					return dedupRanked(all)
				}
				n++
				all = append(all, a.SearchTopic(ctx, topic, trimmed(lang), trimmed(region))...)

				if n < total {
					select {
					case <-ctx.Done():
						return dedupRanked(all)
					case <-time.After(opts.QueryDelay):
					}
				}
			}
		}
	}

	out := dedupRanked(all)
	a.log.Info("search cycle merged", logx.Int("unique", len(out)), logx.Int("collected", len(all)))
	return out
}

// dedupRanked collapses duplicate ids (first occurrence wins) and re-sorts
// the merged batch by score, stable.
func dedupRanked(items []Video) []Video {
	seen := make(map[string]struct{}, len(items))
	out := make([]Video, 0, len(items))
	for _, v := range items {
		if _, dup := seen[v.ID]; dup {
			continue
		}
		seen[v.ID] = struct{}{}
		out = append(out, v)
	}
	sortByScore(out)
	return out
}

func trimmed(s string) string { return strings.TrimSpace(s) }
