package search

// Video is one parsed search result. Recency, duration and view counts are
// free-text display labels from the source, not timestamps; only the id and
// minimal metadata ever get persisted (see the storage ledger).
type Video struct {
	ID          string
	Title       string
	Channel     string
	ChannelID   string
	Published   string // free-text label, e.g. "2 days ago", "3 ore fa"
	Duration    string
	Views       string
	Description string
	Thumbnail   string
	URL         string

	// Query combination that produced this result.
	Language string
	Region   string

	// Score is the derived relevance score, set by the filter.
	Score int
}

// Query is one request to the search backend.
type Query struct {
	Topic    string
	Language string
	Region   string
	Limit    int // max raw results to parse; 0 means backend default
}
