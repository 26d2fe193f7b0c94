package search

import (
	"strconv"
	"strings"
)

// publishedWithin reports whether a free-text publish label looks like the
// video appeared within the last maxDays days. The labels are localized
// display strings ("3 days ago", "2 ore fa"), so this is a marker heuristic,
// not a calendar computation. Labels that match nothing are NOT recent.
//
// Both English and Italian markers are recognized; the deployments this bot
// serves search in both locales.
func publishedWithin(label string, maxDays int) bool {
	s := strings.ToLower(strings.TrimSpace(label))
	if s == "" || s == "n/a" {
		return false
	}

	// Today or yesterday.
	for _, m := range []string{"oggi", "today", "ieri", "yesterday"} {
		if strings.Contains(s, m) {
			return true
		}
	}

	// Published within the last hours.
	for _, m := range []string{"ore fa", "hours ago", "hour ago"} {
		if strings.Contains(s, m) {
			return true
		}
	}

	// "N days ago": extract the first integer token and compare.
	if strings.Contains(s, "giorni fa") || strings.Contains(s, "days ago") {
		for _, w := range strings.Fields(s) {
			if n, err := strconv.Atoi(w); err == nil {
				return n <= maxDays
			}
		}
		return false
	}

	// Single-week granularity only: "week ago" matches, "weeks ago" does not.
	if strings.Contains(s, "settimana fa") || strings.Contains(s, "week ago") {
		return true
	}

	return false
}
