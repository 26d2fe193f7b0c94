package notify

import (
	"fmt"
	"strings"

	"tubewatch/internal/search"
)

const titleDisplayLimit = 80

// scoreEmoji tiers the headline emoji by relevance score.
func scoreEmoji(score int) string {
	switch {
	case score >= 6:
		return "🔥"
	case score >= 4:
		return "⭐"
	default:
		return "🆕"
	}
}

func languageFlag(lang string) string {
	switch strings.ToLower(lang) {
	case "it":
		return "🇮🇹"
	case "en":
		return "🇺🇸"
	default:
		return "🌍"
	}
}

// FormatVideo renders one found video as a Markdown notification.
func FormatVideo(v search.Video) string {
	title := v.Title
	if len([]rune(title)) > titleDisplayLimit {
		rs := []rune(title)
		title = string(rs[:titleDisplayLimit-3]) + "..."
	}

	lang := v.Language
	if lang == "" {
		lang = "unknown"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s **New video found!** %s\n\n", scoreEmoji(v.Score), languageFlag(v.Language))
	fmt.Fprintf(&b, "**%s**\n\n", title)
	fmt.Fprintf(&b, "📺 **Channel:** %s\n", v.Channel)
	fmt.Fprintf(&b, "📅 **Published:** %s\n", v.Published)
	fmt.Fprintf(&b, "👀 **Views:** %s\n", v.Views)
	fmt.Fprintf(&b, "⏱️ **Duration:** %s\n", v.Duration)
	fmt.Fprintf(&b, "🌍 **Language:** %s\n", strings.ToUpper(lang))
	fmt.Fprintf(&b, "⭐ **Relevance:** %d/10\n\n", v.Score)
	fmt.Fprintf(&b, "🔗 **Watch now:** %s", v.URL)
	return b.String()
}
