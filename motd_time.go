package irc2me

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// parseServerTime opportunistically extracts a timestamp from a free-form
// MOTD/server-time line for the debug log, the way lrstanley-girc's
// builtin.go parses "003" ("created ...") server-time strings with
// araddon/dateparse. MOTD lines rarely contain a date, so this is a
// best-effort annotation, not something any Message field depends on.
func parseServerTime(text string) (time.Time, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return time.Time{}, false
	}
	t, err := dateparse.ParseAny(trimmed)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
