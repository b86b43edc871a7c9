package locale

import (
	"strings"
	"time"

	pkgerrors "statement-reconciler/pkg/errors"
)

// DefaultDateFormats are tried when a caller passes no layouts.
var DefaultDateFormats = []string{
	"02.01.2006",
	"02/01/2006",
	"2006-01-02",
	"02.01.06",
}

// ParseDate parses raw with the first matching Go layout and returns
// midnight UTC of that day.
func ParseDate(raw string, formats ...string) (time.Time, error) {
	if len(formats) == 0 {
		formats = DefaultDateFormats
	}

	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, pkgerrors.DateParseError(raw, formats, nil)
	}

	var lastErr error
	for _, layout := range formats {
		t, err := time.Parse(layout, s)
		if err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
		lastErr = err
	}
	return time.Time{}, pkgerrors.DateParseError(raw, formats, lastErr)
}
