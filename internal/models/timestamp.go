package models

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// The backend emits timestamps with exactly six fractional digits and an
// explicit offset, e.g. 2025-04-05T12:30:01.123456+00:00.
const (
	timestampParseLayout  = "2006-01-02T15:04:05.000000Z07:00"
	timestampFormatLayout = "2006-01-02T15:04:05.000000-07:00"
)

var ErrMalformedTimestamp = errors.New("malformed timestamp")

// time.Parse accepts single-digit hours, so the exact shape is checked first.
var timestampPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{6}(Z|[+-]\d{2}:\d{2})$`)

// ParseTimestamp parses the backend's microsecond ISO-8601 format and returns
// the instant in UTC.
func ParseTimestamp(s string) (time.Time, error) {
	if !timestampPattern.MatchString(s) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedTimestamp, s)
	}
	t, err := time.Parse(timestampParseLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %v", ErrMalformedTimestamp, s, err)
	}
	return t.UTC(), nil
}

// FormatTimestamp renders t in UTC with a numeric +00:00 offset.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampFormatLayout)
}
