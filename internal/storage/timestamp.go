package storage

import (
	"fmt"
	"strings"
	"time"
)

// TimestampFormat is the fixed serializable text form of synchronization
// timestamps exchanged with clients. Always UTC.
const TimestampFormat = "2006-01-02 15:04:05.000"

// FormatTimestamp renders a timestamp in the wire text form.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampFormat)
}

// ParseTimestamp parses the wire text form of a timestamp.
func ParseTimestamp(value string) (time.Time, error) {
	t, err := time.ParseInLocation(TimestampFormat, strings.TrimSpace(value), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("storage: illegal synchronization timestamp %q: %w", value, err)
	}
	return t, nil
}
