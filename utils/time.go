package utils

import (
	"fmt"
	"time"
)

// DisplayLayout is how every timestamp is shown to readers.
const DisplayLayout = "2006-01-02 15:04:05"

// DisplayZone is the fixed UTC+9 offset used for display and for
// interpreting send times that carry no offset of their own.
var DisplayZone = time.FixedZone("UTC+9", 9*60*60)

// DisplayTime renders a stored UTC timestamp in the display offset.
func DisplayTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(DisplayZone).Format(DisplayLayout)
}

// DisplayTimePtr is DisplayTime for optional timestamps.
func DisplayTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return DisplayTime(*t)
}

var localLayouts = []string{
	DisplayLayout,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
}

// ParseSendTime accepts RFC 3339 (offset honored) or an offset-less
// layout read as UTC+9, and returns the instant in UTC.
func ParseSendTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, DisplayZone); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized send time %q", s)
}
