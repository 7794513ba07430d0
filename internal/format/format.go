// Package format turns the reconciler's ordered message list into the
// date-grouped sections and relative timestamp labels the UI renders. All
// functions are pure and safe to call on every render.
package format

import (
	"time"

	"chat-sync/internal/models"
	"chat-sync/internal/timeutil"
)

const (
	labelToday     = "Today"
	labelYesterday = "Yesterday"
	longDateLayout = "2 January 2006"
	clockLayout    = "15:04"
)

// Section is one calendar day of messages, in thread order.
type Section struct {
	DateLabel string           `json:"date_label"`
	Messages  []models.Message `json:"messages"`
}

// Group buckets an ascending message list by calendar day in now's location.
// Message order within each bucket is preserved; bucket order follows the
// input order. Deterministic given now.
func Group(messages []models.Message, now time.Time) []Section {
	var sections []Section
	for _, msg := range messages {
		label := DateLabel(msg.CreatedAt, now)
		if n := len(sections); n > 0 && sections[n-1].DateLabel == label {
			sections[n-1].Messages = append(sections[n-1].Messages, msg)
			continue
		}
		sections = append(sections, Section{DateLabel: label, Messages: []models.Message{msg}})
	}
	return sections
}

// DateLabel names the calendar day of t relative to now: "Today",
// "Yesterday" or a long-form date.
func DateLabel(t, now time.Time) string {
	switch {
	case timeutil.SameCalendarDay(t, now):
		return labelToday
	case timeutil.IsYesterday(t, now):
		return labelYesterday
	default:
		return t.In(now.Location()).Format(longDateLayout)
	}
}

// RelativeTimestamp renders t for an inbox row: the clock time when t is on
// the same calendar day as now, "Yesterday" for exactly one day earlier, a
// long-form date otherwise.
func RelativeTimestamp(t, now time.Time) string {
	switch {
	case timeutil.SameCalendarDay(t, now):
		return t.In(now.Location()).Format(clockLayout)
	case timeutil.IsYesterday(t, now):
		return labelYesterday
	default:
		return t.In(now.Location()).Format(longDateLayout)
	}
}
