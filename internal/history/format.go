// SPDX-License-Identifier: Apache-2.0

// Package history fetches, formats, watches and caches the user's activity.
package history

import (
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// UnknownTime is shown for missing or unparsable timestamps
const UnknownTime = "Unknown time"

// floor-based steps, singular forms spelled out
var relMagnitudes = []humanize.RelTimeMagnitude{
	{D: time.Minute, Format: "Just now", DivBy: 1},
	{D: 2 * time.Minute, Format: "1 minute %s", DivBy: 1},
	{D: time.Hour, Format: "%d minutes %s", DivBy: time.Minute},
	{D: 2 * time.Hour, Format: "1 hour %s", DivBy: 1},
	{D: humanize.Day, Format: "%d hours %s", DivBy: time.Hour},
	{D: 2 * humanize.Day, Format: "1 day %s", DivBy: 1},
	{D: time.Duration(math.MaxInt64), Format: "%d days %s", DivBy: humanize.Day},
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// ParseTimestamp reads the backend's timestamps. Values without a zone are UTC.
func ParseTimestamp(ts string) (time.Time, bool) {
	ts = strings.TrimSpace(ts)
	if ts == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, ts); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// RelativeTime renders ts as "Just now", "N minutes ago", "N hours ago" or
// "N days ago" relative to now. Future times read "Just now".
func RelativeTime(ts string, now time.Time) string {
	t, ok := ParseTimestamp(ts)
	if !ok {
		return UnknownTime
	}
	if t.After(now) {
		return "Just now"
	}
	return humanize.CustomRelTime(t, now, "ago", "from now", relMagnitudes)
}

// Class groups operation statuses for display
type Class string

const (
	ClassSuccess Class = "success"
	ClassFailure Class = "failure"
	ClassPending Class = "pending"
	ClassNeutral Class = "neutral"
)

// StatusClass classifies a status case-insensitively
func StatusClass(status string) Class {
	switch strings.ToLower(status) {
	case "success":
		return ClassSuccess
	case "failed", "error":
		return ClassFailure
	case "pending", "running":
		return ClassPending
	default:
		return ClassNeutral
	}
}

// StatusMark is the symbol shown before a status; only the three canonical
// statuses have one
func StatusMark(status string) string {
	switch status {
	case "success":
		return "✓"
	case "failed":
		return "✕"
	case "pending":
		return "○"
	}
	return ""
}

// OperationIcon returns the icon of an operation type
func OperationIcon(kind string) string {
	switch kind {
	case "connection":
		return "🔗"
	case "ci":
		return "⚡"
	case "cd":
		return "🚀"
	default:
		return "📝"
	}
}

// HasWorkflow reports whether an operation carries a viewable workflow file
func HasWorkflow(kind, content string) bool {
	return (kind == "ci" || kind == "cd") && content != ""
}

// Plural formats a count with its noun, adding "s" unless n is 1
func Plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return humanize.Comma(int64(n)) + " " + noun + "s"
}
