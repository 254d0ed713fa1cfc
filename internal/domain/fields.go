package domain

import (
	"math"
	"strings"
	"time"
)

// Helpers for reading loosely typed document data. Stores hand back numbers as
// int64 (Firestore), float64 (JSON) or int (in-memory), and timestamps either as
// time.Time or as ISO strings.

func StringValue(data map[string]any, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func OptionalString(data map[string]any, key string) *string {
	if v, ok := data[key].(string); ok {
		return &v
	}
	return nil
}

func OptionalBool(data map[string]any, key string) *bool {
	if v, ok := data[key].(bool); ok {
		return &v
	}
	return nil
}

// NumberValue returns the numeric value stored under key.
func NumberValue(data map[string]any, key string) (float64, bool) {
	switch v := data[key].(type) {
	case float64:
		return v, !math.IsNaN(v) && !math.IsInf(v, 0)
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	}
	return 0, false
}

// TimestampValue renders a stored timestamp as an RFC 3339 string.
func TimestampValue(data map[string]any, key string) string {
	switch v := data[key].(type) {
	case string:
		return v
	case time.Time:
		return FormatTimestamp(v)
	case *time.Time:
		if v != nil {
			return FormatTimestamp(*v)
		}
	}
	return ""
}

// StringSlice returns the string elements of a stored array, skipping anything else.
func StringSlice(data map[string]any, key string) []string {
	switch v := data[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// FormatTimestamp uses the millisecond ISO layout the console has always written.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// DateOnly trims an ISO timestamp to its calendar date.
func DateOnly(value string) string {
	if idx := strings.Index(value, "T"); idx >= 0 {
		return value[:idx]
	}
	return value
}

func Ptr[T any](v T) *T {
	return &v
}
