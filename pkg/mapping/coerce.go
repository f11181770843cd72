package mapping

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Path walks nested objects. Every hop must be an object; a scalar where an
// object is expected ends the walk with ok == false.
func Path(item map[string]any, parts ...string) (any, bool) {
	if len(parts) == 0 || item == nil {
		return nil, false
	}
	cur := item
	for i, p := range parts {
		v, ok := cur[p]
		if !ok || v == nil {
			return nil, false
		}
		if i == len(parts)-1 {
			return v, true
		}
		next, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return nil, false
}

// Lookup resolves a dotted key ("baseToken.symbol") against item.
func Lookup(item map[string]any, key string) (any, bool) {
	return Path(item, strings.Split(key, ".")...)
}

// String coerces scalars to string. Objects and lists are rejected.
func String(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case bool:
		return strconv.FormatBool(t), true
	}
	return "", false
}

// Float coerces numbers and numeric strings ("$1,234.5", "8.5%") to float64.
func Float(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		s := strings.TrimSpace(t)
		s = strings.TrimPrefix(s, "$")
		s = strings.TrimSuffix(s, "%")
		s = strings.ReplaceAll(s, ",", "")
		if s == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Int coerces numbers and numeric strings to int64, truncating fractions.
func Int(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int64:
		return t, true
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, true
		}
	}
	f, ok := Float(v)
	if !ok || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	time.RFC1123Z,
	time.RFC1123,
	time.RubyDate,
	"2006-01-02",
}

// Time coerces timestamps: time.Time, the layouts above, and unix seconds
// or milliseconds (numbers or numeric strings). Results are UTC.
func Time(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), !t.IsZero()
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), true
			}
		}
	}
	f, ok := Float(v)
	if !ok || f <= 0 {
		return time.Time{}, false
	}
	return unixTime(f), true
}

// unixTime treats values past 1e12 as milliseconds.
func unixTime(f float64) time.Time {
	if f > 1e12 {
		return time.UnixMilli(int64(f)).UTC()
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}
