package mapping

import (
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"
)

// fields reads destination columns out of one raw item. For each column the
// candidate keys are tried in order and the first value that coerces wins.
// A column whose candidates are present but all malformed falls back to its
// default and is logged; absent columns fall back silently.
type fields struct {
	item map[string]any
	log  *zap.Logger
}

func (f fields) lookup(col string, keys []string, coerce func(any) bool) bool {
	present := false
	for _, key := range keys {
		v, ok := Lookup(f.item, key)
		if !ok {
			continue
		}
		present = true
		if coerce(v) {
			return true
		}
	}
	if present {
		f.log.Debug("malformed value, using default",
			zap.String("column", col),
			zap.Strings("keys", keys))
	}
	return false
}

func (f fields) str(col string, keys ...string) string {
	var out string
	f.lookup(col, keys, func(v any) bool {
		s, ok := String(v)
		s = strings.TrimSpace(s)
		if !ok || s == "" {
			return false
		}
		out = s
		return true
	})
	return out
}

// strOr is str with a non-empty default.
func (f fields) strOr(def, col string, keys ...string) string {
	if s := f.str(col, keys...); s != "" {
		return s
	}
	return def
}

func (f fields) float(col string, keys ...string) float64 {
	var out float64
	f.lookup(col, keys, func(v any) bool {
		n, ok := Float(v)
		out = n
		return ok
	})
	return out
}

func (f fields) int(col string, keys ...string) int64 {
	var out int64
	f.lookup(col, keys, func(v any) bool {
		n, ok := Int(v)
		out = n
		return ok
	})
	return out
}

// time returns def when no candidate parses.
func (f fields) time(def time.Time, col string, keys ...string) time.Time {
	out := def
	f.lookup(col, keys, func(v any) bool {
		ts, ok := Time(v)
		if ok {
			out = ts
		}
		return ok
	})
	return out
}

// optTime returns nil when no candidate parses.
func (f fields) optTime(col string, keys ...string) *time.Time {
	var out *time.Time
	f.lookup(col, keys, func(v any) bool {
		ts, ok := Time(v)
		if ok {
			out = &ts
		}
		return ok
	})
	return out
}

// raw encodes the untouched item for the raw_data column.
func (f fields) raw() string {
	b, err := json.Marshal(f.item)
	if err != nil {
		f.log.Warn("encode raw item", zap.Error(err))
		return "{}"
	}
	return string(b)
}
