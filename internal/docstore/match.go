package docstore

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// apply filters, orders and limits docs in memory. Every backend funnels
// through it so query semantics do not depend on the backend.
func apply(docs []Document, q Query) ([]Document, error) {
	filters := make([]Filter, len(q.Filters))
	for i, f := range q.Filters {
		v, err := normalizeValue(f.Value)
		if err != nil {
			return nil, err
		}
		filters[i] = Filter{Field: f.Field, Op: f.Op, Value: v}
	}

	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if matches(d, filters) {
			out = append(out, d)
		}
	}

	if len(q.OrderBy) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			for _, o := range q.OrderBy {
				c := compareValues(out[i].Data[o.Field], out[j].Data[o.Field])
				if c == 0 {
					continue
				}
				if o.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func matches(d Document, filters []Filter) bool {
	for _, f := range filters {
		v, ok := d.Data[f.Field]
		if !ok {
			return false
		}
		if f.Op == OpEq {
			if !equalValues(v, f.Value) {
				return false
			}
			continue
		}
		if !sameKind(v, f.Value) {
			return false
		}
		c := compareValues(v, f.Value)
		switch f.Op {
		case OpLt:
			if c >= 0 {
				return false
			}
		case OpLte:
			if c > 0 {
				return false
			}
		case OpGt:
			if c <= 0 {
				return false
			}
		case OpGte:
			if c < 0 {
				return false
			}
		}
	}
	return true
}

// normalizeValue gives a filter value the stored representation.
func normalizeValue(v any) (any, error) {
	if _, ok := v.(serverTimestamp); ok {
		return nil, ErrInvalidFilter
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func equalValues(a, b any) bool {
	if sameKind(a, b) {
		return compareValues(a, b) == 0
	}
	ab, _ := json.Marshal(a)
	bb, _ := json.Marshal(b)
	return string(ab) == string(bb)
}

func sameKind(a, b any) bool {
	switch a.(type) {
	case float64:
		_, ok := b.(float64)
		return ok
	case string:
		_, ok := b.(string)
		return ok
	case bool:
		_, ok := b.(bool)
		return ok
	}
	return false
}

// compareValues orders scalars. Strings that both parse as RFC 3339 compare
// as instants. Values of different types order by type rank (nil first).
func compareValues(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra - rb
	}
	switch av := a.(type) {
	case float64:
		bv := b.(float64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case string:
		bv := b.(string)
		if ta, ok := parseTime(av); ok {
			if tb, ok := parseTime(bv); ok {
				return ta.Compare(tb)
			}
		}
		return strings.Compare(av, bv)
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		}
		return 1
	}
	return 0
}

func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	}
	return 4
}

func parseTime(s string) (time.Time, bool) {
	if len(s) < len("2006-01-02T15:04:05Z") || s[4] != '-' || s[10] != 'T' {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	return t, err == nil
}
