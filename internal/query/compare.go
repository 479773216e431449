package query

import (
	"math"
	"strconv"
	"strings"

	"github.com/isdelr/practice-server/internal/models"
	"github.com/isdelr/practice-server/internal/store"
)

// toNumber converts a JSON value the way JavaScript's Number() would.
// The second result is false when the value is NaN.
func toNumber(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, !math.IsNaN(t)
	case int:
		return float64(t), true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, !math.IsNaN(f)
	default:
		return 0, false
	}
}

// looseEqual implements the == comparison used by the where "=" operator:
// numbers and numeric strings compare by value, booleans coerce to numbers.
func looseEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if store.StrictEqual(a, b) {
		return true
	}

	_, aObj := models.AsRecord(a)
	_, bObj := models.AsRecord(b)
	_, aArr := a.([]interface{})
	_, bArr := b.([]interface{})
	if aObj || bObj || aArr || bArr {
		return false
	}

	_, aStr := a.(string)
	_, bStr := b.(string)
	if aStr && bStr {
		return false
	}

	an, aok := toNumber(a)
	bn, bok := toNumber(b)
	return aok && bok && an == bn
}

// relational compares two values for <, <=, >, >=. Two strings compare
// lexically; anything else compares numerically. ok is false when the
// values are not comparable, which makes every relational test fail.
func relational(a, b interface{}) (cmp int, ok bool) {
	as, aStr := a.(string)
	bs, bStr := b.(string)
	if aStr && bStr {
		return strings.Compare(as, bs), true
	}
	if a == nil || b == nil {
		return 0, false
	}
	an, aok := toNumber(a)
	bn, bok := toNumber(b)
	if !aok || !bok {
		return 0, false
	}
	switch {
	case an < bn:
		return -1, true
	case an > bn:
		return 1, true
	default:
		return 0, true
	}
}

// stringify renders a value for distinct keys and string sorting.
func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case []interface{}:
		parts := make([]string, len(t))
		for i, inner := range t {
			parts[i] = stringify(inner)
		}
		return strings.Join(parts, ",")
	default:
		return "[object Object]"
	}
}

// sliceBounds resolves JavaScript Array.prototype.slice arguments against a
// list of length n.
func sliceBounds(n int, start float64, end float64) (int, int) {
	resolve := func(x float64) int {
		if math.IsNaN(x) {
			return 0
		}
		x = math.Trunc(x)
		if x < 0 {
			x += float64(n)
			if x < 0 {
				x = 0
			}
		}
		if x > float64(n) {
			x = float64(n)
		}
		return int(x)
	}
	from, to := resolve(start), resolve(end)
	if to < from {
		to = from
	}
	return from, to
}
