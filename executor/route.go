package executor

import (
	"fmt"
	"strings"

	"flowforge/compile"
	"flowforge/item"
)

// matches evaluates a route condition against an item payload. A nil
// condition is the default route and always matches.
func matches(cond *compile.Condition, in *item.Item) bool {
	if cond == nil {
		return true
	}

	value, ok := lookupField(in.Payload, cond.Field)

	switch cond.Op {
	case "exists":
		return ok
	case "eq":
		return ok && equal(value, cond.Value)
	case "neq":
		return ok && !equal(value, cond.Value)
	case "contains":
		if !ok {
			return false
		}
		s, sok := value.(string)
		sub, subok := cond.Value.(string)
		return sok && subok && strings.Contains(s, sub)
	case "gt", "gte", "lt", "lte":
		if !ok {
			return false
		}
		left, lok := asFloat(value)
		right, rok := asFloat(cond.Value)
		if !lok || !rok {
			return false
		}
		switch cond.Op {
		case "gt":
			return left > right
		case "gte":
			return left >= right
		case "lt":
			return left < right
		default:
			return left <= right
		}
	default:
		return false
	}
}

// lookupField resolves a dotted path against the payload, descending into
// nested objects.
func lookupField(payload *item.Payload, field string) (any, bool) {
	if payload == nil {
		return nil, false
	}

	parts := strings.Split(field, ".")

	value, ok := payload.Get(parts[0])
	if !ok {
		return nil, false
	}

	for _, part := range parts[1:] {
		nested, nok := value.(map[string]any)
		if !nok {
			return nil, false
		}
		value, ok = nested[part]
		if !ok {
			return nil, false
		}
	}

	return value, true
}

func equal(a, b any) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
		return false
	}

	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// asFloat coerces the numeric types JSON decoding and handler code produce
// into a comparable float64.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	default:
		return 0, false
	}
}
