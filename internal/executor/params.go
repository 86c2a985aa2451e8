// internal/executor/params.go
package executor

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"insight-engine/internal/catalog"
)

// Canonicalize resolves the final parameter map for an entry: user values
// are coerced to the declared types, unknown keys are dropped (returned so
// the caller can warn), defaults fill the gaps and dates are normalized to
// ISO-8601. The result is what gets bound AND what keys the cache, so two
// logically-equal inputs always canonicalize identically.
func Canonicalize(entry *catalog.Entry, user map[string]interface{}, now time.Time) (map[string]interface{}, []string, error) {
	params := make(map[string]interface{}, len(entry.Params))
	var dropped []string

	for key := range user {
		if entry.Param(key) == nil {
			dropped = append(dropped, key)
		}
	}
	sort.Strings(dropped)

	for _, spec := range entry.Params {
		raw, ok := user[spec.Name]
		if ok && raw != nil {
			v, err := coerce(spec.Type, raw)
			if err != nil {
				return nil, dropped, fmt.Errorf("parameter %q: %w", spec.Name, err)
			}
			if len(spec.Allowed) > 0 {
				if s, isStr := v.(string); isStr && !contains(spec.Allowed, s) {
					return nil, dropped, fmt.Errorf("parameter %q: value %q not allowed", spec.Name, s)
				}
			}
			params[spec.Name] = v
			continue
		}
		if spec.DefaultFn != nil {
			params[spec.Name] = spec.DefaultFn(now)
			continue
		}
		if spec.Default != nil {
			params[spec.Name] = spec.Default
			continue
		}
		if spec.Required {
			return nil, dropped, fmt.Errorf("missing required parameter %q", spec.Name)
		}
	}

	return params, dropped, nil
}

// CacheKey builds the deterministic cache key for (query id, canonical
// params). Keys are sorted so map iteration order never leaks into the key.
func CacheKey(queryID string, params map[string]interface{}) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(queryID)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(formatValue(params[k]))
	}
	return b.String()
}

// BindArgs orders the canonical params per the entry's bind order.
func BindArgs(entry *catalog.Entry, params map[string]interface{}) ([]interface{}, error) {
	args := make([]interface{}, 0, len(entry.BindOrder))
	for _, name := range entry.BindOrder {
		v, ok := params[name]
		if !ok {
			return nil, fmt.Errorf("parameter %q required for binding but absent", name)
		}
		args = append(args, v)
	}
	return args, nil
}

func coerce(paramType string, raw interface{}) (interface{}, error) {
	switch paramType {
	case catalog.ParamString:
		switch v := raw.(type) {
		case string:
			return v, nil
		default:
			return nil, fmt.Errorf("expected string, got %T", raw)
		}
	case catalog.ParamInteger:
		switch v := raw.(type) {
		case int:
			return v, nil
		case int64:
			return int(v), nil
		case float64:
			if v != float64(int(v)) {
				return nil, fmt.Errorf("expected integer, got fraction %v", v)
			}
			return int(v), nil
		case string:
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("expected integer, got %q", v)
			}
			return n, nil
		default:
			return nil, fmt.Errorf("expected integer, got %T", raw)
		}
	case catalog.ParamDate:
		switch v := raw.(type) {
		case time.Time:
			return v.Format("2006-01-02"), nil
		case string:
			return normalizeDate(v)
		default:
			return nil, fmt.Errorf("expected date, got %T", raw)
		}
	default:
		return nil, fmt.Errorf("unknown parameter type %q", paramType)
	}
}

func normalizeDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05", "02/01/2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	return "", fmt.Errorf("unparseable date %q", s)
}

func formatValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
