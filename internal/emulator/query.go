package emulator

import (
	"encoding/json"
	"net/http"
	"reflect"
	"strings"

	"github.com/pkg/errors"

	"github.com/basekit/base_sdk_go/internal/baseapi"
)

type predicate struct {
	path  []string
	op    string
	value any
}

type clause []predicate

type queryRequest struct {
	Query []map[string]any `json:"query"`
	Limit int              `json:"limit"`
	Last  string           `json:"last"`
}

func (s *Store) query(body []byte) (int, any) {
	var req queryRequest
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			return failure(http.StatusBadRequest, "malformed query: "+err.Error())
		}
	}
	clauses, err := compile(req.Query)
	if err != nil {
		return failure(http.StatusBadRequest, err.Error())
	}
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeExpired()

	items := make([]map[string]any, 0)
	more := false
	s.items.Ascend(req.Last, func(key string, it map[string]any) bool {
		if req.Last != "" && key == req.Last {
			return true
		}
		if !matchAny(clauses, it) {
			return true
		}
		if len(items) == limit {
			more = true
			return false
		}
		items = append(items, deepCopy(it))
		return true
	})

	paging := &baseapi.Paging{Size: len(items)}
	if more {
		last := items[len(items)-1][keyField].(string)
		paging.Last = &last
	}
	return http.StatusOK, baseapi.QueryResponse{Items: items, Paging: paging}
}

// compile parses wire clauses of the form {"path?op": value}.
func compile(raw []map[string]any) ([]clause, error) {
	out := make([]clause, 0, len(raw))
	for _, rc := range raw {
		c := make(clause, 0, len(rc))
		for k, v := range rc {
			p, err := parsePredicate(k, v)
			if err != nil {
				return nil, err
			}
			c = append(c, p)
		}
		out = append(out, c)
	}
	return out, nil
}

func parsePredicate(k string, v any) (predicate, error) {
	field, op := k, ""
	if i := strings.LastIndex(k, "?"); i >= 0 {
		field, op = k[:i], k[i+1:]
	}
	if field == "" {
		return predicate{}, errors.Errorf("invalid query key %q", k)
	}
	switch op {
	case "", "ne", "lt", "gt", "lte", "gte", "contains", "not_contains":
	case "pfx":
		if _, ok := v.(string); !ok {
			return predicate{}, errors.Errorf("%q needs a string value", k)
		}
	case "r":
		pair, ok := v.([]any)
		if !ok || len(pair) != 2 {
			return predicate{}, errors.Errorf("%q needs a [lower, upper] value", k)
		}
	default:
		return predicate{}, errors.Errorf("unknown operator in %q", k)
	}
	return predicate{path: strings.Split(field, "."), op: op, value: v}, nil
}

// matchAny reports whether the item satisfies at least one clause. No
// clauses match everything.
func matchAny(clauses []clause, it map[string]any) bool {
	if len(clauses) == 0 {
		return true
	}
	for _, c := range clauses {
		if matchAll(c, it) {
			return true
		}
	}
	return false
}

func matchAll(c clause, it map[string]any) bool {
	for _, p := range c {
		if !p.match(it) {
			return false
		}
	}
	return true
}

func (p predicate) match(it map[string]any) bool {
	v, ok := resolve(it, p.path)
	if !ok {
		return p.op == "ne" || p.op == "not_contains"
	}
	switch p.op {
	case "":
		return equal(v, p.value)
	case "ne":
		return !equal(v, p.value)
	case "lt":
		c, ok := compare(v, p.value)
		return ok && c < 0
	case "gt":
		c, ok := compare(v, p.value)
		return ok && c > 0
	case "lte":
		c, ok := compare(v, p.value)
		return ok && c <= 0
	case "gte":
		c, ok := compare(v, p.value)
		return ok && c >= 0
	case "pfx":
		s, ok := v.(string)
		return ok && strings.HasPrefix(s, p.value.(string))
	case "r":
		pair := p.value.([]any)
		lo, ok1 := compare(v, pair[0])
		hi, ok2 := compare(v, pair[1])
		return ok1 && ok2 && lo >= 0 && hi <= 0
	case "contains":
		return contains(v, p.value)
	case "not_contains":
		return !contains(v, p.value)
	}
	return false
}

func resolve(it map[string]any, path []string) (any, bool) {
	var cur any = it
	for _, seg := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[seg]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func equal(a, b any) bool {
	if x, ok := asFloat(a); ok {
		y, ok := asFloat(b)
		return ok && x == y
	}
	return reflect.DeepEqual(a, b)
}

// compare orders two numbers or two strings.
func compare(a, b any) (int, bool) {
	if x, ok := asFloat(a); ok {
		y, ok := asFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	}
	x, ok1 := a.(string)
	y, ok2 := b.(string)
	if !ok1 || !ok2 {
		return 0, false
	}
	return strings.Compare(x, y), true
}

func contains(v, needle any) bool {
	switch x := v.(type) {
	case string:
		s, ok := needle.(string)
		return ok && strings.Contains(x, s)
	case []any:
		for _, e := range x {
			if equal(e, needle) {
				return true
			}
		}
	}
	return false
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	return 0, false
}
