package emulator

import (
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

type updateRequest struct {
	Set       map[string]any   `json:"set"`
	Increment map[string]any   `json:"increment"`
	Append    map[string][]any `json:"append"`
	Prepend   map[string][]any `json:"prepend"`
	Delete    []string         `json:"delete"`
}

func (s *Store) update(key string, body []byte) (int, any) {
	var req updateRequest
	if err := decodeBody(body, &req); err != nil {
		return failure(http.StatusBadRequest, err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.lookup(key)
	if !ok {
		return failure(http.StatusNotFound, "key not found")
	}
	next := deepCopy(cur)
	if err := req.apply(next); err != nil {
		return failure(http.StatusBadRequest, err.Error())
	}
	s.items.Set(key, next)

	echo := map[string]any{keyField: key}
	if req.Set != nil {
		echo["set"] = req.Set
	}
	if req.Increment != nil {
		echo["increment"] = req.Increment
	}
	if req.Append != nil {
		echo["append"] = req.Append
	}
	if req.Prepend != nil {
		echo["prepend"] = req.Prepend
	}
	if req.Delete != nil {
		echo["delete"] = req.Delete
	}
	return http.StatusOK, echo
}

// apply mutates it in place: set, increment, append, prepend, then delete.
func (req *updateRequest) apply(it map[string]any) error {
	for path, v := range req.Set {
		parent, leaf, err := walk(it, path, true)
		if err != nil {
			return err
		}
		parent[leaf] = copyValue(v)
	}
	for path, v := range req.Increment {
		delta, ok := asFloat(v)
		if !ok {
			return errors.Errorf("increment of %q must be a number", path)
		}
		parent, leaf, err := walk(it, path, true)
		if err != nil {
			return err
		}
		cur := 0.0
		if existing, present := parent[leaf]; present && existing != nil {
			if cur, ok = asFloat(existing); !ok {
				return errors.Errorf("cannot increment %q: not a number", path)
			}
		}
		parent[leaf] = cur + delta
	}
	for path, vs := range req.Append {
		if err := extend(it, path, vs, false); err != nil {
			return err
		}
	}
	for path, vs := range req.Prepend {
		if err := extend(it, path, vs, true); err != nil {
			return err
		}
	}
	for _, path := range req.Delete {
		parent, leaf, err := walk(it, path, false)
		if err != nil {
			return err
		}
		if parent != nil {
			delete(parent, leaf)
		}
	}
	return nil
}

func extend(it map[string]any, path string, vs []any, front bool) error {
	parent, leaf, err := walk(it, path, true)
	if err != nil {
		return err
	}
	var list []any
	if existing, present := parent[leaf]; present && existing != nil {
		l, ok := existing.([]any)
		if !ok {
			return errors.Errorf("cannot extend %q: not a list", path)
		}
		list = l
	}
	add := make([]any, len(vs))
	for i, v := range vs {
		add[i] = copyValue(v)
	}
	if front {
		parent[leaf] = append(add, list...)
	} else {
		parent[leaf] = append(list, add...)
	}
	return nil
}

// walk returns the map holding the last segment of path. With create set,
// missing intermediate objects are created; otherwise a missing
// intermediate yields a nil parent.
func walk(it map[string]any, path string, create bool) (map[string]any, string, error) {
	segs := strings.Split(path, ".")
	for _, seg := range segs {
		if seg == "" {
			return nil, "", errors.Errorf("invalid path %q", path)
		}
	}
	if segs[0] == keyField {
		return nil, "", errors.New("the key of an item cannot be updated")
	}
	cur := it
	for _, seg := range segs[:len(segs)-1] {
		next, present := cur[seg]
		if !present || next == nil {
			if !create {
				return nil, "", nil
			}
			m := make(map[string]any)
			cur[seg] = m
			cur = m
			continue
		}
		m, ok := next.(map[string]any)
		if !ok {
			return nil, "", errors.Errorf("cannot descend into %q: not an object", seg)
		}
		cur = m
	}
	return cur, segs[len(segs)-1], nil
}
