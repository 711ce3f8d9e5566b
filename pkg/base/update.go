package base

import (
	"encoding/json"
	"math"
	"sort"
)

// Update operation kinds, named after their wire buckets.
const (
	OpSet       = "set"
	OpIncrement = "increment"
	OpAppend    = "append"
	OpPrepend   = "prepend"
	OpDelete    = "delete"
)

type number struct {
	i       int64
	f       float64
	isFloat bool
}

func (n number) add(o number) number {
	if !n.isFloat && !o.isFloat {
		sum := n.i + o.i
		// Same-sign operands with a sign change in the sum overflowed.
		if (n.i >= 0) == (o.i >= 0) && (sum >= 0) != (n.i >= 0) {
			return number{f: float64(n.i) + float64(o.i), isFloat: true}
		}
		return number{i: sum}
	}
	return number{f: n.float() + o.float(), isFloat: true}
}

func (n number) finite() bool {
	return !n.isFloat || (!math.IsNaN(n.f) && !math.IsInf(n.f, 0))
}

func (n number) float() float64 {
	if n.isFloat {
		return n.f
	}
	return float64(n.i)
}

func (n number) value() any {
	if n.isFloat {
		return n.f
	}
	return n.i
}

func toNumber(v any) (number, bool) {
	switch x := v.(type) {
	case int:
		return number{i: int64(x)}, true
	case int8:
		return number{i: int64(x)}, true
	case int16:
		return number{i: int64(x)}, true
	case int32:
		return number{i: int64(x)}, true
	case int64:
		return number{i: x}, true
	case uint:
		return fromUint(uint64(x)), true
	case uint8:
		return number{i: int64(x)}, true
	case uint16:
		return number{i: int64(x)}, true
	case uint32:
		return number{i: int64(x)}, true
	case uint64:
		return fromUint(x), true
	case float32:
		return number{f: float64(x), isFloat: true}, true
	case float64:
		return number{f: x, isFloat: true}, true
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return number{i: i}, true
		}
		if f, err := x.Float64(); err == nil {
			return number{f: f, isFloat: true}, true
		}
	}
	return number{}, false
}

func fromUint(u uint64) number {
	if u > math.MaxInt64 {
		return number{f: float64(u), isFloat: true}
	}
	return number{i: int64(u)}
}

type operation struct {
	kind   string
	value  any
	delta  number
	values []any
}

// Update accumulates mutations of one item, at most one per field path.
// A later operation on a path replaces the earlier one, except that
// increments add up, appends and prepends concatenate, and a deleted path
// rejects any further mutation.
type Update struct {
	ops map[string]*operation
}

// NewUpdate returns an empty update.
func NewUpdate() *Update {
	return &Update{ops: make(map[string]*operation)}
}

func (u *Update) prepare(field, kind string) (string, error) {
	p, err := ParsePath(field)
	if err != nil {
		return "", err
	}
	key := p.String()
	if u.ops == nil {
		u.ops = make(map[string]*operation)
	}
	if prev, ok := u.ops[key]; ok && prev.kind == OpDelete && kind != OpDelete {
		return "", &ConflictingOperationError{Path: key, Operation: kind}
	}
	return key, nil
}

// Set assigns value to the field. A nil value stores null without removing
// the field.
func (u *Update) Set(field string, value any) error {
	key, err := u.prepare(field, OpSet)
	if err != nil {
		return err
	}
	if err := encodable(value); err != nil {
		return &InvalidOperatorValueError{Path: key, Operator: OpSet, Reason: "value is not JSON encodable: " + err.Error()}
	}
	u.ops[key] = &operation{kind: OpSet, value: value}
	return nil
}

// Increment adds delta, an integer or float, to a numeric field. Increments
// of the same field are summed.
func (u *Update) Increment(field string, delta any) error {
	key, err := u.prepare(field, OpIncrement)
	if err != nil {
		return err
	}
	n, ok := toNumber(delta)
	if !ok {
		return &InvalidOperatorValueError{Path: key, Operator: OpIncrement, Reason: "delta must be an integer or float"}
	}
	if !n.finite() {
		return &InvalidOperatorValueError{Path: key, Operator: OpIncrement, Reason: "delta must be finite"}
	}
	if prev, ok := u.ops[key]; ok && prev.kind == OpIncrement {
		sum := prev.delta.add(n)
		if !sum.finite() {
			return &InvalidOperatorValueError{Path: key, Operator: OpIncrement, Reason: "summed delta overflows"}
		}
		prev.delta = sum
		return nil
	}
	u.ops[key] = &operation{kind: OpIncrement, delta: n}
	return nil
}

// Append adds values to the end of a list field.
func (u *Update) Append(field string, values ...any) error {
	return u.extend(field, OpAppend, values)
}

// Prepend adds values to the start of a list field.
func (u *Update) Prepend(field string, values ...any) error {
	return u.extend(field, OpPrepend, values)
}

func (u *Update) extend(field, kind string, values []any) error {
	key, err := u.prepare(field, kind)
	if err != nil {
		return err
	}
	if len(values) == 0 {
		return &InvalidOperatorValueError{Path: key, Operator: kind, Reason: "at least one value is required"}
	}
	if err := encodable(values); err != nil {
		return &InvalidOperatorValueError{Path: key, Operator: kind, Reason: "values are not JSON encodable: " + err.Error()}
	}
	if prev, ok := u.ops[key]; ok && prev.kind == kind {
		prev.values = append(prev.values, values...)
		return nil
	}
	u.ops[key] = &operation{kind: kind, values: append([]any(nil), values...)}
	return nil
}

// Delete removes the field, discarding any pending operation on it.
func (u *Update) Delete(field string) error {
	key, err := u.prepare(field, OpDelete)
	if err != nil {
		return err
	}
	u.ops[key] = &operation{kind: OpDelete}
	return nil
}

// Len returns the number of paths with a pending operation.
func (u *Update) Len() int {
	if u == nil {
		return 0
	}
	return len(u.ops)
}

// Empty reports whether the update carries no operation.
func (u *Update) Empty() bool {
	return u.Len() == 0
}

// UpdateBody is the wire form of an update, grouped by operation kind.
type UpdateBody struct {
	Set       map[string]any   `json:"set,omitempty"`
	Increment map[string]any   `json:"increment,omitempty"`
	Append    map[string][]any `json:"append,omitempty"`
	Prepend   map[string][]any `json:"prepend,omitempty"`
	Delete    []string         `json:"delete,omitempty"`
}

// Serialize returns the wire body. Buckets without operations are left nil so
// they are omitted from the JSON encoding; deleted paths are sorted.
func (u *Update) Serialize() UpdateBody {
	var body UpdateBody
	if u == nil {
		return body
	}
	for path, op := range u.ops {
		switch op.kind {
		case OpSet:
			if body.Set == nil {
				body.Set = make(map[string]any)
			}
			body.Set[path] = op.value
		case OpIncrement:
			if body.Increment == nil {
				body.Increment = make(map[string]any)
			}
			body.Increment[path] = op.delta.value()
		case OpAppend:
			if body.Append == nil {
				body.Append = make(map[string][]any)
			}
			body.Append[path] = append([]any(nil), op.values...)
		case OpPrepend:
			if body.Prepend == nil {
				body.Prepend = make(map[string][]any)
			}
			body.Prepend[path] = append([]any(nil), op.values...)
		case OpDelete:
			body.Delete = append(body.Delete, path)
		}
	}
	sort.Strings(body.Delete)
	return body
}

// clone copies the update so options can extend it without touching the
// caller's value.
func (u *Update) clone() *Update {
	out := NewUpdate()
	if u == nil {
		return out
	}
	for k, op := range u.ops {
		cp := *op
		cp.values = append([]any(nil), op.values...)
		out.ops[k] = &cp
	}
	return out
}
