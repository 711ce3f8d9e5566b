package base

import (
	"bytes"
	"reflect"
	"slices"
	"sort"
	"strings"

	"github.com/basekit/base_sdk_go/internal/baseapi"
)

// Operator is a comparison applied to a field in a query.
type Operator string

// Supported query operators.
const (
	OpEqual          Operator = "eq"
	OpNotEqual       Operator = "ne"
	OpLess           Operator = "lt"
	OpGreater        Operator = "gt"
	OpLessOrEqual    Operator = "lte"
	OpGreaterOrEqual Operator = "gte"
	OpPrefix         Operator = "prefix"
	OpRange          Operator = "range"
	OpContains       Operator = "contains"
	OpNotContains    Operator = "not_contains"
)

// wire suffixes, appended to the field path after "?"
var operatorSuffix = map[Operator]string{
	OpEqual:          "",
	OpNotEqual:       "ne",
	OpLess:           "lt",
	OpGreater:        "gt",
	OpLessOrEqual:    "lte",
	OpGreaterOrEqual: "gte",
	OpPrefix:         "pfx",
	OpRange:          "r",
	OpContains:       "contains",
	OpNotContains:    "not_contains",
}

// Suffix returns the wire suffix of the operator ("" for equality).
func (op Operator) Suffix() string {
	return operatorSuffix[op]
}

// Valid reports whether op is a known operator.
func (op Operator) Valid() bool {
	_, ok := operatorSuffix[op]
	return ok
}

// ParseOperator maps a wire suffix back to its operator.
func ParseOperator(suffix string) (Operator, bool) {
	for op, s := range operatorSuffix {
		if s == suffix {
			return op, true
		}
	}
	return "", false
}

func constraintKey(path string, op Operator) string {
	if s := op.Suffix(); s != "" {
		return path + operatorMarker + s
	}
	return path
}

// Constraint is a single field comparison.
type Constraint struct {
	Path     Path
	Operator Operator
	Value    any

	field string
	err   error
}

// Where builds a constraint on a dotted field path. Problems with the path are
// reported when the constraint is added to an expression.
func Where(field string, op Operator, value any) Constraint {
	p, err := ParsePath(field)
	return Constraint{Path: p, Operator: op, Value: value, field: field, err: err}
}

// Key returns the wire key "<path>?<suffix>".
func (c Constraint) Key() string {
	return constraintKey(c.Path.String(), c.Operator)
}

func (c Constraint) validate() (Constraint, error) {
	if c.err != nil {
		return c, c.err
	}
	if c.Path.IsZero() {
		return c, &InvalidPathError{Path: c.field, Reason: "path has no segments"}
	}
	path := c.Path.String()
	if !c.Operator.Valid() {
		return c, &InvalidOperatorValueError{Path: path, Operator: string(c.Operator), Reason: "unknown operator"}
	}

	switch c.Operator {
	case OpRange:
		bounds, ok := asPair(c.Value)
		if !ok {
			return c, &InvalidOperatorValueError{Path: path, Operator: string(c.Operator), Reason: "range needs exactly two bounds [low, high]"}
		}
		c.Value = bounds
	case OpPrefix:
		if _, ok := c.Value.(string); !ok {
			return c, &InvalidOperatorValueError{Path: path, Operator: string(c.Operator), Reason: "prefix must be a string"}
		}
	}
	if err := encodable(c.Value); err != nil {
		return c, &InvalidOperatorValueError{Path: path, Operator: string(c.Operator), Reason: "value is not JSON encodable: " + err.Error()}
	}
	return c, nil
}

func asPair(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Len() != 2 {
		return nil, false
	}
	return []any{rv.Index(0).Interface(), rv.Index(1).Interface()}, true
}

func compareConstraints(a, b Constraint) int {
	if c := slices.Compare(a.Path.segments, b.Path.segments); c != 0 {
		return c
	}
	return strings.Compare(a.Operator.Suffix(), b.Operator.Suffix())
}

// Expression is one conjunctive clause: all of its constraints must hold.
// Constraints are kept sorted by (path, operator) so the order they are
// added in does not affect the encoding.
type Expression struct {
	constraints []Constraint
}

// NewExpression builds an expression from constraints, validating each.
func NewExpression(constraints ...Constraint) (*Expression, error) {
	e := &Expression{}
	for _, c := range constraints {
		if err := e.add(c); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// MustExpression is like NewExpression but panics on error.
func MustExpression(constraints ...Constraint) *Expression {
	e, err := NewExpression(constraints...)
	if err != nil {
		panic(err)
	}
	return e
}

// ParseExpression builds an expression from the wire form, e.g.
// {"age?gt": 18, "name": "John"}.
func ParseExpression(raw map[string]any) (*Expression, error) {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	e := &Expression{}
	for _, k := range keys {
		field, op := k, OpEqual
		if i := strings.LastIndex(k, operatorMarker); i >= 0 {
			field = k[:i]
			parsed, ok := ParseOperator(k[i+1:])
			if !ok || parsed == OpEqual {
				return nil, &InvalidOperatorValueError{Path: field, Operator: k[i+1:], Reason: "unknown operator"}
			}
			op = parsed
		}
		if err := e.add(Where(field, op, raw[k])); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Add appends a constraint to the expression.
func (e *Expression) Add(field string, op Operator, value any) error {
	return e.add(Where(field, op, value))
}

func (e *Expression) add(c Constraint) error {
	c, err := c.validate()
	if err != nil {
		return err
	}
	i, found := slices.BinarySearchFunc(e.constraints, c, compareConstraints)
	if found {
		return &DuplicateConstraintError{Path: c.Path.String(), Operator: c.Operator}
	}
	e.constraints = slices.Insert(e.constraints, i, c)
	return nil
}

// Constraints returns the constraints in encoding order.
func (e *Expression) Constraints() []Constraint {
	if e == nil {
		return nil
	}
	return slices.Clone(e.constraints)
}

// Len returns the number of constraints.
func (e *Expression) Len() int {
	if e == nil {
		return 0
	}
	return len(e.constraints)
}

// Clause encodes the expression as a wire object.
func (e *Expression) Clause() Clause {
	if e == nil {
		return Clause{}
	}
	entries := make([]clauseEntry, 0, len(e.constraints))
	for _, c := range e.constraints {
		entries = append(entries, clauseEntry{key: c.Key(), value: c.Value})
	}
	return Clause{entries: entries}
}

// Query is a disjunction of expressions; an empty query matches every item.
type Query []*Expression

// Or combines expressions into a query.
func Or(exprs ...*Expression) Query {
	return Query(exprs)
}

// ParseQuery builds a query from its wire form.
func ParseQuery(raw []map[string]any) (Query, error) {
	q := make(Query, 0, len(raw))
	for _, r := range raw {
		e, err := ParseExpression(r)
		if err != nil {
			return nil, err
		}
		q = append(q, e)
	}
	return q, nil
}

// Encode returns one clause per expression, in query order. A nil expression
// encodes as an empty clause.
func (q Query) Encode() []Clause {
	out := make([]Clause, 0, len(q))
	for _, e := range q {
		out = append(out, e.Clause())
	}
	return out
}

// Clause is an encoded expression: an ordered JSON object mapping
// "<path>?<suffix>" to the comparison value.
type Clause struct {
	entries []clauseEntry
}

type clauseEntry struct {
	key   string
	value any
}

// Keys returns the wire keys in emission order.
func (c Clause) Keys() []string {
	keys := make([]string, 0, len(c.entries))
	for _, e := range c.entries {
		keys = append(keys, e.key)
	}
	return keys
}

// Map returns the clause as a plain map.
func (c Clause) Map() map[string]any {
	m := make(map[string]any, len(c.entries))
	for _, e := range c.entries {
		m[e.key] = e.value
	}
	return m
}

// MarshalJSON emits the entries in their sorted order.
func (c Clause) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range c.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := baseapi.Marshal(e.key)
		if err != nil {
			return nil, err
		}
		v, err := baseapi.Marshal(e.value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
