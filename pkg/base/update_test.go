package base

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIncrementsAreSummed(t *testing.T) {
	u := NewUpdate()
	require.NoError(t, u.Increment("views", 2))
	require.NoError(t, u.Increment("views", 3))
	require.NoError(t, u.Increment("score", 1))
	require.NoError(t, u.Increment("score", 0.5))

	body := u.Serialize()
	assert.Equal(t, int64(5), body.Increment["views"])
	assert.Equal(t, 1.5, body.Increment["score"])
	assert.Equal(t, 2, u.Len())
}

func TestIncrementRejectsNonNumbers(t *testing.T) {
	u := NewUpdate()
	err := u.Increment("views", "2")
	var opErr *InvalidOperatorValueError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, OpIncrement, opErr.Operator)
	assert.True(t, u.Empty())

	require.NoError(t, u.Increment("n", json.Number("4")))
	require.NoError(t, u.Increment("n", uint8(1)))
	assert.Equal(t, int64(5), u.Serialize().Increment["n"])
}

func TestDeleteConflictsWithLaterMutation(t *testing.T) {
	u := NewUpdate()
	require.NoError(t, u.Set("a", 1))
	require.NoError(t, u.Delete("a"), "delete after set replaces the set")

	for _, mutate := range []func() error{
		func() error { return u.Set("a", 2) },
		func() error { return u.Increment("a", 1) },
		func() error { return u.Append("a", "x") },
		func() error { return u.Prepend("a", "x") },
	} {
		err := mutate()
		var conflict *ConflictingOperationError
		require.True(t, errors.As(err, &conflict), "got %v", err)
		assert.Equal(t, "a", conflict.Path)
	}

	require.NoError(t, u.Delete("a"), "deleting twice is fine")
	body := u.Serialize()
	assert.Nil(t, body.Set)
	assert.Equal(t, []string{"a"}, body.Delete)
}

func TestDeleteConflictIsPerPath(t *testing.T) {
	u := NewUpdate()
	require.NoError(t, u.Delete("profile"))
	require.NoError(t, u.Set("profile.name", "x"), "only the exact deleted path conflicts")
}

func TestLaterSetReplacesEarlierOperation(t *testing.T) {
	u := NewUpdate()
	require.NoError(t, u.Increment("a", 1))
	require.NoError(t, u.Set("a", "x"))
	require.NoError(t, u.Set("b", nil))

	body := u.Serialize()
	assert.Nil(t, body.Increment)
	assert.Equal(t, map[string]any{"a": "x", "b": nil}, body.Set)
}

func TestAppendAndPrependConcatenate(t *testing.T) {
	u := NewUpdate()
	require.NoError(t, u.Append("tags", "a", "b"))
	require.NoError(t, u.Append("tags", "c"))
	require.NoError(t, u.Prepend("history", 1))
	require.NoError(t, u.Prepend("history", 0))

	body := u.Serialize()
	assert.Equal(t, []any{"a", "b", "c"}, body.Append["tags"])
	assert.Equal(t, []any{1, 0}, body.Prepend["history"])

	var opErr *InvalidOperatorValueError
	assert.True(t, errors.As(u.Append("tags"), &opErr))
}

func TestUpdateRejectsInvalidPath(t *testing.T) {
	u := NewUpdate()
	var pathErr *InvalidPathError
	assert.True(t, errors.As(u.Set("a..b", 1), &pathErr))
	assert.True(t, errors.As(u.Delete(""), &pathErr))
	assert.True(t, u.Empty())
}

func TestSerializeOmitsEmptyBuckets(t *testing.T) {
	u := NewUpdate()
	require.NoError(t, u.Set("profile.age", 33))
	require.NoError(t, u.Delete("z"))
	require.NoError(t, u.Delete("m"))

	data, err := json.Marshal(u.Serialize())
	require.NoError(t, err)
	assert.JSONEq(t, `{"set":{"profile.age":33},"delete":["m","z"]}`, string(data))

	data, err = json.Marshal(NewUpdate().Serialize())
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(data))
}

func TestCloneIsIndependent(t *testing.T) {
	u := NewUpdate()
	require.NoError(t, u.Append("tags", "a"))

	cp := u.clone()
	require.NoError(t, cp.Append("tags", "b"))
	require.NoError(t, cp.Set(TTLField, 10))

	assert.Equal(t, []any{"a"}, u.Serialize().Append["tags"])
	assert.Equal(t, 1, u.Len())
	assert.Equal(t, 2, cp.Len())
}

func TestIncrementOverflowPromotesToFloat(t *testing.T) {
	u := NewUpdate()
	require.NoError(t, u.Increment("n", int64(math.MaxInt64)))
	require.NoError(t, u.Increment("n", 1))
	assert.Equal(t, float64(math.MaxInt64)+1, u.Serialize().Increment["n"])

	u = NewUpdate()
	require.NoError(t, u.Increment("n", int64(math.MinInt64)))
	require.NoError(t, u.Increment("n", -1))
	assert.Equal(t, float64(math.MinInt64)-1, u.Serialize().Increment["n"])

	u = NewUpdate()
	require.NoError(t, u.Increment("n", int64(math.MaxInt64)))
	require.NoError(t, u.Increment("n", -1))
	assert.Equal(t, int64(math.MaxInt64-1), u.Serialize().Increment["n"])
}

func TestUpdateRejectsUnencodableValues(t *testing.T) {
	u := NewUpdate()
	var opErr *InvalidOperatorValueError

	assert.True(t, errors.As(u.Set("a", math.NaN()), &opErr))
	assert.True(t, errors.As(u.Set("a", make(chan int)), &opErr))
	assert.True(t, errors.As(u.Append("a", func() {}), &opErr))
	assert.True(t, errors.As(u.Prepend("a", math.Inf(-1)), &opErr))
	assert.True(t, errors.As(u.Increment("a", math.Inf(1)), &opErr))
	assert.True(t, errors.As(u.Increment("a", math.NaN()), &opErr))

	require.NoError(t, u.Increment("b", math.MaxFloat64))
	assert.True(t, errors.As(u.Increment("b", math.MaxFloat64), &opErr), "sum overflows to +Inf")
	assert.Equal(t, math.MaxFloat64, u.Serialize().Increment["b"])
	assert.Equal(t, 1, u.Len())
}
