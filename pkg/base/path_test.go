package base

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePathRoundTrip(t *testing.T) {
	for _, in := range []string{"name", "profile.age", "a.b.c.d", "with_underscore.and-dash", "ünïcode.ok"} {
		p, err := ParsePath(in)
		require.NoError(t, err, in)
		assert.Equal(t, in, p.String())

		again, err := NewPath(p.Segments()...)
		require.NoError(t, err)
		assert.Equal(t, p, again)
	}
}

func TestParsePathRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", ".", "a.", ".a", "a..b", "a?b", "age?gt"} {
		_, err := ParsePath(in)
		var pathErr *InvalidPathError
		assert.True(t, errors.As(err, &pathErr), "%q: got %v", in, err)
	}
}

func TestNewPathRejectsSeparatorInSegment(t *testing.T) {
	_, err := NewPath("a.b", "c")
	var pathErr *InvalidPathError
	require.True(t, errors.As(err, &pathErr))

	_, err = NewPath()
	assert.Error(t, err)
}

func TestSegmentsReturnsCopy(t *testing.T) {
	p := MustPath("a.b")
	segs := p.Segments()
	segs[0] = "x"
	assert.Equal(t, "a.b", p.String())
}

func TestMustPathPanics(t *testing.T) {
	assert.Panics(t, func() { MustPath("a..b") })
}

func TestResolve(t *testing.T) {
	it := Item{
		"key":     "u1",
		"profile": map[string]any{"age": 30, "address": map[string]any{"city": "Rome"}},
		"tags":    []any{"a"},
	}

	v, err := MustPath("profile.address.city").Resolve(it)
	require.NoError(t, err)
	assert.Equal(t, "Rome", v)

	v, err = MustPath("profile.age").Resolve(it)
	require.NoError(t, err)
	assert.Equal(t, 30, v)

	_, err = MustPath("profile.missing").Resolve(it)
	assert.ErrorIs(t, err, ErrFieldNotFound)

	_, err = MustPath("tags.0").Resolve(it)
	assert.ErrorIs(t, err, ErrFieldNotFound)

	_, err = Path{}.Resolve(it)
	assert.Error(t, err)
}
