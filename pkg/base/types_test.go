package base

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type profile struct {
	Key     string    `json:"key"`
	Name    string    `json:"name"`
	Age     int       `json:"age"`
	Tags    []string  `json:"tags"`
	Created time.Time `json:"created"`
	Address struct {
		City string `json:"city"`
	} `json:"address"`
}

func TestItemDecode(t *testing.T) {
	it := Item{
		"key":     "u1",
		"name":    "ann",
		"age":     float64(30),
		"tags":    []any{"a", "b"},
		"created": "2024-05-01T10:00:00Z",
		"address": map[string]any{"city": "Rome"},
		"extra":   true,
	}

	var p profile
	require.NoError(t, it.Decode(&p))
	assert.Equal(t, "u1", p.Key)
	assert.Equal(t, 30, p.Age)
	assert.Equal(t, []string{"a", "b"}, p.Tags)
	assert.Equal(t, "Rome", p.Address.City)
	assert.True(t, p.Created.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)))

	assert.Error(t, Item{"age": "old"}.Decode(&p))
}

func TestItemFrom(t *testing.T) {
	p := profile{Key: "u1", Name: "ann", Age: 3}
	it, err := ItemFrom(p)
	require.NoError(t, err)
	assert.Equal(t, "u1", it.Key())
	assert.Equal(t, float64(3), it["age"])

	orig := Item{"key": "a"}
	cp, err := ItemFrom(orig)
	require.NoError(t, err)
	cp["key"] = "b"
	assert.Equal(t, "a", orig.Key())

	_, err = ItemFrom([]int{1})
	assert.Error(t, err)
	_, err = ItemFrom(nil)
	assert.Error(t, err)
}

func TestValidateKey(t *testing.T) {
	for _, ok := range []string{"", "abc", "A_b-9"} {
		assert.NoError(t, ValidateKey(ok), ok)
	}
	for _, bad := range []string{"a b", "a/b", "a.b", "ключ", "a?b"} {
		var keyErr *InvalidKeyError
		assert.True(t, errors.As(ValidateKey(bad), &keyErr), bad)
	}

	assert.NoError(t, validateItemKey(Item{"name": "x"}))
	assert.NoError(t, validateItemKey(Item{"key": nil}))
	assert.Error(t, validateItemKey(Item{"key": 5}))
	assert.Error(t, validateItemKey(Item{"key": "a b"}))
}

func TestBatchResultErr(t *testing.T) {
	r := &BatchResult{Processed: []Item{{"key": "a"}}}
	assert.NoError(t, r.Err())

	boom := errors.New("boom")
	r.Failed = []FailedItem{
		{Item: Item{"key": "b"}, Err: boom},
		{Item: Item{"key": "c"}, Err: boom},
		{Item: Item{"key": "d"}, Err: ErrNotAcknowledged},
	}
	err := r.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3 of 4 items failed")
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, ErrNotAcknowledged)
	assert.Equal(t, 4, r.Len())
}

func TestWriteOptionsExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 900_000_000)

	_, ok := collectWriteOptions(nil).expires(now)
	assert.False(t, ok)

	ts, ok := collectWriteOptions([]WriteOption{WithExpireIn(time.Minute)}).expires(now)
	require.True(t, ok)
	assert.Equal(t, int64(1_700_000_060), ts, "sub-second part is dropped")

	at := time.Unix(1_800_000_000, 0)
	ts, _ = collectWriteOptions([]WriteOption{WithExpireIn(time.Minute), WithExpireAt(at)}).expires(now)
	assert.Equal(t, at.Unix(), ts, "expire-at wins")

	orig := Item{"key": "a"}
	out := collectWriteOptions([]WriteOption{WithExpireAt(at)}).withTTL(orig, now)
	assert.Equal(t, at.Unix(), out[TTLField])
	assert.NotContains(t, orig, TTLField, "caller item is not modified")
	assert.Equal(t, orig, collectWriteOptions(nil).withTTL(orig, now))
}

func TestApplyTTLReadsClockOnce(t *testing.T) {
	calls := 0
	clock := func() time.Time {
		calls++
		return time.Unix(1_700_000_000, 0).Add(time.Duration(calls) * time.Hour)
	}
	c := NewWithTransport(&recorder{respond: processAll(t)}, WithClock(clock))

	out := c.applyTTL([]Item{{"key": "a"}, {"key": "b"}}, []WriteOption{WithExpireIn(time.Minute)})
	assert.Equal(t, 1, calls)
	want := time.Unix(1_700_000_000, 0).Add(time.Hour + time.Minute).Unix()
	assert.Equal(t, want, out[0][TTLField])
	assert.Equal(t, want, out[1][TTLField])

	c.applyTTL([]Item{{"key": "a"}}, nil)
	assert.Equal(t, 2, calls)
}
