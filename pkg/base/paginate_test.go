package base

import (
	"context"
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pagedResponder serves fixed pages; page i is requested with the cursor
// returned by page i-1.
func pagedResponder(t *testing.T, pages [][]string) func(int, string, string, map[string]any) (*Response, error) {
	return func(n int, _, _ string, body map[string]any) (*Response, error) {
		require.Less(t, n, len(pages), "unexpected extra page request")
		items := make([]map[string]any, 0, len(pages[n]))
		for _, k := range pages[n] {
			items = append(items, map[string]any{"key": k})
		}
		paging := map[string]any{"size": len(items)}
		if n < len(pages)-1 {
			paging["last"] = pages[n][len(pages[n])-1]
		}
		return jsonResponse(t, http.StatusOK, map[string]any{"items": items, "paging": paging}), nil
	}
}

func itemKeys(items []Item) []string {
	keys := make([]string, 0, len(items))
	for _, it := range items {
		keys = append(keys, it.Key())
	}
	return keys
}

func TestQueryRunnerFollowsCursors(t *testing.T) {
	rec := &recorder{respond: pagedResponder(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}})}
	q := Or(MustExpression(Where("age", OpGreater, 18)))

	items, err := Collect(NewQueryRunner(rec).Items(context.Background(), q, 2))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, itemKeys(items))

	require.Len(t, rec.calls, 3)
	for i, call := range rec.calls {
		assert.Equal(t, http.MethodPost, call.method)
		assert.Equal(t, "/query", call.path)
		assert.Equal(t, []any{map[string]any{"age?gt": float64(18)}}, call.body["query"], "call %d", i)
		assert.Equal(t, float64(2), call.body["limit"])
	}
	assert.NotContains(t, rec.calls[0].body, "last")
	assert.Equal(t, "b", rec.calls[1].body["last"])
	assert.Equal(t, "d", rec.calls[2].body["last"])
}

func TestQueryRunnerIsLazy(t *testing.T) {
	rec := &recorder{respond: pagedResponder(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}})}
	seq := NewQueryRunner(rec).Items(context.Background(), nil, 2)
	assert.Empty(t, rec.calls, "nothing is fetched before iteration")

	var got []string
	for it, err := range seq {
		require.NoError(t, err)
		got = append(got, it.Key())
		if len(got) == 3 {
			break
		}
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.Len(t, rec.calls, 2, "the third page is never requested")
}

func TestQueryRunnerPages(t *testing.T) {
	rec := &recorder{respond: pagedResponder(t, [][]string{{"a", "b"}, {"c"}})}

	var pages []*QueryPage
	for page, err := range NewQueryRunner(rec).Pages(context.Background(), nil, 2) {
		require.NoError(t, err)
		pages = append(pages, page)
	}
	require.Len(t, pages, 2)
	assert.Equal(t, 2, pages[0].Count)
	assert.True(t, pages[0].HasMore())
	assert.False(t, pages[1].HasMore())
	assert.Equal(t, []any{}, rec.calls[0].body["query"])
}

func TestQueryRunnerStopsOnError(t *testing.T) {
	ok := pagedResponder(t, [][]string{{"a"}, {"b"}, {"c"}})
	rec := &recorder{respond: func(n int, method, path string, body map[string]any) (*Response, error) {
		if n == 1 {
			return jsonResponse(t, http.StatusBadRequest, map[string]any{"errors": []string{"bad query"}}), nil
		}
		return ok(n, method, path, body)
	}}

	items, err := Collect(NewQueryRunner(rec).Items(context.Background(), nil, 1))
	var rv *RemoteValidationError
	require.True(t, errors.As(err, &rv))
	assert.Equal(t, []string{"a"}, itemKeys(items))
	assert.Len(t, rec.calls, 2)
}

func TestQueryRunnerDetectsCursorLoop(t *testing.T) {
	rec := &recorder{respond: func(int, string, string, map[string]any) (*Response, error) {
		return jsonResponse(t, http.StatusOK, map[string]any{
			"items":  []any{map[string]any{"key": "a"}},
			"paging": map[string]any{"size": 1, "last": "a"},
		}), nil
	}}

	_, err := Collect(NewQueryRunner(rec).Items(context.Background(), nil, 1))
	assert.ErrorIs(t, err, ErrCursorLoop)
	assert.Len(t, rec.calls, 2)
}

func TestQueryRunnerAcceptsFlatResponse(t *testing.T) {
	rec := &recorder{respond: func(n int, _, _ string, _ map[string]any) (*Response, error) {
		if n == 0 {
			return jsonResponse(t, http.StatusOK, map[string]any{
				"items": []any{map[string]any{"key": "a"}},
				"count": 1,
				"last":  "a",
			}), nil
		}
		return jsonResponse(t, http.StatusOK, map[string]any{
			"items": []any{map[string]any{"key": "b"}},
			"count": 1,
		}), nil
	}}

	items, err := Collect(NewQueryRunner(rec).Items(context.Background(), nil, 0))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, itemKeys(items))
	assert.Equal(t, float64(DefaultPageSize), rec.calls[0].body["limit"])
}

func TestQueryRunnerFetch(t *testing.T) {
	rec := &recorder{respond: pagedResponder(t, [][]string{{"a"}, {"b"}})}
	r := NewQueryRunner(rec, WithPageSize(50))

	page, err := r.Fetch(context.Background(), nil, FetchOptions{Last: "z"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, itemKeys(page.Items))
	assert.Equal(t, "a", page.Last)
	assert.Equal(t, "z", rec.calls[0].body["last"])
	assert.Equal(t, float64(50), rec.calls[0].body["limit"])
}

func TestQueryRunnerCanceledContext(t *testing.T) {
	rec := &recorder{respond: pagedResponder(t, [][]string{{"a"}})}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Collect(NewQueryRunner(rec).Items(ctx, nil, 1))
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, KindCanceled, te.Kind)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rec.calls)
}
