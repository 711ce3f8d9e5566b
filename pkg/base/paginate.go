package base

import (
	"context"
	"iter"
	"log/slog"
	"net/http"

	"github.com/basekit/base_sdk_go/internal/baseapi"
	"github.com/basekit/base_sdk_go/pkg/log"
)

// DefaultPageSize is the page size the service uses when none is given.
const DefaultPageSize = 1000

// FetchOptions select a single page.
type FetchOptions struct {
	// Limit caps the page size; 0 uses the runner's page size.
	Limit int
	// Last is the cursor returned by the previous page.
	Last string
}

// QueryOption configures a QueryRunner.
type QueryOption func(*QueryRunner)

// WithPageSize sets the default page size.
func WithPageSize(n int) QueryOption {
	return func(r *QueryRunner) {
		if n > 0 {
			r.pageSize = n
		}
	}
}

// WithQueryLogger overrides the runner's logger.
func WithQueryLogger(l *slog.Logger) QueryOption {
	return func(r *QueryRunner) {
		if l != nil {
			r.logger = l
		}
	}
}

// QueryRunner runs queries and follows their continuation cursors.
type QueryRunner struct {
	transport Transport
	pageSize  int
	logger    *slog.Logger
}

// NewQueryRunner returns a runner sending through t.
func NewQueryRunner(t Transport, opts ...QueryOption) *QueryRunner {
	r := &QueryRunner{
		transport: t,
		pageSize:  DefaultPageSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *QueryRunner) log() *slog.Logger {
	if r.logger != nil {
		return r.logger
	}
	return log.Logger("base.query")
}

// Fetch requests a single page.
func (r *QueryRunner) Fetch(ctx context.Context, q Query, opts FetchOptions) (*QueryPage, error) {
	return r.fetch(ctx, q.Encode(), opts.Limit, opts.Last)
}

func (r *QueryRunner) fetch(ctx context.Context, clauses []Clause, limit int, last string) (*QueryPage, error) {
	if limit <= 0 {
		limit = r.pageSize
	}
	r.log().Debug("fetching page", "clauses", len(clauses), "limit", limit, "cursor", last)

	resp, err := send(ctx, r.transport, http.MethodPost, "/query", baseapi.QueryRequest{
		Query: clauses,
		Limit: limit,
		Last:  last,
	})
	if err != nil {
		return nil, err
	}
	if err := statusError(resp); err != nil {
		return nil, err
	}

	var decoded baseapi.QueryResponse
	if err := baseapi.Decode(resp.Body, &decoded); err != nil {
		return nil, &TransportError{Kind: KindDecode, Status: resp.Status, Message: err.Error(), Err: err}
	}
	items := make([]Item, 0, len(decoded.Items))
	for _, raw := range decoded.Items {
		items = append(items, Item(raw))
	}
	count, next := decoded.Normalize()
	return &QueryPage{Items: items, Count: count, Last: next}, nil
}

// Pages returns a lazy sequence of result pages. Each page is requested only
// when the consumer asks for it, with the same encoded query and the cursor
// of the previous page. A failed request yields its error and ends the
// sequence. Ranging over the sequence again re-runs the query from the start.
func (r *QueryRunner) Pages(ctx context.Context, q Query, limit int) iter.Seq2[*QueryPage, error] {
	clauses := q.Encode()
	return func(yield func(*QueryPage, error) bool) {
		var last string
		seen := make(map[string]struct{})
		for {
			page, err := r.fetch(ctx, clauses, limit, last)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(page, nil) || !page.HasMore() {
				return
			}
			if _, dup := seen[page.Last]; dup {
				yield(nil, ErrCursorLoop)
				return
			}
			seen[page.Last] = struct{}{}
			last = page.Last
		}
	}
}

// Items returns a lazy sequence of the items of every page, in page order.
func (r *QueryRunner) Items(ctx context.Context, q Query, limit int) iter.Seq2[Item, error] {
	return func(yield func(Item, error) bool) {
		for page, err := range r.Pages(ctx, q, limit) {
			if err != nil {
				yield(nil, err)
				return
			}
			for _, it := range page.Items {
				if !yield(it, nil) {
					return
				}
			}
		}
	}
}

// Collect drains the sequence, returning the items read before any error.
func Collect(seq iter.Seq2[Item, error]) ([]Item, error) {
	var items []Item
	for it, err := range seq {
		if err != nil {
			return items, err
		}
		items = append(items, it)
	}
	return items, nil
}
