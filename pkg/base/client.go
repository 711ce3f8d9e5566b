package base

import (
	"context"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/basekit/base_sdk_go/internal/baseapi"
	"github.com/basekit/base_sdk_go/internal/httpx"
	"github.com/basekit/base_sdk_go/pkg/log"
)

// DefaultAPIURL is the root of the hosted Base API. Bases live under
// {root}/{project_id}/{base_name}.
const DefaultAPIURL = "https://database.deta.sh/v1"

// RetryPolicy controls retries of transient HTTP failures.
type RetryPolicy = httpx.RetryPolicy

// Option configures a Client.
type Option func(*options)

type options struct {
	apiURL     string
	httpClient *http.Client
	timeout    time.Duration
	retry      *RetryPolicy
	logger     *slog.Logger
	batchOpts  []BatchOption
	queryOpts  []QueryOption
	now        func() time.Time
}

// WithAPIURL points the client at another API root, such as a local sandbox.
func WithAPIURL(u string) Option {
	return func(o *options) {
		if strings.TrimSpace(u) != "" {
			o.apiURL = u
		}
	}
}

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(o *options) { o.httpClient = h }
}

// WithTimeout bounds each HTTP attempt.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *options) { o.retry = &p }
}

// WithLogger sets the logger for the client and its batch and query helpers.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithBatchOptions configures the client's BatchWriter.
func WithBatchOptions(opts ...BatchOption) Option {
	return func(o *options) { o.batchOpts = append(o.batchOpts, opts...) }
}

// WithQueryOptions configures the client's QueryRunner.
func WithQueryOptions(opts ...QueryOption) Option {
	return func(o *options) { o.queryOpts = append(o.queryOpts, opts...) }
}

// WithClock overrides the clock used to compute relative expiry times.
func WithClock(fn func() time.Time) Option {
	return func(o *options) {
		if fn != nil {
			o.now = fn
		}
	}
}

func collectOptions(opts []Option) options {
	o := options{apiURL: DefaultAPIURL, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// Client reads and writes the items of one base.
type Client struct {
	transport Transport
	batch     *BatchWriter
	query     *QueryRunner
	logger    *slog.Logger
	now       func() time.Time
}

// ParseDataKey returns the project id of a "<project_id>_<secret>" data key.
func ParseDataKey(dataKey string) (string, error) {
	key := strings.TrimSpace(dataKey)
	i := strings.Index(key, "_")
	if i <= 0 || i == len(key)-1 {
		return "", errors.New("base: data key must have the form <project_id>_<secret>")
	}
	return key[:i], nil
}

// Endpoint returns the URL of a base under apiURL.
func Endpoint(apiURL, projectID, baseName string) string {
	return strings.TrimRight(apiURL, "/") + "/" + url.PathEscape(projectID) + "/" + url.PathEscape(baseName)
}

// New returns a client for the named base, authenticated with dataKey.
func New(dataKey, baseName string, opts ...Option) (*Client, error) {
	project, err := ParseDataKey(dataKey)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(baseName) == "" {
		return nil, errors.New("base: base name is required")
	}

	o := collectOptions(opts)
	httpOpts := []httpx.Option{httpx.WithHTTPClient(o.httpClient), httpx.WithTimeout(o.timeout)}
	if o.retry != nil {
		httpOpts = append(httpOpts, httpx.WithRetryPolicy(*o.retry))
	}
	if o.logger != nil {
		httpOpts = append(httpOpts, httpx.WithLogger(o.logger))
	}
	t, err := NewHTTPTransport(Endpoint(o.apiURL, project, baseName), dataKey, httpOpts...)
	if err != nil {
		return nil, errors.WithMessage(err, "base: init HTTP transport")
	}
	return newClient(t, o), nil
}

// NewWithTransport returns a client sending through t. HTTP options are
// ignored.
func NewWithTransport(t Transport, opts ...Option) *Client {
	return newClient(t, collectOptions(opts))
}

func newClient(t Transport, o options) *Client {
	logger := o.logger
	batchOpts := o.batchOpts
	queryOpts := o.queryOpts
	if logger != nil {
		batchOpts = append([]BatchOption{WithBatchLogger(logger)}, batchOpts...)
		queryOpts = append([]QueryOption{WithQueryLogger(logger)}, queryOpts...)
	}
	return &Client{
		transport: t,
		batch:     NewBatchWriter(t, batchOpts...),
		query:     NewQueryRunner(t, queryOpts...),
		logger:    logger,
		now:       o.now,
	}
}

func (c *Client) log() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return log.Logger("base.client")
}

func itemPath(key string) string {
	return "/items/" + url.PathEscape(key)
}

func requireKey(key string) error {
	if key == "" {
		return &InvalidKeyError{Key: key}
	}
	return ValidateKey(key)
}

// Get returns the item stored under key, or nil when there is none.
func (c *Client) Get(ctx context.Context, key string) (Item, error) {
	if err := requireKey(key); err != nil {
		return nil, err
	}
	resp, err := send(ctx, c.transport, http.MethodGet, itemPath(key), nil)
	if err != nil {
		return nil, err
	}
	if resp.Status == http.StatusNotFound {
		return nil, nil
	}
	if err := statusError(resp); err != nil {
		return nil, err
	}
	return decodeItem(resp)
}

// Put stores item, replacing any item with the same key, and returns the
// stored version. Without a key the service generates one.
func (c *Client) Put(ctx context.Context, item Item, opts ...WriteOption) (Item, error) {
	res, err := c.PutMany(ctx, []Item{item}, opts...)
	if err != nil {
		return nil, err
	}
	if len(res.Processed) == 1 {
		return res.Processed[0], nil
	}
	return nil, res.Err()
}

// PutMany stores items in chunks of at most MaxBatchSize.
func (c *Client) PutMany(ctx context.Context, items []Item, opts ...WriteOption) (*BatchResult, error) {
	return c.batch.Put(ctx, c.applyTTL(items, opts))
}

// Insert stores item only if its key is free. A taken key yields ErrKeyExists.
func (c *Client) Insert(ctx context.Context, item Item, opts ...WriteOption) (Item, error) {
	if item == nil {
		return nil, errors.New("base: item is nil")
	}
	if err := validateItem(item); err != nil {
		return nil, err
	}
	item = collectWriteOptions(opts).withTTL(item, c.now())

	resp, err := send(ctx, c.transport, http.MethodPost, "/items", map[string]any{"item": item})
	if err != nil {
		return nil, err
	}
	if resp.Status == http.StatusConflict {
		return nil, errors.Wrapf(ErrKeyExists, "key %q", item.Key())
	}
	if err := statusError(resp); err != nil {
		return nil, err
	}
	return decodeItem(resp)
}

// InsertMany inserts items in chunks. Items whose key is taken are listed in
// BatchResult.Existed.
func (c *Client) InsertMany(ctx context.Context, items []Item, opts ...WriteOption) (*BatchResult, error) {
	return c.batch.Insert(ctx, c.applyTTL(items, opts))
}

// Delete removes the item stored under key. Deleting a missing key succeeds.
func (c *Client) Delete(ctx context.Context, key string) error {
	if err := requireKey(key); err != nil {
		return err
	}
	resp, err := send(ctx, c.transport, http.MethodDelete, itemPath(key), nil)
	if err != nil {
		return err
	}
	if resp.Status == http.StatusNotFound {
		return nil
	}
	return statusError(resp)
}

// Update applies u to the item stored under key. A missing item yields
// ErrNotFound. Expiry options are sent as a set of the expiry attribute.
func (c *Client) Update(ctx context.Context, key string, u *Update, opts ...WriteOption) error {
	if err := requireKey(key); err != nil {
		return err
	}
	if ts, ok := collectWriteOptions(opts).expires(c.now()); ok {
		u = u.clone()
		if err := u.Set(TTLField, ts); err != nil {
			return err
		}
	}
	if u.Empty() {
		return errors.New("base: update has no operations")
	}

	resp, err := send(ctx, c.transport, http.MethodPatch, itemPath(key), u.Serialize())
	if err != nil {
		return err
	}
	if resp.Status == http.StatusNotFound {
		return errors.Wrapf(ErrNotFound, "key %q", key)
	}
	return statusError(resp)
}

// Fetch returns a single page of results.
func (c *Client) Fetch(ctx context.Context, q Query, opts FetchOptions) (*QueryPage, error) {
	return c.query.Fetch(ctx, q, opts)
}

// Query lazily iterates over every matching item. limit sets the page size.
func (c *Client) Query(ctx context.Context, q Query, limit int) iter.Seq2[Item, error] {
	return c.query.Items(ctx, q, limit)
}

// Pages lazily iterates over the result pages.
func (c *Client) Pages(ctx context.Context, q Query, limit int) iter.Seq2[*QueryPage, error] {
	return c.query.Pages(ctx, q, limit)
}

// FetchAll collects every matching item. On error the items read so far are
// returned with it.
func (c *Client) FetchAll(ctx context.Context, q Query) ([]Item, error) {
	return Collect(c.query.Items(ctx, q, 0))
}

func (c *Client) applyTTL(items []Item, opts []WriteOption) []Item {
	o := collectWriteOptions(opts)
	now := c.now()
	if _, ok := o.expires(now); !ok {
		return items
	}
	out := make([]Item, len(items))
	for i, it := range items {
		if it == nil {
			continue
		}
		out[i] = o.withTTL(it, now)
	}
	c.log().Debug("applied expiry", "items", len(items))
	return out
}

func decodeItem(resp *Response) (Item, error) {
	var it Item
	if err := baseapi.Decode(resp.Body, &it); err != nil {
		return nil, &TransportError{Kind: KindDecode, Status: resp.Status, Message: err.Error(), Err: err}
	}
	return it, nil
}
