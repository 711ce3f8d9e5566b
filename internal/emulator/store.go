// Package emulator is an in-memory implementation of the Base HTTP API used
// by the mock package, the mock runtime mode and the sandbox server.
package emulator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
	"github.com/tidwall/btree"

	"github.com/basekit/base_sdk_go/internal/baseapi"
)

const (
	keyField = "key"
	ttlField = "__expires"

	// MaxBatchItems is the largest batch a put or insert request may carry.
	MaxBatchItems = 25
	// DefaultLimit is the page size of queries that do not set one.
	DefaultLimit = 1000
)

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for expiry checks.
func WithClock(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithKeyGenerator overrides how keys are generated for keyless items.
func WithKeyGenerator(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.newKey = fn
		}
	}
}

// Store holds the items of one base, ordered by key.
type Store struct {
	mu     sync.Mutex
	items  *btree.Map[string, map[string]any]
	now    func() time.Time
	newKey func() string
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		items:  btree.NewMap[string, map[string]any](0),
		now:    time.Now,
		newKey: func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Seed stores items as a put would, failing on the first invalid item.
func (s *Store) Seed(items []map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, it := range items {
		stored, err := s.prepare(it)
		if err != nil {
			return errors.WithMessagef(err, "emulator: seed item %d", i)
		}
		s.items.Set(stored[keyField].(string), stored)
	}
	return nil
}

// Len returns the number of live items.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeExpired()
	return s.items.Len()
}

// ErrEncode marks a request body Send could not encode.
var ErrEncode = errors.New("emulator: encode request body")

// Send encodes body as JSON and serves it like an HTTP request would be.
func (s *Store) Send(ctx context.Context, method, path string, body any) (int, []byte, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	var payload []byte
	if body != nil {
		data, err := baseapi.Marshal(body)
		if err != nil {
			return 0, nil, errors.Wrap(ErrEncode, err.Error())
		}
		payload = data
	}
	status, out := s.Handle(method, path, payload)
	return status, out, nil
}

// Handle serves one API call. path is relative to the base: "/items",
// "/items/{key}" or "/query".
func (s *Store) Handle(method, path string, body []byte) (int, []byte) {
	status, payload := s.route(method, path, body)
	data, err := baseapi.Marshal(payload)
	if err != nil {
		return http.StatusInternalServerError, []byte(`{"errors":["encode response"]}`)
	}
	return status, data
}

func (s *Store) route(method, path string, body []byte) (int, any) {
	switch {
	case path == "/items":
		switch method {
		case http.MethodPut:
			return s.put(body)
		case http.MethodPost:
			return s.insert(body)
		}
		return methodNotAllowed()
	case path == "/query":
		if method == http.MethodPost {
			return s.query(body)
		}
		return methodNotAllowed()
	case strings.HasPrefix(path, "/items/"):
		key, err := url.PathUnescape(strings.TrimPrefix(path, "/items/"))
		if err != nil || key == "" {
			return failure(http.StatusBadRequest, "invalid key")
		}
		switch method {
		case http.MethodGet:
			return s.get(key)
		case http.MethodPatch:
			return s.update(key, body)
		case http.MethodDelete:
			return s.delete(key)
		}
		return methodNotAllowed()
	}
	return failure(http.StatusNotFound, "not found")
}

func failure(status int, msgs ...string) (int, any) {
	return status, baseapi.ErrorBody{Errors: msgs}
}

func methodNotAllowed() (int, any) {
	return failure(http.StatusMethodNotAllowed, "method not allowed")
}

func decodeBody(body []byte, out any) error {
	if len(strings.TrimSpace(string(body))) == 0 {
		return errors.New("request body is required")
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "malformed request body")
	}
	return nil
}

type batchRequest struct {
	Item  json.RawMessage   `json:"item"`
	Items []json.RawMessage `json:"items"`
}

func (s *Store) put(body []byte) (int, any) {
	var req batchRequest
	if err := decodeBody(body, &req); err != nil {
		return failure(http.StatusBadRequest, err.Error())
	}
	if req.Items == nil {
		return failure(http.StatusBadRequest, "items are required")
	}
	if len(req.Items) > MaxBatchItems {
		return failure(http.StatusBadRequest, "too many items, at most 25 per request")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	resp := newBatchResponse()
	for _, raw := range req.Items {
		it, stored, err := s.decodeItem(raw)
		if err != nil {
			resp.Failed.Items = append(resp.Failed.Items, it)
			continue
		}
		s.items.Set(stored[keyField].(string), stored)
		resp.Processed.Items = append(resp.Processed.Items, deepCopy(stored))
	}
	return http.StatusMultiStatus, resp
}

func (s *Store) insert(body []byte) (int, any) {
	var req batchRequest
	if err := decodeBody(body, &req); err != nil {
		return failure(http.StatusBadRequest, err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if req.Items == nil {
		if len(req.Item) == 0 {
			return failure(http.StatusBadRequest, "item is required")
		}
		_, stored, err := s.decodeItem(req.Item)
		if err != nil {
			return failure(http.StatusBadRequest, err.Error())
		}
		key := stored[keyField].(string)
		if _, ok := s.lookup(key); ok {
			return failure(http.StatusConflict, "key already exists")
		}
		s.items.Set(key, stored)
		return http.StatusCreated, deepCopy(stored)
	}

	if len(req.Items) > MaxBatchItems {
		return failure(http.StatusBadRequest, "too many items, at most 25 per request")
	}
	resp := newBatchResponse()
	for _, raw := range req.Items {
		it, stored, err := s.decodeItem(raw)
		if err != nil {
			resp.Failed.Items = append(resp.Failed.Items, it)
			continue
		}
		key := stored[keyField].(string)
		if _, ok := s.lookup(key); ok {
			resp.Existed.Items = append(resp.Existed.Items, it)
			continue
		}
		s.items.Set(key, stored)
		resp.Processed.Items = append(resp.Processed.Items, deepCopy(stored))
	}
	return http.StatusMultiStatus, resp
}

func newBatchResponse() *baseapi.BatchResponse {
	return &baseapi.BatchResponse{
		Processed: baseapi.ItemList{Items: []map[string]any{}},
		Failed:    baseapi.ItemList{Items: []map[string]any{}},
		Existed:   baseapi.ItemList{Items: []map[string]any{}},
	}
}

// decodeItem returns the item as sent (for failure reports) and the
// version to store.
func (s *Store) decodeItem(raw json.RawMessage) (map[string]any, map[string]any, error) {
	var it map[string]any
	if err := json.Unmarshal(raw, &it); err != nil || it == nil {
		return map[string]any{}, nil, errors.New("item must be a JSON object")
	}
	stored, err := s.prepare(it)
	return it, stored, err
}

// prepare validates an item and returns a copy carrying its final key.
func (s *Store) prepare(it map[string]any) (map[string]any, error) {
	out := deepCopy(it)
	switch k := out[keyField].(type) {
	case nil:
		out[keyField] = s.newKey()
	case string:
		if k == "" {
			out[keyField] = s.newKey()
		} else if !keyPattern.MatchString(k) {
			return nil, errors.Errorf("invalid key %q", k)
		}
	default:
		return nil, errors.New("key must be a string")
	}
	if exp, ok := out[ttlField]; ok {
		if _, isNum := asFloat(exp); !isNum {
			return nil, errors.Errorf("%s must be a number", ttlField)
		}
	}
	return out, nil
}

func (s *Store) get(key string) (int, any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.lookup(key)
	if !ok {
		return failure(http.StatusNotFound, "key not found")
	}
	return http.StatusOK, deepCopy(it)
}

func (s *Store) delete(key string) (int, any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items.Delete(key)
	return http.StatusOK, map[string]any{keyField: key}
}

// lookup returns the live item under key, dropping it if it has expired.
// Callers hold s.mu.
func (s *Store) lookup(key string) (map[string]any, bool) {
	it, ok := s.items.Get(key)
	if !ok {
		return nil, false
	}
	if s.expired(it, s.now().Unix()) {
		s.items.Delete(key)
		return nil, false
	}
	return it, true
}

func (s *Store) expired(it map[string]any, now int64) bool {
	exp, ok := asFloat(it[ttlField])
	return ok && int64(exp) <= now
}

func (s *Store) purgeExpired() {
	now := s.now().Unix()
	var dead []string
	s.items.Scan(func(key string, it map[string]any) bool {
		if s.expired(it, now) {
			dead = append(dead, key)
		}
		return true
	})
	for _, key := range dead {
		s.items.Delete(key)
	}
}

func deepCopy(it map[string]any) map[string]any {
	out := make(map[string]any, len(it))
	for k, v := range it {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return deepCopy(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}
