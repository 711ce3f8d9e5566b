package base

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/pkg/errors"

	"github.com/basekit/base_sdk_go/internal/baseapi"
	"github.com/basekit/base_sdk_go/pkg/log"
)

// MaxBatchSize is the largest number of items the service accepts per write.
const MaxBatchSize = 25

// BatchOption configures a BatchWriter.
type BatchOption func(*BatchWriter)

// WithChunkSize lowers the number of items sent per request. Values outside
// 1..MaxBatchSize are ignored.
func WithChunkSize(n int) BatchOption {
	return func(w *BatchWriter) {
		if n > 0 && n <= MaxBatchSize {
			w.chunkSize = n
		}
	}
}

// WithBatchLogger overrides the writer's logger.
func WithBatchLogger(l *slog.Logger) BatchOption {
	return func(w *BatchWriter) {
		if l != nil {
			w.logger = l
		}
	}
}

// BatchWriter writes any number of items as a sequence of chunked requests.
// Chunks are sent one after another; a failed chunk marks only its own items
// as failed and never stops the remaining chunks.
type BatchWriter struct {
	transport Transport
	chunkSize int
	logger    *slog.Logger
}

// NewBatchWriter returns a writer sending through t.
func NewBatchWriter(t Transport, opts ...BatchOption) *BatchWriter {
	w := &BatchWriter{
		transport: t,
		chunkSize: MaxBatchSize,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Put stores items, overwriting existing keys.
func (w *BatchWriter) Put(ctx context.Context, items []Item) (*BatchResult, error) {
	return w.write(ctx, http.MethodPut, items)
}

// Insert stores items whose keys are not taken yet. Items with a taken key
// are reported in BatchResult.Existed.
func (w *BatchWriter) Insert(ctx context.Context, items []Item) (*BatchResult, error) {
	return w.write(ctx, http.MethodPost, items)
}

func (w *BatchWriter) write(ctx context.Context, method string, items []Item) (*BatchResult, error) {
	if w == nil || w.transport == nil {
		return nil, errors.New("base: batch writer has no transport")
	}
	for i, it := range items {
		if it == nil {
			return nil, errors.Errorf("base: item %d is nil", i)
		}
		if err := validateItem(it); err != nil {
			return nil, err
		}
	}

	result := &BatchResult{}
	for start, n := 0, 0; start < len(items); start, n = start+w.chunkSize, n+1 {
		end := min(start+w.chunkSize, len(items))
		result.merge(w.writeChunk(ctx, method, n, items[start:end]))
	}
	return result, nil
}

func (w *BatchWriter) writeChunk(ctx context.Context, method string, n int, chunk []Item) *BatchResult {
	w.log().Debug("writing chunk", "method", method, "chunk", n, "items", len(chunk))

	resp, err := send(ctx, w.transport, method, "/items", map[string]any{"items": chunk})
	if err == nil {
		err = statusError(resp)
	}
	var decoded baseapi.BatchResponse
	if err == nil {
		if derr := baseapi.Decode(resp.Body, &decoded); derr != nil {
			err = &TransportError{Kind: KindDecode, Status: resp.Status, Message: derr.Error(), Err: derr}
		}
	}
	if err != nil {
		w.log().Warn("chunk failed", "method", method, "chunk", n, "items", len(chunk), "error", err)
		return failAll(chunk, err)
	}
	result, dropped := reconcile(chunk, &decoded)
	if dropped > 0 {
		w.log().Warn("ignored unknown items in response", "method", method, "chunk", n, "items", dropped)
	}
	return result
}

// log returns the configured logger, or the current default one so that a
// later log.Init still applies.
func (w *BatchWriter) log() *slog.Logger {
	if w.logger != nil {
		return w.logger
	}
	return log.Logger("base.batch")
}

func failAll(chunk []Item, err error) *BatchResult {
	failed := make([]FailedItem, 0, len(chunk))
	for _, it := range chunk {
		failed = append(failed, FailedItem{Item: it, Err: err})
	}
	return &BatchResult{Failed: failed}
}

// reconcile maps a chunk response back onto the sent items. Items the
// service reported keep the service's version (with the final key); sent
// items the response does not account for are marked ErrNotAcknowledged.
// It also returns the number of response entries matching no sent item.
func reconcile(chunk []Item, resp *baseapi.BatchResponse) (*BatchResult, int) {
	byKey := make(map[string][]Item, len(chunk))
	keyless := make([]Item, 0)
	for _, it := range chunk {
		if k := it.Key(); k != "" {
			byKey[k] = append(byKey[k], it)
		} else {
			keyless = append(keyless, it)
		}
	}

	// take consumes one sent item with the given key, if any.
	take := func(k string) (Item, bool) {
		pending := byKey[k]
		if k == "" || len(pending) == 0 {
			return nil, false
		}
		byKey[k] = pending[1:]
		return pending[0], true
	}

	// claim pairs a response entry with a sent item: by key first, then by
	// count against the keyless items. Entries that pair with nothing are
	// dropped so a chunk never yields more results than it sent.
	unmatched, dropped := 0, 0
	claim := func(it Item) (Item, bool) {
		if orig, ok := take(it.Key()); ok {
			return orig, true
		}
		if unmatched < len(keyless) {
			unmatched++
			return it, true
		}
		dropped++
		return nil, false
	}

	result := &BatchResult{}
	for _, raw := range resp.Processed.Items {
		it := Item(raw)
		if _, ok := claim(it); ok {
			result.Processed = append(result.Processed, it)
		}
	}
	for _, raw := range resp.Existed.Items {
		if it, ok := claim(Item(raw)); ok {
			result.Existed = append(result.Existed, it)
		}
	}
	for _, raw := range resp.Failed.Items {
		if it, ok := claim(Item(raw)); ok {
			result.Failed = append(result.Failed, FailedItem{Item: it, Err: ErrRejected})
		}
	}

	// Keyed items the response left out.
	for _, it := range chunk {
		k := it.Key()
		if k == "" {
			continue
		}
		if orig, ok := take(k); ok {
			result.Failed = append(result.Failed, FailedItem{Item: orig, Err: ErrNotAcknowledged})
		}
	}
	// Keyless items get their key from the service, so they can only be
	// matched by count against the entries no keyed item claimed.
	if missing := len(keyless) - unmatched; missing > 0 {
		for _, it := range keyless[len(keyless)-missing:] {
			result.Failed = append(result.Failed, FailedItem{Item: it, Err: ErrNotAcknowledged})
		}
	}
	return result, dropped
}
