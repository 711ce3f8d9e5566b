package base

import (
	"encoding/json"
	stderrors "errors"
	"regexp"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/basekit/base_sdk_go/internal/baseapi"
)

// KeyField is the distinguished item attribute holding the item key.
const KeyField = "key"

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Item is a JSON document stored in a base.
type Item map[string]any

// Key returns the item key, or "" when absent or not a string.
func (it Item) Key() string {
	k, _ := it[KeyField].(string)
	return k
}

// Clone returns a shallow copy of the item.
func (it Item) Clone() Item {
	out := make(Item, len(it))
	for k, v := range it {
		out[k] = v
	}
	return out
}

// Decode copies the item into out, a pointer to a struct or map. Fields are
// matched by their json tags and numbers are converted to the target type.
func (it Item) Decode(out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "json",
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeHookFunc("2006-01-02T15:04:05Z07:00"),
	})
	if err != nil {
		return errors.Wrap(err, "base: create decoder")
	}
	if err := dec.Decode(map[string]any(it)); err != nil {
		return errors.Wrap(err, "base: decode item")
	}
	return nil
}

// ItemFrom converts a struct or map into an Item using its JSON encoding.
func ItemFrom(v any) (Item, error) {
	if it, ok := v.(Item); ok {
		return it.Clone(), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "base: encode item")
	}
	var it Item
	if err := json.Unmarshal(data, &it); err != nil {
		return nil, errors.Wrap(err, "base: item must encode to a JSON object")
	}
	if it == nil {
		return nil, errors.New("base: item must encode to a JSON object")
	}
	return it, nil
}

// ValidateKey checks a client-supplied key. The empty key is valid and lets
// the service generate one.
func ValidateKey(key string) error {
	if key == "" || keyPattern.MatchString(key) {
		return nil
	}
	return &InvalidKeyError{Key: key}
}

func validateItemKey(it Item) error {
	raw, present := it[KeyField]
	if !present || raw == nil {
		return nil
	}
	k, ok := raw.(string)
	if !ok {
		return &InvalidKeyError{Key: toString(raw)}
	}
	return ValidateKey(k)
}

// validateItem checks the key and that the item can be sent as JSON.
func validateItem(it Item) error {
	if err := validateItemKey(it); err != nil {
		return err
	}
	if err := encodable(it); err != nil {
		return errors.WithMessagef(err, "base: item %q is not JSON encodable", it.Key())
	}
	return nil
}

// encodable returns the JSON encoding error of v, if any (NaN, channels, ...).
func encodable(v any) error {
	_, err := baseapi.Marshal(v)
	return err
}

func toString(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "<unprintable>"
	}
	return string(data)
}

// FailedItem is a batch item that was not written, with the reason.
type FailedItem struct {
	Item Item
	Err  error
}

// BatchResult partitions the items of a batch write. Every input item ends
// up in exactly one of the three lists.
type BatchResult struct {
	Processed []Item
	Failed    []FailedItem
	// Existed lists items skipped by insert writes because the key was taken.
	Existed []Item
}

// Len returns the total number of items accounted for.
func (r *BatchResult) Len() int {
	return len(r.Processed) + len(r.Failed) + len(r.Existed)
}

// Err summarises the failures, or returns nil when nothing failed. Items that
// share a cause are reported once.
func (r *BatchResult) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(r.Failed))
	causes := make([]error, 0, 1)
	for _, f := range r.Failed {
		msg := f.Err.Error()
		if _, ok := seen[msg]; ok {
			continue
		}
		seen[msg] = struct{}{}
		causes = append(causes, f.Err)
	}
	return errors.WithMessagef(stderrors.Join(causes...), "base: %d of %d items failed", len(r.Failed), r.Len())
}

func (r *BatchResult) merge(other *BatchResult) {
	r.Processed = append(r.Processed, other.Processed...)
	r.Failed = append(r.Failed, other.Failed...)
	r.Existed = append(r.Existed, other.Existed...)
}

// QueryPage is one page of query results. Last is empty on the final page.
type QueryPage struct {
	Items []Item
	Count int
	Last  string
}

// HasMore reports whether another page can be fetched.
func (p *QueryPage) HasMore() bool {
	return p.Last != ""
}
