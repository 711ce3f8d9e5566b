// Package baseapi holds the JSON wire shapes exchanged with the Base HTTP API.
package baseapi

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// Marshal encodes v as compact JSON without HTML escaping.
func Marshal(v any) ([]byte, error) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// ErrorBody is the structured error payload returned with 4xx responses.
type ErrorBody struct {
	Errors []string `json:"errors"`
}

// ErrorMessages extracts the service-provided messages from an error body.
// It returns nil when the body is not a structured error.
func ErrorMessages(body []byte) []string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	var payload ErrorBody
	if err := json.Unmarshal(trimmed, &payload); err != nil {
		return nil
	}
	msgs := make([]string, 0, len(payload.Errors))
	for _, m := range payload.Errors {
		if m = strings.TrimSpace(m); m != "" {
			msgs = append(msgs, m)
		}
	}
	if len(msgs) == 0 {
		return nil
	}
	return msgs
}

// ItemList wraps a list of items, as in {"items": [...]}.
type ItemList struct {
	Items []map[string]any `json:"items"`
}

// BatchResponse is the 207 body of batch put/insert requests.
type BatchResponse struct {
	Processed ItemList `json:"processed"`
	Failed    ItemList `json:"failed"`
	Existed   ItemList `json:"existed"`
}

// Paging is the pagination block of a query response.
type Paging struct {
	Size int     `json:"size"`
	Last *string `json:"last,omitempty"`
}

// QueryResponse accepts both the paging-block form and the flat form
// ({"items", "count", "last"}) of a query response.
type QueryResponse struct {
	Items  []map[string]any `json:"items"`
	Paging *Paging          `json:"paging,omitempty"`
	Count  *int             `json:"count,omitempty"`
	Last   *string          `json:"last,omitempty"`
}

// Normalize returns the item count and continuation cursor, preferring the
// paging block when present. An empty cursor is reported as absent.
func (r *QueryResponse) Normalize() (count int, last string) {
	count = len(r.Items)
	switch {
	case r.Paging != nil:
		count = r.Paging.Size
		if r.Paging.Last != nil {
			last = *r.Paging.Last
		}
	default:
		if r.Count != nil {
			count = *r.Count
		}
		if r.Last != nil {
			last = *r.Last
		}
	}
	return count, last
}

// QueryRequest is the body of POST /query.
type QueryRequest struct {
	Query any    `json:"query"`
	Limit int    `json:"limit,omitempty"`
	Last  string `json:"last,omitempty"`
}

// Decode unmarshals a response body into out. An empty body is an error
// because every decoded endpoint returns a JSON document.
func Decode(body []byte, out any) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return errors.New("baseapi: empty response body")
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return errors.Wrap(err, "baseapi: decode response")
	}
	return nil
}
