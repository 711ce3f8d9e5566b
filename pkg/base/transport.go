package base

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	"github.com/basekit/base_sdk_go/internal/baseapi"
	"github.com/basekit/base_sdk_go/internal/httpx"
)

// Response is a raw service response. Non-2xx statuses are responses too;
// only failures to obtain a response are transport errors.
type Response struct {
	Status int
	Body   json.RawMessage
}

// Transport sends one request to the service. Implementations own retries,
// timeouts and authentication and must be safe for concurrent use.
type Transport interface {
	Send(ctx context.Context, method, path string, body any) (*Response, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, method, path string, body any) (*Response, error)

// Send calls f.
func (f TransportFunc) Send(ctx context.Context, method, path string, body any) (*Response, error) {
	return f(ctx, method, path, body)
}

// APIKeyHeader carries the data key on every request.
const APIKeyHeader = "X-API-Key"

// HTTPTransport sends requests to the Base HTTP API.
type HTTPTransport struct {
	client *httpx.Client
}

// NewHTTPTransport returns a transport for baseURL that authenticates with
// dataKey. Retries and timeouts follow the supplied httpx options.
func NewHTTPTransport(baseURL, dataKey string, opts ...httpx.Option) (*HTTPTransport, error) {
	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	headers.Set("Accept", "application/json")
	if dataKey != "" {
		headers.Set(APIKeyHeader, dataKey)
	}
	cl, err := httpx.NewClient(baseURL, append([]httpx.Option{httpx.WithHeaders(headers)}, opts...)...)
	if err != nil {
		return nil, err
	}
	return &HTTPTransport{client: cl}, nil
}

// Send encodes body as JSON and performs the request.
func (t *HTTPTransport) Send(ctx context.Context, method, path string, body any) (*Response, error) {
	if t == nil || t.client == nil {
		return nil, errors.New("base: http transport not configured")
	}
	var payload []byte
	if body != nil {
		data, err := baseapi.Marshal(body)
		if err != nil {
			return nil, &TransportError{Kind: KindEncode, Message: err.Error(), Err: err}
		}
		payload = data
	}

	resp, err := t.client.Do(ctx, &httpx.Request{Method: method, Path: path, Body: payload})
	if err != nil {
		var httpErr *httpx.HTTPError
		if errors.As(err, &httpErr) {
			return &Response{Status: httpErr.StatusCode, Body: httpErr.Body}, nil
		}
		return nil, asTransportError(err)
	}
	data, err := httpx.ReadAllAndClose(resp.Body)
	if err != nil {
		return nil, asTransportError(err)
	}
	return &Response{Status: resp.StatusCode, Body: data}, nil
}

func asTransportError(err error) error {
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	kind := KindNetwork
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		kind = KindCanceled
	}
	return &TransportError{Kind: kind, Message: err.Error(), Err: err}
}

// send wraps Transport.Send so every failure is a *TransportError.
func send(ctx context.Context, t Transport, method, path string, body any) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, asTransportError(err)
	}
	resp, err := t.Send(ctx, method, path, body)
	if err != nil {
		return nil, asTransportError(err)
	}
	if resp == nil {
		return nil, &TransportError{Kind: KindNetwork, Message: "transport returned no response"}
	}
	return resp, nil
}

// statusError interprets a non-2xx response. Structured error bodies become
// RemoteValidationError, anything else a status TransportError.
func statusError(resp *Response) error {
	if resp.Status >= 200 && resp.Status < 300 {
		return nil
	}
	if msgs := baseapi.ErrorMessages(resp.Body); msgs != nil {
		return &RemoteValidationError{Status: resp.Status, Messages: msgs}
	}
	return &TransportError{
		Kind:    KindStatus,
		Status:  resp.Status,
		Message: truncate(string(resp.Body), 256),
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
