package base

import (
	"os"
	"strings"

	"github.com/pkg/errors"
)

const (
	envMode     = "BASE_RUNTIME_MODE"
	envDataKey  = "BASE_DATA_KEY"
	envBaseName = "BASE_NAME"
	envAPIURL   = "BASE_API_URL"
	envMockSeed = "BASE_MOCK_SEED"

	// ModeAuto picks http when a data key is set, mock otherwise.
	ModeAuto = "auto"
	// ModeHTTP talks to the Base HTTP API.
	ModeHTTP = "http"
	// ModeMock serves the base from memory.
	ModeMock = "mock"

	defaultMockBase = "default"
)

// NewFromEnv initialises a Client from BASE_* environment variables and
// returns the resolved mode ("http" or "mock"). opts are applied after the
// options derived from the environment.
func NewFromEnv(opts ...Option) (client *Client, mode string, err error) {
	mode = strings.ToLower(strings.TrimSpace(os.Getenv(envMode)))
	dataKey := strings.TrimSpace(os.Getenv(envDataKey))
	baseName := strings.TrimSpace(os.Getenv(envBaseName))

	switch mode {
	case "", ModeAuto:
		if dataKey != "" {
			return newHTTPClient(dataKey, baseName, opts)
		}
		return newMockClient(baseName, opts)
	case ModeHTTP:
		if dataKey == "" {
			return nil, "", errors.Errorf("base: HTTP mode requires %s", envDataKey)
		}
		return newHTTPClient(dataKey, baseName, opts)
	case ModeMock:
		return newMockClient(baseName, opts)
	default:
		return nil, "", errors.Errorf("base: unsupported %s value %q", envMode, mode)
	}
}

func newHTTPClient(dataKey, baseName string, opts []Option) (*Client, string, error) {
	if baseName == "" {
		return nil, "", errors.Errorf("base: HTTP mode requires %s", envBaseName)
	}
	if u := strings.TrimSpace(os.Getenv(envAPIURL)); u != "" {
		opts = append([]Option{WithAPIURL(u)}, opts...)
	}
	client, err := New(dataKey, baseName, opts...)
	if err != nil {
		return nil, "", errors.WithMessage(err, "base: init HTTP client")
	}
	return client, ModeHTTP, nil
}
