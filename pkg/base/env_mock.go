package base

import (
	"context"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/basekit/base_sdk_go/internal/devseed"
	"github.com/basekit/base_sdk_go/internal/emulator"
)

func newMockClient(baseName string, opts []Option) (*Client, string, error) {
	if baseName == "" {
		baseName = defaultMockBase
	}
	store := emulator.New()
	if path := strings.TrimSpace(os.Getenv(envMockSeed)); path != "" {
		seed, err := devseed.Load(path)
		if err != nil {
			return nil, "", errors.WithMessage(err, "base: load mock seed")
		}
		if err := store.Seed(seed[baseName]); err != nil {
			return nil, "", errors.WithMessage(err, "base: apply mock seed")
		}
	}
	return NewWithTransport(&emulatorTransport{store: store}, opts...), ModeMock, nil
}

type emulatorTransport struct {
	store *emulator.Store
}

func (t *emulatorTransport) Send(ctx context.Context, method, path string, body any) (*Response, error) {
	status, data, err := t.store.Send(ctx, method, path, body)
	if errors.Is(err, emulator.ErrEncode) {
		return nil, &TransportError{Kind: KindEncode, Message: err.Error(), Err: err}
	}
	if err != nil {
		return nil, err
	}
	return &Response{Status: status, Body: data}, nil
}
