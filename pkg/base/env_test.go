package base_test

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basekit/base_sdk_go/pkg/base"
	"github.com/basekit/base_sdk_go/pkg/base/mock"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"BASE_RUNTIME_MODE", "BASE_DATA_KEY", "BASE_NAME", "BASE_API_URL", "BASE_MOCK_SEED"} {
		t.Setenv(k, "")
	}
}

func TestNewFromEnvHTTP(t *testing.T) {
	clearEnv(t)
	srv := mock.NewServer("/v1")
	require.NoError(t, srv.Seed("users", []base.Item{{"key": "u1", "name": "ann"}}))
	ts := httptest.NewServer(srv)
	defer ts.Close()

	t.Setenv("BASE_DATA_KEY", testDataKey)
	t.Setenv("BASE_NAME", "users")
	t.Setenv("BASE_API_URL", ts.URL+"/v1")

	client, mode, err := base.NewFromEnv()
	require.NoError(t, err)
	assert.Equal(t, base.ModeHTTP, mode)

	item, err := client.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "ann", item["name"])
}

func TestNewFromEnvAutoFallsBackToMock(t *testing.T) {
	clearEnv(t)

	client, mode, err := base.NewFromEnv()
	require.NoError(t, err)
	assert.Equal(t, base.ModeMock, mode)

	_, err = client.Put(context.Background(), base.Item{"key": "a"})
	require.NoError(t, err)
	item, err := client.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.NotNil(t, item)
}

func TestNewFromEnvMockSeed(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"users":[{"key":"u1","age":30},{"key":"u2","age":12}],"orders":[{"key":"o1"}]}`), 0o600))

	t.Setenv("BASE_RUNTIME_MODE", "mock")
	t.Setenv("BASE_NAME", "users")
	t.Setenv("BASE_MOCK_SEED", path)

	client, mode, err := base.NewFromEnv()
	require.NoError(t, err)
	assert.Equal(t, base.ModeMock, mode)

	adults, err := client.FetchAll(context.Background(), base.Or(base.MustExpression(base.Where("age", base.OpGreaterOrEqual, 18))))
	require.NoError(t, err)
	require.Len(t, adults, 1)
	assert.Equal(t, "u1", adults[0].Key())

	order, err := client.Get(context.Background(), "o1")
	require.NoError(t, err)
	assert.Nil(t, order, "other bases are not seeded")
}

func TestNewFromEnvErrors(t *testing.T) {
	cases := map[string]map[string]string{
		"http without key":  {"BASE_RUNTIME_MODE": "http", "BASE_NAME": "users"},
		"http without name": {"BASE_RUNTIME_MODE": "http", "BASE_DATA_KEY": testDataKey},
		"bad data key":      {"BASE_DATA_KEY": "nounderscore", "BASE_NAME": "users"},
		"bad url":           {"BASE_DATA_KEY": testDataKey, "BASE_NAME": "users", "BASE_API_URL": "://not-a-url"},
		"unknown mode":      {"BASE_RUNTIME_MODE": "grpc"},
		"missing seed":      {"BASE_RUNTIME_MODE": "mock", "BASE_MOCK_SEED": "/does/not/exist.json"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, _, err := base.NewFromEnv()
			assert.Error(t, err)
		})
	}
}
