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
	"github.com/basekit/base_sdk_go/pkg/log"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "base.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
data_key = "proj_secret"
base_name = "users"
api_url = "http://localhost:8787/v1"
timeout = "5s"
batch_size = 10
page_size = 100

[retry]
max_retries = 0
base_delay = "100ms"

[log]
level = "debug"
format = "json"
`)

	cfg, err := base.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "users", cfg.BaseName)
	assert.Equal(t, 10, cfg.BatchSize)
	require.NotNil(t, cfg.Retry.MaxRetries)
	assert.Equal(t, 0, *cfg.Retry.MaxRetries)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Len(t, cfg.Options(), 5)
}

func TestLoadConfigValidation(t *testing.T) {
	cases := map[string]string{
		"missing key":     `base_name = "users"`,
		"missing name":    `data_key = "p_s"`,
		"bad timeout":     "data_key = \"p_s\"\nbase_name = \"b\"\ntimeout = \"soon\"",
		"batch too large": "data_key = \"p_s\"\nbase_name = \"b\"\nbatch_size = 26",
		"bad jitter":      "data_key = \"p_s\"\nbase_name = \"b\"\n[retry]\njitter = 2.0",
		"bad log level":   "data_key = \"p_s\"\nbase_name = \"b\"\n[log]\nlevel = \"loud\"",
		"not toml":        `data_key = `,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := base.LoadConfig(writeConfig(t, content))
			assert.Error(t, err)
		})
	}

	_, err := base.LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestNewFromConfig(t *testing.T) {
	srv := mock.NewServer("/v1")
	require.NoError(t, srv.Seed("users", []base.Item{{"key": "u1"}}))
	ts := httptest.NewServer(srv)
	defer ts.Close()

	client, err := base.NewFromConfig(base.Config{
		DataKey:  testDataKey,
		BaseName: "users",
		APIURL:   ts.URL + "/v1",
		Timeout:  "2s",
	})
	require.NoError(t, err)
	item, err := client.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.NotNil(t, item)

	_, err = base.NewFromConfig(base.Config{BaseName: "users"})
	assert.Error(t, err)
}

func TestNewFromConfigAppliesLogSection(t *testing.T) {
	ts := httptest.NewServer(mock.NewServer("/v1"))
	defer ts.Close()

	dir := t.TempDir()
	logCfg := log.DefaultConfig()
	logCfg.Level = "debug"
	logCfg.Path = dir
	logCfg.DefaultPattern = "client.log"

	client, err := base.NewFromConfig(base.Config{
		DataKey:  testDataKey,
		BaseName: "users",
		APIURL:   ts.URL + "/v1",
		Log:      logCfg,
	})
	require.NoError(t, err)
	_, err = client.PutMany(context.Background(), []base.Item{{"key": "u1"}})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "client.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "writing chunk")
	assert.Contains(t, string(data), "module=base")

	logCfg.Path = ""
	logCfg.Level = "loud"
	_, err = base.NewFromConfig(base.Config{DataKey: testDataKey, BaseName: "users", Log: logCfg})
	assert.Error(t, err)
}
