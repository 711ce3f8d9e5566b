package devseed

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "seed.json", `{
		"users": [{"key": "u1", "name": "ann"}, {"name": "bob"}],
		"orders": []
	}`)

	seed, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"orders", "users"}, seed.Bases())
	require.Len(t, seed["users"], 2)
	assert.Equal(t, "u1", seed["users"][0]["key"])
	assert.Equal(t, "bob", seed["users"][1]["name"])
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "seed.toml", `
[[users]]
key = "u1"
age = 30

[[users]]
key = "u2"
tags = ["a", "b"]
`)

	seed, err := Load(path)
	require.NoError(t, err)
	require.Len(t, seed["users"], 2)
	assert.Equal(t, "u2", seed["users"][1]["key"])
	assert.EqualValues(t, 30, seed["users"][0]["age"])
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.json", `[1, 2]`))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "null.json", `{"users": [null]}`))
	assert.Error(t, err)
}
