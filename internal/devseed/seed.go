// Package devseed loads development seed data for the mock runtime and the
// sandbox server.
package devseed

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// File maps base names to the items seeded into them.
type File map[string][]map[string]any

// Load reads a seed file. Files ending in .toml are parsed as TOML (one
// array of tables per base); anything else is parsed as JSON.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "devseed: read file")
	}

	var seed File
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, &seed)
	} else {
		err = json.Unmarshal(data, &seed)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "devseed: parse %s", filepath.Base(path))
	}
	for name, items := range seed {
		if strings.TrimSpace(name) == "" {
			return nil, errors.New("devseed: base name is required")
		}
		for i, it := range items {
			if it == nil {
				return nil, errors.Errorf("devseed: %s item %d is empty", name, i)
			}
		}
	}
	return seed, nil
}

// Bases returns the seeded base names in order.
func (f File) Bases() []string {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
