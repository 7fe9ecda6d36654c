package database

import (
	"cmp"
	"os"
	"path/filepath"
	"slices"

	"heapstore/pkg/primitives"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// CatalogFile is the name of the table list kept in the data directory.
const CatalogFile = "tables.yaml"

// tableEntry is how one table is remembered between runs.
type tableEntry struct {
	Name    string             `yaml:"name"`
	ID      primitives.TableID `yaml:"id"`
	Schema  string             `yaml:"schema"`
	Columns []string           `yaml:"columns,omitempty"`
	File    string             `yaml:"file"`
}

type catalogFile struct {
	Tables []tableEntry `yaml:"tables"`
}

func loadCatalog(dataDir string) (catalogFile, error) {
	var cat catalogFile
	data, err := os.ReadFile(filepath.Join(dataDir, CatalogFile))
	if os.IsNotExist(err) {
		return cat, nil
	}
	if err != nil {
		return cat, errors.Wrap(err, "read table catalog")
	}
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return cat, errors.Wrap(err, "parse table catalog")
	}
	return cat, nil
}

func (c catalogFile) save(dataDir string) error {
	slices.SortFunc(c.Tables, func(a, b tableEntry) int { return cmp.Compare(a.ID, b.ID) })
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "marshal table catalog")
	}

	path := filepath.Join(dataDir, CatalogFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errors.Wrap(err, "write table catalog")
	}
	return errors.Wrap(os.Rename(tmp, path), "replace table catalog")
}

func (c catalogFile) nextID() primitives.TableID {
	next := primitives.TableID(1)
	for _, t := range c.Tables {
		if t.ID >= next {
			next = t.ID + 1
		}
	}
	return next
}
