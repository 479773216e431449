// Package seed provides the data and access rules the server starts with.
// The defaults are embedded; each can be replaced from disk.
package seed

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/isdelr/practice-server/internal/models"
	"github.com/isdelr/practice-server/internal/rules"
	"github.com/isdelr/practice-server/internal/store"
	"github.com/rs/zerolog/log"
)

//go:embed data
var embedded embed.FS

// Public returns the default content of the public store.
func Public() (store.Seed, error) {
	return load(embedded, "data/public")
}

// Protected returns the default users and sessions.
func Protected() (store.Seed, error) {
	return load(embedded, "data/protected")
}

// Rules returns the default rule set.
func Rules() (*rules.RuleSet, error) {
	f, err := embedded.Open("data/rules.yaml")
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return rules.Load(f)
}

// LoadDir reads a seed from dir, one <collection>.json file per collection.
func LoadDir(dir string) (store.Seed, error) {
	return load(os.DirFS(dir), ".")
}

// LoadRules reads a rule set from a YAML or JSON file. An empty path returns
// the embedded defaults.
func LoadRules(file string) (*rules.RuleSet, error) {
	if file == "" {
		return Rules()
	}
	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("failed to open rules file: %w", err)
	}
	defer f.Close()

	rs, err := rules.Load(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules from %s: %w", file, err)
	}
	return rs, nil
}

func load(fsys fs.FS, dir string) (store.Seed, error) {
	files, err := fs.Glob(fsys, path.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}

	seed := make(store.Seed, len(files))
	for _, file := range files {
		data, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", file, err)
		}
		var records map[string]models.Record
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", file, err)
		}
		if records == nil {
			records = make(map[string]models.Record)
		}
		collection := strings.TrimSuffix(path.Base(file), ".json")
		seed[collection] = records
		log.Debug().Str("collection", collection).Int("records", len(records)).Msg("Loaded seed collection")
	}
	return seed, nil
}
