// Package jsonstore keeps a free-form JSON document addressed by path
// segments. Unlike the record store it has no collections, owners or rules:
// every node is whatever JSON value was last written there.
package jsonstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/isdelr/practice-server/internal/models"
	"github.com/rs/zerolog/log"
)

// ErrNotContainer is returned when a write has to descend through a value
// that is not an object.
var ErrNotContainer = errors.New("path passes through a non-object value")

// Tree is a concurrency safe JSON document.
type Tree struct {
	mu    sync.Mutex
	root  map[string]interface{}
	newID func() string
}

// New creates a Tree holding a deep copy of seed.
func New(seed map[string]interface{}) *Tree {
	t := &Tree{
		root:  make(map[string]interface{}),
		newID: func() string { return uuid.New().String() },
	}
	for k, v := range seed {
		t.root[k] = models.DeepCopy(v)
	}
	return t
}

// LoadDir reads every *.json file in dir into a top-level key named after the
// file. A missing directory yields an empty tree.
func LoadDir(dir string) (map[string]interface{}, error) {
	seed := make(map[string]interface{})
	if dir == "" {
		return seed, nil
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", file, err)
		}
		var content interface{}
		if err := json.Unmarshal(data, &content); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", file, err)
		}
		key := strings.TrimSuffix(filepath.Base(file), ".json")
		seed[key] = content
		log.Debug().Str("file", file).Str("key", key).Msg("Loaded jsonstore seed")
	}
	return seed, nil
}

// Get walks path and returns a copy of the value found there. ok is false
// when any segment is missing.
func (t *Tree) Get(path []string) (value interface{}, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	node, ok := t.walk(path)
	if !ok {
		return nil, false
	}
	return models.DeepCopy(node), true
}

// Post stores body, tagged with a fresh _id, as a new child of path.
// Missing intermediate objects are created.
func (t *Tree) Post(path []string, body interface{}) (interface{}, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	parent := t.root
	for _, segment := range path {
		child, exists := parent[segment]
		if !exists {
			created := make(map[string]interface{})
			parent[segment] = created
			parent = created
			continue
		}
		next, ok := child.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotContainer, segment)
		}
		parent = next
	}

	id := t.newID()
	entry := make(map[string]interface{})
	if obj, ok := body.(map[string]interface{}); ok {
		for k, v := range obj {
			entry[k] = models.DeepCopy(v)
		}
	}
	entry[models.FieldID] = id
	parent[id] = entry
	return models.DeepCopy(entry), nil
}

// Put replaces the value at path, but only if one is already there.
func (t *Tree) Put(path []string, body interface{}) (interface{}, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(path) == 0 {
		return nil, false
	}
	parent, ok := t.walk(path[:len(path)-1])
	if !ok {
		return nil, false
	}
	obj, ok := parent.(map[string]interface{})
	if !ok {
		return nil, false
	}
	leaf := path[len(path)-1]
	if _, exists := obj[leaf]; !exists {
		return nil, false
	}
	obj[leaf] = models.DeepCopy(body)
	return models.DeepCopy(obj[leaf]), true
}

// Patch shallow-merges an object body onto the object at path. Non-object
// targets are returned unchanged.
func (t *Tree) Patch(path []string, body interface{}) (interface{}, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	node, ok := t.walk(path)
	if !ok {
		return nil, false
	}
	target, isObj := node.(map[string]interface{})
	patch, isPatch := body.(map[string]interface{})
	if isObj && isPatch {
		for k, v := range patch {
			target[k] = models.DeepCopy(v)
		}
	}
	return models.DeepCopy(node), true
}

// Delete removes the value at path and returns it, or nil when there was
// nothing to remove.
func (t *Tree) Delete(path []string) interface{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(path) == 0 {
		return nil
	}
	parent, ok := t.walk(path[:len(path)-1])
	if !ok {
		return nil
	}
	obj, ok := parent.(map[string]interface{})
	if !ok {
		return nil
	}
	leaf := path[len(path)-1]
	removed, exists := obj[leaf]
	if !exists {
		return nil
	}
	delete(obj, leaf)
	return removed
}

func (t *Tree) walk(path []string) (interface{}, bool) {
	var node interface{} = t.root
	for _, segment := range path {
		obj, ok := node.(map[string]interface{})
		if !ok {
			return nil, false
		}
		node, ok = obj[segment]
		if !ok {
			return nil, false
		}
	}
	return node, true
}
