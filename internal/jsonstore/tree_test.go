package jsonstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTree() *Tree {
	t := New(map[string]interface{}{
		"phonebook": map[string]interface{}{
			"p1": map[string]interface{}{"person": "Maya", "phone": "+1-555-7653"},
		},
		"motd": "hello",
	})
	t.newID = func() string { return "new-id" }
	return t
}

func TestTree_Get(t *testing.T) {
	tree := newTestTree()

	v, ok := tree.Get([]string{"phonebook", "p1", "person"})
	require.True(t, ok)
	assert.Equal(t, "Maya", v)

	_, ok = tree.Get([]string{"phonebook", "nope"})
	assert.False(t, ok)

	_, ok = tree.Get([]string{"motd", "deeper"})
	assert.False(t, ok)

	entry, ok := tree.Get([]string{"phonebook", "p1"})
	require.True(t, ok)
	entry.(map[string]interface{})["person"] = "changed"
	v, _ = tree.Get([]string{"phonebook", "p1", "person"})
	assert.Equal(t, "Maya", v)
}

func TestTree_Post(t *testing.T) {
	tree := newTestTree()

	created, err := tree.Post([]string{"phonebook"}, map[string]interface{}{"person": "Ivan", "_id": "forged"})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"person": "Ivan", "_id": "new-id"}, created)

	created, err = tree.Post([]string{"a", "b"}, map[string]interface{}{"x": 1.0})
	require.NoError(t, err)
	assert.Equal(t, "new-id", created.(map[string]interface{})["_id"])
	v, ok := tree.Get([]string{"a", "b", "new-id", "x"})
	require.True(t, ok)
	assert.Equal(t, 1.0, v)

	_, err = tree.Post([]string{"motd"}, map[string]interface{}{})
	assert.ErrorIs(t, err, ErrNotContainer)
}

func TestTree_PutPatchDelete(t *testing.T) {
	tree := newTestTree()

	_, ok := tree.Put([]string{"phonebook", "p2"}, "x")
	assert.False(t, ok)

	replaced, ok := tree.Put([]string{"phonebook", "p1"}, map[string]interface{}{"person": "Maya"})
	require.True(t, ok)
	assert.Equal(t, map[string]interface{}{"person": "Maya"}, replaced)

	patched, ok := tree.Patch([]string{"phonebook", "p1"}, map[string]interface{}{"phone": "123"})
	require.True(t, ok)
	assert.Equal(t, map[string]interface{}{"person": "Maya", "phone": "123"}, patched)

	patched, ok = tree.Patch([]string{"motd"}, map[string]interface{}{"phone": "123"})
	require.True(t, ok)
	assert.Equal(t, "hello", patched)

	_, ok = tree.Patch([]string{"nothing"}, map[string]interface{}{})
	assert.False(t, ok)

	removed := tree.Delete([]string{"phonebook", "p1"})
	assert.Equal(t, map[string]interface{}{"person": "Maya", "phone": "123"}, removed)
	assert.Nil(t, tree.Delete([]string{"phonebook", "p1"}))
	assert.Nil(t, tree.Delete([]string{"missing", "p1"}))
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bus.json"), []byte(`{"1287":{"name":"Central"}}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte(`ignored`), 0o644))

	seed, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"bus": map[string]interface{}{"1287": map[string]interface{}{"name": "Central"}},
	}, seed)

	seed, err = LoadDir(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Empty(t, seed)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte(`{`), 0o644))
	_, err = LoadDir(dir)
	assert.Error(t, err)
}
