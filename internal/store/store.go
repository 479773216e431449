// Package store provides the in-memory record store backing every collection.
//
// A Store maps collection name → record id → record. Collections are created
// lazily on first write. Every value handed out is a deep copy; callers can
// never reach the stored maps.
package store

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/isdelr/practice-server/internal/models"
)

var (
	// ErrCollectionNotFound is returned when the addressed collection does not exist.
	ErrCollectionNotFound = errors.New("collection does not exist")
	// ErrEntryNotFound is returned when the addressed record does not exist.
	ErrEntryNotFound = errors.New("entry does not exist")
)

// Seed is the initial content of a store: collection → id → record.
type Seed map[string]map[string]models.Record

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for system timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides the record id generator.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// Store is an in-memory collection store safe for concurrent use.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]models.Record
	now         func() time.Time
	newID       func() string
}

// New creates a Store populated with seed.
func New(seed Seed, opts ...Option) *Store {
	s := &Store{
		collections: make(map[string]map[string]models.Record),
		now:         time.Now,
		newID:       func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}

	for name, records := range seed {
		target := make(map[string]models.Record, len(records))
		for id, record := range records {
			target[id] = record.Clone()
		}
		s.collections[name] = target
	}
	return s
}

func (s *Store) timestamp() float64 {
	return float64(s.now().UnixMilli())
}

// Collections returns the names of all collections, sorted.
func (s *Store) Collections() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns every record of a collection with its _id attached.
// Records are ordered by creation time, then id, for stable output.
func (s *Store) List(collection string) ([]models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	target, ok := s.collections[collection]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}

	result := make([]models.Record, 0, len(target))
	for id, record := range target {
		result = append(result, withID(record, id))
	}
	sortRecords(result)
	return result, nil
}

// Get returns a single record with its _id attached.
func (s *Store) Get(collection, id string) (models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, err := s.lookup(collection, id)
	if err != nil {
		return nil, err
	}
	return withID(record, id), nil
}

// Add stores a new record under a freshly generated id. System fields in data
// are discarded except _ownerId, which callers are expected to have set.
func (s *Store) Add(collection string, data models.Record) (models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := models.Record{}
	if owner, ok := data[models.FieldOwnerID]; ok {
		record[models.FieldOwnerID] = models.DeepCopy(owner)
	}
	assignClean(record, data)

	target, ok := s.collections[collection]
	if !ok {
		target = make(map[string]models.Record)
		s.collections[collection] = target
	}

	id := s.newID()
	for {
		if _, taken := target[id]; !taken {
			break
		}
		id = s.newID()
	}

	record[models.FieldCreatedOn] = s.timestamp()
	target[id] = record
	return withID(record, id), nil
}

// Set replaces a record. The existing _id, _createdOn and _ownerId survive;
// _updatedOn is recomputed.
func (s *Store) Set(collection, id string, data models.Record) (models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.lookup(collection, id)
	if err != nil {
		return nil, err
	}

	record := models.Record{}
	assignClean(record, data)
	for _, field := range []string{models.FieldID, models.FieldCreatedOn, models.FieldOwnerID} {
		if v, ok := existing[field]; ok {
			record[field] = models.DeepCopy(v)
		}
	}
	record[models.FieldUpdatedOn] = s.timestamp()

	s.collections[collection][id] = record
	return withID(record, id), nil
}

// Merge shallow-merges the non-system fields of data onto a record and
// recomputes _updatedOn.
func (s *Store) Merge(collection, id string, data models.Record) (models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.lookup(collection, id)
	if err != nil {
		return nil, err
	}

	record := existing.Clone()
	assignClean(record, data)
	record[models.FieldUpdatedOn] = s.timestamp()

	s.collections[collection][id] = record
	return withID(record, id), nil
}

// Delete removes a record and returns a tombstone holding the deletion time.
func (s *Store) Delete(collection, id string) (models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.lookup(collection, id); err != nil {
		return nil, err
	}
	delete(s.collections[collection], id)
	return models.Record{models.FieldDeletedOn: s.timestamp()}, nil
}

// Query returns every record whose fields match all entries of match.
// Strings compare case-insensitively, everything else by strict equality.
func (s *Store) Query(collection string, match models.Record) ([]models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	target, ok := s.collections[collection]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}

	var result []models.Record
	for id, record := range target {
		if matches(record, match) {
			result = append(result, withID(record, id))
		}
	}
	sortRecords(result)
	return result, nil
}

// Count returns the number of records per collection.
func (s *Store) Count() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int, len(s.collections))
	for name, records := range s.collections {
		counts[name] = len(records)
	}
	return counts
}

func (s *Store) lookup(collection, id string) (models.Record, error) {
	target, ok := s.collections[collection]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}
	record, ok := target[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	return record, nil
}

func matches(record, match models.Record) bool {
	for field, want := range match {
		got, present := record[field]
		if !present {
			continue
		}
		ws, wantString := want.(string)
		gs, gotString := got.(string)
		if wantString && gotString {
			if !strings.EqualFold(ws, gs) {
				return false
			}
			continue
		}
		if !StrictEqual(got, want) {
			return false
		}
	}
	return true
}

// StrictEqual compares two JSON values by type and value. Objects and arrays
// are equal only when they are the same reference, as in JavaScript.
func StrictEqual(a, b interface{}) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case float64:
		bv, ok := toFloat(b)
		return ok && av == bv
	case int:
		bv, ok := toFloat(b)
		return ok && float64(av) == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	default:
		return false
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func assignClean(target, source models.Record) {
	for k, v := range source {
		if models.IsSystemField(k) {
			continue
		}
		target[k] = models.DeepCopy(v)
	}
}

func withID(record models.Record, id string) models.Record {
	out := record.Clone()
	out[models.FieldID] = id
	return out
}

func sortRecords(records []models.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		ci, _ := toFloat(records[i][models.FieldCreatedOn])
		cj, _ := toFloat(records[j][models.FieldCreatedOn])
		if ci != cj {
			return ci < cj
		}
		return records[i].ID() < records[j].ID()
	})
}
