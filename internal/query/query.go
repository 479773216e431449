// Package query implements the collection query language carried in the
// query string: where, sortBy, offset, pageSize, distinct, count, select and
// load. The stages always run in that order regardless of how the parameters
// are written.
package query

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/isdelr/practice-server/internal/models"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// DefaultPageSize applies when pageSize is given but is not a usable number.
const DefaultPageSize = 10

// Error is a query processing failure that is safe to report to the client.
type Error struct {
	msg string
}

func (e *Error) Error() string { return e.msg }

func newError(msg string) error { return &Error{msg: msg} }

func errorf(format string, args ...interface{}) error {
	return &Error{msg: fmt.Sprintf(format, args...)}
}

// Params holds decoded query string parameters, first value per key.
type Params map[string]string

// ParamsFromURL builds Params from parsed url values.
func ParamsFromURL(values url.Values) Params {
	p := make(Params, len(values))
	for k, v := range values {
		if len(v) > 0 {
			p[k] = v[0]
		} else {
			p[k] = ""
		}
	}
	return p
}

// Has reports whether the key was present, with or without a value.
func (p Params) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// Get returns the value of key, or "" if absent.
func (p Params) Get(key string) string {
	return p[key]
}

// Loader fetches a related record for the load stage.
type Loader func(collection, id string) (models.Record, error)

type sortKey struct {
	field string
	desc  bool
}

type relation struct {
	field      string
	foreignKey string
	collection string
}

// Query is a parsed, reusable query pipeline.
type Query struct {
	where    Predicate
	sortKeys []sortKey
	offset   *float64
	pageSize *float64
	distinct []string
	count    bool
	fields   []string
	load     []relation
}

// Result is the output of Apply: either records or, when count was
// requested, their number.
type Result struct {
	Records []models.Record
	// Sources holds the record each entry of Records was shaped from.
	Sources []models.Record
	Count   int
	Counted bool
}

// Parse builds a Query from request parameters.
func Parse(p Params) (*Query, error) {
	q := &Query{}

	if expr := p.Get("where"); expr != "" {
		pred, err := ParseWhere(expr)
		if err != nil {
			return nil, err
		}
		q.where = pred
	}

	if sortBy := p.Get("sortBy"); sortBy != "" {
		for _, entry := range splitList(sortBy) {
			parts := strings.Fields(entry)
			key := sortKey{field: parts[0]}
			if len(parts) > 1 && !strings.EqualFold(parts[1], "asc") {
				key.desc = true
			}
			q.sortKeys = append(q.sortKeys, key)
		}
	}

	if v := p.Get("offset"); v != "" {
		n, ok := toNumber(v)
		if !ok {
			n = 0
		}
		q.offset = &n
	}

	if v := p.Get("pageSize"); v != "" {
		n, ok := toNumber(v)
		if !ok || n == 0 {
			n = DefaultPageSize
		}
		q.pageSize = &n
	}

	if v := p.Get("distinct"); v != "" {
		q.distinct = splitList(v)
	}

	q.count = p.Has("count")

	if v := p.Get("select"); v != "" {
		q.fields = splitList(v)
	}

	if v := p.Get("load"); v != "" {
		for _, entry := range splitList(v) {
			rel, err := parseRelation(entry)
			if err != nil {
				return nil, err
			}
			q.load = append(q.load, rel)
		}
	}

	return q, nil
}

// HasWhere reports whether the query filters records.
func (q *Query) HasWhere() bool {
	return q.where != nil
}

// Apply runs the full pipeline on a list of records. Neither the input slice
// nor its records are modified; without select or load the shaped records
// are the input records.
func (q *Query) Apply(records []models.Record, load Loader) (Result, error) {
	out := records
	if q.where != nil {
		filtered := make([]models.Record, 0, len(records))
		for _, r := range records {
			ok, err := q.where(r)
			if err != nil {
				return Result{}, err
			}
			if ok {
				filtered = append(filtered, r)
			}
		}
		out = filtered
	} else {
		out = append([]models.Record(nil), records...)
	}

	if len(q.sortKeys) > 0 {
		if err := q.sort(out); err != nil {
			return Result{}, err
		}
	}

	if q.offset != nil {
		from, to := sliceBounds(len(out), *q.offset, float64(len(out)))
		out = out[from:to]
	}

	if q.pageSize != nil {
		from, to := sliceBounds(len(out), 0, *q.pageSize)
		out = out[from:to]
	}

	if len(q.distinct) > 0 {
		out = q.unique(out)
	}

	if q.count {
		return Result{Count: len(out), Counted: true}, nil
	}

	shaped := make([]models.Record, len(out))
	for i, r := range out {
		rec, err := q.shape(r, load)
		if err != nil {
			return Result{}, err
		}
		shaped[i] = rec
	}
	return Result{Records: shaped, Sources: out}, nil
}

// ApplyOne runs the select and load stages on a single record.
func (q *Query) ApplyOne(record models.Record, load Loader) (models.Record, error) {
	return q.shape(record, load)
}

func (q *Query) sort(records []models.Record) error {
	coll := collate.New(language.English)
	var sortErr error

	// Priority runs first to last, so sort from the last key to the first.
	for i := len(q.sortKeys) - 1; i >= 0; i-- {
		key := q.sortKeys[i]
		sort.SliceStable(records, func(a, b int) bool {
			c, err := compareField(coll, records[a][key.field], records[b][key.field])
			if err != nil {
				if sortErr == nil {
					sortErr = errorf("Cannot sort by %q: %v", key.field, err)
				}
				return false
			}
			if key.desc {
				c = -c
			}
			return c < 0
		})
		if sortErr != nil {
			return sortErr
		}
	}
	return nil
}

func compareField(coll *collate.Collator, a, b interface{}) (int, error) {
	an, aNum := a.(float64)
	bn, bNum := b.(float64)
	if aNum && bNum {
		switch {
		case an < bn:
			return -1, nil
		case an > bn:
			return 1, nil
		default:
			return 0, nil
		}
	}
	as, ok := a.(string)
	if !ok {
		return 0, fmt.Errorf("value %v is not comparable", a)
	}
	return coll.CompareString(as, stringify(b)), nil
}

func (q *Query) unique(records []models.Record) []models.Record {
	seen := make(map[string]bool, len(records))
	out := make([]models.Record, 0, len(records))
	for _, r := range records {
		parts := make([]string, len(q.distinct))
		for i, field := range q.distinct {
			parts[i] = stringify(r[field])
		}
		key := strings.Join(parts, "::")
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}

func (q *Query) shape(record models.Record, load Loader) (models.Record, error) {
	out := record
	switch {
	case len(q.fields) > 0:
		out = make(models.Record, len(q.fields))
		for _, field := range q.fields {
			if v, ok := record[field]; ok {
				out[field] = v
			}
		}
	case len(q.load) > 0:
		out = make(models.Record, len(record))
		for k, v := range record {
			out[k] = v
		}
	}

	for _, rel := range q.load {
		seekID, ok := out[rel.foreignKey].(string)
		if !ok || seekID == "" {
			out[rel.field] = nil
			continue
		}
		related, err := load(rel.collection, seekID)
		if err != nil {
			return nil, err
		}
		delete(related, models.FieldHashedPassword)
		out[rel.field] = related
	}
	return out, nil
}

func parseRelation(entry string) (relation, error) {
	field, target, ok := strings.Cut(entry, "=")
	if !ok {
		return relation{}, errorf("Invalid load clause %q", entry)
	}
	foreignKey, collection, ok := strings.Cut(target, ":")
	if !ok || field == "" || foreignKey == "" || collection == "" {
		return relation{}, errorf("Invalid load clause %q", entry)
	}
	return relation{field: field, foreignKey: foreignKey, collection: collection}, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
