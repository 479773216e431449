package services

import (
	"github.com/isdelr/practice-server/internal/auth"
	"github.com/isdelr/practice-server/internal/models"
	"github.com/isdelr/practice-server/internal/query"
	"github.com/isdelr/practice-server/internal/rules"
	"github.com/isdelr/practice-server/internal/store"
	"github.com/isdelr/practice-server/internal/websocket"
	"github.com/rs/zerolog/log"
)

// RequestContext carries what the middleware resolved for one request.
type RequestContext struct {
	User    models.Record
	Session *auth.Session
	Admin   bool
}

// UserID returns the current user's id, or "".
func (rc RequestContext) UserID() string {
	return rc.User.ID()
}

// Publisher receives change feed entries.
type Publisher interface {
	Publish(change websocket.Change)
}

// MutationRecorder counts successful writes.
type MutationRecorder interface {
	RecordMutation(collection, kind string)
}

// DataServiceProvider defines the interface for the generic collection CRUD
// service. tokens are the path segments after the collection name.
type DataServiceProvider interface {
	Collections() []string
	Get(rc RequestContext, collection string, tokens []string, params query.Params) (interface{}, error)
	Create(rc RequestContext, collection string, tokens []string, body models.Record) (models.Record, error)
	Replace(rc RequestContext, collection string, tokens []string, body models.Record) (models.Record, error)
	Merge(rc RequestContext, collection string, tokens []string, body models.Record) (models.Record, error)
	Delete(rc RequestContext, collection string, tokens []string) (models.Record, error)
	ViewChange(rc RequestContext, change websocket.Change) (models.Record, bool)
}

// DataOption configures a DataService.
type DataOption func(*DataService)

// WithEvents writes an audit event for every mutation.
func WithEvents(events EventServiceProvider) DataOption {
	return func(s *DataService) { s.events = events }
}

// WithPublisher sends every mutation to the change feed.
func WithPublisher(p Publisher) DataOption {
	return func(s *DataService) { s.publisher = p }
}

// WithMetrics counts mutations.
func WithMetrics(m MutationRecorder) DataOption {
	return func(s *DataService) { s.metrics = m }
}

// DataService implements collection CRUD over the public store, guarded by
// the access rules.
type DataService struct {
	public    *store.Store
	protected *store.Store
	checker   *rules.Checker
	events    EventServiceProvider
	publisher Publisher
	metrics   MutationRecorder
}

// NewDataService creates a new DataService. The protected store is only used
// to resolve load relations into the users collection.
func NewDataService(public, protected *store.Store, ruleSet *rules.RuleSet, opts ...DataOption) *DataService {
	s := &DataService{public: public, protected: protected}
	s.checker = rules.NewChecker(ruleSet, public.Get)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Collections lists the public collection names.
func (s *DataService) Collections() []string {
	return s.public.Collections()
}

// Get returns the collection names, a single record, a list of records or a
// count, depending on the path and query.
func (s *DataService) Get(rc RequestContext, collection string, tokens []string, params query.Params) (interface{}, error) {
	if len(tokens) > 1 {
		return nil, RequestError()
	}
	if collection == "" {
		return s.public.Collections(), nil
	}

	q, err := query.Parse(params)
	if err != nil {
		return nil, fromReadError(err)
	}

	if len(tokens) == 1 {
		return s.getOne(rc, collection, tokens[0], q)
	}
	return s.getList(rc, collection, q)
}

func (s *DataService) getOne(rc RequestContext, collection, id string, q *query.Query) (interface{}, error) {
	record, err := s.public.Get(collection, id)
	if err != nil {
		return nil, fromReadError(err)
	}

	req := rules.Request{
		Action:     rules.ActionRead,
		Collection: collection,
		User:       rc.User,
		Admin:      rc.Admin,
		Data:       record,
	}
	if err := s.checker.Authorize(req); err != nil {
		return nil, fromRuleError(err)
	}

	shaped, err := q.ApplyOne(record, s.load)
	if err != nil {
		return nil, fromReadError(err)
	}
	req.Output, req.RecordID = shaped, id
	s.checker.Redact(req)
	return shaped, nil
}

func (s *DataService) getList(rc RequestContext, collection string, q *query.Query) (interface{}, error) {
	records, err := s.public.List(collection)
	if err != nil {
		return nil, fromReadError(err)
	}

	if err := s.checker.Authorize(rules.Request{
		Action:     rules.ActionRead,
		Collection: collection,
		User:       rc.User,
		Admin:      rc.Admin,
	}); err != nil {
		return nil, fromRuleError(err)
	}

	res, err := q.Apply(records, s.load)
	if err != nil {
		return nil, fromReadError(err)
	}
	if res.Counted {
		return res.Count, nil
	}

	for i, record := range res.Records {
		s.checker.Redact(rules.Request{
			Action:     rules.ActionRead,
			Collection: collection,
			User:       rc.User,
			Admin:      rc.Admin,
			Data:       res.Sources[i],
			Output:     record,
		})
	}
	if res.Records == nil {
		return []models.Record{}, nil
	}
	return res.Records, nil
}

// Create adds a record owned by the current user.
func (s *DataService) Create(rc RequestContext, collection string, tokens []string, body models.Record) (models.Record, error) {
	if len(tokens) > 1 {
		return nil, RequestError()
	}
	if len(tokens) > 0 {
		return nil, RequestError("Use PUT to update records")
	}
	if body == nil {
		body = models.Record{}
	}

	if err := s.checker.Check(rules.Request{
		Action:     rules.ActionCreate,
		Collection: collection,
		User:       rc.User,
		Admin:      rc.Admin,
		NewData:    body,
	}); err != nil {
		return nil, fromRuleError(err)
	}

	delete(body, models.FieldOwnerID)
	if id := rc.UserID(); id != "" {
		body[models.FieldOwnerID] = id
	}

	created, err := s.public.Add(collection, body)
	if err != nil {
		log.Error().Err(err).Str("collection", collection).Msg("Failed to add record")
		return nil, RequestError()
	}
	s.recordChange(rc, models.EventRecordCreate, websocket.ActionCreate, collection, created.ID(), created)
	return created, nil
}

// Replace overwrites a record, keeping its system fields.
func (s *DataService) Replace(rc RequestContext, collection string, tokens []string, body models.Record) (models.Record, error) {
	return s.update(rc, collection, tokens, body, s.public.Set)
}

// Merge shallow-merges body onto a record.
func (s *DataService) Merge(rc RequestContext, collection string, tokens []string, body models.Record) (models.Record, error) {
	return s.update(rc, collection, tokens, body, s.public.Merge)
}

type writeFunc func(collection, id string, data models.Record) (models.Record, error)

func (s *DataService) update(rc RequestContext, collection string, tokens []string, body models.Record, write writeFunc) (models.Record, error) {
	if len(tokens) > 1 {
		return nil, RequestError()
	}
	if len(tokens) != 1 {
		return nil, RequestError("Missing entry ID")
	}
	id := tokens[0]
	if body == nil {
		body = models.Record{}
	}

	existing, err := s.public.Get(collection, id)
	if err != nil {
		return nil, NotFoundError()
	}

	if err := s.checker.Check(rules.Request{
		Action:     rules.ActionUpdate,
		Collection: collection,
		User:       rc.User,
		Admin:      rc.Admin,
		Data:       existing,
		NewData:    body,
	}); err != nil {
		return nil, fromRuleError(err)
	}

	updated, err := write(collection, id, body)
	if err != nil {
		if isNotFound(err) {
			return nil, NotFoundError()
		}
		log.Error().Err(err).Str("collection", collection).Str("id", id).Msg("Failed to update record")
		return nil, RequestError()
	}
	s.recordChange(rc, models.EventRecordUpdate, websocket.ActionUpdate, collection, id, updated)
	return updated, nil
}

// Delete removes a record and returns its tombstone.
func (s *DataService) Delete(rc RequestContext, collection string, tokens []string) (models.Record, error) {
	if len(tokens) > 1 {
		return nil, RequestError()
	}
	if len(tokens) != 1 {
		return nil, RequestError("Missing entry ID")
	}
	id := tokens[0]

	existing, err := s.public.Get(collection, id)
	if err != nil {
		return nil, NotFoundError()
	}

	if err := s.checker.Check(rules.Request{
		Action:     rules.ActionDelete,
		Collection: collection,
		User:       rc.User,
		Admin:      rc.Admin,
		Data:       existing,
	}); err != nil {
		return nil, fromRuleError(err)
	}

	tombstone, err := s.public.Delete(collection, id)
	if err != nil {
		if isNotFound(err) {
			return nil, NotFoundError()
		}
		log.Error().Err(err).Str("collection", collection).Str("id", id).Msg("Failed to delete record")
		return nil, RequestError()
	}
	s.recordChange(rc, models.EventRecordDelete, websocket.ActionDelete, collection, id, existing)
	return tombstone, nil
}

// ViewChange applies rc's read rules to a change feed entry. It returns the
// record as rc may see it, and false when rc may not read it at all.
func (s *DataService) ViewChange(rc RequestContext, change websocket.Change) (models.Record, bool) {
	req := rules.Request{
		Action:     rules.ActionRead,
		Collection: change.Collection,
		User:       rc.User,
		Admin:      rc.Admin,
		Data:       change.Record,
		RecordID:   change.ID,
	}
	if err := s.checker.Authorize(req); err != nil {
		return nil, false
	}
	if change.Record == nil {
		return nil, true
	}
	req.Output = change.Record.Clone()
	s.checker.Redact(req)
	return req.Output, true
}

// load resolves a load relation; users come from the protected store.
func (s *DataService) load(collection, id string) (models.Record, error) {
	if collection == auth.UsersCollection {
		return s.protected.Get(collection, id)
	}
	return s.public.Get(collection, id)
}

func (s *DataService) recordChange(rc RequestContext, eventType, action, collection, id string, record models.Record) {
	if s.events != nil {
		if err := s.events.CreateEvent(eventType, collection, id, rc.UserID()); err != nil {
			log.Error().Err(err).Str("type", eventType).Str("collection", collection).Msg("Failed to write audit event")
		}
	}
	if s.publisher != nil {
		s.publisher.Publish(websocket.Change{Action: action, Collection: collection, ID: id, Record: record.Clone()})
	}
	if s.metrics != nil {
		s.metrics.RecordMutation(collection, action)
	}
}
