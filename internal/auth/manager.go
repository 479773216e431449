// Package auth manages users and sessions in the protected store.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/isdelr/practice-server/internal/models"
	"github.com/isdelr/practice-server/internal/store"
)

// Protected store collections.
const (
	UsersCollection    = "users"
	SessionsCollection = "sessions"
)

var (
	ErrMissingFields      = errors.New("missing fields")
	ErrConflict           = errors.New("identity already exists")
	ErrInvalidCredentials = errors.New("login or password don't match")
	ErrInvalidToken       = errors.New("invalid access token")
	ErrNoSession          = errors.New("user session does not exist")
)

// Session is the server side half of an access token.
type Session struct {
	ID          string
	UserID      string
	AccessToken string
	ExpiresOn   time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithIdentity sets the field users log in with. Defaults to "email".
func WithIdentity(field string) Option {
	return func(m *Manager) { m.identity = field }
}

// WithHasher sets the password hasher.
func WithHasher(h Hasher) Option {
	return func(m *Manager) { m.hasher = h }
}

// WithSessionTTL makes sessions expire after ttl. Zero keeps them forever.
func WithSessionTTL(ttl time.Duration) Option {
	return func(m *Manager) { m.ttl = ttl }
}

// WithClock overrides the time source used for session expiry.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager registers users, opens and closes sessions and resolves access
// tokens.
type Manager struct {
	protected *store.Store
	tokens    *TokenIssuer
	hasher    Hasher
	identity  string
	ttl       time.Duration
	now       func() time.Time
}

// NewManager creates a Manager over the protected store.
func NewManager(protected *store.Store, tokens *TokenIssuer, opts ...Option) *Manager {
	m := &Manager{
		protected: protected,
		tokens:    tokens,
		identity:  "email",
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.hasher == nil {
		m.hasher = hmacHasher{secret: tokens.key}
	}
	return m
}

// Identity returns the name of the identity field.
func (m *Manager) Identity() string {
	return m.identity
}

// Register creates a user and opens a session for it. The returned record has
// no password hash and carries the accessToken.
func (m *Manager) Register(payload models.Record) (models.Record, error) {
	identity, _ := payload.String(m.identity)
	password, _ := payload.String(models.FieldPassword)
	if identity == "" || password == "" {
		return nil, ErrMissingFields
	}

	existing, err := m.findUsers(identity)
	if err != nil {
		return nil, err
	}
	if len(existing) != 0 {
		return nil, fmt.Errorf("%w: A user with the same %s already exists", ErrConflict, m.identity)
	}

	hashed, err := m.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := payload.Clone()
	for _, field := range models.SystemFields {
		delete(user, field)
	}
	delete(user, models.FieldPassword)
	delete(user, models.FieldAccessToken)
	user[models.FieldHashedPassword] = hashed

	created, err := m.protected.Add(UsersCollection, user)
	if err != nil {
		return nil, fmt.Errorf("failed to store user: %w", err)
	}
	return m.openSession(created)
}

// Login verifies credentials and opens a new session.
func (m *Manager) Login(payload models.Record) (models.Record, error) {
	identity, _ := payload.String(m.identity)
	password, _ := payload.String(models.FieldPassword)

	users, err := m.findUsers(identity)
	if err != nil {
		return nil, err
	}
	if len(users) != 1 {
		return nil, ErrInvalidCredentials
	}
	hashed, _ := users[0].String(models.FieldHashedPassword)
	if !m.hasher.Verify(hashed, password) {
		return nil, ErrInvalidCredentials
	}
	return m.openSession(users[0])
}

// Logout closes the session a request authenticated with.
func (m *Manager) Logout(session *Session) error {
	if session == nil {
		return ErrNoSession
	}
	if _, err := m.protected.Delete(SessionsCollection, session.ID); err != nil {
		if errors.Is(err, store.ErrCollectionNotFound) || errors.Is(err, store.ErrEntryNotFound) {
			return ErrNoSession
		}
		return err
	}
	return nil
}

// Authenticate resolves an access token to its user and session. The token
// must verify and name a live session whose stored token matches.
func (m *Manager) Authenticate(token string) (models.Record, *Session, error) {
	sessionID, err := m.tokens.Validate(token, m.now())
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	record, err := m.protected.Get(SessionsCollection, sessionID)
	if err != nil {
		return nil, nil, ErrInvalidToken
	}
	session := sessionFromRecord(record)
	if session.AccessToken != token {
		return nil, nil, ErrInvalidToken
	}
	if !session.ExpiresOn.IsZero() && !m.now().Before(session.ExpiresOn) {
		return nil, nil, ErrInvalidToken
	}

	user, err := m.protected.Get(UsersCollection, session.UserID)
	if err != nil {
		return nil, nil, ErrInvalidToken
	}
	return user, &session, nil
}

// Me returns the current user without its password hash.
func Me(user models.Record) models.Record {
	if user == nil {
		return nil
	}
	return user.Sanitized()
}

// User returns a user from the protected store without its password hash.
func (m *Manager) User(id string) (models.Record, error) {
	user, err := m.protected.Get(UsersCollection, id)
	if err != nil {
		return nil, err
	}
	return user.Sanitized(), nil
}

// SweepExpired deletes every session past its expiry and reports how many
// were removed.
func (m *Manager) SweepExpired() (int, error) {
	if m.ttl <= 0 {
		return 0, nil
	}
	sessions, err := m.protected.List(SessionsCollection)
	if err != nil {
		if errors.Is(err, store.ErrCollectionNotFound) {
			return 0, nil
		}
		return 0, err
	}

	now := m.now()
	removed := 0
	for _, record := range sessions {
		session := sessionFromRecord(record)
		if session.ExpiresOn.IsZero() || now.Before(session.ExpiresOn) {
			continue
		}
		if _, err := m.protected.Delete(SessionsCollection, session.ID); err == nil {
			removed++
		}
	}
	return removed, nil
}

func (m *Manager) findUsers(identity string) ([]models.Record, error) {
	users, err := m.protected.Query(UsersCollection, models.Record{m.identity: identity})
	if err != nil {
		if errors.Is(err, store.ErrCollectionNotFound) {
			return nil, nil
		}
		return nil, err
	}
	out := users[:0]
	for _, u := range users {
		if v, ok := u.String(m.identity); ok && strings.EqualFold(v, identity) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *Manager) openSession(user models.Record) (models.Record, error) {
	session := models.Record{models.FieldUserID: user.ID()}
	var expiresOn time.Time
	if m.ttl > 0 {
		expiresOn = m.now().Add(m.ttl)
		session[models.FieldExpiresOn] = float64(expiresOn.UnixMilli())
	}

	created, err := m.protected.Add(SessionsCollection, session)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	token, err := m.tokens.Generate(created.ID(), expiresOn)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}
	created[models.FieldAccessToken] = token
	if _, err := m.protected.Set(SessionsCollection, created.ID(), created); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	result := user.Sanitized()
	result[models.FieldAccessToken] = token
	return result, nil
}

func sessionFromRecord(r models.Record) Session {
	s := Session{ID: r.ID()}
	s.UserID, _ = r.String(models.FieldUserID)
	s.AccessToken, _ = r.String(models.FieldAccessToken)
	if ms, ok := r[models.FieldExpiresOn].(float64); ok {
		s.ExpiresOn = time.UnixMilli(int64(ms))
	}
	return s
}
