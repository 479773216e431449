package services

import (
	"github.com/isdelr/practice-server/internal/auth"
	"github.com/isdelr/practice-server/internal/models"
	"github.com/rs/zerolog/log"
)

// UserServiceProvider defines the interface for user services.
type UserServiceProvider interface {
	Register(payload models.Record) (models.Record, error)
	Login(payload models.Record) (models.Record, error)
	Logout(rc RequestContext) error
	Me(rc RequestContext) (models.Record, error)
}

// UserService provides business logic for user management on top of the
// session manager.
type UserService struct {
	sessions *auth.Manager
	events   EventServiceProvider
}

// NewUserService creates a new UserService. events may be nil.
func NewUserService(sessions *auth.Manager, events EventServiceProvider) *UserService {
	return &UserService{sessions: sessions, events: events}
}

// Register creates a user and returns it with a fresh accessToken.
func (s *UserService) Register(payload models.Record) (models.Record, error) {
	if payload == nil {
		payload = models.Record{}
	}
	user, err := s.sessions.Register(payload)
	if err != nil {
		return nil, FromAuthError(err)
	}
	s.audit(models.EventUserRegister, user.ID())
	return user, nil
}

// Login verifies credentials and returns the user with a new accessToken.
func (s *UserService) Login(payload models.Record) (models.Record, error) {
	if payload == nil {
		payload = models.Record{}
	}
	user, err := s.sessions.Login(payload)
	if err != nil {
		return nil, FromAuthError(err)
	}
	s.audit(models.EventUserLogin, user.ID())
	return user, nil
}

// Logout ends the session the request authenticated with.
func (s *UserService) Logout(rc RequestContext) error {
	if err := s.sessions.Logout(rc.Session); err != nil {
		return FromAuthError(err)
	}
	s.audit(models.EventUserLogout, rc.UserID())
	return nil
}

// Me returns the current user.
func (s *UserService) Me(rc RequestContext) (models.Record, error) {
	if rc.User == nil {
		return nil, AuthorizationError()
	}
	return auth.Me(rc.User), nil
}

func (s *UserService) audit(eventType, userID string) {
	if s.events == nil {
		return
	}
	if err := s.events.CreateEvent(eventType, auth.UsersCollection, userID, userID); err != nil {
		log.Error().Err(err).Str("type", eventType).Msg("Failed to write audit event")
	}
}
