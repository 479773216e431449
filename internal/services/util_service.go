package services

import (
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// SettingThrottle delays every response when enabled.
const SettingThrottle = "throttle"

// UtilServiceProvider defines the interface for runtime switches.
type UtilServiceProvider interface {
	Set(values map[string]interface{})
	Setting(name string) (interface{}, bool)
	ThrottleDelay() time.Duration
}

// UtilService holds runtime switches toggled over HTTP.
type UtilService struct {
	mu       sync.RWMutex
	settings map[string]interface{}
	jitter   func() time.Duration
}

// NewUtilService creates a new UtilService with throttling set to throttle.
func NewUtilService(throttle bool) *UtilService {
	return &UtilService{
		settings: map[string]interface{}{SettingThrottle: throttle},
		jitter: func() time.Duration {
			return time.Duration(rand.Int63n(int64(500 * time.Millisecond)))
		},
	}
}

// Set stores every key of values.
func (s *UtilService) Set(values map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range values {
		log.Info().Str("setting", k).Interface("value", v).Msg("Updated runtime setting")
		s.settings[k] = v
	}
}

// Setting returns the value of a switch.
func (s *UtilService) Setting(name string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.settings[name]
	return v, ok
}

// ThrottleDelay returns how long to hold the next response: 500 to 1000ms
// while throttling is on, otherwise zero.
func (s *UtilService) ThrottleDelay() time.Duration {
	v, _ := s.Setting(SettingThrottle)
	if !truthy(v) {
		return 0
	}
	return 500*time.Millisecond + s.jitter()
}

func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	default:
		return true
	}
}
