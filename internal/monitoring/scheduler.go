package monitoring

import (
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// SessionSweeper removes expired sessions.
type SessionSweeper interface {
	SweepExpired() (int, error)
}

// Scheduler runs background maintenance jobs on a cron schedule.
type Scheduler struct {
	cron     *cron.Cron
	sessions SessionSweeper
	schedule string
	done     chan struct{}
}

// NewScheduler creates a scheduler that sweeps sessions on schedule, e.g.
// "@every 1m" or a standard five field expression.
func NewScheduler(sessions SessionSweeper, schedule string) (*Scheduler, error) {
	s := &Scheduler{
		cron:     cron.New(),
		sessions: sessions,
		schedule: schedule,
		done:     make(chan struct{}),
	}
	if _, err := s.cron.AddFunc(schedule, s.sweepSessions); err != nil {
		return nil, err
	}
	return s, nil
}

// Run starts the cron loop and blocks until Stop.
func (s *Scheduler) Run() {
	log.Info().Str("schedule", s.schedule).Msg("Starting background scheduler...")
	s.cron.Start()
	<-s.done
	<-s.cron.Stop().Done()
	log.Info().Msg("Stopping background scheduler.")
}

// Stop halts the scheduler.
func (s *Scheduler) Stop() {
	close(s.done)
}

func (s *Scheduler) sweepSessions() {
	removed, err := s.sessions.SweepExpired()
	if err != nil {
		log.Error().Err(err).Msg("Scheduler: failed to sweep expired sessions")
		return
	}
	if removed > 0 {
		log.Info().Int("removed", removed).Msg("Scheduler: swept expired sessions")
	}
}
