package monitoring

import (
	"time"

	"github.com/rs/zerolog/log"
)

// Counter reports the number of records per collection.
type Counter interface {
	Count() map[string]int
}

// StatUpdater periodically copies store sizes into the metrics gauges.
type StatUpdater struct {
	public    Counter
	protected Counter
	metrics   *Collector
	interval  time.Duration
	done      chan bool
}

// NewStatUpdater creates a new StatUpdater.
func NewStatUpdater(public, protected Counter, metrics *Collector, interval time.Duration) *StatUpdater {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &StatUpdater{
		public:    public,
		protected: protected,
		metrics:   metrics,
		interval:  interval,
		done:      make(chan bool),
	}
}

// Run starts the periodic updates.
func (su *StatUpdater) Run() {
	log.Info().Dur("interval", su.interval).Msg("Starting background stat updater...")
	ticker := time.NewTicker(su.interval)
	defer ticker.Stop()

	// Run once immediately on start
	su.Update()

	for {
		select {
		case <-su.done:
			log.Info().Msg("Stopping background stat updater.")
			return
		case <-ticker.C:
			su.Update()
		}
	}
}

// Stop halts the updater.
func (su *StatUpdater) Stop() {
	su.done <- true
}

// Update samples the stores once.
func (su *StatUpdater) Update() {
	su.metrics.Records.Reset()
	for collection, n := range su.public.Count() {
		su.metrics.Records.WithLabelValues(collection).Set(float64(n))
	}
	su.metrics.Sessions.Set(float64(su.protected.Count()["sessions"]))
}
