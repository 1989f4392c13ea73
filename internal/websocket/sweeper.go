package websocket

import (
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSpec is the schedule used to drop empty avaria buckets.
const DefaultSweepSpec = "@every 5m"

// Sweeper periodically removes avarias without subscribers from a Registry.
type Sweeper struct {
	cron     *cron.Cron
	registry *Registry
	spec     string
	log      *slog.Logger
}

// NewSweeper creates a sweeper running on the given cron spec.
func NewSweeper(registry *Registry, spec string, log *slog.Logger) *Sweeper {
	if spec == "" {
		spec = DefaultSweepSpec
	}
	return &Sweeper{
		cron:     cron.New(),
		registry: registry,
		spec:     spec,
		log:      log,
	}
}

// Start schedules the sweep. It fails if the spec cannot be parsed.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.sweep); err != nil {
		return fmt.Errorf("scheduling registry sweep %q: %w", s.spec, err)
	}
	s.cron.Start()
	s.log.Info("Registry sweeper started", "schedule", s.spec)
	return nil
}

// Stop waits for a running sweep to finish and stops the schedule.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("Registry sweeper stopped")
}

func (s *Sweeper) sweep() {
	if dropped := s.registry.Sweep(); dropped > 0 {
		s.log.Debug("Dropped empty avaria chats", "count", dropped)
	}
}
