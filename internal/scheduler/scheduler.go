// Package scheduler runs the periodic expiration sweep.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oriys/pulsar/internal/logging"
	"github.com/robfig/cron/v3"
)

const (
	DefaultInterval = 5 * time.Minute
	DefaultTimeout  = time.Minute
)

// Target removes expired entries and reports how many it removed.
type Target interface {
	Sweep(ctx context.Context) (int64, error)
}

// Config controls when sweeps run. Schedule, when set, is a cron
// expression (five fields or a descriptor such as "@hourly") and takes
// precedence over Interval.
type Config struct {
	Interval time.Duration `json:"interval" yaml:"interval"`
	Schedule string        `json:"schedule" yaml:"schedule"`
	Timeout  time.Duration `json:"timeout" yaml:"timeout"`
}

// Spec returns the cron spec the sweeper registers.
func (c Config) Spec() string {
	if c.Schedule != "" {
		return c.Schedule
	}
	interval := c.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return "@every " + interval.String()
}

// Sweeper invokes Target.Sweep on a cron schedule. A sweep that is still
// running when the next one is due causes that run to be skipped.
type Sweeper struct {
	cron    *cron.Cron
	target  Target
	spec    string
	timeout time.Duration

	mu      sync.Mutex
	entry   cron.EntryID
	started bool
}

// New creates a Sweeper for target.
func New(target Target, cfg Config) *Sweeper {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Sweeper{
		cron: cron.New(
			cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor)),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		target:  target,
		spec:    cfg.Spec(),
		timeout: timeout,
	}
}

// Start registers the sweep job and starts the scheduler.
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	id, err := s.cron.AddFunc(s.spec, func() {
		s.RunOnce(context.Background())
	})
	if err != nil {
		return fmt.Errorf("register sweep %q: %w", s.spec, err)
	}
	s.entry = id
	s.started = true
	s.cron.Start()
	logging.Op().Info("expiration sweeper started", "schedule", s.spec, "timeout", s.timeout)
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish or ctx
// to be done.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.cron.Remove(s.entry)
	done := s.cron.Stop()
	s.mu.Unlock()

	select {
	case <-done.Done():
		logging.Op().Info("expiration sweeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next returns the next scheduled run, zero when not started.
func (s *Sweeper) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return time.Time{}
	}
	return s.cron.Entry(s.entry).Next
}

// RunOnce runs a single sweep under the configured timeout. Errors are
// logged and returned, never fatal.
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	n, err := s.target.Sweep(ctx)
	if err != nil {
		logging.Op().Error("expiration sweep failed", "error", err, "duration", time.Since(start))
		return 0, err
	}
	if n > 0 {
		logging.Op().Info("expiration sweep removed entries", "deleted", n, "duration", time.Since(start))
	} else {
		logging.Op().Debug("expiration sweep found nothing to remove", "duration", time.Since(start))
	}
	return n, nil
}
