// Package scheduler provides cron-based background jobs, currently the
// periodic purge of expired incognito conversations.
package scheduler

import (
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shrutib31/soul-buddy/internal/store"
)

// IncognitoTTL is how long an incognito conversation is retained.
const IncognitoTTL = 24 * time.Hour

// DefaultCleanupSpec runs the purge at the top of every hour.
const DefaultCleanupSpec = "0 * * * *"

// Scheduler wraps a started cron runner.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a cron scheduler.
func NewScheduler() *Scheduler {
	// Standard 5-field cron parser (min, hour, dom, month, dow) with panic recovery.
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, task)
	return err
}

// AddIncognitoCleanup schedules the periodic deletion of incognito
// conversations older than the retention window.
func (s *Scheduler) AddIncognitoCleanup(expr string, st store.Store, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = IncognitoTTL
	}
	return s.AddJob(expr, func() {
		cutoff := time.Now().UTC().Add(-ttl)
		n, err := st.DeleteExpiredIncognito(cutoff)
		if err != nil {
			slog.Error("Scheduler: incognito cleanup failed", "error", err)
			return
		}
		if n > 0 {
			slog.Info("Scheduler: purged expired incognito conversations", "deleted", n, "cutoff", cutoff)
		}
	})
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
