// Challenge cadence self-scheduler: keeps a short challenge tournament
// available at all times and drives each one to a champion on a fixed
// timeline without external input.
package tournament

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// AutoScheduler owns the once-per-minute challenge check.
type AutoScheduler struct {
	mgr     *Manager
	sched   gocron.Scheduler
	running atomic.Bool
	check   time.Duration
}

// NewAutoScheduler creates the challenge self-scheduler.
func NewAutoScheduler(mgr *Manager) *AutoScheduler {
	return &AutoScheduler{mgr: mgr, check: time.Minute}
}

// Start begins the periodic check: whenever no challenge tournament is in
// registration, create one, auto-register opted-in users, and run it through
// every round end to end.
func (s *AutoScheduler) Start() error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	s.sched = sched
	s.running.Store(true)

	_, err = sched.NewJob(
		gocron.DurationJob(s.check),
		gocron.NewTask(func() {
			if !s.running.Load() || s.mgr.HasOpenRegistration(TypeChallenge) {
				return
			}
			t := s.mgr.Create(TypeChallenge, "")
			entered := s.mgr.AutoRegisterAll(t.ID)
			slog.Info("challenge scheduled", "id", t.ID, "auto_entries", entered)
			go s.runOne(t.ID)
		}),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return err
	}
	sched.Start()
	return nil
}

// Stop cancels the timer; an in-flight tournament run finishes its current
// round and exits.
func (s *AutoScheduler) Stop() {
	s.running.Store(false)
	if s.sched != nil {
		_ = s.sched.Shutdown()
	}
}

// runOne drives a single tournament: wait out the registration window, start,
// then resolve one round per interval until finished.
func (s *AutoScheduler) runOne(tournamentID string) {
	settings := SettingsFor(TypeChallenge)

	if !s.sleep(settings.RegistrationWindow) {
		return
	}
	if err := s.mgr.Start(tournamentID); err != nil {
		slog.Warn("challenge start failed", "id", tournamentID, "error", err)
		return
	}
	for s.running.Load() && !s.mgr.Finished(tournamentID) {
		if !s.sleep(settings.RoundInterval) {
			return
		}
		if err := s.mgr.ResolveRound(tournamentID); err != nil {
			slog.Warn("round resolution failed", "id", tournamentID, "error", err)
			return
		}
	}
}

// sleep pauses in short slices so Stop is honored promptly.
func (s *AutoScheduler) sleep(d time.Duration) bool {
	const slice = 100 * time.Millisecond
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if !s.running.Load() {
			return false
		}
		remaining := time.Until(deadline)
		if remaining > slice {
			remaining = slice
		}
		time.Sleep(remaining)
	}
	return s.running.Load()
}
