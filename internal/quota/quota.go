// SPDX-License-Identifier: MIT

// Package quota suspends archival runs while the platform's daily API
// quota is exhausted. The YouTube Data API resets at midnight Pacific
// Time; the manager sleeps until that instant with periodic progress
// messages, lets the scheduler probe, and gives up once a configured
// cumulative cap is reached.
package quota

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/con-org/annextube-sub000/internal/log"
)

var suspensionsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "annextube_quota_suspensions_total",
	Help: "Times the run was suspended waiting for the API quota reset",
})

// ErrGaveUp means the cumulative wait cap was exceeded or waiting is
// disabled; the run exits with the quota failure code.
var ErrGaveUp = errors.New("quota: gave up waiting for reset")

// State of the manager. Transitions: Idle → Waiting → Probing →
// Idle|Waiting; GaveUp is terminal.
type State string

const (
	StateIdle    State = "idle"
	StateWaiting State = "waiting"
	StateProbing State = "probing"
	StateGaveUp  State = "gave-up"
)

// DefaultTimezone is the Data API's quota accounting timezone.
const DefaultTimezone = "America/Los_Angeles"

// Config holds quota wait behavior.
type Config struct {
	// AutoWait enables sleeping through quota exhaustion. When false,
	// Suspend fails immediately with ErrGaveUp.
	AutoWait bool

	// MaxWait caps the cumulative wait within one exhaustion episode.
	MaxWait time.Duration

	// CheckInterval is the period between progress messages.
	CheckInterval time.Duration

	// Timezone names the reset timezone; empty means DefaultTimezone.
	Timezone string
}

// Manager coordinates quota suspensions for one run.
type Manager struct {
	cfg Config
	loc *time.Location
	now func() time.Time

	mu     sync.Mutex
	state  State
	waited time.Duration
	until  time.Time
}

// New builds a manager, resolving the reset timezone. Zero durations
// take the documented defaults (48h cap, 30m check interval).
func New(cfg Config) (*Manager, error) {
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 48 * time.Hour
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 30 * time.Minute
	}
	tz := cfg.Timezone
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("quota timezone %q: %w", tz, err)
	}
	return &Manager{
		cfg:   cfg,
		loc:   loc,
		now:   time.Now,
		state: StateIdle,
	}, nil
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// WaitingUntil returns the reset instant being waited for, zero when
// not waiting.
func (m *Manager) WaitingUntil() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateWaiting {
		return time.Time{}
	}
	return m.until
}

// NextReset returns the next quota reset after now: the upcoming
// midnight in the configured timezone. DST transitions are handled by
// the location database.
func (m *Manager) NextReset(now time.Time) time.Time {
	local := now.In(m.loc)
	next := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, m.loc)
	if !next.After(now) {
		// Fall-back transitions can land the constructed midnight at or
		// before now; step one more day.
		next = time.Date(local.Year(), local.Month(), local.Day()+2, 0, 0, 0, 0, m.loc)
	}
	return next
}

// Suspend sleeps until the next quota reset, then leaves the manager
// in Probing so the scheduler retries the failed call. Cancelling ctx
// aborts the sleep and returns ctx.Err(); the cap applies across
// consecutive suspensions until Recovered is called.
func (m *Manager) Suspend(ctx context.Context) error {
	logger := log.WithComponentFromContext(ctx, "quota")

	if !m.cfg.AutoWait {
		m.setState(StateGaveUp)
		return fmt.Errorf("quota auto-wait disabled: %w", ErrGaveUp)
	}

	now := m.now()
	until := m.NextReset(now)
	wait := until.Sub(now)

	m.mu.Lock()
	if m.waited+wait > m.cfg.MaxWait {
		m.state = StateGaveUp
		waited := m.waited
		m.mu.Unlock()
		return fmt.Errorf("waited %s, next reset %s away exceeds cap %s: %w",
			waited.Round(time.Second), wait.Round(time.Second), m.cfg.MaxWait, ErrGaveUp)
	}
	m.state = StateWaiting
	m.until = until
	m.mu.Unlock()

	suspensionsTotal.Inc()
	logger.Warn().
		Str(log.FieldEvent, "quota.exhausted").
		Time("reset_at", until).
		Dur("wait", wait).
		Msg("API quota exhausted, waiting for reset")

	start := m.now()
	if err := m.sleep(ctx, until, logger); err != nil {
		m.mu.Lock()
		m.waited += m.now().Sub(start)
		m.state = StateIdle
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	m.waited += m.now().Sub(start)
	m.state = StateProbing
	m.mu.Unlock()

	logger.Info().
		Str(log.FieldEvent, "quota.reset").
		Msg("quota reset reached, probing API")
	return nil
}

// sleep waits until the reset instant, logging progress every check
// interval so long waits stay visible.
func (m *Manager) sleep(ctx context.Context, until time.Time, logger zerolog.Logger) error {
	remaining := until.Sub(m.now())
	if remaining <= 0 {
		return nil
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			logger.Info().
				Str(log.FieldEvent, "quota.waiting").
				Time("reset_at", until).
				Dur("remaining", until.Sub(m.now())).
				Msg("still waiting for quota reset")
		case <-timer.C:
			return nil
		}
	}
}

// Recovered marks the probe successful: the episode ends and the
// cumulative wait counter resets.
func (m *Manager) Recovered() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateIdle
	m.waited = 0
	m.until = time.Time{}
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
}
