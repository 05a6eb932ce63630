// SPDX-License-Identifier: MIT

package quota

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextResetIsUpcomingPacificMidnight(t *testing.T) {
	m, err := New(Config{AutoWait: true})
	require.NoError(t, err)

	pacific, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)

	// Mid-afternoon Pacific resets at the next local midnight.
	now := time.Date(2024, 3, 9, 15, 0, 0, 0, pacific)
	reset := m.NextReset(now)
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, pacific), reset)

	// Just before midnight still points at the upcoming one.
	now = time.Date(2024, 3, 9, 23, 59, 59, 0, pacific)
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, pacific), m.NextReset(now))
}

func TestNextResetHandlesDSTSpringForward(t *testing.T) {
	m, err := New(Config{AutoWait: true})
	require.NoError(t, err)

	pacific, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)

	// 2024-03-10 02:00 PST jumps to 03:00 PDT. The reset after that
	// evening is 23 hours away in wall-clock terms, and the location
	// database, not this package, owns that arithmetic.
	now := time.Date(2024, 3, 9, 20, 0, 0, 0, pacific)
	reset := m.NextReset(now)
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, pacific), reset)
	assert.True(t, reset.After(now))
}

func TestSuspendWaitsUntilReset(t *testing.T) {
	m, err := New(Config{AutoWait: true, MaxWait: time.Hour, CheckInterval: 10 * time.Millisecond})
	require.NoError(t, err)

	pacific, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)

	// Pin the clock 60ms before midnight so the sleep is short.
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, pacific)
	m.now = func() time.Time { return base.Add(-60 * time.Millisecond) }

	start := time.Now()
	require.NoError(t, m.Suspend(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, StateProbing, m.State())

	m.Recovered()
	assert.Equal(t, StateIdle, m.State())
}

func TestSuspendHonorsCancellation(t *testing.T) {
	m, err := New(Config{AutoWait: true, MaxWait: 48 * time.Hour, CheckInterval: time.Minute})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Suspend(ctx) }()

	// Let it enter the wait before cancelling.
	require.Eventually(t, func() bool { return m.State() == StateWaiting },
		time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("suspend did not return after cancellation")
	}
	assert.Equal(t, StateIdle, m.State())
}

func TestSuspendGivesUpPastCap(t *testing.T) {
	m, err := New(Config{AutoWait: true, MaxWait: time.Minute, CheckInterval: time.Minute})
	require.NoError(t, err)

	// The next reset is always ~12h away from the pinned clock, far
	// beyond the one-minute cap.
	pacific, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	m.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, pacific) }

	err = m.Suspend(context.Background())
	assert.ErrorIs(t, err, ErrGaveUp)
	assert.Equal(t, StateGaveUp, m.State())
}

func TestSuspendDisabledFailsImmediately(t *testing.T) {
	m, err := New(Config{AutoWait: false})
	require.NoError(t, err)

	err = m.Suspend(context.Background())
	assert.ErrorIs(t, err, ErrGaveUp)
	assert.Equal(t, StateGaveUp, m.State())
}

func TestWaitBudgetResetsOnRecovery(t *testing.T) {
	m, err := New(Config{AutoWait: true, MaxWait: 100 * time.Millisecond, CheckInterval: time.Minute})
	require.NoError(t, err)

	pacific, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, pacific)

	// First suspension: 40ms to reset, inside the cap.
	m.now = func() time.Time { return base.Add(-40 * time.Millisecond) }
	require.NoError(t, m.Suspend(context.Background()))

	// Probe still failing; the next reset is now a full day away and
	// blows the budget.
	m.now = func() time.Time { return base.Add(time.Second) }
	err = m.Suspend(context.Background())
	assert.ErrorIs(t, err, ErrGaveUp)

	// After recovery the budget is fresh.
	m.Recovered()
	assert.Equal(t, StateIdle, m.State())
}
