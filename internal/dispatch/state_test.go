package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMachine_TransientRetriesUpToBudget(t *testing.T) {
	m := newMachine(3, false)

	assert.Equal(t, StateRetrying, m.onAttempt(evTransient))
	assert.Equal(t, StateAttempting, m.onBackoffDone())
	assert.Equal(t, StateRetrying, m.onAttempt(evTransient))
	assert.Equal(t, StateAttempting, m.onBackoffDone())
	assert.Equal(t, StateFailed, m.onAttempt(evTransient))
	assert.Equal(t, 3, m.attempts)
}

func TestMachine_ExhaustionFallsBackOnce(t *testing.T) {
	m := newMachine(2, true)

	assert.Equal(t, StateRetrying, m.onAttempt(evTransient))
	assert.Equal(t, StateAttempting, m.onBackoffDone())
	assert.Equal(t, StateFallback, m.onAttempt(evTransient))

	// The fallback pass is single-shot.
	assert.Equal(t, StateFailed, m.onAttempt(evTransient))
}

func TestMachine_FallbackSucceeds(t *testing.T) {
	m := newMachine(1, true)

	assert.Equal(t, StateFallback, m.onAttempt(evTransient))
	assert.Equal(t, StateSucceeded, m.onAttempt(evSucceeded))
}

func TestMachine_FatalSkipsRetries(t *testing.T) {
	t.Run("with fallback", func(t *testing.T) {
		m := newMachine(5, true)
		assert.Equal(t, StateFallback, m.onAttempt(evFatal))
		assert.Equal(t, 1, m.attempts)
	})
	t.Run("without fallback", func(t *testing.T) {
		m := newMachine(5, false)
		assert.Equal(t, StateFailed, m.onAttempt(evFatal))
		assert.Equal(t, 1, m.attempts)
	})
	t.Run("fatal during fallback", func(t *testing.T) {
		m := newMachine(1, true)
		m.onAttempt(evTransient)
		assert.Equal(t, StateFailed, m.onAttempt(evFatal))
	})
}

func TestMachine_Cancellation(t *testing.T) {
	t.Run("during attempt", func(t *testing.T) {
		m := newMachine(3, true)
		assert.Equal(t, StateCancelled, m.onAttempt(evCancelled))
	})
	t.Run("during backoff", func(t *testing.T) {
		m := newMachine(3, false)
		m.onAttempt(evTransient)
		assert.Equal(t, StateCancelled, m.onBackoffCancel())
	})
	t.Run("backoff cancel after terminal is a no-op", func(t *testing.T) {
		m := newMachine(1, false)
		m.onAttempt(evSucceeded)
		assert.Equal(t, StateSucceeded, m.onBackoffCancel())
	})
}

func TestMachine_TerminalIsSticky(t *testing.T) {
	m := newMachine(3, true)
	m.onAttempt(evSucceeded)

	assert.Equal(t, StateSucceeded, m.onAttempt(evTransient))
	assert.Equal(t, StateSucceeded, m.onAttempt(evFatal))
	assert.Equal(t, 1, m.attempts)
}

func TestMachine_MinimumAttemptBudget(t *testing.T) {
	m := newMachine(0, false)
	assert.Equal(t, 1, m.maxAttempts)
	assert.Equal(t, StateFailed, m.onAttempt(evTransient))
}

func TestState_Terminal(t *testing.T) {
	assert.False(t, StateAttempting.Terminal())
	assert.False(t, StateRetrying.Terminal())
	assert.False(t, StateFallback.Terminal())
	assert.True(t, StateSucceeded.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.True(t, StateCancelled.Terminal())
}

func TestState_String(t *testing.T) {
	names := map[State]string{
		StateAttempting: "attempting",
		StateRetrying:   "retrying",
		StateFallback:   "fallback",
		StateSucceeded:  "succeeded",
		StateFailed:     "failed",
		StateCancelled:  "cancelled",
		State(99):       "unknown",
	}
	for s, want := range names {
		assert.Equal(t, want, s.String())
	}
}
