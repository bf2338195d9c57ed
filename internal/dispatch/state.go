package dispatch

// State tracks the retry/fallback lifecycle of a single page. The policy is
// an explicit state machine so it can be audited and tested in isolation
// instead of being buried in conditional branches.
type State int

const (
	// StateAttempting runs attempts on the primary engine.
	StateAttempting State = iota
	// StateRetrying waits out the backoff before the next primary attempt.
	StateRetrying
	// StateFallback runs the single attempt on the secondary engine.
	StateFallback
	// StateSucceeded is terminal; the result is never overwritten.
	StateSucceeded
	// StateFailed is terminal after retries and fallback are exhausted.
	StateFailed
	// StateCancelled is terminal for pages interrupted by request timeout
	// or cancellation.
	StateCancelled
)

// String returns the wire name of the state.
func (s State) String() string {
	switch s {
	case StateAttempting:
		return "attempting"
	case StateRetrying:
		return "retrying"
	case StateFallback:
		return "fallback"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further attempts may run for the page.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// event is the outcome of one attempt (or of the backoff wait).
type event int

const (
	evSucceeded event = iota
	evTransient
	evFatal
	evCancelled
)

// machine drives one page through the retry/fallback policy.
type machine struct {
	state       State
	attempts    int
	maxAttempts int
	hasFallback bool
}

func newMachine(maxAttempts int, hasFallback bool) *machine {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &machine{
		state:       StateAttempting,
		maxAttempts: maxAttempts,
		hasFallback: hasFallback,
	}
}

// onAttempt records an attempt outcome and advances the state.
func (m *machine) onAttempt(ev event) State {
	if m.state.Terminal() {
		return m.state
	}
	m.attempts++

	switch ev {
	case evSucceeded:
		m.state = StateSucceeded
	case evCancelled:
		m.state = StateCancelled
	case evFatal:
		m.state = m.exhaust()
	case evTransient:
		switch m.state {
		case StateFallback:
			m.state = StateFailed
		case StateAttempting, StateRetrying:
			if m.attempts < m.maxAttempts {
				m.state = StateRetrying
			} else {
				m.state = m.exhaust()
			}
		}
	}
	return m.state
}

// onBackoffDone moves a retrying page back to attempting; onBackoffCancel
// terminates it when the request ends mid-backoff.
func (m *machine) onBackoffDone() State {
	if m.state == StateRetrying {
		m.state = StateAttempting
	}
	return m.state
}

func (m *machine) onBackoffCancel() State {
	if !m.state.Terminal() {
		m.state = StateCancelled
	}
	return m.state
}

// exhaust transitions past the primary engine: to the fallback pass when a
// secondary engine is configured, otherwise straight to failure.
func (m *machine) exhaust() State {
	if m.state != StateFallback && m.hasFallback {
		return StateFallback
	}
	return StateFailed
}
