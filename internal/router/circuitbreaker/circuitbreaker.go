package circuitbreaker

import (
	"sync"
	"time"
)

// State represents the state of a gateway's circuit.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "Closed"
	case StateOpen:
		return "Open"
	case StateHalfOpen:
		return "HalfOpen"
	default:
		return "Unknown"
	}
}

const (
	defaultFailureThreshold         = 3
	defaultResetTimeout             = 30 * time.Second
	defaultHalfOpenSuccessThreshold = 1
)

// Config tunes the breaker. Zero values fall back to the defaults.
type Config struct {
	FailureThreshold         int           // consecutive failures that open the circuit
	ResetTimeout             time.Duration // time spent Open before a HalfOpen probe
	HalfOpenSuccessThreshold int           // probe successes needed to close again

	// Now overrides the clock, for tests.
	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = defaultFailureThreshold
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = defaultResetTimeout
	}
	if c.HalfOpenSuccessThreshold <= 0 {
		c.HalfOpenSuccessThreshold = defaultHalfOpenSuccessThreshold
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

type gatewayState struct {
	state                State
	consecutiveFailures  int
	consecutiveSuccesses int // only counted while HalfOpen
	openUntil            time.Time
}

// CircuitBreaker tracks gateway health and stops traffic to gateways that
// keep failing. State is in-memory and per process.
type CircuitBreaker struct {
	mu       sync.Mutex
	cfg      Config
	gateways map[string]*gatewayState
}

// NewCircuitBreaker creates a CircuitBreaker from cfg.
func NewCircuitBreaker(cfg Config) *CircuitBreaker {
	return &CircuitBreaker{
		cfg:      cfg.withDefaults(),
		gateways: make(map[string]*gatewayState),
	}
}

// stateFor must be called with mu held.
func (cb *CircuitBreaker) stateFor(gateway string) *gatewayState {
	gs, ok := cb.gateways[gateway]
	if !ok {
		gs = &gatewayState{state: StateClosed}
		cb.gateways[gateway] = gs
	}
	return gs
}

func (cb *CircuitBreaker) open(gs *gatewayState) {
	gs.state = StateOpen
	gs.consecutiveFailures = cb.cfg.FailureThreshold
	gs.consecutiveSuccesses = 0
	gs.openUntil = cb.cfg.Now().Add(cb.cfg.ResetTimeout)
}

// AllowRequest reports whether gateway may be called. An Open circuit whose
// reset timeout has passed moves to HalfOpen and lets the probe through.
func (cb *CircuitBreaker) AllowRequest(gateway string) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	gs := cb.stateFor(gateway)
	switch gs.state {
	case StateOpen:
		if cb.cfg.Now().Before(gs.openUntil) {
			return false
		}
		gs.state = StateHalfOpen
		gs.consecutiveFailures = 0
		gs.consecutiveSuccesses = 0
		return true
	default:
		return true
	}
}

// RecordFailure records a failed call to gateway.
func (cb *CircuitBreaker) RecordFailure(gateway string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	gs := cb.stateFor(gateway)
	switch gs.state {
	case StateClosed:
		gs.consecutiveFailures++
		if gs.consecutiveFailures >= cb.cfg.FailureThreshold {
			cb.open(gs)
		}
	case StateHalfOpen:
		cb.open(gs)
	case StateOpen:
		// a call that raced the transition; the open window is not extended
	}
}

// RecordSuccess records a successful call to gateway.
func (cb *CircuitBreaker) RecordSuccess(gateway string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	gs := cb.stateFor(gateway)
	switch gs.state {
	case StateClosed:
		gs.consecutiveFailures = 0
	case StateHalfOpen:
		gs.consecutiveSuccesses++
		if gs.consecutiveSuccesses >= cb.cfg.HalfOpenSuccessThreshold {
			gs.state = StateClosed
			gs.consecutiveFailures = 0
			gs.consecutiveSuccesses = 0
		}
	case StateOpen:
	}
}

// GetProviderStatus returns the circuit state and consecutive failure count
// for gateway without moving it between states.
func (cb *CircuitBreaker) GetProviderStatus(gateway string) (State, int) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	gs, ok := cb.gateways[gateway]
	if !ok {
		return StateClosed, 0
	}
	return gs.state, gs.consecutiveFailures
}
