// Package circuitbreaker provides per-upstream circuit breakers using
// Sony's gobreaker.
package circuitbreaker

import (
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"api-gateway/internal/common/errors"
	"api-gateway/internal/common/logging"
)

// Config holds the configuration for a circuit breaker
type Config struct {
	// MaxFailures is the number of consecutive failures that opens the breaker
	MaxFailures int
	// Timeout is how long the breaker stays open before transitioning to half-open
	Timeout time.Duration
	// MaxConcurrentRequests is the number of probe requests allowed in half-open state
	MaxConcurrentRequests int
}

// DefaultConfig returns the configuration used for upstream service calls.
func DefaultConfig() Config {
	return Config{
		MaxFailures:           5,
		Timeout:               30 * time.Second,
		MaxConcurrentRequests: 2,
	}
}

// Validate checks if the configuration is valid
func (c Config) Validate() error {
	if c.MaxFailures <= 0 {
		return fmt.Errorf("MaxFailures must be positive, got %d", c.MaxFailures)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("Timeout must be positive, got %v", c.Timeout)
	}
	if c.MaxConcurrentRequests <= 0 {
		return fmt.Errorf("MaxConcurrentRequests must be positive, got %d", c.MaxConcurrentRequests)
	}
	return nil
}

// Stats describes the current state of one breaker.
type Stats struct {
	Name      string `json:"name"`
	State     string `json:"state"`
	Failures  int    `json:"failures"`
	Successes int    `json:"successes"`
}

// Breaker wraps a gobreaker.CircuitBreaker for a single upstream service.
type Breaker struct {
	name    string
	breaker *gobreaker.CircuitBreaker
}

// New creates a breaker for the named upstream.
func New(name string, config Config, logger logging.Logger) *Breaker {
	if err := config.Validate(); err != nil {
		if logger != nil {
			logger.Warn("Invalid circuit breaker config, using defaults",
				logging.Field{Key: "error", Value: err.Error()},
				logging.Field{Key: "name", Value: name},
			)
		}
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: uint32(config.MaxConcurrentRequests),
		Interval:    time.Minute,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(config.MaxFailures)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("Circuit breaker state changed",
				logging.Field{Key: "service", Value: name},
				logging.Field{Key: "from", Value: from.String()},
				logging.Field{Key: "to", Value: to.String()},
			)
		},
	}

	return &Breaker{
		name:    name,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// ErrOpen reports whether err came from the breaker rejecting the call
// rather than from the wrapped function.
func ErrOpen(err error) bool {
	return err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests
}

// Do runs fn within the breaker. When the breaker is open the call is
// rejected and a connection error is returned without invoking fn.
func (b *Breaker) Do(fn func() error) error {
	_, err := b.breaker.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if ErrOpen(err) {
		return errors.ConnectionError(fmt.Sprintf("circuit breaker for %s is open", b.name), err)
	}
	return err
}

// IsOpen returns true if the breaker is rejecting requests.
func (b *Breaker) IsOpen() bool {
	return b.breaker.State() == gobreaker.StateOpen
}

// Stats returns current counts for the breaker.
func (b *Breaker) Stats() Stats {
	counts := b.breaker.Counts()
	return Stats{
		Name:      b.name,
		State:     b.breaker.State().String(),
		Failures:  int(counts.TotalFailures),
		Successes: int(counts.TotalSuccesses),
	}
}

// Manager lazily creates one breaker per upstream service.
type Manager struct {
	mutex    sync.Mutex
	breakers map[string]*Breaker
	config   Config
	logger   logging.Logger
}

// NewManager creates a manager that hands out breakers with the given config.
func NewManager(config Config, logger logging.Logger) *Manager {
	return &Manager{
		breakers: make(map[string]*Breaker),
		config:   config,
		logger:   logger,
	}
}

// Get returns the breaker for the named service, creating it on first use.
func (m *Manager) Get(service string) *Breaker {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if b, ok := m.breakers[service]; ok {
		return b
	}
	b := New(service, m.config, m.logger)
	m.breakers[service] = b
	return b
}

// Stats returns the stats of every breaker created so far.
func (m *Manager) Stats() []Stats {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	stats := make([]Stats, 0, len(m.breakers))
	for _, b := range m.breakers {
		stats = append(stats, b.Stats())
	}
	return stats
}
