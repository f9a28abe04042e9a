package assist

import (
	"errors"
	log "log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCoolingDown is returned while a quota cooldown window is open.
var ErrCoolingDown = errors.New("assist: cooling down after quota exhaustion")

// Cooldown suppresses calls for a fixed window after a quota error. Other
// failures never open it.
type Cooldown struct {
	cb *gobreaker.CircuitBreaker
}

func NewCooldown(name string, window time.Duration) *Cooldown {
	return &Cooldown{cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     window,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 0
		},
		IsSuccessful: func(err error) bool {
			return !IsQuota(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Debug("Cooldown state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})}
}

// Do runs fn unless the window is open.
func (c *Cooldown) Do(fn func() error) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCoolingDown
	}
	return err
}

// Open reports whether calls are currently suppressed.
func (c *Cooldown) Open() bool {
	return c.cb.State() == gobreaker.StateOpen
}
