// Package haptic maps intensity levels to vibration patterns.
package haptic

import (
	log "log/slog"
	"strings"
	"sync"
	"time"
)

type Level string

const (
	Off    Level = "off"
	Low    Level = "low"
	Medium Level = "medium"
	High   Level = "high"
)

// ParseLevel accepts any casing; unknown names yield false.
func ParseLevel(s string) (Level, bool) {
	switch l := Level(strings.ToLower(strings.TrimSpace(s))); l {
	case Off, Low, Medium, High:
		return l, true
	}
	return Off, false
}

// Vibrator plays an on/off pattern. The first entry is a vibration,
// then pauses and vibrations alternate.
type Vibrator interface {
	Vibrate(pattern []time.Duration) error
}

var patterns = map[Level][]time.Duration{
	Low:    {50 * time.Millisecond},
	Medium: {150 * time.Millisecond, 50 * time.Millisecond, 150 * time.Millisecond},
	High: {
		300 * time.Millisecond, 100 * time.Millisecond,
		300 * time.Millisecond, 100 * time.Millisecond,
		300 * time.Millisecond,
	},
}

var danger = []time.Duration{
	500 * time.Millisecond, 100 * time.Millisecond,
	500 * time.Millisecond, 100 * time.Millisecond,
	500 * time.Millisecond,
}

// Pattern returns a copy of the pulse pattern for l; nil for Off.
func Pattern(l Level) []time.Duration {
	return append([]time.Duration(nil), patterns[l]...)
}

// DangerPattern returns a copy of the collision alert pattern.
func DangerPattern() []time.Duration {
	return append([]time.Duration(nil), danger...)
}

// Signal is fire-and-forget. A nil vibrator turns every call into a no-op.
type Signal struct {
	vib Vibrator

	mu   sync.Mutex
	pref Level
}

func NewSignal(v Vibrator) *Signal {
	return &Signal{vib: v, pref: Medium}
}

// SetPreference records the user's intensity setting. Off mutes every
// pulse except TriggerDanger.
func (s *Signal) SetPreference(l Level) {
	s.mu.Lock()
	s.pref = l
	s.mu.Unlock()
}

func (s *Signal) Preference() Level {
	if s == nil {
		return Off
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pref
}

func (s *Signal) Vibrate(level Level) {
	p, ok := patterns[level]
	if !ok || s.Preference() == Off {
		return
	}
	s.play(p)
}

// TriggerDanger is reserved for immediate-collision alerts.
func (s *Signal) TriggerDanger() {
	s.play(danger)
}

func (s *Signal) play(p []time.Duration) {
	if s == nil || s.vib == nil {
		return
	}
	if err := s.vib.Vibrate(append([]time.Duration(nil), p...)); err != nil {
		log.Debug("Vibration failed", "err", err)
	}
}
