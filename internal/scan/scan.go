// Package scan turns camera frames into spoken and haptic obstacle alerts.
package scan

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"odin/internal/assist"
	"odin/internal/haptic"
	"odin/internal/history"
)

const (
	// Interval is the minimum gap between two analyzed frames.
	Interval = 4 * time.Second
	// QuotaCooldown suppresses analysis after the vision quota runs out.
	QuotaCooldown = 10 * time.Second
	// RepeatAfter re-announces an unchanged obstacle.
	RepeatAfter = 3 * time.Second
	// DistanceDelta re-announces an obstacle that moved at least this far.
	DistanceDelta = 0.5
)

const QuotaNotice = "System bandwidth exceeded. Re-calibrating vision in 10 seconds."

type Speaker interface {
	Speak(text string, priority bool)
}

type Haptics interface {
	Vibrate(level haptic.Level)
	TriggerDanger()
}

type Recorder interface {
	Add(ctx context.Context, o assist.Obstacle) (history.Record, error)
}

type Outcome int

const (
	Skipped Outcome = iota
	Analyzed
	Throttled
)

func (o Outcome) String() string {
	switch o {
	case Analyzed:
		return "analyzed"
	case Throttled:
		return "throttled"
	default:
		return "skipped"
	}
}

type Option func(*Scanner)

func WithClock(now func() time.Time) Option {
	return func(s *Scanner) { s.now = now }
}

func WithHistory(r Recorder) Option {
	return func(s *Scanner) { s.history = r }
}

func WithCooldown(c *assist.Cooldown) Option {
	return func(s *Scanner) { s.cooldown = c }
}

// OnObstacles receives every non-empty detection batch.
func OnObstacles(fn func([]assist.Obstacle)) Option {
	return func(s *Scanner) { s.onObstacles = fn }
}

type Scanner struct {
	vision      assist.Vision
	speaker     Speaker
	haptics     Haptics
	history     Recorder
	cooldown    *assist.Cooldown
	onObstacles func([]assist.Obstacle)
	now         func() time.Time

	mu           sync.Mutex
	lastProcess  time.Time
	lastLabel    string
	lastSpeak    time.Time
	lastDistance float64
}

func New(vision assist.Vision, speaker Speaker, haptics Haptics, opts ...Option) *Scanner {
	s := &Scanner{
		vision:  vision,
		speaker: speaker,
		haptics: haptics,
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.cooldown == nil {
		s.cooldown = assist.NewCooldown("vision", QuotaCooldown)
	}
	return s
}

// Submit analyzes frame unless the previous analysis was under Interval
// ago or the quota cooldown is running.
func (s *Scanner) Submit(ctx context.Context, frame []byte) Outcome {
	s.mu.Lock()
	now := s.now()
	if !s.lastProcess.IsZero() && now.Sub(s.lastProcess) < Interval {
		s.mu.Unlock()
		return Skipped
	}
	s.lastProcess = now
	s.mu.Unlock()

	var obstacles []assist.Obstacle
	err := s.cooldown.Do(func() error {
		var err error
		obstacles, err = s.vision.Analyze(ctx, frame)
		return err
	})

	switch {
	case errors.Is(err, assist.ErrCoolingDown):
		return Throttled
	case errors.Is(err, assist.ErrQuotaExhausted):
		log.Warn("Vision quota exhausted, pausing analysis", "for", QuotaCooldown)
		s.speaker.Speak(QuotaNotice, false)
		s.haptics.Vibrate(haptic.Medium)
		return Throttled
	case err != nil:
		log.Error("Vision analysis failed", "err", err)
		return Analyzed
	}

	if len(obstacles) == 0 {
		return Analyzed
	}
	for i := range obstacles {
		obstacles[i].Direction = clock(obstacles[i].Direction)
	}

	s.announce(obstacles[0])

	if s.onObstacles != nil {
		s.onObstacles(obstacles)
	}
	if s.history != nil {
		for _, o := range obstacles {
			if _, err := s.history.Add(ctx, o); err != nil {
				log.Warn("Failed to record obstacle", "label", o.Label, "err", err)
			}
		}
	}

	return Analyzed
}

func (s *Scanner) announce(top assist.Obstacle) {
	s.mu.Lock()
	now := s.now()
	changed := s.lastLabel != top.Label
	moved := math.Abs(s.lastDistance-top.Distance) > DistanceDelta
	stale := now.Sub(s.lastSpeak) > RepeatAfter
	if !changed && !moved && !stale {
		s.mu.Unlock()
		return
	}
	s.lastLabel = top.Label
	s.lastSpeak = now
	s.lastDistance = top.Distance
	s.mu.Unlock()

	high := top.Severity == assist.SeverityHigh
	s.speaker.Speak(Message(top), high)

	switch top.Severity {
	case assist.SeverityHigh:
		s.haptics.TriggerDanger()
	case assist.SeverityMedium:
		s.haptics.Vibrate(haptic.Medium)
	default:
		s.haptics.Vibrate(haptic.Low)
	}
}

// Message is the spoken form of an obstacle.
func Message(o assist.Obstacle) string {
	return fmt.Sprintf("%s, %s meters, %s o'clock",
		o.Label, strconv.FormatFloat(o.Distance, 'f', -1, 64), clock(o.Direction))
}

// clock keeps only the digits of a clock position ("3 o'clock" -> "3").
func clock(dir string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, dir)
}
