// Package speech arbitrates spoken feedback: it de-duplicates repeats,
// lets priority requests interrupt in-flight speech and applies the
// process-wide voice preferences to every utterance.
package speech

import (
	"errors"
	log "log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"odin/internal/metrics"
)

const (
	// DedupWindow suppresses an identical non-priority request.
	DedupWindow = 2 * time.Second
	// InterruptAfter is the idle gap after which new speech cancels the old one.
	InterruptAfter = 1 * time.Second
	// PriorityBoost multiplies the rate of priority speech.
	PriorityBoost = 1.2
)

// ErrNoSynthesizer is returned by platforms that cannot speak.
var ErrNoSynthesizer = errors.New("speech: no synthesizer available")

// preferredVoices is matched in order, case-insensitive substring on the voice name.
var preferredVoices = []string{
	"google us english",
	"en-us-x-sfg-local",
	"samantha",
	"victoria",
	"karen",
	"natural",
}

type Voice struct {
	Name string
	Lang string
}

// Utterance is one request handed to the synthesizer.
type Utterance struct {
	Text     string
	Voice    *Voice
	Volume   float64
	Rate     float64
	Priority bool
}

// Synthesizer is the platform text-to-speech capability. Speak enqueues
// behind whatever is playing; Cancel discards playing and queued speech.
type Synthesizer interface {
	Voices() []Voice
	Speak(u Utterance) error
	Cancel()
}

// VoiceWatcher is implemented by synthesizers that announce voice list changes.
type VoiceWatcher interface {
	OnVoicesChanged(fn func())
}

type Option func(*Speaker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Speaker) { s.now = now }
}

// WithPreferences sets the initial preferences.
func WithPreferences(p Preferences) Option {
	return func(s *Speaker) { s.prefs = p.Clamp() }
}

// Speaker is the SpeechOutput arbiter. Failures are logged, never returned.
type Speaker struct {
	mu    sync.Mutex
	synth Synthesizer
	now   func() time.Time
	prefs Preferences

	voice    *Voice
	lastText string
	lastEmit time.Time
}

func NewSpeaker(synth Synthesizer, opts ...Option) *Speaker {
	s := &Speaker{
		synth: synth,
		now:   time.Now,
		prefs: DefaultPreferences(),
	}
	for _, o := range opts {
		o(s)
	}

	s.LoadVoices()
	if w, ok := synth.(VoiceWatcher); ok {
		w.OnVoicesChanged(s.LoadVoices)
	}

	return s
}

// LoadVoices re-runs voice selection against the synthesizer's current list.
func (s *Speaker) LoadVoices() {
	if s.synth == nil {
		return
	}
	v := pickVoice(s.synth.Voices())

	s.mu.Lock()
	s.voice = v
	s.mu.Unlock()

	if v != nil {
		log.Debug("Voice selected", "name", v.Name, "lang", v.Lang)
	}
}

func pickVoice(voices []Voice) *Voice {
	if len(voices) == 0 {
		return nil
	}
	for i := range voices {
		name := strings.ToLower(voices[i].Name)
		for _, pv := range preferredVoices {
			if strings.Contains(name, pv) {
				v := voices[i]
				return &v
			}
		}
	}
	v := voices[0]
	return &v
}

// Voice reports the selected voice, nil when the platform has none.
func (s *Speaker) Voice() *Voice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voice
}

// Configure takes effect on the next Speak.
func (s *Speaker) Configure(volume, rate float64) {
	s.mu.Lock()
	s.prefs = Preferences{Volume: volume, Rate: rate}.Clamp()
	s.mu.Unlock()
}

func (s *Speaker) Preferences() Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefs
}

func (s *Speaker) Speak(text string, priority bool) {
	if text == "" || s.synth == nil {
		return
	}

	s.mu.Lock()
	now := s.now()
	since := now.Sub(s.lastEmit)

	if !priority && text == s.lastText && since < DedupWindow {
		s.mu.Unlock()
		metrics.SpeechRequests.WithLabelValues("deduplicated").Inc()
		return
	}

	interrupt := priority || since > InterruptAfter

	rate := s.prefs.Rate
	if priority {
		rate = math.Min(rate*PriorityBoost, MaxRate)
	}
	u := Utterance{
		Text:     text,
		Voice:    s.voice,
		Volume:   s.prefs.Volume,
		Rate:     rate,
		Priority: priority,
	}

	s.lastText = text
	s.lastEmit = now
	s.mu.Unlock()

	if interrupt {
		s.synth.Cancel()
	}
	if err := s.synth.Speak(u); err != nil {
		log.Debug("Speech dispatch failed", "text", text, "err", err)
		metrics.SpeechRequests.WithLabelValues("failed").Inc()
		return
	}
	metrics.SpeechRequests.WithLabelValues("spoken").Inc()
}
