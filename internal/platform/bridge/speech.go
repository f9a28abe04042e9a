package bridge

import (
	"context"
	log "log/slog"
	"time"

	"odin/internal/speech"
)

type Synthesizer struct {
	b *Bridge
}

// Synthesizer exposes the device's text-to-speech.
func (b *Bridge) Synthesizer() *Synthesizer {
	return &Synthesizer{b: b}
}

func (s *Synthesizer) Voices() []speech.Voice {
	if !s.b.caps.Speech {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	resp, err := s.b.t.Request(ctx, KindTTSVoices, "", nil)
	if err != nil {
		log.Warn("Failed to list device voices", "err", err)
		return nil
	}

	var voices []speech.Voice
	if err := resp.Decode(&voices); err != nil {
		log.Warn("Bad voice list", "err", err)
		return nil
	}
	return voices
}

func (s *Synthesizer) Speak(u speech.Utterance) error {
	if !s.b.caps.Speech {
		return speech.ErrNoSynthesizer
	}

	body := map[string]any{
		"text":   u.Text,
		"volume": u.Volume,
		"rate":   u.Rate,
	}
	if u.Voice != nil {
		body["voice"] = u.Voice.Name
	}
	return s.b.t.Transmit(KindTTSSpeak, "", body)
}

func (s *Synthesizer) Cancel() {
	if s.b.caps.Speech {
		_ = s.b.t.Transmit(KindTTSCancel, "", nil)
	}
}

func (s *Synthesizer) OnVoicesChanged(fn func()) {
	s.b.mu.Lock()
	s.b.voicesChanged = append(s.b.voicesChanged, fn)
	s.b.mu.Unlock()
}

type Vibrator struct {
	b *Bridge
}

// Vibrator exposes the device's vibration motor.
func (b *Bridge) Vibrator() *Vibrator {
	return &Vibrator{b: b}
}

func (v *Vibrator) Vibrate(pattern []time.Duration) error {
	if !v.b.caps.Vibration {
		return nil
	}
	ms := make([]int64, len(pattern))
	for i, d := range pattern {
		ms[i] = d.Milliseconds()
	}
	return v.b.t.Transmit(KindVibrate, "", map[string]any{"pattern": ms})
}
