package local

import (
	log "log/slog"
	"time"

	"odin/internal/speech"
)

// Console speaks and vibrates into the log. It backs the replay platform
// and devices that lack an output capability.
type Console struct{}

func (Console) Voices() []speech.Voice {
	return []speech.Voice{{Name: "console", Lang: "en-US"}}
}

func (Console) Speak(u speech.Utterance) error {
	log.Info("Say", "text", u.Text, "priority", u.Priority, "volume", u.Volume, "rate", u.Rate)
	return nil
}

func (Console) Cancel() {}

func (Console) Vibrate(pattern []time.Duration) error {
	log.Info("Vibrate", "pattern", pattern)
	return nil
}
