package command

import (
	"fmt"
	"strings"

	"odin/internal/haptic"
)

// ParseSettings interprets a phrase dictated on the settings screen. No
// wake word is needed. A phrase naming a level without "vibration" is
// matched but changes nothing.
func ParseSettings(text string) Command {
	cmd := strings.ToLower(strings.TrimSpace(text))

	switch {
	case strings.Contains(cmd, "increase volume"):
		return settings(Intent{Kind: AdjustVolume, Delta: VolumeStep}, "Increasing volume.")
	case strings.Contains(cmd, "decrease volume"):
		return settings(Intent{Kind: AdjustVolume, Delta: -VolumeStep}, "Decreasing volume.")
	case containsAny(cmd, "faster", "increase speed"):
		return settings(Intent{Kind: AdjustRate, Delta: RateStep}, "Increasing pace.")
	case containsAny(cmd, "slower", "decrease speed"):
		return settings(Intent{Kind: AdjustRate, Delta: -RateStep}, "Decreasing pace.")
	case containsAny(cmd, "high", "medium", "low"):
		if !strings.Contains(cmd, "vibration") {
			return Command{Rule: "settings.vibration"}
		}
		level := haptic.Low
		switch {
		case strings.Contains(cmd, "high"):
			level = haptic.High
		case strings.Contains(cmd, "medium"):
			level = haptic.Medium
		}
		return settings(Intent{Kind: SetHapticLevel, Level: level}, fmt.Sprintf("Vibration set to %s.", level))
	}

	return Command{Ack: fmt.Sprintf("Command %s not recognized for settings.", text)}
}

func settings(in Intent, ack string) Command {
	return Command{Rule: "settings." + strings.ToLower(in.Kind.String()), Intents: []Intent{in}, Ack: ack}
}
