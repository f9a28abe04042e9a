// Package command turns finalized utterances into application intents.
package command

import (
	"fmt"

	"odin/internal/haptic"
)

// WakeWord must appear in an utterance before any rule is considered.
const WakeWord = "odin"

// AssistantName is the chat assistant's persona, addressable by voice.
const AssistantName = "muninn"

type Screen string

const (
	Scanning Screen = "scanning"
	Map      Screen = "map"
	Chat     Screen = "chat"
	Settings Screen = "settings"
	About    Screen = "about"
	Help     Screen = "help"
	Feedback Screen = "feedback"
)

// ParseScreen accepts the screen names used by the control socket.
func ParseScreen(s string) (Screen, bool) {
	switch sc := Screen(s); sc {
	case Scanning, Map, Chat, Settings, About, Help, Feedback:
		return sc, true
	}
	return "", false
}

type Kind int

const (
	Unrecognized Kind = iota
	NavigateTo
	StartScan
	StopScan
	SearchDestination
	AskAssistant
	OpenAssistant
	AdjustVolume
	AdjustRate
	SetHapticLevel
	OpenSettings
	OpenHelp
	OpenFeedback
	RevisitGuide
	ContactSupport
	SubmitFeedback
	RateFeedback
	AppendFeedback
)

var kindNames = [...]string{
	Unrecognized:      "Unrecognized",
	NavigateTo:        "NavigateTo",
	StartScan:         "StartScan",
	StopScan:          "StopScan",
	SearchDestination: "SearchDestination",
	AskAssistant:      "AskAssistant",
	OpenAssistant:     "OpenAssistant",
	AdjustVolume:      "AdjustVolume",
	AdjustRate:        "AdjustRate",
	SetHapticLevel:    "SetHapticLevel",
	OpenSettings:      "OpenSettings",
	OpenHelp:          "OpenHelp",
	OpenFeedback:      "OpenFeedback",
	RevisitGuide:      "RevisitGuide",
	ContactSupport:    "ContactSupport",
	SubmitFeedback:    "SubmitFeedback",
	RateFeedback:      "RateFeedback",
	AppendFeedback:    "AppendFeedback",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Intent is a tagged variant; only the field matching Kind is set.
type Intent struct {
	Kind   Kind
	Screen Screen
	Text   string
	Delta  float64
	Level  haptic.Level
}

func (i Intent) String() string {
	switch i.Kind {
	case NavigateTo:
		return fmt.Sprintf("NavigateTo(%s)", i.Screen)
	case SearchDestination, AskAssistant, ContactSupport, AppendFeedback:
		return fmt.Sprintf("%s(%q)", i.Kind, i.Text)
	case AdjustVolume, AdjustRate:
		return fmt.Sprintf("%s(%+.1f)", i.Kind, i.Delta)
	case RateFeedback:
		return fmt.Sprintf("RateFeedback(%s=%g)", i.Text, i.Delta)
	case SetHapticLevel:
		return fmt.Sprintf("SetHapticLevel(%s)", i.Level)
	default:
		return i.Kind.String()
	}
}

func Navigate(s Screen) Intent { return Intent{Kind: NavigateTo, Screen: s} }

// Command is everything one utterance asks for: the intents to apply in
// order, an optional spoken acknowledgment and a haptic pulse.
type Command struct {
	Rule    string
	Intents []Intent
	Ack     string
	Haptic  haptic.Level
}

var unrecognized = Command{Intents: []Intent{{Kind: Unrecognized}}, Haptic: haptic.Off}

// Recognized is false only for input that matched no rule.
func (c Command) Recognized() bool {
	return c.Rule != ""
}

// Has reports whether the command carries an intent of kind k.
func (c Command) Has(k Kind) bool {
	for _, in := range c.Intents {
		if in.Kind == k {
			return true
		}
	}
	return false
}

// Find returns the first intent of kind k.
func (c Command) Find(k Kind) (Intent, bool) {
	for _, in := range c.Intents {
		if in.Kind == k {
			return in, true
		}
	}
	return Intent{}, false
}
