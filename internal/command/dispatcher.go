package command

import (
	"fmt"
	"strings"

	"odin/internal/haptic"
	"odin/internal/metrics"
)

const (
	VolumeStep = 0.2
	RateStep   = 0.2
)

// State is the router state a rule may depend on.
type State struct {
	Scanning bool
}

type rule struct {
	name  string
	match func(text string, st State) (Command, bool)
}

// Dispatcher evaluates its rules in order; the first match wins.
type Dispatcher struct {
	rules []rule
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{rules: wakeRules()}
}

// Rules lists rule names in evaluation order.
func (d *Dispatcher) Rules() []string {
	names := make([]string, len(d.rules))
	for i, r := range d.rules {
		names[i] = r.name
	}
	return names
}

// Handle never fails: text without the wake word, or matching no rule,
// yields an unrecognized command with no acknowledgment and no pulse.
func (d *Dispatcher) Handle(text string, st State) Command {
	text = strings.ToLower(strings.TrimSpace(text))
	if !strings.Contains(text, WakeWord) {
		return unrecognized
	}

	for _, r := range d.rules {
		cmd, ok := r.match(text, st)
		if !ok {
			continue
		}
		cmd.Rule = r.name
		cmd.Haptic = haptic.Low
		metrics.Commands.WithLabelValues(r.name).Inc()
		return cmd
	}

	metrics.Commands.WithLabelValues("unrecognized").Inc()
	return unrecognized
}

func containsAny(text string, keys ...string) bool {
	for _, k := range keys {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// trailing returns the trimmed text after the last occurrence of the first
// key present in text.
func trailing(text string, keys ...string) (string, bool) {
	for _, k := range keys {
		if i := strings.LastIndex(text, k); i >= 0 {
			return strings.TrimSpace(text[i+len(k):]), true
		}
	}
	return "", false
}

func keywords(name string, intents []Intent, ack string, keys ...string) rule {
	return rule{
		name: name,
		match: func(text string, _ State) (Command, bool) {
			if !containsAny(text, keys...) {
				return Command{}, false
			}
			return Command{Intents: intents, Ack: ack}, true
		},
	}
}

func wakeRules() []rule {
	return []rule{
		keywords("home", []Intent{Navigate(Scanning)}, "Returning home.",
			"back", "return", "home", "go to home page"),

		{
			name: "search",
			match: func(text string, _ State) (Command, bool) {
				target, ok := trailing(text, "search for", "go to")
				if !ok || target == "" {
					return Command{}, false
				}
				return Command{
					Intents: []Intent{Navigate(Map), {Kind: SearchDestination, Text: target}},
					Ack:     fmt.Sprintf("Searching for %s.", target),
				}, true
			},
		},

		keywords("maps", []Intent{Navigate(Map)}, "Opening maps.",
			"maps", "navigation", "directions"),

		{
			name: "ask",
			match: func(text string, _ State) (Command, bool) {
				query, ok := trailing(text, "ask", "tell "+AssistantName)
				if !ok {
					return Command{}, false
				}
				if query == "" {
					return Command{
						Intents: []Intent{Navigate(Chat), {Kind: OpenAssistant}},
						Ack:     "Muninn is listening.",
					}, true
				}
				return Command{Intents: []Intent{Navigate(Chat), {Kind: AskAssistant, Text: query}}}, true
			},
		},

		keywords("chat", []Intent{Navigate(Chat)}, "Muninn initialized.",
			"chat", AssistantName),

		keywords("scan", []Intent{Navigate(Scanning), {Kind: StartScan}}, "Vision engine active.",
			"initialize", "start scan", "vision"),

		{
			name: "stop",
			match: func(text string, st State) (Command, bool) {
				if !containsAny(text, "stop", "terminate") {
					return Command{}, false
				}
				if !st.Scanning {
					return Command{}, true
				}
				return Command{Intents: []Intent{{Kind: StopScan}}, Ack: "Scanner stopped."}, true
			},
		},

		keywords("settings", []Intent{Navigate(Settings)}, "Opening configuration.",
			"personalize", "settings"),

		keywords("help", []Intent{Navigate(Help)}, "Help center active.",
			"help", "support"),

		keywords("feedback", []Intent{Navigate(Feedback)}, "Opening feedback.",
			"feedback", "report"),

		keywords("louder", []Intent{{Kind: AdjustVolume, Delta: VolumeStep}}, "Volume increased.",
			"louder", "increase volume"),

		keywords("quieter", []Intent{{Kind: AdjustVolume, Delta: -VolumeStep}}, "Volume decreased.",
			"quieter", "decrease volume"),
	}
}
