package command

import (
	"strconv"
	"strings"
	"unicode"
)

// SupportPhone and SupportEmail are read out by the help screen.
const (
	SupportPhone = "1 800 634 6243"
	SupportEmail = "support@odin-assist.ai"
)

// Dictation describes the single-phrase flow of a screen.
type Dictation struct {
	Prompt string
	Parse  func(text string) Command
}

var dictations = map[Screen]Dictation{
	Settings: {Prompt: "Listening for configuration command.", Parse: ParseSettings},
	Help:     {Prompt: "Listening for support command.", Parse: ParseHelp},
	Feedback: {Prompt: "Listening for rating or feedback.", Parse: ParseFeedback},
}

// DictationFor reports the phrase flow available on s, if any.
func DictationFor(s Screen) (Dictation, bool) {
	d, ok := dictations[s]
	return d, ok
}

// ParseHelp interprets a phrase dictated on the help screen.
func ParseHelp(text string) Command {
	cmd := strings.ToLower(strings.TrimSpace(text))

	switch {
	case containsAny(cmd, "guide", "tutorial", "walkthrough"):
		return Command{
			Rule:    "help.guide",
			Intents: []Intent{Navigate(Scanning), {Kind: RevisitGuide}},
			Ack:     "Revisiting interactive guide.",
		}
	case containsAny(cmd, "call", "emergency"):
		return Command{
			Rule:    "help.call",
			Intents: []Intent{{Kind: ContactSupport, Text: "phone"}},
			Ack:     "Support line: " + SupportPhone + ".",
		}
	case containsAny(cmd, "email", "support"):
		return Command{
			Rule:    "help.email",
			Intents: []Intent{{Kind: ContactSupport, Text: "email"}},
			Ack:     "Support email: " + SupportEmail + ".",
		}
	case strings.Contains(cmd, "back"):
		return Command{Rule: "help.back", Intents: []Intent{Navigate(Scanning)}}
	}

	return Command{Ack: "Command not recognized."}
}

// ParseFeedback interprets a phrase dictated on the feedback screen.
// Anything that is not a submit or rating phrase becomes feedback text.
func ParseFeedback(text string) Command {
	cmd := strings.ToLower(strings.TrimSpace(text))

	switch {
	case containsAny(cmd, "submit", "send", "transmit"):
		return Command{
			Rule:    "feedback.submit",
			Intents: []Intent{{Kind: SubmitFeedback}},
			Ack:     "Feedback transmitted. Calibration updated. Thank you for your contribution.",
		}
	case containsAny(cmd, "rating", "set"):
		if !strings.Contains(cmd, "satisfaction") {
			return Command{Rule: "feedback.rating"}
		}
		rated := Command{Rule: "feedback.rating", Ack: "Satisfaction updated."}
		if n, ok := firstDigit(cmd); ok {
			rated.Intents = []Intent{{Kind: RateFeedback, Text: "satisfaction", Delta: float64(n)}}
		}
		return rated
	}

	return Command{
		Rule:    "feedback.text",
		Intents: []Intent{{Kind: AppendFeedback, Text: strings.TrimSpace(text)}},
		Ack:     "Feedback text updated.",
	}
}

func firstDigit(text string) (int, bool) {
	for _, r := range text {
		if unicode.IsDigit(r) {
			n, err := strconv.Atoi(string(r))
			return n, err == nil
		}
	}
	return 0, false
}
