package command

import "testing"

func TestParseHelp(t *testing.T) {
	tests := []struct {
		text string
		rule string
		kind Kind
		ack  string
	}{
		{"show me the tutorial", "help.guide", RevisitGuide, "Revisiting interactive guide."},
		{"Emergency", "help.call", ContactSupport, "Support line: " + SupportPhone + "."},
		{"email support", "help.email", ContactSupport, "Support email: " + SupportEmail + "."},
		{"go back", "help.back", NavigateTo, ""},
		{"what is this", "", Unrecognized, "Command not recognized."},
	}
	for _, tt := range tests {
		got := ParseHelp(tt.text)
		if got.Rule != tt.rule || got.Ack != tt.ack {
			t.Errorf("ParseHelp(%q) = %+v", tt.text, got)
			continue
		}
		if tt.kind != Unrecognized && !got.Has(tt.kind) {
			t.Errorf("ParseHelp(%q) intents = %v, want %s", tt.text, got.Intents, tt.kind)
		}
	}
}

func TestParseFeedback(t *testing.T) {
	got := ParseFeedback("please transmit it")
	if !got.Has(SubmitFeedback) {
		t.Fatalf("submit = %+v", got)
	}

	got = ParseFeedback("set satisfaction to 4")
	in, ok := got.Find(RateFeedback)
	if !ok || in.Delta != 4 || in.Text != "satisfaction" || got.Ack != "Satisfaction updated." {
		t.Fatalf("rating = %+v", got)
	}

	got = ParseFeedback("set satisfaction to five")
	if len(got.Intents) != 0 || got.Ack != "Satisfaction updated." {
		t.Fatalf("rating without digit = %+v", got)
	}

	got = ParseFeedback("set the accuracy")
	if got.Rule != "feedback.rating" || got.Ack != "" {
		t.Fatalf("other rating = %+v", got)
	}

	got = ParseFeedback(" The voice is too quiet ")
	in, ok = got.Find(AppendFeedback)
	if !ok || in.Text != "The voice is too quiet" || got.Ack != "Feedback text updated." {
		t.Fatalf("text = %+v", got)
	}
}

func TestDictationFor(t *testing.T) {
	for _, s := range []Screen{Settings, Help, Feedback} {
		d, ok := DictationFor(s)
		if !ok || d.Prompt == "" || d.Parse == nil {
			t.Errorf("DictationFor(%s) = %+v, %v", s, d, ok)
		}
	}
	if _, ok := DictationFor(Map); ok {
		t.Error("map screen has no dictation flow")
	}
}
