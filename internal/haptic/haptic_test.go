package haptic

import (
	"errors"
	"testing"
	"time"
)

type recordingVibrator struct {
	calls [][]time.Duration
	err   error
}

func (r *recordingVibrator) Vibrate(p []time.Duration) error {
	r.calls = append(r.calls, p)
	return r.err
}

func TestVibrateLevels(t *testing.T) {
	tests := []struct {
		level Level
		want  []time.Duration
	}{
		{Low, []time.Duration{50 * time.Millisecond}},
		{Medium, []time.Duration{150 * time.Millisecond, 50 * time.Millisecond, 150 * time.Millisecond}},
		{High, []time.Duration{300 * time.Millisecond, 100 * time.Millisecond, 300 * time.Millisecond, 100 * time.Millisecond, 300 * time.Millisecond}},
	}
	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			v := &recordingVibrator{}
			NewSignal(v).Vibrate(tt.level)
			if len(v.calls) != 1 {
				t.Fatalf("calls = %d, want 1", len(v.calls))
			}
			if !equal(v.calls[0], tt.want) {
				t.Errorf("pattern = %v, want %v", v.calls[0], tt.want)
			}
		})
	}
}

func TestVibrateOffIsNoop(t *testing.T) {
	v := &recordingVibrator{}
	NewSignal(v).Vibrate(Off)
	if len(v.calls) != 0 {
		t.Errorf("off level vibrated: %v", v.calls)
	}
}

func TestTriggerDanger(t *testing.T) {
	v := &recordingVibrator{}
	NewSignal(v).TriggerDanger()
	if len(v.calls) != 1 || !equal(v.calls[0], DangerPattern()) {
		t.Fatalf("danger calls = %v", v.calls)
	}
	if equal(DangerPattern(), Pattern(High)) {
		t.Error("danger pattern must differ from high")
	}
}

func TestUnavailableVibrator(t *testing.T) {
	NewSignal(nil).Vibrate(High)
	NewSignal(nil).TriggerDanger()

	var s *Signal
	s.Vibrate(Low)

	v := &recordingVibrator{err: errors.New("no motor")}
	NewSignal(v).Vibrate(Low)
	if len(v.calls) != 1 {
		t.Errorf("calls = %d, want 1", len(v.calls))
	}
}

func TestPatternIsCopy(t *testing.T) {
	p := Pattern(Low)
	p[0] = time.Hour
	if Pattern(Low)[0] != 50*time.Millisecond {
		t.Error("Pattern leaked internal slice")
	}
}

func TestParseLevel(t *testing.T) {
	if l, ok := ParseLevel(" HIGH "); !ok || l != High {
		t.Errorf("ParseLevel(HIGH) = %v, %v", l, ok)
	}
	if _, ok := ParseLevel("loud"); ok {
		t.Error("ParseLevel(loud) accepted")
	}
}

func equal(a, b []time.Duration) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestPreferenceOffMutesPulsesNotDanger(t *testing.T) {
	v := &recordingVibrator{}
	s := NewSignal(v)
	if s.Preference() != Medium {
		t.Fatalf("default preference = %s", s.Preference())
	}

	s.SetPreference(Off)
	s.Vibrate(High)
	if len(v.calls) != 0 {
		t.Fatalf("muted signal vibrated: %v", v.calls)
	}

	s.TriggerDanger()
	if len(v.calls) != 1 || !equal(v.calls[0], DangerPattern()) {
		t.Fatalf("danger calls = %v", v.calls)
	}
}
