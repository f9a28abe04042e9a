package local

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"odin/internal/recognition"
)

// scriptSource returns one scripted capture per call, then blocks.
type scriptSource struct {
	mu    sync.Mutex
	clips [][]float32
}

func (s *scriptSource) Capture(ctx context.Context, onVoice func()) ([]float32, error) {
	s.mu.Lock()
	if len(s.clips) == 0 {
		s.mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	c := s.clips[0]
	s.clips = s.clips[1:]
	s.mu.Unlock()

	if c != nil && onVoice != nil {
		onVoice()
	}
	return c, nil
}

// lenTranscriber names the clip by its length; empty clips yield "".
type lenTranscriber struct{}

func (lenTranscriber) Transcribe(_ context.Context, pcm []float32) (string, error) {
	if len(pcm) == 0 {
		return "", nil
	}
	return fmt.Sprintf("Clip %d", len(pcm)), nil
}

type recorder struct {
	mu     sync.Mutex
	events []recognition.Event
	ended  chan struct{}
}

func newRecorder() *recorder {
	return &recorder{ended: make(chan struct{}, 4)}
}

func (r *recorder) emit(ev recognition.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	if ev.Kind == recognition.EventEnd {
		r.ended <- struct{}{}
	}
}

func (r *recorder) kinds() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var k []string
	for _, ev := range r.events {
		k = append(k, ev.Kind.String())
	}
	return strings.Join(k, ",")
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.ended:
	case <-time.After(time.Second):
		t.Fatalf("session did not end; events %s", r.kinds())
	}
}

type fakeAttenuator struct {
	mu             sync.Mutex
	ducks, restore int
}

func (a *fakeAttenuator) Duck(context.Context) error {
	a.mu.Lock()
	a.ducks++
	a.mu.Unlock()
	return nil
}

func (a *fakeAttenuator) Restore(context.Context) error {
	a.mu.Lock()
	a.restore++
	a.mu.Unlock()
	return nil
}

func TestSinglePhraseSession(t *testing.T) {
	att := &fakeAttenuator{}
	cued := false
	r := NewRecognizer(&scriptSource{clips: [][]float32{make([]float32, 3)}}, lenTranscriber{},
		WithAttenuator(att), WithCue(func() { cued = true }))

	rec := newRecorder()
	s, err := r.Open(recognition.Options{}, rec.emit)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	rec.wait(t)

	if got := rec.kinds(); got != "start,result,end" {
		t.Fatalf("events = %s", got)
	}
	if got := rec.events[1].Results[0].Transcript(); got != "Clip 3" {
		t.Errorf("transcript = %q", got)
	}
	if !cued {
		t.Error("cue not played")
	}
	if att.ducks != 1 || att.restore != 1 {
		t.Errorf("duck/restore = %d/%d, want 1/1", att.ducks, att.restore)
	}
}

func TestSinglePhraseSilenceIsNoSpeech(t *testing.T) {
	r := NewRecognizer(&scriptSource{clips: [][]float32{nil}}, lenTranscriber{})
	rec := newRecorder()
	s, _ := r.Open(recognition.Options{}, rec.emit)
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	rec.wait(t)

	if got := rec.kinds(); got != "start,error,end" {
		t.Fatalf("events = %s", got)
	}
	if !errors.Is(rec.events[1].Err, recognition.ErrNoSpeech) {
		t.Errorf("err = %v, want ErrNoSpeech", rec.events[1].Err)
	}
}

func TestContinuousSessionKeepsListening(t *testing.T) {
	att := &fakeAttenuator{}
	src := &scriptSource{clips: [][]float32{make([]float32, 1), nil, make([]float32, 2)}}
	r := NewRecognizer(src, lenTranscriber{}, WithAttenuator(att))

	rec := newRecorder()
	s, _ := r.Open(recognition.Options{Continuous: true, InterimResults: true}, rec.emit)
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); !errors.Is(err, errSessionRunning) {
		t.Fatalf("second Start err = %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for !strings.HasSuffix(rec.kinds(), "result,result,result,result") && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}
	rec.wait(t)

	rec.mu.Lock()
	defer rec.mu.Unlock()

	var finals []string
	interim := 0
	for _, ev := range rec.events {
		if ev.Kind != recognition.EventResult {
			continue
		}
		r := ev.Results[ev.ResultIndex]
		if !r.Final {
			interim++
			continue
		}
		finals = append(finals, r.Transcript())
	}
	if strings.Join(finals, "|") != "Clip 1|Clip 2" {
		t.Errorf("finals = %v", finals)
	}
	if interim != 2 {
		t.Errorf("interim results = %d, want 2", interim)
	}
	if att.ducks != 0 {
		t.Error("continuous session must not duck")
	}
}

func TestSessionRestartsAfterEnd(t *testing.T) {
	src := &scriptSource{clips: [][]float32{make([]float32, 1), make([]float32, 4)}}
	r := NewRecognizer(src, lenTranscriber{})
	rec := newRecorder()
	s, _ := r.Open(recognition.Options{}, rec.emit)

	for i := 0; i < 2; i++ {
		if err := s.Start(); err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
		rec.wait(t)
	}
	if got := rec.kinds(); got != "start,result,end,start,result,end" {
		t.Fatalf("events = %s", got)
	}
}

func TestUnavailableRecognizer(t *testing.T) {
	r := NewRecognizer(nil, lenTranscriber{})
	if r.Available() {
		t.Fatal("recognizer without a source reported available")
	}
	if _, err := r.Open(recognition.Options{}, func(recognition.Event) {}); !errors.Is(err, recognition.ErrUnsupported) {
		t.Fatalf("Open err = %v", err)
	}
}

const pactlListing = `Sink Input #41
	Driver: protocol-native.c
	Volume: front-left: 52428 /  80% / -5.81 dB,   front-right: 52428 /  80% / -5.81 dB
	Properties:
		application.name = "Firefox"
Sink Input #42
	Volume: front-left: 65536 / 100% / 0.00 dB
	Properties:
		application.name = "odin"
Sink Input #bad
	Volume: 10%
`

func TestParseSinkInputs(t *testing.T) {
	got := parseSinkInputs(pactlListing)
	if len(got) != 2 {
		t.Fatalf("parsed %d inputs: %+v", len(got), got)
	}
	if got[0] != (sinkInput{ID: 41, Volume: 80, AppName: "Firefox"}) {
		t.Errorf("first = %+v", got[0])
	}
	if got[1].AppName != "odin" || got[1].Volume != 100 {
		t.Errorf("second = %+v", got[1])
	}
}

func TestDuckerSkipsKeptStreams(t *testing.T) {
	d := NewDucker(DuckConfig{Keep: []string{"odin"}, Factor: 0.5, Floor: 10})

	var (
		mu  sync.Mutex
		set []string
	)
	d.pactl = func(_ context.Context, args ...string) ([]byte, error) {
		if args[0] == "list" {
			return []byte(pactlListing), nil
		}
		mu.Lock()
		set = append(set, strings.Join(args[1:], " "))
		mu.Unlock()
		return nil, nil
	}

	ctx := context.Background()
	if err := d.Duck(ctx); err != nil {
		t.Fatal(err)
	}
	if err := d.Duck(ctx); err != nil {
		t.Fatal(err)
	}
	if err := d.Restore(ctx); err != nil {
		t.Fatal(err)
	}

	want := []string{"41 40%", "41 80%"}
	if strings.Join(set, ",") != strings.Join(want, ",") {
		t.Fatalf("pactl set calls = %v, want %v", set, want)
	}
}

func TestWhisperLang(t *testing.T) {
	for in, want := range map[string]string{"en-US": "en", "": "auto", "de": "de"} {
		if got := WhisperLang(in); got != want {
			t.Errorf("WhisperLang(%q) = %q, want %q", in, got, want)
		}
	}
	if !isNoiseMarker("[BLANK_AUDIO]") || isNoiseMarker("odin help") {
		t.Error("isNoiseMarker misclassified")
	}
}
