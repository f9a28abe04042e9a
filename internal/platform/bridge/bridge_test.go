package bridge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"odin/internal/assist"
	"odin/internal/recognition"
	"odin/internal/speech"
	"odin/pkg/protocol"
)

type sent struct {
	kind    string
	session string
	payload string
}

type fakeTransport struct {
	mu      sync.Mutex
	sent    []sent
	replies map[string]any
}

func (f *fakeTransport) Transmit(kind, session string, payload any) error {
	raw, _ := json.Marshal(payload)
	f.mu.Lock()
	f.sent = append(f.sent, sent{kind, session, string(raw)})
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Request(_ context.Context, kind, session string, payload any) (*protocol.Frame, error) {
	f.Transmit(kind, session, payload)
	reply, ok := f.replies[kind]
	if !ok {
		return nil, errors.New("no reply")
	}
	raw, _ := json.Marshal(reply)
	return &protocol.Frame{Kind: kind, Payload: raw}, nil
}

func (f *fakeTransport) last() sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

func (f *fakeTransport) count(kind, session string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.sent {
		if s.kind == kind && s.session == session {
			n++
		}
	}
	return n
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func event(session string, body string) *protocol.Frame {
	return &protocol.Frame{Kind: KindRecEvent, Session: session, Payload: json.RawMessage(body)}
}

func TestRecognizerTranslatesEvents(t *testing.T) {
	tr := &fakeTransport{}
	b := newBridge(tr)
	b.caps.Recognition = true

	var got []recognition.Event
	sess, err := b.Recognizer().Open(recognition.Options{Continuous: true, InterimResults: true, Lang: "en-US"},
		func(ev recognition.Event) { got = append(got, ev) })
	if err != nil {
		t.Fatal(err)
	}
	open := tr.last()
	if open.kind != KindRecOpen || open.session == "" {
		t.Fatalf("open frame = %+v", open)
	}

	if err := sess.Start(); err != nil {
		t.Fatal(err)
	}
	if s := tr.last(); s.kind != KindRecStart || s.session != open.session {
		t.Fatalf("start frame = %+v", s)
	}

	b.route(event(open.session, `{"type":"start"}`))
	b.route(event(open.session, `{"type":"result","resultIndex":1,"results":[{"final":true,"alternatives":["a"]},{"final":false,"alternatives":["odin st"]}]}`))
	b.route(event(open.session, `{"type":"error","error":"not-allowed"}`))
	b.route(event(open.session, `{"type":"end"}`))
	b.route(event("someone-else", `{"type":"end"}`))

	kinds := make([]recognition.EventKind, len(got))
	for i, ev := range got {
		kinds[i] = ev.Kind
	}
	want := []recognition.EventKind{recognition.EventStart, recognition.EventResult, recognition.EventError, recognition.EventEnd}
	if !reflect.DeepEqual(kinds, want) {
		t.Fatalf("events = %v, want %v", kinds, want)
	}
	if r := got[1]; r.ResultIndex != 1 || len(r.Results) != 2 || r.Results[1].Transcript() != "odin st" {
		t.Fatalf("result = %+v", r)
	}
	if !errors.Is(got[2].Err, recognition.ErrPermissionDenied) {
		t.Fatalf("error = %v", got[2].Err)
	}
}

func TestRecognizerUnavailable(t *testing.T) {
	b := newBridge(&fakeTransport{})
	if _, err := b.Recognizer().Open(recognition.Options{}, func(recognition.Event) {}); !errors.Is(err, recognition.ErrUnsupported) {
		t.Fatalf("err = %v", err)
	}
}

func TestSynthesizer(t *testing.T) {
	tr := &fakeTransport{replies: map[string]any{
		KindTTSVoices: []map[string]string{{"name": "Samantha", "lang": "en-US"}},
	}}
	b := newBridge(tr)
	b.caps.Speech = true
	s := b.Synthesizer()

	voices := s.Voices()
	if len(voices) != 1 || voices[0] != (speech.Voice{Name: "Samantha", Lang: "en-US"}) {
		t.Fatalf("voices = %+v", voices)
	}

	if err := s.Speak(speech.Utterance{Text: "hi", Voice: &voices[0], Volume: 0.5, Rate: 1.2}); err != nil {
		t.Fatal(err)
	}
	var body map[string]any
	json.Unmarshal([]byte(tr.last().payload), &body)
	if body["text"] != "hi" || body["voice"] != "Samantha" || body["rate"] != 1.2 {
		t.Fatalf("speak payload = %v", body)
	}

	changed := 0
	s.OnVoicesChanged(func() { changed++ })
	b.route(&protocol.Frame{Kind: KindVoicesChanged})
	if changed != 1 {
		t.Fatalf("voices changed callbacks = %d", changed)
	}
}

func TestVibratorSendsMilliseconds(t *testing.T) {
	tr := &fakeTransport{}
	b := newBridge(tr)
	b.caps.Vibration = true

	b.Vibrator().Vibrate([]time.Duration{150 * time.Millisecond, 50 * time.Millisecond})
	if s := tr.last(); s.kind != KindVibrate || s.payload != `{"pattern":[150,50]}` {
		t.Fatalf("vibrate frame = %+v", s)
	}
}

func TestFramesAndLocation(t *testing.T) {
	b := newBridge(&fakeTransport{})

	var jpeg []byte
	var loc assist.Location
	b.OnFrame(func(b []byte) { jpeg = b })
	b.OnLocation(func(l assist.Location) { loc = l })

	payload, _ := json.Marshal(map[string]string{"jpeg": base64.StdEncoding.EncodeToString([]byte{0xff, 0xd8})})
	b.route(&protocol.Frame{Kind: KindFrame, Payload: payload})
	b.route(&protocol.Frame{Kind: KindLocation, Payload: json.RawMessage(`{"lat":51.52,"lng":-0.158}`)})

	if !reflect.DeepEqual(jpeg, []byte{0xff, 0xd8}) {
		t.Fatalf("jpeg = %v", jpeg)
	}
	if loc != (assist.Location{Lat: 51.52, Lng: -0.158}) {
		t.Fatalf("location = %+v", loc)
	}
}

func TestReconnectRestartsGlobalListener(t *testing.T) {
	tr := &fakeTransport{}
	b := newBridge(tr)
	b.caps.Recognition = true

	e := recognition.NewEngine(b.Recognizer(), recognition.WithTimings(recognition.Timings{
		RestartDelay: 20 * time.Millisecond,
		ResumeDelay:  30 * time.Millisecond,
		StopTimeout:  50 * time.Millisecond,
	}))
	t.Cleanup(e.Close)

	e.Global().Start(func(string) {})
	var id string
	waitFor(t, "rec.start", func() bool {
		tr.mu.Lock()
		defer tr.mu.Unlock()
		for _, s := range tr.sent {
			if s.kind == KindRecStart {
				id = s.session
				return true
			}
		}
		return false
	})
	b.route(event(id, `{"type":"start"}`))
	waitFor(t, "global listening", func() bool {
		g, _ := e.States()
		return g == recognition.StateListening
	})

	b.reconnected()

	if n := tr.count(KindRecOpen, id); n != 2 {
		t.Fatalf("rec.open frames for %s = %d, want 2", id, n)
	}
	waitFor(t, "global restart", func() bool {
		return tr.count(KindRecStart, id) == 2
	})
	b.route(event(id, `{"type":"start"}`))
	waitFor(t, "global listening again", func() bool {
		g, _ := e.States()
		return g == recognition.StateListening
	})
}

func TestClosedSessionIgnoresEvents(t *testing.T) {
	tr := &fakeTransport{}
	b := newBridge(tr)
	b.caps.Recognition = true

	var got []recognition.Event
	sess, err := b.Recognizer().Open(recognition.Options{}, func(ev recognition.Event) { got = append(got, ev) })
	if err != nil {
		t.Fatal(err)
	}
	id := tr.last().session
	if err := sess.(interface{ Close() error }).Close(); err != nil {
		t.Fatal(err)
	}

	b.route(event(id, `{"type":"end"}`))
	b.reconnected()
	if len(got) != 0 {
		t.Fatalf("events after close = %v", got)
	}
}
