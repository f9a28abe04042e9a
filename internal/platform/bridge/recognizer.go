package bridge

import (
	log "log/slog"

	"github.com/google/uuid"

	"odin/internal/recognition"
	"odin/pkg/protocol"
)

type recEvent struct {
	Type        string      `json:"type"`
	ResultIndex int         `json:"resultIndex"`
	Results     []recResult `json:"results"`
	Error       string      `json:"error"`
}

type recResult struct {
	Final        bool     `json:"final"`
	Alternatives []string `json:"alternatives"`
}

func (e recEvent) event() (recognition.Event, bool) {
	switch e.Type {
	case "start":
		return recognition.Event{Kind: recognition.EventStart}, true
	case "end":
		return recognition.Event{Kind: recognition.EventEnd}, true
	case "error":
		return recognition.Event{Kind: recognition.EventError, Err: recognition.ErrorFromCode(e.Error)}, true
	case "result":
		ev := recognition.Event{Kind: recognition.EventResult, ResultIndex: e.ResultIndex}
		for _, r := range e.Results {
			ev.Results = append(ev.Results, recognition.Result{Final: r.Final, Alternatives: r.Alternatives})
		}
		return ev, true
	}
	return recognition.Event{}, false
}

type Recognizer struct {
	b *Bridge
}

// Recognizer exposes the device's speech recognition.
func (b *Bridge) Recognizer() *Recognizer {
	return &Recognizer{b: b}
}

func (r *Recognizer) Available() bool {
	return r.b.caps.Recognition
}

func (r *Recognizer) Open(opts recognition.Options, emit func(recognition.Event)) (recognition.Session, error) {
	if !r.Available() {
		return nil, recognition.ErrUnsupported
	}

	rs := &recSession{
		id: uuid.NewString(),
		open: map[string]any{
			"continuous":     opts.Continuous,
			"interimResults": opts.InterimResults,
			"lang":           opts.Lang,
		},
		emit: emit,
	}
	if err := r.b.t.Transmit(KindRecOpen, rs.id, rs.open); err != nil {
		return nil, err
	}

	r.b.mu.Lock()
	r.b.sessions[rs.id] = rs
	r.b.mu.Unlock()

	return &session{b: r.b, id: rs.id}, nil
}

// recSession is the daemon side of one device recognizer.
type recSession struct {
	id   string
	open map[string]any
	emit func(recognition.Event)
}

func (rs *recSession) handle(f *protocol.Frame) {
	var body recEvent
	if err := f.Decode(&body); err != nil {
		log.Warn("Bad recognition event", "session", rs.id, "err", err)
		return
	}
	if ev, ok := body.event(); ok {
		rs.emit(ev)
	}
}

// reconnected recreates every recognizer on the fresh connection and ends
// the sessions that were running on the old one.
func (b *Bridge) reconnected() {
	b.mu.Lock()
	live := make([]*recSession, 0, len(b.sessions))
	for _, rs := range b.sessions {
		live = append(live, rs)
	}
	b.mu.Unlock()

	for _, rs := range live {
		if err := b.t.Transmit(KindRecOpen, rs.id, rs.open); err != nil {
			log.Warn("Failed to reopen recognition session", "session", rs.id, "err", err)
		}
		rs.emit(recognition.Event{Kind: recognition.EventError, Err: recognition.ErrDisconnected})
		rs.emit(recognition.Event{Kind: recognition.EventEnd})
	}
	if len(live) > 0 {
		log.Info("Recognition sessions reset after reconnect", "count", len(live))
	}
}

// session mirrors one SpeechRecognition object on the device. Start and
// Stop do not wait for the device; failures arrive as error events.
type session struct {
	b  *Bridge
	id string
}

func (s *session) Start() error {
	return s.b.t.Transmit(KindRecStart, s.id, nil)
}

func (s *session) Stop() error {
	return s.b.t.Transmit(KindRecStop, s.id, nil)
}

// Close forgets the session; later device events for it are dropped.
func (s *session) Close() error {
	s.b.mu.Lock()
	delete(s.b.sessions, s.id)
	s.b.mu.Unlock()
	return nil
}
