package recognition

import (
	log "log/slog"

	"odin/internal/metrics"
)

type Owner int

const (
	OwnerGlobal Owner = iota
	OwnerPhrase
)

func (o Owner) String() string {
	if o == OwnerPhrase {
		return "phrase"
	}
	return "global"
}

type SessionState int

const (
	StateIdle SessionState = iota
	StateStarting
	StateListening
	StateStopping
	StateError
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateListening:
		return "listening"
	case StateStopping:
		return "stopping"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// session tracks one platform session. It is only touched on the loop.
type session struct {
	e      *Engine
	owner  Owner
	opts   Options
	handle func(*session, Event)

	sess  Session
	state SessionState
	// gen is bumped on every attach; events of older platform sessions are dropped.
	gen uint64
}

// attach opens a fresh platform session behind s.
func (s *session) attach() error {
	s.gen++
	gen := s.gen

	sess, err := s.e.rec.Open(s.opts, func(ev Event) {
		s.e.loop.post(func() {
			if gen != s.gen {
				return
			}
			s.apply(ev)
			s.handle(s, ev)
		})
	})
	if err != nil {
		s.gen--
		return err
	}
	s.sess = sess
	return nil
}

// abandon gives up on a platform session that never confirmed its stop and
// puts a fresh one in its place, so the next start really starts.
func (s *session) abandon() {
	if !s.active() {
		return
	}
	log.Warn("Recognition session did not confirm stop, replacing it", "owner", s.owner, "state", s.state)

	old := s.sess
	if err := s.attach(); err != nil {
		log.Error("Failed to reopen recognition session", "owner", s.owner, "err", err)
	} else if c, ok := old.(interface{ Close() error }); ok {
		_ = c.Close()
	}
	s.set(StateIdle)
}

func (s *session) set(st SessionState) {
	if s.state == st {
		return
	}
	s.state = st
	if s.e.observe != nil {
		s.e.observe(s.owner, st)
	}
}

func (s *session) apply(ev Event) {
	switch ev.Kind {
	case EventStart:
		s.set(StateListening)
	case EventError:
		metrics.RecognitionErrors.WithLabelValues(s.owner.String(), errKind(ev.Err)).Inc()
		s.set(StateError)
	case EventEnd:
		s.set(StateIdle)
	}
}

func (s *session) start() error {
	if s.state != StateIdle {
		return nil
	}
	s.set(StateStarting)
	if err := s.sess.Start(); err != nil {
		s.set(StateIdle)
		return err
	}
	return nil
}

// stop asks the platform to end the session; EventEnd completes it.
func (s *session) stop() {
	if s.state == StateIdle || s.state == StateStopping {
		return
	}
	s.set(StateStopping)
	if err := s.sess.Stop(); err != nil {
		log.Debug("Recognition stop failed", "owner", s.owner, "err", err)
	}
}

func (s *session) active() bool {
	return s.state != StateIdle
}
