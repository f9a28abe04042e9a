package recognition

import (
	"time"
)

// Timings are the handshake delays between the two listeners.
type Timings struct {
	// RestartDelay debounces the global restart after a session ends.
	RestartDelay time.Duration
	// ResumeDelay separates a phrase capture's end from the global resume.
	ResumeDelay time.Duration
	// StopTimeout bounds the wait for the global session to confirm it stopped.
	StopTimeout time.Duration
	// PhraseTimeout stops a capture that never ends by itself. Zero disables it.
	PhraseTimeout time.Duration
}

func DefaultTimings() Timings {
	return Timings{
		RestartDelay:  300 * time.Millisecond,
		ResumeDelay:   400 * time.Millisecond,
		StopTimeout:   500 * time.Millisecond,
		PhraseTimeout: 15 * time.Second,
	}
}

type Option func(*Engine)

func WithTimings(t Timings) Option {
	return func(e *Engine) { e.timings = t }
}

func WithLang(lang string) Option {
	return func(e *Engine) { e.lang = lang }
}

// WithStateObserver is called on the loop for every session state change.
func WithStateObserver(fn func(owner Owner, state SessionState)) Option {
	return func(e *Engine) { e.observe = fn }
}

// Engine serializes both listeners and the coordinator onto one loop.
type Engine struct {
	rec     Recognizer
	loop    *loop
	timings Timings
	lang    string
	observe func(Owner, SessionState)

	global *GlobalListener
	phrase *PhraseListener
	coord  *Coordinator
}

func NewEngine(rec Recognizer, opts ...Option) *Engine {
	e := &Engine{
		rec:     rec,
		timings: DefaultTimings(),
		lang:    "en-US",
	}
	for _, o := range opts {
		o(e)
	}

	e.loop = newLoop()
	e.coord = &Coordinator{e: e}
	e.global = &GlobalListener{e: e}
	e.phrase = &PhraseListener{e: e}

	return e
}

func (e *Engine) Global() *GlobalListener { return e.global }

func (e *Engine) Phrase() *PhraseListener { return e.phrase }

// Available reports whether the platform can recognize speech at all.
func (e *Engine) Available() bool {
	return e.rec != nil && e.rec.Available()
}

// States reports the global and phrase session states.
func (e *Engine) States() (global, phrase SessionState) {
	e.loop.call(func() {
		if s := e.global.sess; s != nil {
			global = s.state
		}
		if s := e.phrase.sess; s != nil {
			phrase = s.state
		}
	})
	return global, phrase
}

// Close stops both listeners and the loop. Pending captures resolve empty.
func (e *Engine) Close() {
	e.global.Stop()
	e.loop.call(func() {
		e.phrase.shutdown()
	})
	e.loop.close()
}

func (e *Engine) open(owner Owner, opts Options, handle func(*session, Event)) (*session, error) {
	opts.Lang = e.lang
	s := &session{e: e, owner: owner, opts: opts, handle: handle}
	if err := s.attach(); err != nil {
		return nil, err
	}
	return s, nil
}
