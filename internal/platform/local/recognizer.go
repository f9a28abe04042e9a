// Package local provides the desktop capabilities: a portaudio microphone
// with whisper.cpp transcription, espeak-ng speech, pactl ducking of other
// audio streams, and an audible stand-in for the vibration motor.
package local

import (
	"context"
	"errors"
	log "log/slog"
	"strings"
	"sync"
	"time"

	"odin/internal/recognition"
)

// Source yields one utterance of 16 kHz mono PCM per call. A nil slice
// with a nil error means nothing was heard.
type Source interface {
	Capture(ctx context.Context, onVoice func()) ([]float32, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, pcm []float32) (string, error)
}

// Attenuator lowers other applications while a phrase is captured.
type Attenuator interface {
	Duck(ctx context.Context) error
	Restore(ctx context.Context) error
}

var errSessionRunning = errors.New("local: session already running")

type RecognizerOption func(*Recognizer)

// WithAttenuator ducks other audio around single-phrase sessions.
func WithAttenuator(a Attenuator) RecognizerOption {
	return func(r *Recognizer) { r.duck = a }
}

// WithCue plays fn when a single-phrase session starts listening.
func WithCue(fn func()) RecognizerOption {
	return func(r *Recognizer) { r.cue = fn }
}

// Recognizer turns a Source and a Transcriber into recognition sessions.
// Interim results carry no text; they only signal that speech began.
type Recognizer struct {
	src  Source
	stt  Transcriber
	duck Attenuator
	cue  func()
}

func NewRecognizer(src Source, stt Transcriber, opts ...RecognizerOption) *Recognizer {
	r := &Recognizer{src: src, stt: stt}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Recognizer) Available() bool {
	return r != nil && r.src != nil && r.stt != nil
}

func (r *Recognizer) Open(opts recognition.Options, emit func(recognition.Event)) (recognition.Session, error) {
	if !r.Available() {
		return nil, recognition.ErrUnsupported
	}
	return &session{r: r, opts: opts, emit: emit}, nil
}

type session struct {
	r    *Recognizer
	opts recognition.Options
	emit func(recognition.Event)

	mu     sync.Mutex
	cancel context.CancelFunc
}

func (s *session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return errSessionRunning
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	go s.run(ctx)

	return nil
}

func (s *session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

func (s *session) run(ctx context.Context) {
	defer func() {
		s.mu.Lock()
		s.cancel()
		s.cancel = nil
		s.mu.Unlock()

		s.emit(recognition.Event{Kind: recognition.EventEnd})
	}()

	s.emit(recognition.Event{Kind: recognition.EventStart})

	if !s.opts.Continuous {
		if s.r.duck != nil {
			if err := s.r.duck.Duck(ctx); err != nil {
				log.Debug("Duck failed", "err", err)
			}
			defer s.restore()
		}
		if s.r.cue != nil {
			s.r.cue()
		}
	}

	var results []recognition.Result

	for {
		pcm, err := s.r.src.Capture(ctx, s.onVoice(results))
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.fail(err)
			return
		}

		text, err := s.r.stt.Transcribe(ctx, pcm)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.fail(err)
			return
		}

		text = strings.TrimSpace(text)
		if text == "" {
			if s.opts.Continuous {
				continue
			}
			s.fail(recognition.ErrNoSpeech)
			return
		}

		results = append(results, recognition.Result{Final: true, Alternatives: []string{text}})
		s.emit(recognition.Event{
			Kind:        recognition.EventResult,
			Results:     results,
			ResultIndex: len(results) - 1,
		})

		if !s.opts.Continuous {
			return
		}
	}
}

func (s *session) onVoice(prev []recognition.Result) func() {
	if !s.opts.InterimResults {
		return nil
	}
	return func() {
		batch := append(append([]recognition.Result(nil), prev...), recognition.Result{Alternatives: []string{""}})
		s.emit(recognition.Event{
			Kind:        recognition.EventResult,
			Results:     batch,
			ResultIndex: len(prev),
		})
	}
}

func (s *session) fail(err error) {
	s.emit(recognition.Event{Kind: recognition.EventError, Err: err})
}

func (s *session) restore() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.r.duck.Restore(ctx); err != nil {
		log.Debug("Unduck failed", "err", err)
	}
}
