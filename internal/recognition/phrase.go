package recognition

import (
	"context"
	log "log/slog"
	"time"
)

// PhraseListener captures one utterance at a time for screens that dictate
// a value. Failures resolve to an empty string; only an unusable platform or
// a cancelled context surface as errors.
type PhraseListener struct {
	e *Engine

	// loop-owned
	sess    *session
	busy    bool
	pending *capture
}

type capture struct {
	reply     chan string
	lease     uint64
	started   bool
	cancelled bool
	resolved  bool
	timer     *time.Timer
}

func (c *capture) resolve(text string) {
	if c.resolved {
		return
	}
	c.resolved = true
	c.reply <- text
}

// Listen returns the first transcript heard, or "" when nothing was
// recognized or another capture is already in flight.
func (p *PhraseListener) Listen(ctx context.Context) (string, error) {
	if !p.e.Available() {
		return "", ErrUnsupported
	}

	c := &capture{reply: make(chan string, 1)}
	if !p.e.loop.post(func() { p.begin(c) }) {
		return "", ErrClosed
	}

	select {
	case text := <-c.reply:
		return text, nil
	case <-ctx.Done():
		p.e.loop.post(func() { p.cancel(c) })
		return "", ctx.Err()
	case <-p.e.loop.done:
		return "", ErrClosed
	}
}

func (p *PhraseListener) begin(c *capture) {
	if p.busy {
		log.Debug("Phrase capture already in progress")
		c.resolve("")
		return
	}
	p.busy = true
	p.pending = c

	p.e.coord.acquireExclusive(func(lease uint64) {
		c.lease = lease
		p.open(c)
	})
}

func (p *PhraseListener) open(c *capture) {
	if c.cancelled || p.pending != c {
		p.finish(c)
		p.e.coord.release(c.lease)
		return
	}

	if p.sess == nil {
		s, err := p.e.open(OwnerPhrase, Options{}, p.handle)
		if err != nil {
			p.fail(c, err)
			return
		}
		p.sess = s
	}

	if err := p.sess.start(); err != nil {
		p.fail(c, err)
		return
	}
	c.started = true

	if d := p.e.timings.PhraseTimeout; d > 0 {
		c.timer = p.e.loop.after(d, func() {
			if p.pending == c {
				log.Debug("Phrase capture timed out")
				c.resolve("")
				p.stop(c)
			}
		})
	}
}

// stop ends the capture's session and, when the platform never confirms
// it, finishes the capture anyway after the stop timeout.
func (p *PhraseListener) stop(c *capture) {
	p.sess.stop()
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = p.e.loop.after(p.e.timings.StopTimeout, func() {
		if p.pending != c {
			return
		}
		p.sess.abandon()
		p.end(c)
	})
}

// end clears the busy flag and resumes the global listener after the
// resume delay.
func (p *PhraseListener) end(c *capture) {
	p.finish(c)
	lease := c.lease
	p.e.loop.after(p.e.timings.ResumeDelay, func() {
		p.e.coord.release(lease)
	})
}

// fail gives the device straight back when the capture never started.
func (p *PhraseListener) fail(c *capture, err error) {
	log.Warn("Phrase capture failed to start", "err", err)
	p.finish(c)
	p.e.coord.release(c.lease)
}

func (p *PhraseListener) finish(c *capture) {
	c.resolve("")
	if c.timer != nil {
		c.timer.Stop()
	}
	if p.pending == c {
		p.pending = nil
	}
	p.busy = false
}

func (p *PhraseListener) handle(s *session, ev Event) {
	c := p.pending

	switch ev.Kind {
	case EventResult:
		if c == nil {
			return
		}
		for i := ev.ResultIndex; i >= 0 && i < len(ev.Results); i++ {
			if t := ev.Results[i].Transcript(); t != "" {
				log.Info("Phrase captured", "text", t)
				c.resolve(t)
				return
			}
		}

	case EventError:
		if !benign(ev.Err) {
			log.Warn("Phrase capture error", "err", ev.Err)
		}
		if c != nil {
			c.resolve("")
		}

	case EventEnd:
		if c == nil || !c.started {
			return
		}
		p.end(c)
	}
}

func (p *PhraseListener) cancel(c *capture) {
	if p.pending != c {
		return
	}
	c.cancelled = true
	c.resolve("")
	if c.started && p.sess != nil {
		p.stop(c)
	}
}

func (p *PhraseListener) shutdown() {
	if c := p.pending; c != nil {
		c.resolve("")
		if c.started && p.sess != nil {
			p.sess.stop()
		}
	}
}
