package recognition

import (
	log "log/slog"
	"strings"
	"sync/atomic"
	"time"

	"odin/internal/metrics"
)

// GlobalListener keeps one continuous session alive for the whole app and
// forwards every finalized transcript, lower-cased, to the utterance
// callback. It restarts itself after the platform ends a session unless it
// was stopped, suspended for a phrase capture, or hit a terminal error.
type GlobalListener struct {
	e *Engine

	// shouldBeActive is written by Start and Stop before they reach the loop.
	shouldBeActive atomic.Bool

	// loop-owned
	sess        *session
	suspended   bool
	onUtterance func(string)
	onActivity  func()
	restart     *time.Timer
	restartSeq  uint64
	endWaiters  []func()
}

// OnActivity registers fn to run on every result batch, interim or final.
func (g *GlobalListener) OnActivity(fn func()) {
	g.e.loop.post(func() { g.onActivity = fn })
}

// Start is idempotent. Callbacks run on the recognition loop and must not
// call back into the engine synchronously.
func (g *GlobalListener) Start(onUtterance func(string)) {
	if !g.e.Available() {
		log.Warn("Speech recognition is not available, voice commands disabled")
		return
	}
	g.shouldBeActive.Store(true)
	g.e.loop.post(func() { g.start(onUtterance) })
}

func (g *GlobalListener) start(onUtterance func(string)) {
	g.shouldBeActive.Store(true)
	g.onUtterance = onUtterance

	if g.sess == nil {
		s, err := g.e.open(OwnerGlobal, Options{Continuous: true, InterimResults: true}, g.handle)
		if err != nil {
			log.Error("Global recognizer unavailable", "err", err)
			g.shouldBeActive.Store(false)
			return
		}
		g.sess = s
	}

	if g.suspended {
		return
	}
	g.begin()
}

// Stop sets the intent flag at once; the teardown follows on the loop.
func (g *GlobalListener) Stop() {
	g.shouldBeActive.Store(false)
	g.e.loop.post(g.stop)
}

func (g *GlobalListener) stop() {
	g.shouldBeActive.Store(false)
	g.cancelRestart()
	if g.sess != nil {
		g.sess.stop()
	}
}

// Active reports the intent flag, not the session state.
func (g *GlobalListener) Active() bool {
	return g.shouldBeActive.Load()
}

func (g *GlobalListener) begin() {
	if g.sess == nil || g.sess.active() {
		return
	}
	if err := g.sess.start(); err != nil {
		if terminal(err) {
			log.Warn("Global listener disabled", "err", err)
			g.shouldBeActive.Store(false)
			return
		}
		log.Error("Global listener start failed", "err", err)
		g.scheduleRestart()
	}
}

func (g *GlobalListener) handle(s *session, ev Event) {
	switch ev.Kind {
	case EventStart:
		log.Debug("Global listener started")

	case EventResult:
		if g.onActivity != nil {
			g.onActivity()
		}
		for i := ev.ResultIndex; i >= 0 && i < len(ev.Results); i++ {
			r := ev.Results[i]
			if !r.Final {
				continue
			}
			text := strings.ToLower(r.Transcript())
			if strings.TrimSpace(text) == "" {
				continue
			}
			log.Info("Heard", "text", text)
			metrics.Utterances.Inc()
			if g.onUtterance != nil {
				g.onUtterance(text)
			}
		}

	case EventError:
		if terminal(ev.Err) {
			log.Info("Global listener stopped by platform", "err", ev.Err)
			g.shouldBeActive.Store(false)
			return
		}
		log.Debug("Global listener error", "err", ev.Err)

	case EventEnd:
		waiters := g.endWaiters
		g.endWaiters = nil
		for _, fn := range waiters {
			fn()
		}
		if g.shouldBeActive.Load() && !g.suspended {
			g.scheduleRestart()
		}
	}
}

// scheduleRestart collapses bursts of end events into one restart.
func (g *GlobalListener) scheduleRestart() {
	g.cancelRestart()
	seq := g.restartSeq
	g.restart = g.e.loop.after(g.e.timings.RestartDelay, func() {
		if seq != g.restartSeq {
			return
		}
		g.restart = nil
		if !g.shouldBeActive.Load() || g.suspended {
			return
		}
		metrics.RecognitionRestarts.Inc()
		g.begin()
	})
}

func (g *GlobalListener) cancelRestart() {
	if g.restart != nil {
		g.restart.Stop()
		g.restart = nil
	}
	g.restartSeq++
}
