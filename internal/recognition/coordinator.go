package recognition

import (
	log "log/slog"
)

// Coordinator hands the microphone between the global listener and phrase
// captures. Each acquisition gets a lease; a release for an outdated lease
// is ignored so a late resume cannot reopen the global session while a newer
// capture holds the device.
type Coordinator struct {
	e *Engine

	lease uint64
	held  bool
}

// acquireExclusive suspends the global listener and calls granted once its
// session has ended or the stop timeout has elapsed, whichever comes first.
func (c *Coordinator) acquireExclusive(granted func(lease uint64)) {
	c.lease++
	c.held = true
	lease := c.lease

	g := c.e.global
	g.suspended = true
	g.cancelRestart()

	if g.sess == nil || !g.sess.active() {
		granted(lease)
		return
	}

	fired := false
	fire := func() {
		if fired {
			return
		}
		fired = true
		granted(lease)
	}

	timer := c.e.loop.after(c.e.timings.StopTimeout, func() {
		if !fired {
			log.Debug("Global listener did not confirm stop, proceeding")
			g.endWaiters = nil
			g.sess.abandon()
		}
		fire()
	})
	g.endWaiters = append(g.endWaiters, func() {
		timer.Stop()
		fire()
	})

	g.sess.stop()
}

// release resumes the global listener if it should still be running.
func (c *Coordinator) release(lease uint64) {
	if lease != c.lease || !c.held {
		return
	}
	c.held = false

	g := c.e.global
	g.suspended = false
	if !g.shouldBeActive.Load() {
		return
	}
	// A session still tearing down restarts from its end event.
	g.begin()
}
