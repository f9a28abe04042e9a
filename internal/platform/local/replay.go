package local

import (
	"context"
	"sync"
	"time"

	"odin/pkg/audioconv"
)

// Replay is a Source that plays recorded clips in order, one per capture,
// and then goes silent. It stands in for the microphone on headless hosts.
type Replay struct {
	mu    sync.Mutex
	files []string
	next  int
	gap   time.Duration
	opt   audioconv.Options
}

func NewReplay(files []string, gap time.Duration) *Replay {
	return &Replay{
		files: append([]string(nil), files...),
		gap:   gap,
		opt:   audioconv.Options{MaxDuration: DefaultVAD().MaxLength},
	}
}

func (r *Replay) Capture(ctx context.Context, onVoice func()) ([]float32, error) {
	r.mu.Lock()
	if r.next >= len(r.files) {
		r.mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	path := r.files[r.next]
	r.mu.Unlock()

	if r.gap > 0 {
		t := time.NewTimer(r.gap)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	// Advance only once the clip is consumed, so a stopped capture
	// replays the same clip next time.
	r.mu.Lock()
	r.next++
	r.mu.Unlock()

	pcm, err := audioconv.DecodeFile(ctx, path, r.opt)
	if err != nil {
		return nil, err
	}
	if onVoice != nil {
		onVoice()
	}
	return pcm, nil
}

// Remaining reports clips not yet played.
func (r *Replay) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.files) - r.next
}
