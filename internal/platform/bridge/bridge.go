// Package bridge provides the platform capabilities of a remote device
// (phone or browser shell) connected over the websocket protocol.
package bridge

import (
	"context"
	"encoding/base64"
	"fmt"
	log "log/slog"
	"sync"
	"time"

	"odin/internal/assist"
	"odin/pkg/protocol"
)

// Frame kinds exchanged with the device.
const (
	KindCaps          = "caps"
	KindRecOpen       = "rec.open"
	KindRecStart      = "rec.start"
	KindRecStop       = "rec.stop"
	KindRecEvent      = "rec.event"
	KindTTSVoices     = "tts.voices"
	KindTTSSpeak      = "tts.speak"
	KindTTSCancel     = "tts.cancel"
	KindVoicesChanged = "tts.voiceschanged"
	KindVibrate       = "haptic.vibrate"
	KindFrame         = "frame"
	KindLocation      = "location"
	KindActivity      = "ui.activity"
	KindScreen        = "ui.screen"
	KindListen        = "ui.listen"
)

type transport interface {
	Transmit(kind, session string, payload any) error
	Request(ctx context.Context, kind, session string, payload any) (*protocol.Frame, error)
}

// Capabilities is what the device reported it can do.
type Capabilities struct {
	Recognition bool `json:"recognition"`
	Speech      bool `json:"speech"`
	Vibration   bool `json:"vibration"`
}

type Bridge struct {
	t    transport
	caps Capabilities

	mu            sync.Mutex
	sessions      map[string]*recSession
	voicesChanged []func()
	onFrame       func(jpeg []byte)
	onLocation    func(assist.Location)
	onListen      func()
}

// Dial connects to the device bridge and asks for its capabilities. The
// read loop runs until ctx is done.
func Dial(ctx context.Context, url string) (*Bridge, error) {
	b := newBridge(nil)

	ptcl, err := protocol.NewProtocol(protocol.PtclConfig{
		Url:         url,
		Reconn:      time.Second,
		Timeout:     5 * time.Second,
		EmitOut:     b.route,
		OnReconnect: b.reconnected,
	})
	if err != nil {
		return nil, err
	}
	b.t = ptcl
	go ptcl.Run(ctx)

	resp, err := ptcl.Request(ctx, KindCaps, "", nil)
	if err != nil {
		ptcl.Close()
		return nil, fmt.Errorf("query capabilities: %w", err)
	}
	if err := resp.Decode(&b.caps); err != nil {
		ptcl.Close()
		return nil, err
	}
	log.Info("Bridge connected", "url", url, "recognition", b.caps.Recognition,
		"speech", b.caps.Speech, "vibration", b.caps.Vibration)

	return b, nil
}

func newBridge(t transport) *Bridge {
	return &Bridge{
		t:        t,
		sessions: make(map[string]*recSession),
	}
}

func (b *Bridge) Capabilities() Capabilities { return b.caps }

// OnFrame receives camera frames pushed by the device.
func (b *Bridge) OnFrame(fn func(jpeg []byte)) {
	b.mu.Lock()
	b.onFrame = fn
	b.mu.Unlock()
}

// OnLocation receives position updates pushed by the device.
func (b *Bridge) OnLocation(fn func(assist.Location)) {
	b.mu.Lock()
	b.onLocation = fn
	b.mu.Unlock()
}

// OnListen fires when the user taps the device's dictation button.
func (b *Bridge) OnListen(fn func()) {
	b.mu.Lock()
	b.onListen = fn
	b.mu.Unlock()
}

// Activity pulses the device's listening indicator.
func (b *Bridge) Activity() {
	_ = b.t.Transmit(KindActivity, "", nil)
}

// Screen tells the device which screen to show.
func (b *Bridge) Screen(name string) {
	_ = b.t.Transmit(KindScreen, "", map[string]string{"screen": name})
}

func (b *Bridge) route(f *protocol.Frame) {
	switch f.Kind {
	case KindRecEvent:
		b.mu.Lock()
		rs := b.sessions[f.Session]
		b.mu.Unlock()
		if rs == nil {
			log.Debug("Event for unknown recognition session", "session", f.Session)
			return
		}
		rs.handle(f)

	case KindVoicesChanged:
		b.mu.Lock()
		fns := append([]func(){}, b.voicesChanged...)
		b.mu.Unlock()
		for _, fn := range fns {
			fn()
		}

	case KindFrame:
		var body struct {
			JPEG string `json:"jpeg"`
		}
		if err := f.Decode(&body); err != nil {
			log.Warn("Bad frame", "err", err)
			return
		}
		jpeg, err := base64.StdEncoding.DecodeString(body.JPEG)
		if err != nil {
			log.Warn("Bad frame encoding", "err", err)
			return
		}
		b.mu.Lock()
		fn := b.onFrame
		b.mu.Unlock()
		if fn != nil {
			fn(jpeg)
		}

	case KindLocation:
		var loc assist.Location
		if err := f.Decode(&loc); err != nil {
			log.Warn("Bad location", "err", err)
			return
		}
		b.mu.Lock()
		fn := b.onLocation
		b.mu.Unlock()
		if fn != nil {
			fn(loc)
		}

	case KindListen:
		b.mu.Lock()
		fn := b.onListen
		b.mu.Unlock()
		if fn != nil {
			fn()
		}

	default:
		log.Debug("Unhandled bridge frame", "kind", f.Kind)
	}
}
