// Package protocol carries JSON frames between the daemon and a device
// bridge over a websocket. Requests are correlated with replies by ID;
// frames nobody waits for go to the EmitOut handler.
package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

var ErrClosed = errors.New("protocol: closed")

// Frame is one websocket message.
type Frame struct {
	Kind    string          `json:"kind"`
	ID      string          `json:"id,omitempty"`
	Session string          `json:"session,omitempty"`
	Error   string          `json:"error,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Decode unmarshals the payload into v.
func (f *Frame) Decode(v any) error {
	if len(f.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(f.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", f.Kind, err)
	}
	return nil
}

type PtclConfig struct {
	Url     string
	Reconn  time.Duration
	Timeout time.Duration
	EmitOut func(*Frame)
	// OnReconnect runs after the connection was re-established. Anything
	// the peer held for the old connection is gone by then.
	OnReconnect func()
}

type Protocol struct {
	ws      *WebSocket
	timeout time.Duration
	seq     atomic.Uint64

	waiterMu sync.Mutex
	waiters  map[string]chan *Frame

	emitMu   sync.RWMutex
	emitOut  func(*Frame)
	onReconn func()

	done chan struct{}
	once sync.Once
}

func NewProtocol(cfg PtclConfig) (*Protocol, error) {
	if cfg.Reconn <= 0 {
		cfg.Reconn = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	ws, err := NewWebSocket(cfg.Url, cfg.Reconn)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.Url, err)
	}

	return &Protocol{
		ws:       ws,
		timeout:  cfg.Timeout,
		waiters:  make(map[string]chan *Frame),
		emitOut:  cfg.EmitOut,
		onReconn: cfg.OnReconnect,
		done:     make(chan struct{}),
	}, nil
}

func (ptcl *Protocol) EmitOut(f func(*Frame)) {
	ptcl.emitMu.Lock()
	ptcl.emitOut = f
	ptcl.emitMu.Unlock()
}

func (ptcl *Protocol) OnReconnect(f func()) {
	ptcl.emitMu.Lock()
	ptcl.onReconn = f
	ptcl.emitMu.Unlock()
}

// Transmit sends a frame without waiting for a reply.
func (ptcl *Protocol) Transmit(kind, session string, payload any) error {
	return ptcl.send(Frame{Kind: kind, Session: session}, payload)
}

// Request sends a frame and waits for the frame that echoes its ID.
func (ptcl *Protocol) Request(ctx context.Context, kind, session string, payload any) (*Frame, error) {
	id := strconv.FormatUint(ptcl.seq.Add(1), 10)
	w := ptcl.installWaiter(id)
	defer ptcl.clearWaiter(id)

	if err := ptcl.send(Frame{Kind: kind, ID: id, Session: session}, payload); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, ptcl.timeout)
	defer cancel()

	select {
	case resp := <-w:
		if resp.Error != "" {
			return resp, fmt.Errorf("%s: %s", kind, resp.Error)
		}
		return resp, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", kind, ctx.Err())
	case <-ptcl.done:
		return nil, ErrClosed
	}
}

func (ptcl *Protocol) send(f Frame, payload any) error {
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s payload: %w", f.Kind, err)
		}
		f.Payload = raw
	}

	data, err := json.Marshal(f)
	if err != nil {
		return err
	}

	if err := ptcl.ws.Write(data); err != nil {
		log.Error("Failed to transmit", "kind", f.Kind, "err", err)
		return err
	}
	return nil
}

// Run reads frames until ctx is done or Close is called, reconnecting
// whenever the bridge drops the connection.
func (ptcl *Protocol) Run(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			ptcl.Close()
		case <-ptcl.done:
		}
	}()

	for {
		in := ptcl.ws.Read()

		select {
		case <-ptcl.done:
			return
		default:
		}

		switch in.kind {
		case CONN_CLOSE, READ_FAILURE:
			log.Warn("Bridge connection lost, reconnecting", "url", ptcl.ws.url, "err", in.err)
			if err := ptcl.ws.TryReconn(ctx); err != nil {
				return
			}
			log.Info("Reconnected to bridge", "url", ptcl.ws.url)

			ptcl.emitMu.RLock()
			reconn := ptcl.onReconn
			ptcl.emitMu.RUnlock()
			if reconn != nil {
				reconn()
			}

		case READ_OK:
			var f Frame
			if err := json.Unmarshal(in.msg, &f); err != nil {
				log.Warn("Failed to parse frame", "msg", string(in.msg), "err", err)
				continue
			}
			ptcl.dispatch(&f)
		}
	}
}

func (ptcl *Protocol) dispatch(f *Frame) {
	if f.ID != "" {
		if w := ptcl.currentWaiter(f.ID); w != nil {
			select {
			case w <- f:
			default:
			}
			return
		}
	}

	ptcl.emitMu.RLock()
	emit := ptcl.emitOut
	ptcl.emitMu.RUnlock()

	if emit != nil {
		emit(f)
	}
}

func (ptcl *Protocol) Close() error {
	var err error
	ptcl.once.Do(func() {
		close(ptcl.done)
		err = ptcl.ws.Close()
	})
	return err
}

func (ptcl *Protocol) installWaiter(id string) chan *Frame {
	ptcl.waiterMu.Lock()
	defer ptcl.waiterMu.Unlock()
	w := make(chan *Frame, 1)
	ptcl.waiters[id] = w
	return w
}

func (ptcl *Protocol) clearWaiter(id string) {
	ptcl.waiterMu.Lock()
	defer ptcl.waiterMu.Unlock()
	delete(ptcl.waiters, id)
}

func (ptcl *Protocol) currentWaiter(id string) chan *Frame {
	ptcl.waiterMu.Lock()
	defer ptcl.waiterMu.Unlock()
	return ptcl.waiters[id]
}
