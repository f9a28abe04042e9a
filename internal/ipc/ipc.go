// Package ipc is the local control socket between odin-ctl and the daemon.
// Each connection carries one JSON request and one JSON reply.
package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"net"
	"os"
	"time"
)

const DefaultSocketPath = "/tmp/odin.sock"

const (
	CmdListen  = "listen" // capture one phrase and reply with its text
	CmdSay     = "say"
	CmdUtter   = "utter" // inject text as if the global listener heard it
	CmdStart   = "start"
	CmdStop    = "stop"
	CmdOpen    = "open"
	CmdStatus  = "status"
	CmdHistory = "history" // newest obstacles and feedback, up to Limit
)

type Message struct {
	Cmd      string `json:"cmd"`
	Text     string `json:"text,omitempty"`
	Priority bool   `json:"priority,omitempty"`
	Screen   string `json:"screen,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

type Reply struct {
	OK    bool            `json:"ok"`
	Error string          `json:"error,omitempty"`
	Text  string          `json:"text,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func Fail(err error) Reply {
	return Reply{Error: err.Error()}
}

// Handler serves one request. ctx ends when the client disconnects or the
// server shuts down.
type Handler func(ctx context.Context, msg Message) Reply

// Serve listens on path until ctx is done. A stale socket file is replaced.
func Serve(ctx context.Context, path string, h Handler) error {
	_ = os.Remove(path)

	ln, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	log.Info("Control socket ready", "path", path)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				_ = os.Remove(path)
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}
		go handleConn(ctx, conn, h)
	}
}

func handleConn(ctx context.Context, conn net.Conn, h Handler) {
	defer conn.Close()

	var msg Message
	if err := json.NewDecoder(conn).Decode(&msg); err != nil {
		log.Debug("Bad control message", "err", err)
		_ = json.NewEncoder(conn).Encode(Fail(fmt.Errorf("decode: %w", err)))
		return
	}

	log.Debug("Control message", "cmd", msg.Cmd)

	// The client sends nothing after its request, so a read only returns
	// once it hangs up.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		var b [1]byte
		_, _ = conn.Read(b[:])
		cancel()
	}()

	reply := h(ctx, msg)

	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := json.NewEncoder(conn).Encode(reply); err != nil {
		log.Debug("Control reply failed", "cmd", msg.Cmd, "err", err)
	}
}

// Send performs one request against the daemon at path.
func Send(ctx context.Context, path string, msg Message) (Reply, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return Reply{}, err
	}
	defer conn.Close()

	if dl, ok := ctx.Deadline(); ok {
		conn.SetDeadline(dl)
	}

	if err := json.NewEncoder(conn).Encode(msg); err != nil {
		return Reply{}, fmt.Errorf("encode: %w", err)
	}

	var reply Reply
	if err := json.NewDecoder(conn).Decode(&reply); err != nil {
		return Reply{}, fmt.Errorf("decode: %w", err)
	}
	if !reply.OK && reply.Error != "" {
		return reply, errors.New(reply.Error)
	}
	return reply, nil
}
