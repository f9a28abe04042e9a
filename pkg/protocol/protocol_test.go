package protocol

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
)

// echoBridge replies to every framed request and pushes one unsolicited event.
func echoBridge(t *testing.T) *httptest.Server {
	t.Helper()
	up := ws.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var f Frame
			if err := json.Unmarshal(data, &f); err != nil {
				return
			}

			switch f.Kind {
			case "echo":
				reply, _ := json.Marshal(Frame{Kind: "echo", ID: f.ID, Session: f.Session, Payload: f.Payload})
				conn.WriteMessage(ws.TextMessage, reply)
			case "fail":
				reply, _ := json.Marshal(Frame{Kind: "fail", ID: f.ID, Error: "not-allowed"})
				conn.WriteMessage(ws.TextMessage, reply)
			case "drop":
				return
			case "poke":
				event, _ := json.Marshal(Frame{Kind: "event", Session: "s1", Payload: json.RawMessage(`{"n":7}`)})
				conn.WriteMessage(ws.TextMessage, event)
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, emit func(*Frame)) *Protocol {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ptcl, err := NewProtocol(PtclConfig{Url: url, Timeout: time.Second, EmitOut: emit})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go ptcl.Run(ctx)
	t.Cleanup(func() {
		cancel()
		ptcl.Close()
	})
	return ptcl
}

func TestRequestReply(t *testing.T) {
	ptcl := dial(t, echoBridge(t), nil)

	resp, err := ptcl.Request(context.Background(), "echo", "s9", map[string]string{"text": "hello"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Session != "s9" {
		t.Fatalf("session = %q", resp.Session)
	}
	var body struct{ Text string }
	if err := resp.Decode(&body); err != nil || body.Text != "hello" {
		t.Fatalf("payload = %+v, %v", body, err)
	}
}

func TestRequestError(t *testing.T) {
	ptcl := dial(t, echoBridge(t), nil)

	if _, err := ptcl.Request(context.Background(), "fail", "", nil); err == nil || !strings.Contains(err.Error(), "not-allowed") {
		t.Fatalf("err = %v", err)
	}
}

func TestUnsolicitedFramesGoToEmitOut(t *testing.T) {
	got := make(chan *Frame, 1)
	ptcl := dial(t, echoBridge(t), func(f *Frame) { got <- f })

	if err := ptcl.Transmit("poke", "", nil); err != nil {
		t.Fatal(err)
	}

	select {
	case f := <-got:
		var body struct{ N int }
		if f.Kind != "event" || f.Session != "s1" || f.Decode(&body) != nil || body.N != 7 {
			t.Fatalf("frame = %+v", f)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no unsolicited frame")
	}
}

func TestRequestTimeout(t *testing.T) {
	ptcl := dial(t, echoBridge(t), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := ptcl.Request(ctx, "ignored", "", nil); err == nil {
		t.Fatal("expected timeout")
	}
}

func TestReconnectHook(t *testing.T) {
	srv := echoBridge(t)
	ptcl := dial(t, srv, nil)

	reconnected := make(chan struct{}, 1)
	ptcl.OnReconnect(func() { reconnected <- struct{}{} })

	if err := ptcl.Transmit("drop", "", nil); err != nil {
		t.Fatal(err)
	}
	select {
	case <-reconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("reconnect hook did not run")
	}

	resp, err := ptcl.Request(context.Background(), "echo", "s2", map[string]int{"n": 1})
	if err != nil {
		t.Fatalf("request after reconnect: %v", err)
	}
	if resp.Session != "s2" {
		t.Fatalf("session = %q", resp.Session)
	}
}
