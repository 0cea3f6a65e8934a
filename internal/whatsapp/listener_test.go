package whatsapp

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// pushServer is a test bridge push endpoint. Each accepted connection is
// handed to serve; connection attempts are counted.
type pushServer struct {
	srv      *httptest.Server
	connects atomic.Int32
}

func newPushServer(t *testing.T, serve func(conn *websocket.Conn)) *pushServer {
	t.Helper()

	ps := &pushServer{}
	upgrader := websocket.Upgrader{}

	ps.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws" {
			t.Errorf("path = %q, want /ws", r.URL.Path)
		}
		if got := r.URL.Query().Get("token"); got != "test-token" {
			t.Errorf("token = %q, want test-token", got)
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ps.connects.Add(1)
		serve(conn)
	}))

	t.Cleanup(ps.srv.Close)
	return ps
}

func newListenerClient(t *testing.T, ps *pushServer) *Client {
	t.Helper()

	client := New(testTransport(t, ps.srv))
	client.SetReconnectDelay(20 * time.Millisecond)
	return client
}

func TestListener_DeliversFrames(t *testing.T) {
	frames := make(chan string, 4)
	ps := newPushServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		for f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		// Hold the connection open until the client closes it.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer close(frames)

	client := newListenerClient(t, ps)
	events := client.Subscribe()

	client.Start()
	defer client.Stop()

	frames <- `{"event":"ready","data":{"info":"phone123"}}`

	select {
	case ev := <-events:
		if ev.Kind != EventReady {
			t.Errorf("Kind = %q, want %q", ev.Kind, EventReady)
		}
		if ev.Data["info"] != "phone123" {
			t.Errorf("Data[info] = %v, want phone123", ev.Data["info"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}

	if client.Status() != StatusReady {
		t.Errorf("Status() = %q, want %q", client.Status(), StatusReady)
	}
	if client.State() != ListenerConnected {
		t.Errorf("State() = %q, want %q", client.State(), ListenerConnected)
	}
}

func TestListener_MalformedFrameKeepsChannelOpen(t *testing.T) {
	frames := make(chan string, 4)
	ps := newPushServer(t, func(conn *websocket.Conn) {
		defer conn.Close()
		for f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
	})
	defer close(frames)

	client := newListenerClient(t, ps)
	events := client.Subscribe()

	client.Start()
	defer client.Stop()

	frames <- `{not json`
	frames <- `{"event":"message","data":{"body":"after"}}`

	// The good frame after the bad one proves the channel survived.
	select {
	case ev := <-events:
		if ev.Kind != EventMessage {
			t.Errorf("Kind = %q, want %q", ev.Kind, EventMessage)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel did not survive malformed frame")
	}

	if client.Status() != StatusDisconnected {
		t.Errorf("Status() = %q after malformed frame, want %q", client.Status(), StatusDisconnected)
	}
}

func TestListener_ReconnectsAfterClose(t *testing.T) {
	ps := newPushServer(t, func(conn *websocket.Conn) {
		// Drop every connection immediately to force reconnects.
		conn.Close()
	})

	client := newListenerClient(t, ps)
	client.Start()

	deadline := time.After(2 * time.Second)
	for ps.connects.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("connects = %d, want >= 3", ps.connects.Load())
		case <-time.After(10 * time.Millisecond):
		}
	}

	client.Stop()

	if client.State() != ListenerStopped {
		t.Errorf("State() = %q after Stop, want %q", client.State(), ListenerStopped)
	}

	// No further connection attempts after Stop.
	settled := ps.connects.Load()
	time.Sleep(100 * time.Millisecond)
	if got := ps.connects.Load(); got != settled {
		t.Errorf("connects grew from %d to %d after Stop", settled, got)
	}
}

func TestListener_StopUnblocksRead(t *testing.T) {
	ps := newPushServer(t, func(conn *websocket.Conn) {
		// Never send anything; the client blocks in ReadMessage.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				conn.Close()
				return
			}
		}
	})

	client := newListenerClient(t, ps)
	client.Start()

	// Wait for the connection to establish.
	deadline := time.After(2 * time.Second)
	for client.State() != ListenerConnected {
		select {
		case <-deadline:
			t.Fatal("listener never connected")
		case <-time.After(10 * time.Millisecond):
		}
	}

	stopDone := make(chan struct{})
	go func() {
		client.Stop()
		close(stopDone)
	}()

	select {
	case <-stopDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not return while read was blocked")
	}
}

func TestListener_StopNeverStarted(t *testing.T) {
	client := New(TransportConfig{Host: "localhost", Port: 3000, Token: "t"})

	client.Stop() // must be a no-op

	if client.State() != ListenerStopped {
		t.Errorf("State() = %q, want %q", client.State(), ListenerStopped)
	}
}

func TestListener_StopTwice(t *testing.T) {
	ps := newPushServer(t, func(conn *websocket.Conn) {
		conn.Close()
	})

	client := newListenerClient(t, ps)
	client.Start()
	client.Stop()
	client.Stop() // must not panic or block
}

func TestListener_DoubleStartIgnored(t *testing.T) {
	ps := newPushServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				conn.Close()
				return
			}
		}
	})

	client := newListenerClient(t, ps)
	client.Start()
	client.Start() // second start is ignored
	defer client.Stop()

	deadline := time.After(2 * time.Second)
	for client.State() != ListenerConnected {
		select {
		case <-deadline:
			t.Fatal("listener never connected")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if got := ps.connects.Load(); got != 1 {
		t.Errorf("connects = %d, want 1", got)
	}
}

func TestListener_RetriesWhenServerDown(t *testing.T) {
	// A server that is closed before the client starts: every dial fails,
	// the listener must keep retrying until stopped.
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	cfg := testTransport(t, srv)
	srv.Close()

	client := New(cfg)
	client.SetReconnectDelay(10 * time.Millisecond)
	client.Start()

	time.Sleep(100 * time.Millisecond)

	if client.State() != ListenerConnecting {
		t.Errorf("State() = %q while retrying, want %q", client.State(), ListenerConnecting)
	}

	stopDone := make(chan struct{})
	go func() {
		client.Stop()
		close(stopDone)
	}()

	select {
	case <-stopDone:
	case <-time.After(time.Second):
		t.Fatal("Stop() did not terminate the retry loop")
	}
}
