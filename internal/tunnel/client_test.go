package tunnel

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zexio-io/zexio-agent/internal/stats"
)

// fakeStatsEmitter sends one sample immediately and then blocks until
// ctx is cancelled, standing in for *stats.Streamer in tests that only
// want to assert the sample reaches the relay piggy-backed on the
// tunnel connection.
type fakeStatsEmitter struct {
	sample stats.Sample
}

func (f fakeStatsEmitter) Run(ctx context.Context, send func(stats.Sample) error) error {
	if err := send(f.sample); err != nil {
		return err
	}
	<-ctx.Done()
	return ctx.Err()
}

// fakeRelay is a minimal relay server used to drive Client in tests:
// it accepts one WebSocket connection, performs the auth handshake,
// and lets the test script frames in both directions.
type fakeRelay struct {
	upgrader websocket.Upgrader
	connCh   chan *websocket.Conn
}

func newFakeRelay() (*fakeRelay, *httptest.Server) {
	r := &fakeRelay{connCh: make(chan *websocket.Conn, 1)}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		conn, err := r.upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}

		var auth envelope
		if err := conn.ReadJSON(&auth); err != nil {
			return
		}
		conn.WriteJSON(envelope{Type: messageAuthResult, AuthResult: &authResult{Success: true}})

		r.connCh <- conn
	}))
	return r, srv
}

func wsURL(httpURL string) string {
	return "ws" + httpURL[len("http"):]
}

func TestClient_OpensSessionAndRelaysData(t *testing.T) {
	t.Parallel()

	relay, srv := newFakeRelay()
	defer srv.Close()

	// Local echo server the tunnel will dial into for new sessions.
	localLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer localLn.Close()
	go func() {
		conn, err := localLn.Accept()
		if err != nil {
			return
		}
		io.Copy(conn, conn)
	}()

	dialLocal := func(ctx context.Context, requestID string) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "tcp", localLn.Addr().String())
	}

	client := NewClient(wsURL(srv.URL), "node-1", "code", dialLocal, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- client.Run(ctx) }()

	var relayConn *websocket.Conn
	select {
	case relayConn = <-relay.connCh:
	case <-time.After(2 * time.Second):
		t.Fatal("relay never received a connection")
	}

	var initEnv envelope
	relayConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := relayConn.ReadJSON(&initEnv); err != nil || initEnv.Frame == nil || !initEnv.Frame.IsInit {
		t.Fatalf("expected init frame, got %+v, err=%v", initEnv, err)
	}

	if err := relayConn.WriteJSON(envelope{Type: messageFrame, Frame: &Frame{RequestID: "req-1", IsInit: true, Data: []byte("hello")}}); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	relayConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp envelope
	if err := relayConn.ReadJSON(&resp); err != nil {
		t.Fatalf("read echoed frame: %v", err)
	}
	if resp.Type != messageFrame || resp.Frame == nil || string(resp.Frame.Data) != "hello" {
		t.Fatalf("got %+v, want echoed frame with data %q", resp, "hello")
	}

	cancel()
	<-runErr
}

func TestClient_EOFFrameClosesSession(t *testing.T) {
	t.Parallel()

	relay, srv := newFakeRelay()
	defer srv.Close()

	localLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer localLn.Close()

	acceptedCh := make(chan net.Conn, 1)
	go func() {
		conn, err := localLn.Accept()
		if err != nil {
			return
		}
		acceptedCh <- conn
	}()

	dialLocal := func(ctx context.Context, requestID string) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "tcp", localLn.Addr().String())
	}

	client := NewClient(wsURL(srv.URL), "node-1", "code", dialLocal, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go client.Run(ctx)

	var relayConn *websocket.Conn
	select {
	case relayConn = <-relay.connCh:
	case <-time.After(2 * time.Second):
		t.Fatal("relay never received a connection")
	}

	var initEnv envelope
	relayConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := relayConn.ReadJSON(&initEnv); err != nil || initEnv.Frame == nil || !initEnv.Frame.IsInit {
		t.Fatalf("expected init frame, got %+v, err=%v", initEnv, err)
	}

	relayConn.WriteJSON(envelope{Type: messageFrame, Frame: &Frame{RequestID: "req-1", IsInit: true, Data: []byte("x")}})

	var localConn net.Conn
	select {
	case localConn = <-acceptedCh:
	case <-time.After(2 * time.Second):
		t.Fatal("local dial never happened")
	}

	relayConn.WriteJSON(envelope{Type: messageFrame, Frame: &Frame{RequestID: "req-1", IsEOF: true}})

	buf := make([]byte, 1)
	localConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := localConn.Read(buf); err == nil {
		t.Fatal("expected local connection to be closed after EOF frame")
	}

	if client.sessions.len() != 0 {
		t.Fatalf("session table len = %d, want 0 after EOF", client.sessions.len())
	}
}

func TestClient_PiggybacksStatsOnTunnelConnection(t *testing.T) {
	t.Parallel()

	relay, srv := newFakeRelay()
	defer srv.Close()

	dialLocal := func(ctx context.Context, requestID string) (net.Conn, error) {
		return nil, errors.New("no local sessions expected in this test")
	}

	emitter := fakeStatsEmitter{sample: stats.Sample{NodeID: "node-1", CPUPercent: 42}}
	client := NewClient(wsURL(srv.URL), "node-1", "code", dialLocal, emitter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)

	var relayConn *websocket.Conn
	select {
	case relayConn = <-relay.connCh:
	case <-time.After(2 * time.Second):
		t.Fatal("relay never received a connection")
	}

	relayConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env envelope
	for i := 0; i < 2; i++ {
		if err := relayConn.ReadJSON(&env); err != nil {
			t.Fatalf("read envelope %d: %v", i, err)
		}
		if env.Type == messageStats {
			break
		}
	}

	if env.Type != messageStats || env.Stats == nil {
		t.Fatalf("got %+v, want a stats envelope", env)
	}
	if env.Stats.CPUPercent != 42 {
		t.Fatalf("Stats.CPUPercent = %v, want 42", env.Stats.CPUPercent)
	}
}
