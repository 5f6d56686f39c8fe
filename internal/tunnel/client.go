package tunnel

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/zexio-io/zexio-agent/internal/stats"
	"github.com/zexio-io/zexio-agent/internal/telemetry"
)

// LocalDialer opens a TCP connection to the local workload a session
// should be bridged to. It is supplied by the caller (the host
// resolver decides which local port a given request targets in the
// mesh-proxy path; the tunnel itself just needs "dial me a
// connection for this request").
type LocalDialer func(ctx context.Context, requestID string) (net.Conn, error)

// StatsEmitter samples node stats and pushes one at a time to send
// until ctx is cancelled or send fails. It is implemented by
// *stats.Streamer; defined narrowly here so tunnel doesn't need the
// rest of the stats package's constructor surface.
type StatsEmitter interface {
	Run(ctx context.Context, send func(stats.Sample) error) error
}

// Client maintains the reverse tunnel: one persistent WebSocket
// connection to the relay, authenticated once per connection, over
// which TunnelFrames are demultiplexed by request_id into local TCP
// sessions.
type Client struct {
	relayURL      string
	nodeID        string
	authCode      string
	dialLocal     LocalDialer
	statsStreamer StatsEmitter
	dialer        *websocket.Dialer
	log           *slog.Logger

	sessions *sessionStore
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithDialer overrides the websocket dialer, primarily for tests.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithLogger overrides the client's logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// NewClient returns a Client that will connect to relayURL,
// authenticating as nodeID with authCode, dialing local sessions via
// dialLocal, and piggy-backing statsStreamer's samples on the same
// authenticated connection. statsStreamer may be nil to disable stats
// reporting entirely (e.g. in tests exercising only the tunnel).
func NewClient(relayURL, nodeID, authCode string, dialLocal LocalDialer, statsStreamer StatsEmitter, opts ...Option) *Client {
	c := &Client{
		relayURL:      relayURL,
		nodeID:        nodeID,
		authCode:      authCode,
		dialLocal:     dialLocal,
		statsStreamer: statsStreamer,
		dialer:        websocket.DefaultDialer,
		log:           slog.Default().With("component", "tunnel"),
		sessions:      newSessionStore(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run connects to the relay and serves the tunnel until ctx is
// cancelled, reconnecting after any failure: reconnectDelay after a
// transport failure, authRejectDelay after an authentication rejection.
// Run only returns when ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	for {
		err := c.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		telemetry.TunnelReconnects.Add(ctx, 1)

		delay := reconnectDelay
		if isAuthErr(err) {
			delay = authRejectDelay
			c.log.Warn("tunnel authentication rejected, retrying", "error", err, "delay", delay)
		} else {
			c.log.Warn("tunnel connection lost, reconnecting", "error", err, "delay", delay)
		}

		if sleepErr := sleepCtx(ctx, delay); sleepErr != nil {
			return ctx.Err()
		}
	}
}

// runOnce dials the relay, authenticates, and serves frames until the
// connection drops or ctx is cancelled. All sessions opened during
// this connection are closed before returning.
func (c *Client) runOnce(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.relayURL, http.Header{})
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}
	defer conn.Close()
	defer c.sessions.closeAll()

	if err := c.authenticate(conn); err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}

	writeMu := &sync.Mutex{}
	send := func(env envelope) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(env)
	}

	// AUTHORIZED -> STREAMING: the init frame is the handshake marker
	// the relay waits for before it starts forwarding session frames.
	// It carries no request_id and no data; a failure to send it is
	// fatal to this connection attempt, same as a failed authenticate.
	if err := send(envelope{Type: messageFrame, Frame: &Frame{IsInit: true}}); err != nil {
		return fmt.Errorf("send init frame: %w", err)
	}
	c.log.Info("tunnel connected", "relay", c.relayURL)

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		<-gctx.Done()
		return conn.SetReadDeadline(time.Now())
	})
	group.Go(func() error {
		return c.readLoop(gctx, conn, send)
	})
	if c.statsStreamer != nil {
		group.Go(func() error {
			return c.statsStreamer.Run(gctx, func(sample stats.Sample) error {
				return send(envelope{Type: messageStats, Stats: &sample})
			})
		})
	}

	return group.Wait()
}

func (c *Client) authenticate(conn *websocket.Conn) error {
	req := envelope{
		Type: messageAuthenticate,
		Auth: &authRequest{
			NodeID:   c.nodeID,
			AuthCode: c.authCode,
			OSType:   runtime.GOOS,
			Version:  agentVersion(),
		},
	}
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("send auth request: %w", err)
	}

	var resp envelope
	if err := conn.ReadJSON(&resp); err != nil {
		return fmt.Errorf("read auth response: %w", err)
	}
	if resp.Type != messageAuthResult || resp.AuthResult == nil {
		return fmt.Errorf("unexpected response to authenticate: %s", resp.Type)
	}
	if !resp.AuthResult.Success {
		return fmt.Errorf("auth failed: %s", resp.AuthResult.Message)
	}
	return nil
}

// readLoop consumes frames from the relay and dispatches them to the
// session they belong to, spawning a new local connection for unseen
// request_ids. It returns when the connection errors or gctx is
// cancelled.
func (c *Client) readLoop(gctx context.Context, conn *websocket.Conn, send func(envelope) error) error {
	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			return fmt.Errorf("read frame: %w", err)
		}
		if env.Type != messageFrame || env.Frame == nil {
			continue
		}
		c.handleFrame(gctx, env.Frame, send)
	}
}

func (c *Client) handleFrame(gctx context.Context, frame *Frame, send func(envelope) error) {
	if frame.IsEOF {
		if sess := c.sessions.remove(frame.RequestID); sess != nil {
			sess.close()
		}
		return
	}

	sess, ok := c.sessions.get(frame.RequestID)
	if !ok {
		sess, ok = c.openSession(gctx, frame, send)
		if !ok {
			// Local connect failed; per the reference behavior the
			// relay is not told, it times out waiting for data.
			return
		}
		if len(frame.Data) == 0 {
			return
		}
	}

	// Handed off to the session's own writer goroutine rather than
	// written here directly, so a local socket that's slow to drain
	// blocks only this session's queue, not the shared read loop
	// demultiplexing every other session on this connection.
	if !sess.enqueue(frame.Data) {
		c.log.Warn("session queue full or closed, dropping session", "request_id", frame.RequestID)
		if removed := c.sessions.remove(frame.RequestID); removed != nil {
			removed.close()
		}
	}
}

// openSession dials the local workload for a newly observed
// request_id, registers the session, and starts its reader goroutine.
// It returns false if the local dial failed.
func (c *Client) openSession(gctx context.Context, frame *Frame, send func(envelope) error) (*session, bool) {
	conn, err := c.dialLocal(gctx, frame.RequestID)
	if err != nil {
		c.log.Warn("failed to connect to local workload", "request_id", frame.RequestID, "error", err)
		return nil, false
	}

	sess := newSession(frame.RequestID, conn)
	if !c.sessions.put(sess) {
		// Someone else claimed this request_id between our lookup and
		// now; close the connection we just opened and defer to them.
		conn.Close()
		existing, _ := c.sessions.get(frame.RequestID)
		return existing, existing != nil
	}
	telemetry.TunnelSessionsOpened.Add(gctx, 1)

	go sess.writeLoop(func() {
		c.log.Warn("local write failed, closing session", "request_id", sess.requestID)
		if removed := c.sessions.remove(sess.requestID); removed != nil {
			removed.close()
		}
	})
	go c.relayLocalReads(gctx, sess, conn, send)
	return sess, true
}

// relayLocalReads copies bytes read from the local connection back to
// the relay as Frames, sending a final IsEOF frame only on a clean
// close (read returns io.EOF/0 bytes), never on a read error — the
// relay then times the session out on its own.
func (c *Client) relayLocalReads(gctx context.Context, sess *session, conn net.Conn, send func(envelope) error) {
	defer func() {
		if removed := c.sessions.remove(sess.requestID); removed != nil {
			removed.close()
		}
	}()

	buf := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			if sendErr := send(envelope{Type: messageFrame, Frame: &Frame{RequestID: sess.requestID, Data: data}}); sendErr != nil {
				return
			}
		}
		if err != nil {
			if err.Error() == "EOF" {
				send(envelope{Type: messageFrame, Frame: &Frame{RequestID: sess.requestID, IsEOF: true}})
			}
			return
		}
		if gctx.Err() != nil {
			return
		}
	}
}

// NewRequestID generates a fresh random (UUID) identifier for a
// session.
func NewRequestID() string {
	return uuid.NewString()
}

var buildVersion = "devel"

func agentVersion() string {
	if v := os.Getenv("ZEXIO_AGENT_VERSION"); v != "" {
		return v
	}
	return buildVersion
}
