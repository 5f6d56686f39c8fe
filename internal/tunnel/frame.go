// Package tunnel implements the reverse tunnel client: it maintains
// one long-lived WebSocket connection to the relay, authenticates,
// and demultiplexes inbound TunnelFrames by request_id into local TCP
// sessions, forwarding their output back upstream. The node-stats
// stream is piggy-backed on the same authenticated connection as a
// second message type, rather than dialing its own transport.
package tunnel

import "github.com/zexio-io/zexio-agent/internal/stats"

// readBufferSize is the size of the buffer used to read from a local
// TCP session before packaging the bytes into a Frame. Matches the
// buffer size used by the reference relay client.
const readBufferSize = 8192

// messageType discriminates the envelope carried over the tunnel
// WebSocket. Authenticate is exchanged once at connection start, Frame
// flows continuously afterward in both directions, and Stats carries
// one periodic sample outbound — all three share this one connection.
type messageType string

const (
	messageAuthenticate messageType = "authenticate"
	messageAuthResult   messageType = "auth_result"
	messageFrame        messageType = "frame"
	messageStats        messageType = "stats"
)

// envelope is the single JSON shape exchanged in both directions over
// the tunnel WebSocket. Exactly one of Auth, AuthResult, Frame, or
// Stats is populated, selected by Type.
type envelope struct {
	Type       messageType   `json:"type"`
	Auth       *authRequest  `json:"auth,omitempty"`
	AuthResult *authResult   `json:"auth_result,omitempty"`
	Frame      *Frame        `json:"frame,omitempty"`
	Stats      *stats.Sample `json:"stats,omitempty"`
}

// authRequest is sent once, immediately after the WebSocket connects.
type authRequest struct {
	NodeID   string `json:"node_id"`
	AuthCode string `json:"auth_code"`
	OSType   string `json:"os_type"`
	Version  string `json:"version"`
}

// authResult is the relay's reply to authRequest.
type authResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Frame is one unit of a multiplexed TCP session, identified by
// RequestID. A frame with IsEOF set and no data indicates the sending
// side has closed its half of the session; any further frames for
// that RequestID are invalid and may be ignored.
type Frame struct {
	RequestID string `json:"request_id"`
	IsInit    bool   `json:"is_init"`
	IsEOF     bool   `json:"is_eof"`
	Data      []byte `json:"data,omitempty"`
}
