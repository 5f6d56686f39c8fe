package tunnel

import (
	"sync"
)

// sessionQueueDepth bounds how many inbound frames a session may have
// buffered waiting for its local socket to accept them. A session
// whose local workload is slow to drain blocks only its own queue,
// never the shared read-loop goroutine demultiplexing every other
// session on the same connection.
const sessionQueueDepth = 64

// session represents one active multiplexed TCP connection to a
// local workload, keyed by request_id. Inbound frame data is hand off
// through inbound to a dedicated writer goroutine (see writeLoop)
// rather than written directly from the connection's read loop, so one
// session's blocked socket cannot stall demuxing for the others.
type session struct {
	requestID string
	localConn writeCloser
	inbound   chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// writeCloser is the subset of net.Conn that session needs; defined
// narrowly so tests can substitute an in-memory implementation.
type writeCloser interface {
	Write(p []byte) (int, error)
	Close() error
}

func newSession(requestID string, conn writeCloser) *session {
	return &session{
		requestID: requestID,
		localConn: conn,
		inbound:   make(chan []byte, sessionQueueDepth),
		done:      make(chan struct{}),
	}
}

// enqueue hands data off to the session's writer goroutine. It returns
// false without blocking if the session is already closed or its
// queue is full; either case means the caller should tear the session
// down rather than wait.
func (s *session) enqueue(data []byte) bool {
	select {
	case s.inbound <- data:
		return true
	case <-s.done:
		return false
	default:
		return false
	}
}

// writeLoop is the session's sole writer to its local connection. It
// drains inbound until the session closes, writing each frame's data
// in arrival order; any write error to the local socket ends the
// session via onError.
func (s *session) writeLoop(onError func()) {
	for {
		select {
		case data := <-s.inbound:
			if _, err := s.localConn.Write(data); err != nil {
				onError()
				return
			}
		case <-s.done:
			return
		}
	}
}

// close tears down the session's local connection exactly once. It is
// safe to call from multiple goroutines (the reader loop on EOF, and
// the store's closeAll on tunnel teardown).
func (s *session) close() {
	s.closeOnce.Do(func() {
		s.localConn.Close()
		close(s.done)
	})
}

// sessionStore is the multiplexer's active-session table: one entry
// per request_id currently bridging local TCP traffic to the relay.
// Session uniqueness (spec invariant: a request_id is claimed by at
// most one session) is enforced by Put's check against the existing
// map entry.
type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]*session)}
}

// put registers a new session for requestID. It returns false without
// modifying the store if a session for that request_id already
// exists, preserving session uniqueness.
func (s *sessionStore) put(sess *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[sess.requestID]; exists {
		return false
	}
	s.sessions[sess.requestID] = sess
	return true
}

func (s *sessionStore) get(requestID string) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[requestID]
	return sess, ok
}

// remove atomically retrieves and deletes a session, returning nil if
// none existed. Using get-and-delete under one lock prevents a
// double-close race between the reader loop observing local EOF and
// an inbound EOF frame arriving for the same request_id.
func (s *sessionStore) remove(requestID string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[requestID]
	if !ok {
		return nil
	}
	delete(s.sessions, requestID)
	return sess
}

// closeAll closes every active session and empties the table. Called
// when the tunnel connection drops, since the relay can no longer be
// reached and the sessions it backed are no longer reachable from
// this agent either.
func (s *sessionStore) closeAll() {
	s.mu.Lock()
	sessions := make([]*session, 0, len(s.sessions))
	for id, sess := range s.sessions {
		sessions = append(sessions, sess)
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.close()
	}
}

func (s *sessionStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
