package tunnel

import (
	"errors"
	"testing"
	"time"
)

type fakeConn struct {
	written [][]byte
	closed  bool
}

func (f *fakeConn) Write(p []byte) (int, error) {
	if f.closed {
		return 0, errors.New("write on closed conn")
	}
	cp := make([]byte, len(p))
	copy(cp, p)
	f.written = append(f.written, cp)
	return len(p), nil
}

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

func TestSessionStore_PutEnforcesUniqueness(t *testing.T) {
	t.Parallel()

	store := newSessionStore()
	first := newSession("req-1", &fakeConn{})
	second := newSession("req-1", &fakeConn{})

	if !store.put(first) {
		t.Fatal("expected first put to succeed")
	}
	if store.put(second) {
		t.Fatal("expected second put with duplicate request_id to fail")
	}
	if store.len() != 1 {
		t.Fatalf("store.len() = %d, want 1", store.len())
	}
}

func TestSessionStore_RemoveIsOnceOnly(t *testing.T) {
	t.Parallel()

	store := newSessionStore()
	sess := newSession("req-1", &fakeConn{})
	store.put(sess)

	removed := store.remove("req-1")
	if removed == nil {
		t.Fatal("expected remove to return the session")
	}
	if again := store.remove("req-1"); again != nil {
		t.Fatal("expected second remove of the same request_id to return nil")
	}
}

func TestSessionStore_CloseAllClosesEveryConnection(t *testing.T) {
	t.Parallel()

	store := newSessionStore()
	conns := []*fakeConn{{}, {}, {}}
	for i, c := range conns {
		store.put(newSession(string(rune('a'+i)), c))
	}

	store.closeAll()

	for i, c := range conns {
		if !c.closed {
			t.Fatalf("conn %d not closed after closeAll", i)
		}
	}
	if store.len() != 0 {
		t.Fatalf("store.len() = %d after closeAll, want 0", store.len())
	}
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{}
	sess := newSession("req-1", conn)

	sess.close()
	sess.close() // must not panic

	if !conn.closed {
		t.Fatal("expected underlying connection to be closed")
	}
}

func TestSession_WriteLoopDrainsQueueToLocalConn(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{}
	sess := newSession("req-1", conn)
	defer sess.close()

	go sess.writeLoop(func() { t.Error("onError should not be called") })

	if !sess.enqueue([]byte("hello")) {
		t.Fatal("expected enqueue to succeed")
	}
	if !sess.enqueue([]byte("world")) {
		t.Fatal("expected second enqueue to succeed")
	}

	deadline := time.After(2 * time.Second)
	for len(conn.written) < 2 {
		select {
		case <-deadline:
			t.Fatalf("writeLoop only wrote %d of 2 chunks", len(conn.written))
		case <-time.After(10 * time.Millisecond):
		}
	}
	if string(conn.written[0]) != "hello" || string(conn.written[1]) != "world" {
		t.Fatalf("written = %q, want [hello world]", conn.written)
	}
}

func TestSession_WriteLoopStopsAfterClose(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{}
	sess := newSession("req-1", conn)

	done := make(chan struct{})
	go func() {
		sess.writeLoop(func() {})
		close(done)
	}()

	sess.close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("writeLoop did not return after session close")
	}
}

func TestSession_EnqueueFailsOnFullQueue(t *testing.T) {
	t.Parallel()

	sess := newSession("req-1", &fakeConn{})
	defer sess.close()

	for i := 0; i < sessionQueueDepth; i++ {
		if !sess.enqueue([]byte("x")) {
			t.Fatalf("enqueue %d unexpectedly failed before the queue was full", i)
		}
	}
	if sess.enqueue([]byte("overflow")) {
		t.Fatal("expected enqueue to fail once the bounded queue is full")
	}
}
