package tunnel

import (
	"context"
	"strings"
	"time"
)

// reconnectDelay is the fixed interval between reconnect attempts
// after a transport-level failure (dial error, connection drop). The
// relay has no indication of how many nodes are reconnecting at once,
// so a smarter backoff (growth, jitter) would be worth adding; this is
// tracked as an open question rather than implemented here.
const reconnectDelay = 5 * time.Second

// authRejectDelay is the wait before redialing after the relay
// rejects authentication (auth_result.success=false). Longer than
// reconnectDelay: a rejected node is never going to succeed on the
// next immediate retry, so there is no reason to hammer the relay at
// the transport-failure cadence.
const authRejectDelay = 10 * time.Second

// sleepCtx sleeps for d or returns early with ctx.Err() if ctx is
// cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// isAuthErr reports whether err looks like an authentication failure
// reported by the relay, as opposed to a transient network error. Run
// uses this to choose authRejectDelay over reconnectDelay before the
// next redial.
func isAuthErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{"auth failed", "unauthorized", "invalid auth", "authentication failed"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
