package tunnel

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsAuthErr(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"auth failed", fmt.Errorf("authenticate: %w", errors.New("auth failed: bad code")), true},
		{"unauthorized", errors.New("unauthorized"), true},
		{"dial failure", errors.New("dial relay: connection refused"), false},
		{"read failure", errors.New("read frame: i/o timeout"), false},
	}

	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			if got := isAuthErr(c.err); got != c.want {
				t.Fatalf("isAuthErr(%v) = %v, want %v", c.err, got, c.want)
			}
		})
	}
}
