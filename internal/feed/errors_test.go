package feed

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want errorClass
	}{
		{"nil", nil, classFatal},
		{"401", errors.New("server returned 401"), classAuth},
		{"403", errors.New("dial failed: status 403"), classAuth},
		{"unauthorized", errors.New("Unauthorized token"), classAuth},
		{"forbidden", errors.New("access forbidden"), classAuth},
		{"network", errors.New("network is unreachable"), classTransient},
		{"connection reset", errors.New("read: connection reset by peer"), classTransient},
		{"timeout", errors.New("i/o timeout"), classTransient},
		{"eof", errors.New("unexpected EOF"), classTransient},
		{"websocket", errors.New("websocket: close 1006"), classTransient},
		{"closed", errors.New("use of closed network connection"), classTransient},
		{"unknown", errors.New("something odd happened"), classFatal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := classifyError(tc.err); got != tc.want {
				t.Fatalf("classifyError(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}

func TestAuthMarkerWinsOverTransientMarker(t *testing.T) {
	err := errors.New("websocket connection rejected: 403 forbidden")
	if classifyError(err) != classAuth {
		t.Fatalf("auth marker must take precedence over transient patterns")
	}
}

func TestAvailabilityErrorFormatting(t *testing.T) {
	withStatus := &AvailabilityError{StatusCode: 503}
	if withStatus.Error() != "availability probe failed: status 503" {
		t.Fatalf("unexpected message: %q", withStatus.Error())
	}

	inner := errors.New("connection refused")
	wrapped := &AvailabilityError{Err: fmt.Errorf("probe request: %w", inner)}
	if !errors.Is(wrapped, inner) {
		t.Fatalf("expected Unwrap to reach the inner error")
	}
}
