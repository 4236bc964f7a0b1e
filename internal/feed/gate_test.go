package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGateSupported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/live/config" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","config":{"isDev":true}}`))
	}))
	defer srv.Close()

	gate := &Gate{HubURL: srv.URL, Client: srv.Client()}
	supported, err := gate.Check(context.Background())
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !supported {
		t.Fatalf("expected supported deployment")
	}
}

func TestGateNotSupportedIsNotAnError(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"prod deployment", `{"status":"ok","config":{"isDev":false}}`},
		{"degraded status", `{"status":"degraded","config":{"isDev":true}}`},
		{"empty object", `{}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			gate := &Gate{HubURL: srv.URL, Client: srv.Client()}
			supported, err := gate.Check(context.Background())
			if err != nil {
				t.Fatalf("unsupported deployment must not be an error: %v", err)
			}
			if supported {
				t.Fatalf("expected unsupported")
			}
		})
	}
}

func TestGateProbeFailureReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	gate := &Gate{HubURL: srv.URL, Client: srv.Client()}
	supported, err := gate.Check(context.Background())
	if supported {
		t.Fatalf("failed probe must not report supported")
	}
	var availErr *AvailabilityError
	if !errors.As(err, &availErr) {
		t.Fatalf("expected AvailabilityError, got %T", err)
	}
	if availErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", availErr.StatusCode)
	}
}

func TestGateMalformedResponseIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	gate := &Gate{HubURL: srv.URL, Client: srv.Client()}
	_, err := gate.Check(context.Background())
	var availErr *AvailabilityError
	if !errors.As(err, &availErr) {
		t.Fatalf("expected AvailabilityError, got %v", err)
	}
}

func TestGateUnreachableHub(t *testing.T) {
	gate := &Gate{HubURL: "http://127.0.0.1:1"}
	_, err := gate.Check(context.Background())
	var availErr *AvailabilityError
	if !errors.As(err, &availErr) {
		t.Fatalf("expected AvailabilityError, got %v", err)
	}
}
