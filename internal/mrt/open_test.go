package mrt

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

func fastOpener(maxRetries int) *Opener {
	o := NewOpener(time.Second, maxRetries, zap.NewNop())
	o.backoff = func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) }
	return o
}

func TestOpener_RemoteRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write(sampleDump())
	}))
	defer srv.Close()

	s, err := fastOpener(5).Open(t.Context(), srv.URL+"/route-views.sg/bgpdata/2022.08/RIBS/rib.20220808.1400")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	recs, err := readAll(t, s)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(recs) != 4 {
		t.Errorf("expected 4 records, got %d", len(recs))
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 requests, got %d", calls.Load())
	}
}

func TestOpener_RemoteNotFoundIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	if _, err := fastOpener(5).Open(t.Context(), srv.URL+"/rib.20220808.1400"); err == nil {
		t.Fatal("expected error for 404")
	}
	if calls.Load() != 1 {
		t.Errorf("404 should not be retried, got %d requests", calls.Load())
	}
}

func TestOpener_RemoteGivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if _, err := fastOpener(2).Open(t.Context(), srv.URL+"/rib.20220808.1400"); err == nil {
		t.Fatal("expected error after retries")
	}
	if calls.Load() != 3 {
		t.Errorf("expected 1 attempt + 2 retries, got %d", calls.Load())
	}
}
