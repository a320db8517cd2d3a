package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DmitryBurnaev/tg-housing/pkg/logx"
)

func testClient(t *testing.T) *Client {
	t.Helper()
	return NewClient(ClientOptions{
		Timeout:       2 * time.Second,
		RetryMax:      3,
		RetryBase:     time.Millisecond,
		RetryMaxDelay: 5 * time.Millisecond,
		RatePerHost:   1000,
	}, logx.Nop())
}

func TestGetRetriesTransientThenSucceeds(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	doc, err := testClient(t).Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got := hits.Load(); got != 3 {
		t.Fatalf("hits = %d, want 3", got)
	}
	if doc.Status != http.StatusOK || string(doc.Body) != "<html>ok</html>" {
		t.Fatalf("unexpected document: status=%d body=%q", doc.Status, doc.Body)
	}
	if doc.FetchedAt.IsZero() {
		t.Fatal("FetchedAt must be set")
	}
}

func TestGetPermanentErrorNotRetried(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := testClient(t).Get(context.Background(), srv.URL)
	var ferr *FetchError
	if !errors.As(err, &ferr) {
		t.Fatalf("error = %T, want *FetchError", err)
	}
	if ferr.Transient {
		t.Fatal("404 must be classified as permanent")
	}
	if ferr.Status != http.StatusNotFound {
		t.Fatalf("Status = %d, want 404", ferr.Status)
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("hits = %d, want 1 (no retries)", got)
	}
}

func TestGetExhaustsRetryBudget(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testClient(t).Get(context.Background(), srv.URL)
	var ferr *FetchError
	if !errors.As(err, &ferr) {
		t.Fatalf("error = %T, want *FetchError", err)
	}
	if !ferr.Transient {
		t.Fatal("5xx must be classified as transient")
	}
	if got := hits.Load(); got != 3 {
		t.Fatalf("hits = %d, want full retry budget of 3", got)
	}
}

func TestGetMalformedURL(t *testing.T) {
	t.Parallel()

	_, err := testClient(t).Get(context.Background(), "not-a-url")
	var ferr *FetchError
	if !errors.As(err, &ferr) {
		t.Fatalf("error = %T, want *FetchError", err)
	}
	if ferr.Transient {
		t.Fatal("malformed URL must be permanent")
	}
}

func TestGetHonorsContextCancellation(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := testClient(t).Get(ctx, srv.URL)
	if err == nil {
		t.Fatal("expected error with canceled context")
	}
}

func TestTransientStatusClassification(t *testing.T) {
	t.Parallel()
	tests := []struct {
		status    int
		transient bool
	}{
		{500, true}, {502, true}, {503, true},
		{429, true}, {408, true},
		{400, false}, {403, false}, {404, false}, {410, false},
	}
	for _, tt := range tests {
		if got := transientStatus(tt.status); got != tt.transient {
			t.Fatalf("transientStatus(%d) = %v, want %v", tt.status, got, tt.transient)
		}
	}
}
