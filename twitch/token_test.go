package twitch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestTokenSourceCachesToken(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok-1","expires_in":3600,"token_type":"bearer"}`))
	}))
	defer srv.Close()

	ts := NewTokenSourceWithEndpoint("client-id", "client-secret", srv.URL)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		tok, err := ts.Token(ctx)
		if err != nil {
			t.Fatalf("Token: %v", err)
		}
		if tok != "tok-1" {
			t.Fatalf("token = %q", tok)
		}
	}
	if requests != 1 {
		t.Fatalf("expected a single token exchange, got %d", requests)
	}
}

func TestTokenSourceRefreshesNearExpiry(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok","expires_in":3600,"token_type":"bearer"}`))
	}))
	defer srv.Close()

	ts := NewTokenSourceWithEndpoint("client-id", "client-secret", srv.URL)
	ctx := context.Background()

	if _, err := ts.Token(ctx); err != nil {
		t.Fatalf("Token: %v", err)
	}
	// Within the safety margin of expiry the cached token no longer counts.
	ts.now = func() time.Time { return time.Now().Add(3600*time.Second - 30*time.Second) }
	if _, err := ts.Token(ctx); err != nil {
		t.Fatalf("Token: %v", err)
	}
	if requests != 2 {
		t.Fatalf("expected refresh near expiry, got %d exchanges", requests)
	}
}

func TestTokenSourceInvalidClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"status":401,"message":"invalid client"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	ts := NewTokenSourceWithEndpoint("client-id", "bad-secret", srv.URL)
	_, err := ts.Token(context.Background())
	if err == nil {
		t.Fatal("expected an error")
	}
	var cerr *CredentialError
	if !errors.As(err, &cerr) {
		t.Fatalf("error type = %T", err)
	}
	if !cerr.Fatal() {
		t.Error("rejected credentials must be fatal")
	}
}

func TestTokenSourceNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "oops", http.StatusInternalServerError)
	}))
	defer srv.Close()

	ts := NewTokenSourceWithEndpoint("client-id", "client-secret", srv.URL)
	_, err := ts.Token(context.Background())
	var cerr *CredentialError
	if !errors.As(err, &cerr) {
		t.Fatalf("error type = %T", err)
	}
	if cerr.Fatal() {
		t.Error("server errors are transient, not fatal")
	}
}

func TestTokenSourceCoalescesConcurrentRefresh(t *testing.T) {
	var mu sync.Mutex
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok","expires_in":3600,"token_type":"bearer"}`))
	}))
	defer srv.Close()

	ts := NewTokenSourceWithEndpoint("client-id", "client-secret", srv.URL)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ts.Token(context.Background()); err != nil {
				t.Errorf("Token: %v", err)
			}
		}()
	}
	wg.Wait()
	if requests != 1 {
		t.Fatalf("concurrent callers must coalesce onto one exchange, got %d", requests)
	}
}
