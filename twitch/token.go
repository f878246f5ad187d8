package twitch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/geekingfrog/golem/telemetry"
)

const tokenEndpoint = "https://id.twitch.tv/oauth2/token"

// refreshMargin is how long before expiry a cached token is already
// considered stale.
const refreshMargin = 60 * time.Second

// CredentialErrorKind distinguishes recoverable from fatal token failures.
type CredentialErrorKind int

const (
	// CredentialNetwork is a transient failure reaching the token endpoint.
	CredentialNetwork CredentialErrorKind = iota
	// CredentialInvalidClient means the configured client id/secret were
	// rejected. Retrying cannot help until an operator fixes the config.
	CredentialInvalidClient
)

type CredentialError struct {
	Kind CredentialErrorKind
	Err  error
}

func (e *CredentialError) Error() string {
	switch e.Kind {
	case CredentialInvalidClient:
		return fmt.Sprintf("invalid client credentials: %v", e.Err)
	default:
		return fmt.Sprintf("token refresh failed: %v", e.Err)
	}
}

func (e *CredentialError) Unwrap() error { return e.Err }

// Fatal reports whether the error requires operator intervention.
func (e *CredentialError) Fatal() bool { return e.Kind == CredentialInvalidClient }

// TokenSource fetches and caches a Twitch app access (client credentials)
// token. The cached credential is replaced wholesale on refresh and never
// handed out past its safety margin. Concurrent callers needing a refresh
// coalesce on the mutex: the first performs the exchange, the rest observe
// the resulting token.
type TokenSource struct {
	mu   sync.Mutex
	conf *clientcredentials.Config
	tok  *oauth2.Token
	now  func() time.Time
}

func NewTokenSource(clientID, clientSecret string) *TokenSource {
	return NewTokenSourceWithEndpoint(clientID, clientSecret, tokenEndpoint)
}

// NewTokenSourceWithEndpoint allows overriding the token endpoint in tests.
func NewTokenSourceWithEndpoint(clientID, clientSecret, endpoint string) *TokenSource {
	return &TokenSource{
		conf: &clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     endpoint,
		},
		now: time.Now,
	}
}

// Token returns a currently valid bearer token, refreshing when the cached
// one is expired or within the safety margin of expiry.
func (ts *TokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.tok != nil && ts.tok.Expiry.Sub(ts.now()) > refreshMargin {
		return ts.tok.AccessToken, nil
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: 15 * time.Second})
	tok, err := ts.conf.Token(ctx)
	if err != nil {
		telemetry.TokenRefreshFailures.Inc()
		cerr := classifyTokenError(err)
		if cerr.Fatal() {
			telemetry.CredentialsInvalid.Set(1)
		}
		return "", cerr
	}
	telemetry.TokenRefreshes.Inc()
	telemetry.CredentialsInvalid.Set(0)
	ts.tok = tok
	return tok.AccessToken, nil
}

func classifyTokenError(err error) *CredentialError {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		switch retrieveErr.Response.StatusCode {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
			return &CredentialError{Kind: CredentialInvalidClient, Err: err}
		}
	}
	return &CredentialError{Kind: CredentialNetwork, Err: err}
}
