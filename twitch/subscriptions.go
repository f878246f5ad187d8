package twitch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nicklaw5/helix/v2"

	"github.com/geekingfrog/golem/config"
	"github.com/geekingfrog/golem/retry"
	"github.com/geekingfrog/golem/telemetry"
)

// SubscriptionStatus is the local view of one EventSub subscription.
type SubscriptionStatus string

const (
	StatusPending SubscriptionStatus = "pending"
	StatusEnabled SubscriptionStatus = "enabled"
	StatusFailed  SubscriptionStatus = "failed"
)

// Subscription is one (streamer, event type) pair tracked locally. The table
// is rebuilt from the platform on every reconciliation pass and never
// persisted: a restart just reconciles from scratch.
type Subscription struct {
	ID        string
	Streamer  string
	Type      string
	Status    SubscriptionStatus
	CreatedAt time.Time
}

// ReconcileReport summarizes one reconciliation pass.
type ReconcileReport struct {
	Created int
	Deleted int
	Failed  int
	Kept    int
}

// helixAPI is the subset of the Helix client the registrar needs, split out
// so tests can substitute a fake without a network.
type helixAPI interface {
	SetAppAccessToken(token string)
	GetUsers(params *helix.UsersParams) (*helix.UsersResponse, error)
	GetStreams(params *helix.StreamsParams) (*helix.StreamsResponse, error)
	GetEventSubSubscriptions(params *helix.EventSubSubscriptionsParams) (*helix.EventSubSubscriptionsResponse, error)
	CreateEventSubSubscription(payload *helix.EventSubSubscription) (*helix.EventSubSubscriptionsResponse, error)
	RemoveEventSubSubscription(id string) (*helix.RemoveEventSubSubscriptionParamsResponse, error)
}

// Registrar keeps the platform-side EventSub subscriptions in sync with the
// configured watched streams: it creates missing stream.online/stream.offline
// pairs and deletes subscriptions that are orphaned or dead.
//
// Deletion policy: subscriptions whose streamer is no longer watched, and
// subscriptions in a non-recoverable status, are actively removed rather than
// left to lapse.
//
// The subscription table is only written by the registrar goroutine. The
// webhook receiver signals revocations through a channel drained at the
// start of each pass; it never mutates the table directly.
type Registrar struct {
	api         helixAPI
	tokens      *TokenSource
	cfg         config.Twitch
	revocations <-chan Revocation

	// userIDs caches login -> user id; Twitch user ids are stable.
	userIDs map[string]string

	mu    sync.Mutex
	table map[string]Subscription // keyed by broadcasterID + "/" + type
}

func NewRegistrar(api helixAPI, tokens *TokenSource, cfg config.Twitch, revocations <-chan Revocation) *Registrar {
	return &Registrar{
		api:         api,
		tokens:      tokens,
		cfg:         cfg,
		revocations: revocations,
		userIDs:     make(map[string]string),
		table:       make(map[string]Subscription),
	}
}

// Run reconciles immediately and then on every tick until ctx is cancelled.
// A fatal credential error disables outbound work for the cycle but keeps
// the loop (and the table) alive; everything else is retried next cycle.
func (r *Registrar) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.ReconcileInterval)
	defer ticker.Stop()
	for {
		report, err := r.Reconcile(ctx)
		switch {
		case err == nil:
			slog.Info("subscriptions reconciled",
				slog.Int("created", report.Created),
				slog.Int("deleted", report.Deleted),
				slog.Int("failed", report.Failed),
				slog.Int("kept", report.Kept))
		case isFatalCredential(err):
			slog.Error("reconciliation disabled for this cycle: invalid client credentials, fix the configuration", slog.Any("err", err))
		default:
			slog.Warn("reconciliation failed, keeping existing subscription table", slog.Any("err", err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func isFatalCredential(err error) bool {
	var cerr *CredentialError
	return errors.As(err, &cerr) && cerr.Fatal()
}

// Reconcile performs one pass: list platform subscriptions, diff against the
// desired set derived from the watched streams, create what is missing and
// delete what is orphaned. Transient failures leave the local table
// untouched; the pass only updates entries it could confirm. Calling it twice
// with no external change issues no create or delete calls on the second run.
func (r *Registrar) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	telemetry.ReconcileCycles.Inc()
	revoked := r.drainRevocations()

	tok, err := r.tokens.Token(ctx)
	if err != nil {
		telemetry.ReconcileFailures.Inc()
		return nil, fmt.Errorf("reconcile: %w", err)
	}
	r.api.SetAppAccessToken(tok)

	if err := r.resolveUserIDs(ctx); err != nil {
		telemetry.ReconcileFailures.Inc()
		return nil, fmt.Errorf("reconcile: %w", err)
	}

	existing, err := r.listSubscriptions(ctx)
	if err != nil {
		telemetry.ReconcileFailures.Inc()
		return nil, fmt.Errorf("reconcile: %w", err)
	}

	// Desired: both event types for every watched stream we could resolve.
	type want struct{ userID, login, subType string }
	desired := make(map[string]want)
	for _, ws := range r.cfg.WatchedStreams {
		id, ok := r.userIDs[strings.ToLower(ws.Nickname)]
		if !ok {
			continue
		}
		for _, st := range []string{typeStreamOnline, typeStreamOffline} {
			desired[tableKey(id, st)] = want{userID: id, login: ws.Nickname, subType: st}
		}
	}

	report := &ReconcileReport{}
	table := make(map[string]Subscription)

	for _, sub := range existing {
		key := tableKey(sub.Condition.BroadcasterUserID, sub.Type)
		w, wanted := desired[key]
		// A revocation webhook marks the subscription dead even when the
		// listing is stale and still reports it live.
		_, wasRevoked := revoked[sub.ID]
		if !wanted || wasRevoked || !liveStatus(sub.Status) {
			if err := r.deleteSubscription(sub.ID); err != nil {
				slog.Warn("failed to delete subscription, will retry next cycle",
					slog.String("id", sub.ID), slog.Any("err", err))
				continue
			}
			report.Deleted++
			telemetry.SubscriptionsDeleted.Inc()
			continue
		}
		report.Kept++
		table[key] = Subscription{
			ID:        sub.ID,
			Streamer:  w.login,
			Type:      sub.Type,
			Status:    localStatus(sub.Status),
			CreatedAt: sub.CreatedAt.Time,
		}
	}

	for key, w := range desired {
		if _, ok := table[key]; ok {
			continue
		}
		id, err := r.createSubscription(ctx, w.userID, w.subType)
		if err != nil {
			// Recorded and retried next pass: one streamer failing
			// must never abort the rest of the batch.
			slog.Warn("failed to create subscription",
				slog.String("streamer", w.login),
				slog.String("type", w.subType),
				slog.Any("err", err))
			report.Failed++
			table[key] = Subscription{Streamer: w.login, Type: w.subType, Status: StatusFailed}
			continue
		}
		report.Created++
		telemetry.SubscriptionsCreated.Inc()
		table[key] = Subscription{
			ID:        id,
			Streamer:  w.login,
			Type:      w.subType,
			Status:    StatusPending,
			CreatedAt: time.Now(),
		}
	}

	r.mu.Lock()
	r.table = table
	r.mu.Unlock()
	telemetry.SubscriptionsTracked.Set(float64(report.Kept + report.Created))
	return report, nil
}

// Subscriptions returns a snapshot of the tracked table.
func (r *Registrar) Subscriptions() []Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Subscription, 0, len(r.table))
	for _, s := range r.table {
		out = append(out, s)
	}
	return out
}

// drainRevocations collects the subscription ids revoked since the last
// pass. The ids force deletion and recreation this cycle regardless of the
// status the listing reports, since the webhook can be ahead of the listing.
func (r *Registrar) drainRevocations() map[string]struct{} {
	revoked := make(map[string]struct{})
	for {
		select {
		case rev := <-r.revocations:
			slog.Info("applying revocation",
				slog.String("subscription_id", rev.SubscriptionID),
				slog.String("status", rev.Status))
			revoked[rev.SubscriptionID] = struct{}{}
		default:
			return revoked
		}
	}
}

// resolveUserIDs fills the login -> user id cache for watched streams not
// resolved yet.
func (r *Registrar) resolveUserIDs(ctx context.Context) error {
	var missing []string
	for _, ws := range r.cfg.WatchedStreams {
		login := strings.ToLower(ws.Nickname)
		if _, ok := r.userIDs[login]; !ok {
			missing = append(missing, login)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	resp, err := r.api.GetUsers(&helix.UsersParams{Logins: missing})
	if err != nil {
		return fmt.Errorf("get users: %w", err)
	}
	if resp.ErrorMessage != "" {
		return fmt.Errorf("get users: %s (%d)", resp.ErrorMessage, resp.StatusCode)
	}
	for _, u := range resp.Data.Users {
		r.userIDs[strings.ToLower(u.Login)] = u.ID
	}
	for _, login := range missing {
		if _, ok := r.userIDs[login]; !ok {
			// Unknown logins are recorded and retried next pass; a typo
			// in one config entry must not block the others.
			slog.Warn("twitch user not found", slog.String("login", login))
		}
	}
	return nil
}

func (r *Registrar) listSubscriptions(ctx context.Context) ([]helix.EventSubSubscription, error) {
	var subs []helix.EventSubSubscription
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp, err := r.api.GetEventSubSubscriptions(&helix.EventSubSubscriptionsParams{After: cursor})
		if err != nil {
			return nil, fmt.Errorf("list subscriptions: %w", err)
		}
		if resp.ErrorMessage != "" {
			return nil, fmt.Errorf("list subscriptions: %s (%d)", resp.ErrorMessage, resp.StatusCode)
		}
		subs = append(subs, resp.Data.EventSubSubscriptions...)
		cursor = resp.Data.Pagination.Cursor
		if cursor == "" {
			return subs, nil
		}
	}
}

func (r *Registrar) createSubscription(ctx context.Context, broadcasterID, subType string) (string, error) {
	var id string
	err := retry.Do(ctx, retry.Policy{
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			slog.Debug("retrying subscription create",
				slog.Int("attempt", attempt), slog.Any("err", err))
		},
	}, classifyHelixError, func() error {
		resp, err := r.api.CreateEventSubSubscription(&helix.EventSubSubscription{
			Type:    subType,
			Version: "1",
			Condition: helix.EventSubCondition{
				BroadcasterUserID: broadcasterID,
			},
			Transport: helix.EventSubTransport{
				Method:   "webhook",
				Callback: r.cfg.CallbackURL,
				Secret:   r.cfg.WebhookSecret,
			},
		})
		if err != nil {
			return err
		}
		if resp.ErrorMessage != "" {
			return &helixStatusError{status: resp.StatusCode, message: resp.ErrorMessage}
		}
		if len(resp.Data.EventSubSubscriptions) == 0 {
			return fmt.Errorf("create subscription: empty response")
		}
		id = resp.Data.EventSubSubscriptions[0].ID
		return nil
	})
	return id, err
}

func (r *Registrar) deleteSubscription(id string) error {
	resp, err := r.api.RemoveEventSubSubscription(id)
	if err != nil {
		return err
	}
	if resp.ErrorMessage != "" {
		return &helixStatusError{status: resp.StatusCode, message: resp.ErrorMessage}
	}
	return nil
}

// helixStatusError carries a non-2xx Helix API response.
type helixStatusError struct {
	status  int
	message string
}

func (e *helixStatusError) Error() string {
	return fmt.Sprintf("helix: %s (%d)", e.message, e.status)
}

// classifyHelixError stops retrying on client errors (quota exceeded,
// conflict, bad request): those won't resolve by waiting a second.
func classifyHelixError(err error) retry.Action {
	var se *helixStatusError
	if errors.As(err, &se) && se.status >= 400 && se.status < 500 {
		return retry.Stop
	}
	return retry.Retry
}

func tableKey(broadcasterID, subType string) string {
	return broadcasterID + "/" + subType
}

func liveStatus(status string) bool {
	return status == helix.EventSubStatusEnabled || status == helix.EventSubStatusPending
}

// localStatus is only called for listings that passed liveStatus.
func localStatus(status string) SubscriptionStatus {
	if status == helix.EventSubStatusEnabled {
		return StatusEnabled
	}
	return StatusPending
}
