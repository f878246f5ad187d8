// Package telemetry provides Prometheus metrics, correlation-id aware logging
// helpers, and optional OpenTelemetry tracing.
package telemetry

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Webhook receiver
	WebhookNotifications = promauto.NewCounter(prometheus.CounterOpts{Name: "golem_webhook_notifications_total", Help: "EventSub notifications accepted for processing"})
	WebhookRejected      = promauto.NewCounter(prometheus.CounterOpts{Name: "golem_webhook_rejected_total", Help: "Webhook deliveries rejected (bad signature or malformed payload)"})
	WebhookDuplicates    = promauto.NewCounter(prometheus.CounterOpts{Name: "golem_webhook_duplicates_total", Help: "Webhook deliveries dropped as replays of an already seen message id"})
	WebhookChallenges    = promauto.NewCounter(prometheus.CounterOpts{Name: "golem_webhook_challenges_total", Help: "Ownership verification challenges answered"})

	// Outbound IRC pipeline
	MessagesSent    = promauto.NewCounter(prometheus.CounterOpts{Name: "golem_irc_messages_sent_total", Help: "Messages handed to the IRC connection"})
	MessagesDropped = promauto.NewCounter(prometheus.CounterOpts{Name: "golem_irc_messages_dropped_total", Help: "Messages evicted from the outbox because IRC could not keep up"})

	// Subscription registrar
	ReconcileCycles       = promauto.NewCounter(prometheus.CounterOpts{Name: "golem_reconcile_cycles_total", Help: "Subscription reconciliation passes"})
	ReconcileFailures     = promauto.NewCounter(prometheus.CounterOpts{Name: "golem_reconcile_failures_total", Help: "Reconciliation passes aborted by an error"})
	SubscriptionsCreated  = promauto.NewCounter(prometheus.CounterOpts{Name: "golem_subscriptions_created_total", Help: "EventSub subscriptions created"})
	SubscriptionsDeleted  = promauto.NewCounter(prometheus.CounterOpts{Name: "golem_subscriptions_deleted_total", Help: "EventSub subscriptions deleted"})
	SubscriptionsTracked  = promauto.NewGauge(prometheus.GaugeOpts{Name: "golem_subscriptions_tracked", Help: "Subscriptions currently tracked as pending or enabled"})
	CredentialsInvalid    = promauto.NewGauge(prometheus.GaugeOpts{Name: "golem_credentials_invalid", Help: "1 when the last token refresh failed with invalid client credentials"})
	TokenRefreshes        = promauto.NewCounter(prometheus.CounterOpts{Name: "golem_token_refreshes_total", Help: "App access token refreshes"})
	TokenRefreshFailures  = promauto.NewCounter(prometheus.CounterOpts{Name: "golem_token_refresh_failures_total", Help: "App access token refresh failures"})
)

type correlationKey struct{}

// WithCorrelation stores a correlation id in ctx for downstream logging.
func WithCorrelation(ctx context.Context, corr string) context.Context {
	return context.WithValue(ctx, correlationKey{}, corr)
}

// GetCorrelation returns the correlation id in ctx, or "".
func GetCorrelation(ctx context.Context) string {
	if v, ok := ctx.Value(correlationKey{}).(string); ok {
		return v
	}
	return ""
}

// LoggerWithCorr returns the default logger annotated with the correlation id
// from ctx, if any.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if corr := GetCorrelation(ctx); corr != "" {
		return slog.Default().With(slog.String("corr", corr))
	}
	return slog.Default()
}
