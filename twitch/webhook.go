package twitch

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/geekingfrog/golem/telemetry"
)

// Twitch-Eventsub-Message-Type values.
const (
	messageTypeNotification = "notification"
	messageTypeVerification = "webhook_callback_verification"
	messageTypeRevocation   = "revocation"
)

// EventSub subscription types handled by the notification pipeline.
const (
	typeStreamOnline  = "stream.online"
	typeStreamOffline = "stream.offline"
)

const maxBodySize = 1 << 20

// webhookEnvelope is the common shape of every EventSub callback body.
type webhookEnvelope struct {
	Challenge    string `json:"challenge"`
	Subscription struct {
		ID        string `json:"id"`
		Status    string `json:"status"`
		Type      string `json:"type"`
		Condition struct {
			BroadcasterUserID string `json:"broadcaster_user_id"`
		} `json:"condition"`
	} `json:"subscription"`
	Event json.RawMessage `json:"event"`
}

type streamEventPayload struct {
	BroadcasterUserID    string `json:"broadcaster_user_id"`
	BroadcasterUserLogin string `json:"broadcaster_user_login"`
	BroadcasterUserName  string `json:"broadcaster_user_name"`
}

// WebhookHandler authenticates EventSub callbacks and feeds normalized events
// into the notification pipeline. Per request: verify signature, drop
// replays, classify, normalize, acknowledge. Twitch only cares that the
// endpoint accepted the payload; IRC delivery problems never surface here,
// which keeps its redelivery policy out of the picture during IRC outages.
type WebhookHandler struct {
	secret      []byte
	window      *dedupWindow
	events      chan StreamEvent
	revocations chan<- Revocation
}

func NewWebhookHandler(secret string, events chan StreamEvent, revocations chan<- Revocation) *WebhookHandler {
	return &WebhookHandler{
		secret:      []byte(secret),
		window:      newDedupWindow(10 * time.Minute),
		events:      events,
		revocations: revocations,
	}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := telemetry.LoggerWithCorr(r.Context())

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		telemetry.WebhookRejected.Inc()
		log.Warn("unreadable webhook body", slog.Any("err", err))
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	msgID := r.Header.Get(headerMessageID)
	timestamp := r.Header.Get(headerMessageTimestamp)
	claimed := r.Header.Get(headerMessageSignature)
	if !VerifySignature(h.secret, msgID, timestamp, body, claimed) {
		// Potential forgery: reject before any state is touched so a
		// corrected resubmission of the same id is not seen as a replay.
		telemetry.WebhookRejected.Inc()
		log.Error("webhook signature verification failed",
			slog.String("message_id", msgID),
			slog.String("remote", r.RemoteAddr))
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	var envelope webhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		// Rejected before the dedup window is touched, so a corrected
		// resubmission of the same id is not mistaken for a replay.
		telemetry.WebhookRejected.Inc()
		log.Warn("malformed webhook payload", slog.String("message_id", msgID), slog.Any("err", err))
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	if h.window.Seen(msgID) {
		// Replayed delivery: acknowledge so Twitch stops resending, but
		// produce nothing downstream.
		telemetry.WebhookDuplicates.Inc()
		log.Debug("duplicate webhook delivery", slog.String("message_id", msgID))
		w.WriteHeader(http.StatusOK)
		return
	}

	switch r.Header.Get(headerMessageType) {
	case messageTypeVerification:
		// Ownership check during subscription creation: echo the
		// challenge verbatim. Never enters the notification pipeline.
		telemetry.WebhookChallenges.Inc()
		log.Info("answering subscription verification challenge",
			slog.String("subscription_id", envelope.Subscription.ID),
			slog.String("type", envelope.Subscription.Type))
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(envelope.Challenge))

	case messageTypeRevocation:
		log.Warn("subscription revoked",
			slog.String("subscription_id", envelope.Subscription.ID),
			slog.String("status", envelope.Subscription.Status))
		h.pushRevocation(Revocation{
			SubscriptionID: envelope.Subscription.ID,
			BroadcasterID:  envelope.Subscription.Condition.BroadcasterUserID,
			Status:         envelope.Subscription.Status,
		})
		w.WriteHeader(http.StatusOK)

	case messageTypeNotification:
		h.handleNotification(log, msgID, &envelope)
		w.WriteHeader(http.StatusOK)

	default:
		// Tolerate platform API evolution: acknowledge and move on.
		log.Info("unknown webhook message type, ignoring",
			slog.String("message_type", r.Header.Get(headerMessageType)))
		w.WriteHeader(http.StatusOK)
	}
}

func (h *WebhookHandler) handleNotification(log *slog.Logger, msgID string, envelope *webhookEnvelope) {
	switch envelope.Subscription.Type {
	case typeStreamOnline, typeStreamOffline:
	default:
		log.Info("unsupported notification type, ignoring",
			slog.String("type", envelope.Subscription.Type))
		return
	}

	var payload streamEventPayload
	if err := json.Unmarshal(envelope.Event, &payload); err != nil {
		log.Warn("undecodable stream event, ignoring", slog.Any("err", err))
		return
	}

	kind := StreamOnline
	if envelope.Subscription.Type == typeStreamOffline {
		kind = StreamOffline
	}
	ev := StreamEvent{
		Kind:             kind,
		BroadcasterLogin: payload.BroadcasterUserLogin,
		BroadcasterName:  payload.BroadcasterUserName,
		MessageID:        msgID,
	}

	telemetry.WebhookNotifications.Inc()
	h.pushEvent(log, ev)
}

// pushEvent enqueues ev without blocking, evicting the oldest pending event
// when the buffer is full. Same policy as the IRC outbox: newest state wins,
// and acknowledgment latency stays independent of IRC health.
func (h *WebhookHandler) pushEvent(log *slog.Logger, ev StreamEvent) {
	for {
		select {
		case h.events <- ev:
			return
		default:
		}
		select {
		case dropped := <-h.events:
			telemetry.MessagesDropped.Inc()
			log.Warn("notification pipeline full, dropping oldest event",
				slog.String("streamer", dropped.BroadcasterLogin))
		default:
		}
	}
}

func (h *WebhookHandler) pushRevocation(rev Revocation) {
	select {
	case h.revocations <- rev:
	default:
		// The registrar reconciles from the platform's authoritative
		// list anyway; a lost marker only delays recreation one cycle.
		slog.Warn("revocation buffer full, dropping marker",
			slog.String("subscription_id", rev.SubscriptionID))
	}
}
