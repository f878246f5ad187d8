package twitch

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

const testSecret = "s3cr3t"

func signedRequest(msgID, msgType string, body []byte) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/twitch/webhook", bytes.NewReader(body))
	ts := "2026-08-31T12:00:00Z"
	req.Header.Set(headerMessageID, msgID)
	req.Header.Set(headerMessageTimestamp, ts)
	req.Header.Set(headerMessageType, msgType)
	req.Header.Set(headerMessageSignature, ComputeSignature([]byte(testSecret), msgID, ts, body))
	return req
}

func notificationBody(subType, login string) []byte {
	return []byte(fmt.Sprintf(`{
		"subscription": {"id": "sub-1", "status": "enabled", "type": %q,
			"condition": {"broadcaster_user_id": "123"}},
		"event": {"broadcaster_user_id": "123",
			"broadcaster_user_login": %q, "broadcaster_user_name": "GeekingFrog"}
	}`, subType, login))
}

func newTestHandler() (*WebhookHandler, chan StreamEvent, chan Revocation) {
	events := make(chan StreamEvent, 16)
	revocations := make(chan Revocation, 16)
	return NewWebhookHandler(testSecret, events, revocations), events, revocations
}

func TestWebhookNotification(t *testing.T) {
	h, events, _ := newTestHandler()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, signedRequest("msg-1", messageTypeNotification, notificationBody("stream.online", "geekingfrog")))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	select {
	case ev := <-events:
		if ev.Kind != StreamOnline {
			t.Errorf("kind = %v, want stream.online", ev.Kind)
		}
		if ev.BroadcasterLogin != "geekingfrog" {
			t.Errorf("login = %q", ev.BroadcasterLogin)
		}
		if ev.MessageID != "msg-1" {
			t.Errorf("message id = %q", ev.MessageID)
		}
	default:
		t.Fatal("expected a normalized event")
	}
}

func TestWebhookOfflineNotification(t *testing.T) {
	h, events, _ := newTestHandler()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, signedRequest("msg-1", messageTypeNotification, notificationBody("stream.offline", "geekingfrog")))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	ev := <-events
	if ev.Kind != StreamOffline {
		t.Errorf("kind = %v, want stream.offline", ev.Kind)
	}
}

func TestWebhookInvalidSignature(t *testing.T) {
	h, events, _ := newTestHandler()
	body := notificationBody("stream.online", "geekingfrog")

	req := signedRequest("msg-1", messageTypeNotification, body)
	req.Header.Set(headerMessageSignature, "sha256=deadbeef")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rr.Code)
	}
	if len(events) != 0 {
		t.Fatal("rejected delivery must not produce events")
	}

	// A rejected delivery leaves no dedup trace: the same id with a valid
	// signature is processed normally afterwards.
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, signedRequest("msg-1", messageTypeNotification, body))
	if rr.Code != http.StatusOK {
		t.Fatalf("resubmission status = %d, want 200", rr.Code)
	}
	if len(events) != 1 {
		t.Fatalf("resubmission should produce one event, got %d", len(events))
	}
}

func TestWebhookDuplicateDelivery(t *testing.T) {
	h, events, _ := newTestHandler()
	body := notificationBody("stream.online", "geekingfrog")

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, signedRequest("msg-1", messageTypeNotification, body))
		if rr.Code != http.StatusOK {
			t.Fatalf("delivery %d status = %d, want 200", i, rr.Code)
		}
	}
	if len(events) != 1 {
		t.Fatalf("duplicate delivery must be acknowledged without reprocessing, got %d events", len(events))
	}
}

func TestWebhookVerificationChallenge(t *testing.T) {
	h, events, _ := newTestHandler()
	body := []byte(`{
		"challenge": "pogchamp-kappa-360noscope-vohiyo",
		"subscription": {"id": "sub-1", "status": "webhook_callback_verification_pending",
			"type": "stream.online", "condition": {"broadcaster_user_id": "123"}}
	}`)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, signedRequest("msg-1", messageTypeVerification, body))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if got := rr.Body.String(); got != "pogchamp-kappa-360noscope-vohiyo" {
		t.Errorf("challenge echo = %q", got)
	}
	if len(events) != 0 {
		t.Fatal("challenge must not enter the notification pipeline")
	}
}

func TestWebhookRevocation(t *testing.T) {
	h, events, revocations := newTestHandler()
	body := []byte(`{
		"subscription": {"id": "sub-1", "status": "authorization_revoked",
			"type": "stream.online", "condition": {"broadcaster_user_id": "123"}}
	}`)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, signedRequest("msg-1", messageTypeRevocation, body))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	select {
	case rev := <-revocations:
		if rev.SubscriptionID != "sub-1" {
			t.Errorf("subscription id = %q", rev.SubscriptionID)
		}
		if rev.Status != "authorization_revoked" {
			t.Errorf("status = %q", rev.Status)
		}
	default:
		t.Fatal("expected a revocation signal")
	}
	if len(events) != 0 {
		t.Fatal("revocation must not produce stream events")
	}
}

func TestWebhookMalformedPayload(t *testing.T) {
	h, events, _ := newTestHandler()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, signedRequest("msg-1", messageTypeNotification, []byte("{not json")))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}

	// The 400 left no dedup trace: a corrected resubmission of the same id
	// must be processed, not swallowed as a replay.
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, signedRequest("msg-1", messageTypeNotification, notificationBody("stream.online", "geekingfrog")))
	if rr.Code != http.StatusOK {
		t.Fatalf("resubmission status = %d, want 200", rr.Code)
	}
	if len(events) != 1 {
		t.Fatalf("resubmission should produce one event, got %d", len(events))
	}
}

func TestWebhookEventBufferDropsOldest(t *testing.T) {
	events := make(chan StreamEvent, 1)
	h := NewWebhookHandler(testSecret, events, make(chan Revocation, 4))

	for i, login := range []string{"geekingfrog", "somestreamer"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, signedRequest(fmt.Sprintf("msg-%d", i), messageTypeNotification, notificationBody("stream.online", login)))
		if rr.Code != http.StatusOK {
			t.Fatalf("delivery %d status = %d, want 200", i, rr.Code)
		}
	}

	// Buffer of one: the older event is evicted, the newest survives.
	ev := <-events
	if ev.BroadcasterLogin != "somestreamer" {
		t.Fatalf("surviving event = %q, want the newest", ev.BroadcasterLogin)
	}
	if len(events) != 0 {
		t.Fatalf("expected an empty buffer, %d left", len(events))
	}
}

func TestWebhookUnknownMessageType(t *testing.T) {
	h, events, _ := newTestHandler()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, signedRequest("msg-1", "some.future.type", []byte(`{"subscription":{"id":"x"}}`)))

	if rr.Code != http.StatusOK {
		t.Fatalf("unknown type must be acknowledged, status = %d", rr.Code)
	}
	if len(events) != 0 {
		t.Fatal("unknown type must not produce events")
	}
}

func TestWebhookUnsupportedNotificationType(t *testing.T) {
	h, events, _ := newTestHandler()
	body := []byte(`{
		"subscription": {"id": "sub-1", "status": "enabled",
			"type": "channel.follow", "condition": {"broadcaster_user_id": "123"}},
		"event": {"user_login": "someone"}
	}`)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, signedRequest("msg-1", messageTypeNotification, body))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if len(events) != 0 {
		t.Fatal("unsupported notification type must be ignored")
	}
}
