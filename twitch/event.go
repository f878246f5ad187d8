package twitch

// EventKind is the canonical stream state transition carried by a normalized
// webhook notification.
type EventKind int

const (
	StreamOnline EventKind = iota
	StreamOffline
)

func (k EventKind) String() string {
	if k == StreamOnline {
		return "stream.online"
	}
	return "stream.offline"
}

// StreamEvent is a validated, normalized notification. It only exists between
// the webhook receiver and the IRC pipeline; nothing downstream sees raw or
// unverified payloads.
type StreamEvent struct {
	Kind EventKind
	// BroadcasterLogin is the Twitch login (lowercase), the key into the
	// watched stream mapping.
	BroadcasterLogin string
	// BroadcasterName is the display name, used in rendered messages when
	// no IRC nick is configured.
	BroadcasterName string
	MessageID       string
}

// Revocation signals that Twitch revoked a subscription. The webhook receiver
// emits these; the registrar consumes them on its next cycle and recreates
// the subscription.
type Revocation struct {
	SubscriptionID string
	BroadcasterID  string
	Status         string
}
