package bot

import "context"

// Message is an outbound IRC private message.
type Message struct {
	// Target is a channel name or a nickname.
	Target string
	Text   string
}

// Inbound is a chat message received from IRC, already resolved to the
// target a reply should go to (the channel, or the sender for queries).
type Inbound struct {
	Nick   string
	Target string
	Text   string
}

// Sender delivers messages onto the IRC connection. Implementations must not
// block the caller: a stalled IRC connection is the sender's problem, never
// the producer's.
type Sender interface {
	Send(Message)
}

// Plugin is a feature module sharing the bot's IRC connection.
//
// HandleMessage is invoked for every inbound message; return a non-nil reply
// to respond. Run is started once at startup for background work (timers,
// servers) and may send out-of-band messages through out; plugins without
// background work return nil immediately. Errors from either are logged and
// isolated, they never abort the bot or other plugins.
type Plugin interface {
	Name() string
	HandleMessage(ctx context.Context, msg Inbound) (*Message, error)
	Run(ctx context.Context, out Sender) error
}
