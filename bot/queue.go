package bot

import (
	"log/slog"
	"sync"

	"github.com/geekingfrog/golem/telemetry"
)

// Outbox is a bounded FIFO buffer between message producers (plugins, the
// webhook pipeline) and the IRC connection. Send never blocks: when the
// buffer is full the oldest pending message is dropped, so producer latency
// stays independent of IRC connectivity. A single drain goroutine preserves
// ordering.
type Outbox struct {
	mu sync.Mutex
	ch chan Message
}

func NewOutbox(capacity int) *Outbox {
	if capacity <= 0 {
		capacity = 64
	}
	return &Outbox{ch: make(chan Message, capacity)}
}

// Send enqueues m, evicting the oldest pending message when full.
func (o *Outbox) Send(m Message) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for {
		select {
		case o.ch <- m:
			return
		default:
		}
		select {
		case dropped := <-o.ch:
			telemetry.MessagesDropped.Inc()
			slog.Warn("outbox full, dropping oldest message",
				slog.String("target", dropped.Target))
		default:
		}
	}
}

// C exposes the queue for the single consumer.
func (o *Outbox) C() <-chan Message { return o.ch }
