// Package bot owns the IRC connection and the plugin dispatch loop. Inbound
// messages fan out to every registered plugin; replies and out-of-band plugin
// messages funnel back through a single bounded outbox so one slow consumer
// cannot stall the others.
package bot

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	irc "github.com/thoj/go-ircevent"

	"github.com/geekingfrog/golem/config"
	"github.com/geekingfrog/golem/telemetry"
)

const handleTimeout = 30 * time.Second

type Bot struct {
	cfg     config.IRC
	conn    *irc.Connection
	plugins []Plugin
	outbox  *Outbox

	blacklist map[string]struct{}

	// CTCPTime, when set, overrides the CTCP TIME reply.
	CTCPTime func() string
}

func New(cfg config.IRC, blacklisted []string, plugins ...Plugin) *Bot {
	conn := irc.IRC(cfg.Nickname, cfg.Nickname)
	conn.UseTLS = cfg.UseTLS
	if cfg.UseTLS {
		conn.TLSConfig = &tls.Config{ServerName: cfg.Server, MinVersion: tls.VersionTLS12}
	}
	conn.Version = "golem"
	if cfg.SASLPassword != "" {
		conn.UseSASL = true
		conn.SASLLogin = cfg.Nickname
		conn.SASLPassword = cfg.SASLPassword
	}

	bl := make(map[string]struct{}, len(blacklisted))
	for _, n := range blacklisted {
		bl[n] = struct{}{}
	}

	return &Bot{
		cfg:       cfg,
		conn:      conn,
		plugins:   plugins,
		outbox:    NewOutbox(64),
		blacklist: bl,
	}
}

// Outbox returns the shared outbound queue. Anything holding it can send IRC
// messages without touching the connection directly.
func (b *Bot) Outbox() *Outbox { return b.outbox }

// Run connects to IRC and blocks until ctx is cancelled or the connection
// dies. Plugins are started before the connection is attempted so background
// work (like the webhook server) is up before subscriptions get verified.
func (b *Bot) Run(ctx context.Context) error {
	b.conn.AddCallback("001", func(e *irc.Event) {
		slog.Info("connected to IRC", slog.String("server", b.cfg.Server))
		for _, ch := range b.cfg.Channels {
			b.conn.Join(ch)
		}
	})
	b.conn.AddCallback("PRIVMSG", func(e *irc.Event) {
		b.dispatch(ctx, e)
	})
	if b.CTCPTime != nil {
		b.conn.ClearCallback("CTCP_TIME")
		b.conn.AddCallback("CTCP_TIME", func(e *irc.Event) {
			b.conn.Notice(e.Nick, "\x01"+b.CTCPTime()+"\x01")
		})
	}

	var wg sync.WaitGroup
	for _, p := range b.plugins {
		wg.Add(1)
		go func(p Plugin) {
			defer wg.Done()
			if err := p.Run(ctx, b.outbox); err != nil {
				slog.Error("plugin background task exited",
					slog.String("plugin", p.Name()), slog.Any("err", err))
			}
		}(p)
	}

	// Single writer goroutine: global FIFO, per-channel ordering follows.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case m := <-b.outbox.C():
				b.conn.Privmsg(m.Target, m.Text)
				telemetry.MessagesSent.Inc()
			}
		}
	}()

	addr := fmt.Sprintf("%s:%d", b.cfg.Server, b.cfg.Port)
	if err := b.conn.Connect(addr); err != nil {
		return fmt.Errorf("irc connect %s: %w", addr, err)
	}

	go func() {
		<-ctx.Done()
		b.conn.Quit()
	}()

	b.conn.Loop()
	wg.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("irc connection closed")
}

// dispatch fans one inbound message out to every plugin concurrently.
// A plugin error is logged and dropped; it never affects the other plugins.
func (b *Bot) dispatch(ctx context.Context, e *irc.Event) {
	if _, ok := b.blacklist[e.Nick]; ok {
		slog.Debug("dropping message from blacklisted user", slog.String("nick", e.Nick))
		return
	}

	msg := Inbound{
		Nick:   e.Nick,
		Target: b.replyTarget(e),
		Text:   e.Message(),
	}

	for _, p := range b.plugins {
		go func(p Plugin) {
			hctx, cancel := context.WithTimeout(ctx, handleTimeout)
			defer cancel()
			reply, err := p.HandleMessage(hctx, msg)
			if err != nil {
				slog.Error("plugin failed to handle message",
					slog.String("plugin", p.Name()), slog.Any("err", err))
				return
			}
			if reply != nil {
				b.outbox.Send(*reply)
			}
		}(p)
	}
}

// replyTarget resolves where a reply should go: the channel for channel
// messages, the sender for direct queries.
func (b *Bot) replyTarget(e *irc.Event) string {
	if len(e.Arguments) > 0 && slices.Contains(b.cfg.Channels, e.Arguments[0]) {
		return e.Arguments[0]
	}
	if len(e.Arguments) > 0 && e.Arguments[0] != b.conn.GetNick() {
		// channel we happen to be in but didn't configure (e.g. forwarded)
		if len(e.Arguments[0]) > 0 && (e.Arguments[0][0] == '#' || e.Arguments[0][0] == '&') {
			return e.Arguments[0]
		}
	}
	return e.Nick
}
