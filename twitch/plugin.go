package twitch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/nicklaw5/helix/v2"

	"github.com/geekingfrog/golem/bot"
	"github.com/geekingfrog/golem/config"
)

// Plugin bridges stream.online/stream.offline webhook events into IRC and
// answers the streams command. It owns the event pipeline end: the webhook
// handler pushes normalized events into a channel, Run consumes them, routes
// them to channel messages and hands them to the bot's outbox.
type Plugin struct {
	cfg       config.Twitch
	api       helixAPI
	registrar *Registrar
	router    *Router
	events    <-chan StreamEvent
	state     *liveState
}

func NewPlugin(cfg config.Twitch, api helixAPI, registrar *Registrar, events <-chan StreamEvent) *Plugin {
	return &Plugin{
		cfg:       cfg,
		api:       api,
		registrar: registrar,
		router:    NewRouter(cfg.WatchedStreams),
		events:    events,
		state:     newLiveState(),
	}
}

func (p *Plugin) Name() string { return "twitch" }

// HandleMessage answers the streams command with the watched streamers
// currently live, and the subs command with the state of the tracked
// subscriptions.
func (p *Plugin) HandleMessage(ctx context.Context, in bot.Inbound) (*bot.Message, error) {
	cmd, ok := bot.ParseCommand(in.Text)
	if !ok {
		return nil, nil
	}

	var text string
	switch cmd.Name {
	case "streams":
		online := p.state.onlineLogins()
		if len(online) == 0 {
			text = "No streams currently live."
		} else {
			text = fmt.Sprintf("Currently live: %s", strings.Join(online, ", "))
		}
	case "subs":
		text = p.subscriptionSummary()
	default:
		return nil, nil
	}

	if cmd.Target != "" {
		text = bot.WithTarget(text, cmd.Target)
	}
	return &bot.Message{Target: in.Target, Text: text}, nil
}

func (p *Plugin) subscriptionSummary() string {
	subs := p.registrar.Subscriptions()
	if len(subs) == 0 {
		return "No subscriptions tracked."
	}
	counts := make(map[string]int)
	for _, s := range subs {
		counts[string(s.Status)]++
	}
	statuses := make([]string, 0, len(counts))
	for st := range counts {
		statuses = append(statuses, st)
	}
	sort.Strings(statuses)
	parts := make([]string, 0, len(statuses))
	for _, st := range statuses {
		parts = append(parts, fmt.Sprintf("%d %s", counts[st], st))
	}
	return fmt.Sprintf("%d subscriptions tracked: %s", len(subs), strings.Join(parts, ", "))
}

// Run primes the live state, starts the subscription registrar and then
// consumes stream events until ctx is cancelled.
func (p *Plugin) Run(ctx context.Context, out bot.Sender) error {
	p.primeState(ctx)
	go p.registrar.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-p.events:
			p.state.set(ev.BroadcasterLogin, ev.Kind == StreamOnline)
			for _, msg := range p.router.Route(ev) {
				out.Send(msg)
			}
		}
	}
}

// primeState asks the API which watched streams are already live so the
// streams command is accurate before the first webhook arrives. Failures are
// logged and ignored: the state converges as events come in.
func (p *Plugin) primeState(ctx context.Context) {
	if len(p.cfg.WatchedStreams) == 0 {
		return
	}
	if err := ctx.Err(); err != nil {
		return
	}

	// Get Streams needs a bearer token and the registrar has not run yet.
	tok, err := p.registrar.tokens.Token(ctx)
	if err != nil {
		slog.Warn("failed to prime live stream state", slog.Any("err", err))
		return
	}
	p.api.SetAppAccessToken(tok)

	logins := make([]string, 0, len(p.cfg.WatchedStreams))
	for _, ws := range p.cfg.WatchedStreams {
		logins = append(logins, strings.ToLower(ws.Nickname))
	}
	resp, err := p.api.GetStreams(&helix.StreamsParams{UserLogins: logins})
	if err != nil {
		slog.Warn("failed to prime live stream state", slog.Any("err", err))
		return
	}
	if resp.ErrorMessage != "" {
		slog.Warn("failed to prime live stream state",
			slog.String("err", resp.ErrorMessage), slog.Int("status", resp.StatusCode))
		return
	}
	for _, s := range resp.Data.Streams {
		p.state.set(s.UserLogin, true)
	}
}
