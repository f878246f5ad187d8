package twitch

import (
	"fmt"
	"strings"

	"github.com/geekingfrog/golem/bot"
	"github.com/geekingfrog/golem/config"
)

// Router maps a normalized stream event to the IRC messages it should
// produce. Pure: no network, no shared state, independently testable.
type Router struct {
	watched map[string]config.WatchedStream
}

func NewRouter(watched []config.WatchedStream) *Router {
	m := make(map[string]config.WatchedStream, len(watched))
	for _, ws := range watched {
		m[strings.ToLower(ws.Nickname)] = ws
	}
	return &Router{watched: m}
}

// Lookup returns the watched stream entry for a broadcaster login.
func (r *Router) Lookup(login string) (config.WatchedStream, bool) {
	ws, ok := r.watched[strings.ToLower(login)]
	return ws, ok
}

// Route renders one message per configured channel for the event's streamer.
// An event for a streamer not in the mapping yields nil: a subscription can
// briefly outlive its config entry between reconciliation passes, that is
// not an error.
func (r *Router) Route(ev StreamEvent) []bot.Message {
	ws, ok := r.Lookup(ev.BroadcasterLogin)
	if !ok {
		return nil
	}
	nick := ws.IRCNick
	if nick == "" {
		nick = ws.Nickname
	}

	var text string
	switch ev.Kind {
	case StreamOnline:
		text = fmt.Sprintf("%s is now live!", nick)
	case StreamOffline:
		text = fmt.Sprintf("%s went offline.", nick)
	}

	msgs := make([]bot.Message, 0, len(ws.IRCChannels))
	for _, ch := range ws.IRCChannels {
		msgs = append(msgs, bot.Message{Target: ch, Text: text})
	}
	return msgs
}
