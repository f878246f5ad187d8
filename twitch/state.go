package twitch

import (
	"sort"
	"strings"
	"sync"
)

// liveState tracks which watched streamers are currently online. The webhook
// pipeline updates it as events flow through; on startup it can be primed
// from the Get Streams endpoint so the bot does not start blind.
type liveState struct {
	mu     sync.Mutex
	online map[string]bool // lowercase login -> online
}

func newLiveState() *liveState {
	return &liveState{online: make(map[string]bool)}
}

func (s *liveState) set(login string, online bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.online[strings.ToLower(login)] = online
}

// onlineLogins returns the sorted list of streamers currently live.
func (s *liveState) onlineLogins() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for login, on := range s.online {
		if on {
			out = append(out, login)
		}
	}
	sort.Strings(out)
	return out
}
