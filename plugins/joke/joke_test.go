package joke

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/geekingfrog/golem/bot"
)

func newTestPlugin(handler http.HandlerFunc) (*Plugin, *httptest.Server) {
	srv := httptest.NewServer(handler)
	p := New()
	p.baseURL = srv.URL
	return p, srv
}

func TestJokeCommand(t *testing.T) {
	p, srv := newTestPlugin(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "text/plain" {
			t.Errorf("accept header = %q", r.Header.Get("Accept"))
		}
		w.Write([]byte("What do you call a fish with no eyes? A fsh.\n"))
	})
	defer srv.Close()

	reply, err := p.HandleMessage(context.Background(), bot.Inbound{Nick: "x", Target: "##test", Text: "&joke"})
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if reply == nil || reply.Text != "What do you call a fish with no eyes? A fsh." {
		t.Fatalf("reply = %+v", reply)
	}
	if reply.Target != "##test" {
		t.Errorf("target = %q", reply.Target)
	}
}

func TestJokeMultilineCollapsed(t *testing.T) {
	p, srv := newTestPlugin(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Why did the chicken cross the road?\nTo get to the other side."))
	})
	defer srv.Close()

	reply, err := p.HandleMessage(context.Background(), bot.Inbound{Nick: "x", Target: "##test", Text: "&joke > charlie"})
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	want := "charlie: Why did the chicken cross the road? − To get to the other side."
	if reply.Text != want {
		t.Errorf("reply = %q, want %q", reply.Text, want)
	}
}

func TestJokeAPIFailure(t *testing.T) {
	p, srv := newTestPlugin(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	})
	defer srv.Close()

	reply, err := p.HandleMessage(context.Background(), bot.Inbound{Nick: "x", Target: "##test", Text: "&joke"})
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if reply == nil || reply.Text == "" {
		t.Fatal("expected a fallback reply")
	}
}

func TestJokeIgnoresOtherText(t *testing.T) {
	p, srv := newTestPlugin(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	defer srv.Close()

	reply, err := p.HandleMessage(context.Background(), bot.Inbound{Nick: "x", Target: "##test", Text: "tell me a joke"})
	if err != nil || reply != nil {
		t.Fatalf("got %+v, %v", reply, err)
	}
}
