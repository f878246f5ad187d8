package bot

import (
	"fmt"
	"testing"
)

func TestOutboxPreservesOrder(t *testing.T) {
	o := NewOutbox(8)
	for i := 0; i < 5; i++ {
		o.Send(Message{Target: "##test", Text: fmt.Sprintf("msg-%d", i)})
	}
	for i := 0; i < 5; i++ {
		m := <-o.C()
		if want := fmt.Sprintf("msg-%d", i); m.Text != want {
			t.Errorf("message %d = %q, want %q", i, m.Text, want)
		}
	}
}

func TestOutboxDropsOldestWhenFull(t *testing.T) {
	o := NewOutbox(2)
	o.Send(Message{Text: "a"})
	o.Send(Message{Text: "b"})
	// buffer full: "a" must be evicted, not the caller blocked
	o.Send(Message{Text: "c"})

	if m := <-o.C(); m.Text != "b" {
		t.Errorf("first message = %q, want b", m.Text)
	}
	if m := <-o.C(); m.Text != "c" {
		t.Errorf("second message = %q, want c", m.Text)
	}
	select {
	case m := <-o.C():
		t.Errorf("unexpected extra message %q", m.Text)
	default:
	}
}
