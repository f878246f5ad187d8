package bot

import (
	"reflect"
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Command
		ok    bool
	}{
		{"simple", "&joke", Command{Name: "joke"}, true},
		{"lambda prefix", "λdate", Command{Name: "date"}, true},
		{"with arg", "&crypto btc", Command{Name: "crypto", Args: []string{"btc"}}, true},
		{"with target", "&joke > charlie", Command{Name: "joke", Target: "charlie"}, true},
		{"arg and target", "&crypto eth > charlie", Command{Name: "crypto", Args: []string{"eth"}, Target: "charlie"}, true},
		{"surrounding spaces", "  &joke > charlie  ", Command{Name: "joke", Target: "charlie"}, true},
		{"no prefix", "hello there", Command{}, false},
		{"bare prefix", "&", Command{}, false},
		{"target without nick", "&joke >", Command{}, false},
		{"two tokens after target", "&joke > a b", Command{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseCommand(tt.input)
			if ok != tt.ok {
				t.Fatalf("ParseCommand(%q) ok = %v, want %v", tt.input, ok, tt.ok)
			}
			if ok && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseCommand(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestWithTarget(t *testing.T) {
	if got := WithTarget("hello", ""); got != "hello" {
		t.Errorf("WithTarget without target = %q", got)
	}
	if got := WithTarget("hello", "charlie"); got != "charlie: hello" {
		t.Errorf("WithTarget with target = %q", got)
	}
}
