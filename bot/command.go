package bot

import "strings"

// Command is a parsed chat command: "&crypto btc > charlie" yields
// Name="crypto", Args=["btc"], Target="charlie".
type Command struct {
	Name string
	Args []string
	// Target is an optional nickname the reply should be addressed to,
	// given after a ">" separator.
	Target string
}

var commandPrefixes = []string{"&", "λ"}

// ParseCommand recognizes bot commands in a chat line. Returns false for
// anything that is not a command, including bare prefixes.
func ParseCommand(text string) (Command, bool) {
	text = strings.TrimSpace(text)
	var rest string
	for _, p := range commandPrefixes {
		if strings.HasPrefix(text, p) {
			rest = strings.TrimPrefix(text, p)
			break
		}
	}
	if rest == "" {
		return Command{}, false
	}

	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return Command{}, false
	}

	cmd := Command{Name: fields[0]}
	args := fields[1:]
	for i, f := range args {
		if f == ">" {
			// need exactly one token after the separator
			if len(args) != i+2 {
				return Command{}, false
			}
			cmd.Target = args[i+1]
			return cmd, true
		}
		cmd.Args = append(cmd.Args, f)
	}
	return cmd, true
}

// WithTarget prefixes text with the addressed nickname, if any.
func WithTarget(text, target string) string {
	if target == "" {
		return text
	}
	return target + ": " + text
}
