// Package joke answers the joke command with a dad joke from
// icanhazdadjoke.com.
package joke

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/geekingfrog/golem/bot"
)

const defaultBaseURL = "https://icanhazdadjoke.com"

const userAgent = "golem: https://github.com/geekingfrog/golem"

type Plugin struct {
	client  *http.Client
	baseURL string
}

func New() *Plugin {
	return &Plugin{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: defaultBaseURL,
	}
}

func (p *Plugin) Name() string { return "joke" }

func (p *Plugin) Run(ctx context.Context, out bot.Sender) error { return nil }

func (p *Plugin) HandleMessage(ctx context.Context, in bot.Inbound) (*bot.Message, error) {
	cmd, ok := bot.ParseCommand(in.Text)
	if !ok || cmd.Name != "joke" {
		return nil, nil
	}

	text, err := p.fetch(ctx)
	if err != nil {
		slog.Warn("dad joke fetch failed", slog.Any("err", err))
		text = "The joke mine is experiencing technical difficulties."
	}
	return &bot.Message{Target: in.Target, Text: bot.WithTarget(text, cmd.Target)}, nil
}

func (p *Plugin) fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/plain")
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("query joke api: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("joke api status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", fmt.Errorf("read joke: %w", err)
	}

	// Multiline jokes would need several PRIVMSGs, collapse them instead.
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	return strings.Join(lines, " − "), nil
}
