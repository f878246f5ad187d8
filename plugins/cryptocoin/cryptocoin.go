// Package cryptocoin tracks BTC and ETH exchange rates from the Bitstamp
// ticker, persists the history and answers the crypto command with the
// current rate and its variation over time.
package cryptocoin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/geekingfrog/golem/bot"
	"github.com/geekingfrog/golem/db"
)

const defaultBaseURL = "https://www.bitstamp.net/api/v2"

// Coin is a supported denomination, stored as its Bitstamp EUR pair.
type Coin string

const (
	Bitcoin  Coin = "btceur"
	Ethereum Coin = "etheur"
)

func (c Coin) Symbol() string {
	if c == Bitcoin {
		return "btc"
	}
	return "eth"
}

var allCoins = []Coin{Bitcoin, Ethereum}

// parseCoin accepts the usual aliases.
func parseCoin(s string) (Coin, bool) {
	switch strings.ToLower(s) {
	case "btc", "xbt", "bitcoin":
		return Bitcoin, true
	case "eth", "ethereum":
		return Ethereum, true
	}
	return "", false
}

// RateStore is the history the plugin needs; satisfied by *db.RateStore.
type RateStore interface {
	Insert(ctx context.Context, pair string, rate float64, observedAt time.Time) error
	LatestBefore(ctx context.Context, pair string, cutoff time.Time) (*db.Rate, error)
}

type Plugin struct {
	client  *http.Client
	store   RateStore
	baseURL string
	now     func() time.Time
	// monitorInterval between background rate observations.
	monitorInterval time.Duration
}

func New(store RateStore) *Plugin {
	return &Plugin{
		client:          &http.Client{Timeout: 10 * time.Second},
		store:           store,
		baseURL:         defaultBaseURL,
		now:             time.Now,
		monitorInterval: time.Hour,
	}
}

func (p *Plugin) Name() string { return "cryptocoin" }

// Run observes all rates on an interval so variation queries have history to
// compare against. Individual failures are logged and retried next tick.
func (p *Plugin) Run(ctx context.Context, out bot.Sender) error {
	ticker := time.NewTicker(p.monitorInterval)
	defer ticker.Stop()
	for {
		p.observeAll(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (p *Plugin) observeAll(ctx context.Context) {
	for _, coin := range allCoins {
		if _, err := p.observe(ctx, coin); err != nil {
			slog.Warn("rate observation failed",
				slog.String("pair", string(coin)), slog.Any("err", err))
		}
	}
}

// observe fetches the current rate and records it.
func (p *Plugin) observe(ctx context.Context, coin Coin) (float64, error) {
	rate, err := p.fetchRate(ctx, coin)
	if err != nil {
		return 0, err
	}
	if err := p.store.Insert(ctx, string(coin), rate, p.now().UTC()); err != nil {
		return 0, err
	}
	return rate, nil
}

func (p *Plugin) HandleMessage(ctx context.Context, in bot.Inbound) (*bot.Message, error) {
	cmd, ok := bot.ParseCommand(in.Text)
	if !ok || cmd.Name != "crypto" {
		return nil, nil
	}
	if len(cmd.Args) == 0 {
		return p.reply(in, cmd, "Usage: crypto <btc|eth>"), nil
	}

	coin, ok := parseCoin(cmd.Args[0])
	if !ok {
		return p.reply(in, cmd, fmt.Sprintf(
			"Dénomination inconnue: %s. Ici on ne deal qu'avec des monnaies respectueuses comme btc (aka xbt) et eth.",
			cmd.Args[0])), nil
	}

	rate, err := p.observe(ctx, coin)
	if err != nil {
		slog.Warn("crypto command failed", slog.String("pair", string(coin)), slog.Any("err", err))
		return p.reply(in, cmd, "Error while fetching the rate, try again later."), nil
	}

	text := fmt.Sprintf("1 %s = %.2f€", p.displaySymbol(coin), rate)
	if hist := p.history(ctx, coin, rate); hist != "" {
		text += " (" + hist + ")"
	}
	return p.reply(in, cmd, text), nil
}

func (p *Plugin) displaySymbol(coin Coin) string {
	return strings.ToUpper(coin.Symbol())
}

func (p *Plugin) reply(in bot.Inbound, cmd bot.Command, text string) *bot.Message {
	return &bot.Message{Target: in.Target, Text: bot.WithTarget(text, cmd.Target)}
}

// history renders the variation against the closest observations one day,
// one week and one month back. Windows without history are omitted.
func (p *Plugin) history(ctx context.Context, coin Coin, rate float64) string {
	windows := []struct {
		back  time.Duration
		label string
	}{
		{24 * time.Hour, "1D"},
		{7 * 24 * time.Hour, "1W"},
		{30 * 24 * time.Hour, "1M"},
	}

	now := p.now().UTC()
	var parts []string
	for _, w := range windows {
		past, err := p.store.LatestBefore(ctx, string(coin), now.Add(-w.back))
		if err != nil {
			continue
		}
		variation := (rate - past.Rate) / rate * 100
		parts = append(parts, formatVariation(variation)+" "+w.label)
	}
	return strings.Join(parts, " − ")
}

func formatVariation(v float64) string {
	arrow := "−"
	switch {
	case v > 0:
		arrow = "↗"
	case v < 0:
		arrow = "↘"
	}
	if v < 0 {
		v = -v
	}
	return fmt.Sprintf("%s%.2f%%", arrow, v)
}

// tickerResponse is the subset of the Bitstamp ticker payload we read.
type tickerResponse struct {
	Last string `json:"last"`
}

func (p *Plugin) fetchRate(ctx context.Context, coin Coin) (float64, error) {
	url := fmt.Sprintf("%s/ticker/%s/", p.baseURL, coin)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch ticker: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("ticker status %d for %s", resp.StatusCode, coin)
	}

	var ticker tickerResponse
	if err := json.NewDecoder(resp.Body).Decode(&ticker); err != nil {
		return 0, fmt.Errorf("decode ticker: %w", err)
	}
	rate, err := strconv.ParseFloat(ticker.Last, 64)
	if err != nil {
		return 0, fmt.Errorf("parse rate %q: %w", ticker.Last, err)
	}
	return rate, nil
}
