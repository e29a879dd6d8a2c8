// Package alerts posts long-running-request notifications to a Discord
// channel. The worker is single-threaded, so one stuck request stalls
// everything behind it; the alert loop is how anyone finds out.
package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/nextlevelbuilder/bridge-echo/internal/config"
	"github.com/nextlevelbuilder/bridge-echo/internal/discord"
	"github.com/nextlevelbuilder/bridge-echo/internal/observe"
	"github.com/nextlevelbuilder/bridge-echo/internal/tracker"
)

// sweepInterval is how often active requests are checked against the
// thresholds.
const sweepInterval = 30 * time.Second

// ActiveSource is the tracker slice the loop reads. Implemented by
// *tracker.Tracker; tests substitute a stub with scripted elapsed times.
type ActiveSource interface {
	ActiveForAlerting() []tracker.AlertView
	MarkAlerted(id uint64, thresholdMin int)
}

// Loop sweeps active requests and notifies once per (request, threshold)
// pair.
type Loop struct {
	source     ActiveSource
	client     *discord.Client
	channelID  string
	thresholds []int
	metrics    *observe.Metrics
}

// New builds a Loop. thresholdsMin must be sorted ascending, which
// config.Load guarantees.
func New(source ActiveSource, client *discord.Client, channelID string, thresholdsMin []int, metrics *observe.Metrics) *Loop {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Loop{
		source:     source,
		client:     client,
		channelID:  channelID,
		thresholds: thresholdsMin,
		metrics:    metrics,
	}
}

// FromConfig builds the loop when alerting is fully configured, and
// returns nil with the reason logged otherwise.
func FromConfig(cfg *config.Config, source ActiveSource, metrics *observe.Metrics) *Loop {
	switch {
	case cfg.Discord.BotToken == "":
		slog.Info("discord alerts disabled (BRIDGE_ECHO_DISCORD_BOT_TOKEN not set)")
		return nil
	case cfg.Discord.AlertChannel == "":
		slog.Info("discord alerts disabled (BRIDGE_ECHO_DISCORD_ALERT_CHANNEL not set)")
		return nil
	case len(cfg.Alerts.ThresholdsMin) == 0:
		slog.Info("discord alerts disabled (no thresholds configured)")
		return nil
	}

	slog.Info("discord alerts enabled",
		"thresholds_min", cfg.Alerts.ThresholdsMin,
		"channel", cfg.Discord.AlertChannel,
	)
	client := discord.NewClient(cfg.Discord.BotToken, "")
	return New(source, client, cfg.Discord.AlertChannel, cfg.Alerts.ThresholdsMin, metrics)
}

// Run sweeps every sweepInterval until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.sweep(ctx)
		}
	}
}

// sweep crosses every active request with every threshold. A pair is
// marked even when delivery fails: retrying each sweep would spam the
// channel for as long as the outage lasts.
func (l *Loop) sweep(ctx context.Context) {
	for _, view := range l.source.ActiveForAlerting() {
		for _, threshold := range l.thresholds {
			if view.ElapsedSecs < int64(threshold)*60 {
				continue
			}
			if slices.Contains(view.AlertsSent, threshold) {
				continue
			}
			l.notify(ctx, view, threshold)
			l.source.MarkAlerted(view.ID, threshold)
		}
	}
}

func (l *Loop) notify(ctx context.Context, view tracker.AlertView, thresholdMin int) {
	elapsedMin := view.ElapsedSecs / 60
	msg := fmt.Sprintf("⚠️ **bridge-echo alert** — request #%d on `%s` has been running for **%d min**\n> %s",
		view.ID, view.Channel, elapsedMin, view.MessagePreview)

	if err := l.client.PostMessage(ctx, l.channelID, msg); err != nil {
		slog.Warn("alert delivery failed",
			"id", view.ID,
			"threshold_min", thresholdMin,
			"error", err,
		)
		l.metrics.AlertsFailed.Add(ctx, 1)
		return
	}
	slog.Info("alert sent",
		"id", view.ID,
		"channel", view.Channel,
		"threshold_min", thresholdMin,
	)
	l.metrics.AlertsSent.Add(ctx, 1)
}
