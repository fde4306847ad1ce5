// ABOUTME: Default implementations of the external delivery collaborators
// ABOUTME: Log-only stand-ins for the platform chat fan-out path

package gateway

import (
	"context"
	"log/slog"

	"github.com/hearth-chat/bot-gateway/internal/store"
)

// LogNotifier satisfies interaction.Notifier by logging hand-offs. The
// real user-facing delivery channel plugs in here in production.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log-only notifier. Pass nil logger for default.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "notifier")}
}

// DeliverResponse logs an accepted response hand-off.
func (n *LogNotifier) DeliverResponse(_ context.Context, inter *store.Interaction) {
	n.logger.Info("response ready for delivery",
		"interaction_id", inter.ID,
		"channel_id", inter.ChannelID,
		"user_id", inter.UserID,
		"ephemeral", inter.ResponseEphemeral)
}

// NotifyTimeout logs the once-only timeout notice for the invoking user.
func (n *LogNotifier) NotifyTimeout(_ context.Context, inter *store.Interaction) {
	n.logger.Info("command timed out",
		"interaction_id", inter.ID,
		"command", inter.CommandName,
		"channel_id", inter.ChannelID,
		"user_id", inter.UserID)
}

// LogChannelPublisher satisfies ChannelPublisher by logging accepted bot
// messages. The platform chat service replaces this in production.
type LogChannelPublisher struct {
	logger *slog.Logger
}

// NewLogChannelPublisher creates a log-only publisher. Pass nil logger for default.
func NewLogChannelPublisher(logger *slog.Logger) *LogChannelPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogChannelPublisher{logger: logger.With("component", "channels")}
}

// PublishMessage logs a validated bot message hand-off.
func (p *LogChannelPublisher) PublishMessage(_ context.Context, botUserID, channelID, content string) error {
	p.logger.Info("bot message ready for chat fan-out",
		"bot_user_id", botUserID,
		"channel_id", channelID,
		"length", len(content))
	return nil
}
