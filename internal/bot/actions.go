package bot

import (
	"context"
	"fmt"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"go.uber.org/zap"
)

// Actions performs the moderation side effects the engine requests through
// the Discord REST API. The client is bound after the gateway client exists;
// the engine never dispatches before Start.
type Actions struct {
	client bot.Client
	logger *zap.Logger
}

// NewActions creates an unbound action dispatcher.
func NewActions(logger *zap.Logger) *Actions {
	return &Actions{logger: logger.Named("actions")}
}

func (a *Actions) bind(client bot.Client) {
	a.client = client
}

// DeleteMessage removes a message from a channel.
func (a *Actions) DeleteMessage(ctx context.Context, channelID, messageID snowflake.ID) error {
	return a.client.Rest().DeleteMessage(channelID, messageID, rest.WithCtx(ctx))
}

// SendDirectMessage opens a DM channel with the user and sends the content.
func (a *Actions) SendDirectMessage(ctx context.Context, userID snowflake.ID, content string) error {
	channel, err := a.client.Rest().CreateDMChannel(userID, rest.WithCtx(ctx))
	if err != nil {
		return fmt.Errorf("failed to open DM channel: %w", err)
	}

	_, err = a.client.Rest().CreateMessage(channel.ID(), discord.NewMessageCreateBuilder().
		SetContent(content).
		Build(), rest.WithCtx(ctx))
	if err != nil {
		return fmt.Errorf("failed to send DM: %w", err)
	}
	return nil
}

// Notify posts a moderation summary to a channel.
func (a *Actions) Notify(ctx context.Context, channelID snowflake.ID, content string) error {
	_, err := a.client.Rest().CreateMessage(channelID, discord.NewMessageCreateBuilder().
		SetContent(content).
		Build(), rest.WithCtx(ctx))
	if err != nil {
		a.logger.Debug("Notification channel rejected message",
			zap.Uint64("channel_id", uint64(channelID)),
			zap.Error(err))
		return err
	}
	return nil
}
