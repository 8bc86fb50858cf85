// Package bot is the Discord glue around the rule engine: it converts gateway
// messages into engine events, exposes the administrative slash commands, and
// performs the moderation side effects the engine requests.
package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/cache"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/gateway"
	"github.com/disgoorg/snowflake/v2"
	"go.uber.org/zap"

	"github.com/sentrabot/sentra/internal/bot/verify"
	"github.com/sentrabot/sentra/internal/engine"
	"github.com/sentrabot/sentra/internal/engine/ratelimit"
	"github.com/sentrabot/sentra/internal/setup/config"
)

// Bot owns the Discord client and routes gateway traffic to the engine, the
// command handlers and the verification flow.
type Bot struct {
	client   bot.Client
	engine   *engine.Engine
	commands *ratelimit.Limiter
	verifier *verify.Manager
	logger   *zap.Logger
}

// New builds the Discord client with the gateway intents the engine needs.
// Message content requires the privileged intent to be enabled for the
// application.
func New(cfg *config.Config, eng *engine.Engine, actions *Actions, logger *zap.Logger) (*Bot, error) {
	b := &Bot{
		engine: eng,
		commands: ratelimit.New(
			cfg.Limits.Commands.MaxRequests,
			time.Duration(cfg.Limits.Commands.Window)*time.Second,
			time.Duration(cfg.Limits.Commands.WarnCooldown)*time.Second,
		),
		logger: logger.Named("bot"),
	}

	client, err := disgo.New(cfg.Discord.Token,
		bot.WithGatewayConfigOpts(
			gateway.WithIntents(
				gateway.IntentGuilds,
				gateway.IntentGuildMessages,
				gateway.IntentDirectMessages,
				gateway.IntentMessageContent,
			),
		),
		// The channel cache resolves thread parents so channel-scoped rules
		// cover the threads under their channels.
		bot.WithCacheConfigOpts(cache.WithCaches(cache.FlagChannels)),
		bot.WithEventListeners(&events.ListenerAdapter{
			OnMessageCreate:                 b.handleMessageCreate,
			OnMessageUpdate:                 b.handleMessageUpdate,
			OnApplicationCommandInteraction: b.handleApplicationCommandInteraction,
			OnComponentInteraction:          b.handleComponentInteraction,
			OnModalSubmit:                   b.handleModalSubmit,
		}),
	)
	if err != nil {
		return nil, err
	}

	b.client = client
	actions.bind(client)
	b.verifier = verify.NewManager(client, cfg.Verify, cfg.Limits.Verify, logger)

	return b, nil
}

// Start registers the slash commands and opens the gateway connection.
func (b *Bot) Start() error {
	b.logger.Info("Registering commands")

	_, err := b.client.Rest().SetGlobalCommands(b.client.ApplicationID(), commandDefinitions())
	if err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}

	b.logger.Info("Starting bot")
	return b.client.OpenGateway(context.Background())
}

// Close gracefully shuts down the gateway connection.
func (b *Bot) Close() {
	b.logger.Info("Closing bot")
	b.client.Close(context.Background())
}

// handleMessageCreate feeds guild messages into the engine. Only the bot's
// own messages are skipped outright: webhooks and other bots can relay
// filtered content, so they still get the content-filter pass, while
// repetition tracking stays human-only. Evaluation runs off the gateway
// loop: a pattern hitting its match deadline must not stall event dispatch.
func (b *Bot) handleMessageCreate(e *events.MessageCreate) {
	if e.GuildID == nil || e.Message.Author.ID == b.client.ApplicationID() {
		return
	}

	content := messageContent(e.Message, *e.GuildID, b.threadParent(e.ChannelID))

	if e.Message.Author.Bot || e.Message.Author.System || e.Message.WebhookID != nil {
		go b.engine.ScanFilters(context.Background(), content)
		return
	}

	go b.engine.HandleEvent(context.Background(), content)
}

// handleMessageUpdate re-scans edited messages with the content filters so an
// edit cannot sneak filtered content past the rules. Edits never feed the
// repetition pass; the original delivery already recorded this message.
func (b *Bot) handleMessageUpdate(e *events.MessageUpdate) {
	if e.GuildID == nil || e.Message.Author.ID == b.client.ApplicationID() {
		return
	}

	content := messageContent(e.Message, *e.GuildID, b.threadParent(e.ChannelID))
	go b.engine.ScanFilters(context.Background(), content)
}

// threadParent resolves the containing channel when the message was posted in
// a thread, zero otherwise.
func (b *Bot) threadParent(channelID snowflake.ID) snowflake.ID {
	if thread, ok := b.client.Caches().GuildThread(channelID); ok {
		return *thread.ParentID()
	}
	return 0
}

// handleComponentInteraction routes button clicks to the verification flow.
func (b *Bot) handleComponentInteraction(event *events.ComponentInteractionCreate) {
	customID := event.Data.CustomID()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("Panic in component interaction handler",
					zap.String("custom_id", customID),
					zap.Any("panic", r))
			}
		}()

		switch customID {
		case verify.StartButtonID:
			b.verifier.HandleStart(event)
		case verify.AnswerButtonID:
			b.verifier.HandleAnswerButton(event)
		}
	}()
}

// handleModalSubmit routes form submissions to the verification flow.
func (b *Bot) handleModalSubmit(event *events.ModalSubmitInteractionCreate) {
	customID := event.Data.CustomID

	go func() {
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("Panic in modal submit handler",
					zap.String("custom_id", customID),
					zap.Any("panic", r))
			}
		}()

		if customID == verify.AnswerModalID {
			b.verifier.HandleAnswerModal(event)
		}
	}()
}
