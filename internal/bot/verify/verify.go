// Package verify implements the member verification flow: a button-triggered
// CAPTCHA challenge that grants the configured role on success. Challenge
// state is held in memory with a TTL; an expired challenge just means
// clicking the button again.
package verify

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"image/png"
	"time"

	"github.com/dchest/captcha"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"
	"go.uber.org/zap"

	"github.com/sentrabot/sentra/internal/engine/ratelimit"
	"github.com/sentrabot/sentra/internal/setup/config"
	"github.com/sentrabot/sentra/internal/utils"
)

// Component identifiers routed to this package by the bot's listeners.
const (
	StartButtonID  = "verify_start"
	AnswerButtonID = "verify_answer"
	AnswerModalID  = "verify_answer_modal"
	answerInputID  = "verify_code"
)

// challenge is one pending CAPTCHA for one member.
type challenge struct {
	digits   []byte
	attempts int
}

// Manager owns pending challenges and the verification rate limiter.
type Manager struct {
	client   bot.Client
	cfg      config.Verify
	limiter  *ratelimit.Limiter
	sessions *utils.TTLMap[snowflake.ID, *challenge]
	logger   *zap.Logger
}

// NewManager creates a verification manager bound to the given client.
func NewManager(client bot.Client, cfg config.Verify, limit config.Limit, logger *zap.Logger) *Manager {
	return &Manager{
		client: client,
		cfg:    cfg,
		limiter: ratelimit.New(
			limit.MaxRequests,
			time.Duration(limit.Window)*time.Second,
			time.Duration(limit.WarnCooldown)*time.Second,
		),
		sessions: utils.NewTTLMap[snowflake.ID, *challenge](time.Duration(cfg.SessionTTL) * time.Second),
		logger:   logger.Named("verify"),
	}
}

// HandleStart responds to the panel button with a fresh CAPTCHA image.
func (m *Manager) HandleStart(event *events.ComponentInteractionCreate) {
	userID := event.User().ID

	if member := event.Member(); member != nil && m.hasVerifiedRole(member.RoleIDs) {
		m.respond(event, "You are already verified.")
		return
	}

	if !m.limiter.Allow(userID) {
		if m.limiter.ShouldWarn(userID) {
			m.respond(event, "You are requesting verification too often. Wait a moment and try again.")
		} else {
			m.respond(event, "Rate limited.")
		}
		return
	}

	digits, imgBuffer, err := m.generateImage()
	if err != nil {
		m.logger.Error("Failed to generate CAPTCHA image", zap.Error(err))
		m.respond(event, "Could not generate a challenge. Please try again.")
		return
	}

	m.sessions.Set(userID, &challenge{digits: digits})
	m.logger.Debug("Issued CAPTCHA challenge",
		zap.Uint64("user", uint64(userID)),
		zap.Int("pending_sessions", m.sessions.Len()))

	err = event.CreateMessage(discord.NewMessageCreateBuilder().
		SetContentf("Enter the %d digits shown in the image.", m.cfg.CodeLength).
		AddFiles(discord.NewFile("captcha.png", "", imgBuffer)).
		AddActionRow(discord.NewPrimaryButton("Enter Code", AnswerButtonID)).
		SetEphemeral(true).
		Build())
	if err != nil {
		m.logger.Error("Failed to send CAPTCHA challenge", zap.Error(err))
	}
}

// HandleAnswerButton opens the code entry modal for a pending challenge.
func (m *Manager) HandleAnswerButton(event *events.ComponentInteractionCreate) {
	if _, ok := m.sessions.Get(event.User().ID); !ok {
		m.respond(event, "Your challenge expired. Click Verify to get a new one.")
		return
	}

	modal := discord.NewModalCreateBuilder().
		SetCustomID(AnswerModalID).
		SetTitle("Verification").
		AddActionRow(
			discord.NewTextInput(answerInputID, discord.TextInputStyleShort, "Code").
				WithRequired(true).
				WithPlaceholder(fmt.Sprintf("The %d digits from the image", m.cfg.CodeLength)),
		).
		Build()

	if err := event.Modal(modal); err != nil {
		m.logger.Error("Failed to show verification modal", zap.Error(err))
	}
}

// HandleAnswerModal checks the submitted code and grants the role on success.
func (m *Manager) HandleAnswerModal(event *events.ModalSubmitInteractionCreate) {
	userID := event.User().ID

	pending, ok := m.sessions.Get(userID)
	if !ok {
		m.respondModal(event, "Your challenge expired. Click Verify to get a new one.")
		return
	}

	answer, ok := parseDigits(event.Data.Text(answerInputID), m.cfg.CodeLength)
	if !ok || !bytes.Equal(answer, pending.digits) {
		pending.attempts++
		if pending.attempts >= m.cfg.MaxAttempts {
			m.sessions.Delete(userID)
			m.respondModal(event, "Too many wrong answers. Click Verify to start over.")
			return
		}
		m.respondModal(event, "Incorrect code. Click Enter Code to try again.")
		return
	}

	m.sessions.Delete(userID)

	guildID := event.GuildID()
	if guildID == nil {
		m.respondModal(event, "Verification only works inside a server.")
		return
	}

	if err := m.client.Rest().AddMemberRole(*guildID, userID, snowflake.ID(m.cfg.RoleID)); err != nil {
		m.logger.Error("Failed to grant verified role",
			zap.Uint64("user_id", uint64(userID)),
			zap.Uint64("role_id", m.cfg.RoleID),
			zap.Error(err))
		m.respondModal(event, "Your answer was correct but I could not assign the role. Contact a moderator.")
		return
	}

	m.logger.Info("Member verified", zap.Uint64("user_id", uint64(userID)))
	m.respondModal(event, "You are verified. Welcome!")
}

// generateImage renders a random digit CAPTCHA as a PNG buffer.
func (m *Manager) generateImage() ([]byte, *bytes.Buffer, error) {
	digits := captcha.RandomDigits(m.cfg.CodeLength)

	idBytes := make([]byte, 16)
	if _, err := rand.Read(idBytes); err != nil {
		return nil, nil, fmt.Errorf("failed to generate random ID: %w", err)
	}

	img := captcha.NewImage(hex.EncodeToString(idBytes), digits, captcha.StdWidth, captcha.StdHeight)

	buf := new(bytes.Buffer)
	if err := png.Encode(buf, img); err != nil {
		return nil, nil, fmt.Errorf("failed to encode CAPTCHA image: %w", err)
	}

	return digits, buf, nil
}

func (m *Manager) hasVerifiedRole(roles []snowflake.ID) bool {
	for _, r := range roles {
		if uint64(r) == m.cfg.RoleID {
			return true
		}
	}
	return false
}

// parseDigits converts a typed answer into the raw digit values
// captcha.RandomDigits produces.
func parseDigits(answer string, length int) ([]byte, bool) {
	if len(answer) != length {
		return nil, false
	}
	digits := make([]byte, length)
	for i, r := range answer {
		if r < '0' || r > '9' {
			return nil, false
		}
		digits[i] = byte(r - '0')
	}
	return digits, true
}

func (m *Manager) respond(event *events.ComponentInteractionCreate, content string) {
	if err := event.CreateMessage(discord.NewMessageCreateBuilder().
		SetContent(content).
		SetEphemeral(true).
		Build()); err != nil {
		m.logger.Error("Failed to respond to interaction", zap.Error(err))
	}
}

func (m *Manager) respondModal(event *events.ModalSubmitInteractionCreate, content string) {
	if err := event.CreateMessage(discord.NewMessageCreateBuilder().
		SetContent(content).
		SetEphemeral(true).
		Build()); err != nil {
		m.logger.Error("Failed to respond to modal submission", zap.Error(err))
	}
}
