package bot

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"
	"go.uber.org/zap"

	"github.com/sentrabot/sentra/internal/bot/verify"
	"github.com/sentrabot/sentra/internal/engine/rules"
)

const (
	filterCommandName     = "filter"
	repeatCommandName     = "repeat"
	violationsCommandName = "violations"
	verifyPanelCommand    = "verifypanel"
)

// commandDefinitions declares the administrative slash commands registered at
// startup. Permission enforcement happens in the handler, not here: Discord's
// default permission gates are advisory and server admins can rebind them.
func commandDefinitions() []discord.ApplicationCommandCreate {
	return []discord.ApplicationCommandCreate{
		discord.SlashCommandCreate{
			Name:        filterCommandName,
			Description: "Manage content filter rules",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionSubCommand{
					Name:        "define",
					Description: "Create or replace a content filter rule",
					Options: []discord.ApplicationCommandOption{
						discord.ApplicationCommandOptionString{
							Name:        "name",
							Description: "Rule name",
							Required:    true,
						},
						discord.ApplicationCommandOptionString{
							Name:        "pattern",
							Description: "Pattern, optionally /pat/imsx or with --flags suffix",
							Required:    true,
						},
					},
				},
				discord.ApplicationCommandOptionSubCommand{
					Name:        "channels",
					Description: "Set the channels a filter rule monitors",
					Options: []discord.ApplicationCommandOption{
						discord.ApplicationCommandOptionString{
							Name:        "name",
							Description: "Rule name",
							Required:    true,
						},
						discord.ApplicationCommandOptionString{
							Name:        "channels",
							Description: "Channel mentions or IDs, space separated",
							Required:    true,
						},
					},
				},
				discord.ApplicationCommandOptionSubCommand{
					Name:        "exempt",
					Description: "Set the users and roles a filter rule ignores",
					Options: []discord.ApplicationCommandOption{
						discord.ApplicationCommandOptionString{
							Name:        "name",
							Description: "Rule name",
							Required:    true,
						},
						discord.ApplicationCommandOptionString{
							Name:        "users",
							Description: "User mentions or IDs, space separated",
						},
						discord.ApplicationCommandOptionString{
							Name:        "roles",
							Description: "Role mentions or IDs, space separated",
						},
					},
				},
				discord.ApplicationCommandOptionSubCommand{
					Name:        "remove",
					Description: "Remove a content filter rule",
					Options: []discord.ApplicationCommandOption{
						discord.ApplicationCommandOptionString{
							Name:        "name",
							Description: "Rule name",
							Required:    true,
						},
					},
				},
				discord.ApplicationCommandOptionSubCommand{
					Name:        "list",
					Description: "List content filter rules",
				},
			},
		},
		discord.SlashCommandCreate{
			Name:        repeatCommandName,
			Description: "Manage repetition rules",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionSubCommand{
					Name:        "define",
					Description: "Create or replace a repetition rule",
					Options: []discord.ApplicationCommandOption{
						discord.ApplicationCommandOptionString{
							Name:        "name",
							Description: "Rule name",
							Required:    true,
						},
						discord.ApplicationCommandOptionString{
							Name:        "window",
							Description: "Counting window, e.g. 90s, 5m, 24h, 7d",
							Required:    true,
						},
						discord.ApplicationCommandOptionInt{
							Name:        "count",
							Description: "Messages required to trigger (at least 2)",
							Required:    true,
						},
						discord.ApplicationCommandOptionInt{
							Name:        "similarity",
							Description: "Similarity percent (1-100), exclusive with pattern",
						},
						discord.ApplicationCommandOptionString{
							Name:        "pattern",
							Description: "Repeat pattern, exclusive with similarity",
						},
						discord.ApplicationCommandOptionInt{
							Name:        "min_length",
							Description: "Messages this short or shorter are ignored",
						},
						discord.ApplicationCommandOptionString{
							Name:        "dm",
							Description: "Warning sent to the author on trigger",
						},
						discord.ApplicationCommandOptionString{
							Name:        "action",
							Description: "Moderation action on trigger",
							Choices: []discord.ApplicationCommandOptionChoiceString{
								{Name: "warn", Value: string(rules.ModActionWarn)},
								{Name: "delete", Value: string(rules.ModActionDelete)},
								{Name: "warn and delete", Value: string(rules.ModActionWarnAndDelete)},
							},
						},
						discord.ApplicationCommandOptionChannel{
							Name:        "notify",
							Description: "Channel that receives trigger summaries",
						},
						discord.ApplicationCommandOptionString{
							Name:        "channels",
							Description: "Only count messages in these channels",
						},
						discord.ApplicationCommandOptionString{
							Name:        "exclude_channels",
							Description: "Never count messages in these channels",
						},
						discord.ApplicationCommandOptionString{
							Name:        "target_roles",
							Description: "Only count authors holding one of these roles",
						},
						discord.ApplicationCommandOptionString{
							Name:        "exempt_roles",
							Description: "Never count authors holding one of these roles",
						},
						discord.ApplicationCommandOptionBool{
							Name:        "nonreply_only",
							Description: "Ignore replies",
						},
						discord.ApplicationCommandOptionString{
							Name:        "cooldown",
							Description: "Per-author retrigger cooldown, e.g. 60s",
						},
						discord.ApplicationCommandOptionString{
							Name:        "label",
							Description: "Label used in statistics, defaults to the name",
						},
					},
				},
				discord.ApplicationCommandOptionSubCommand{
					Name:        "remove",
					Description: "Remove a repetition rule and its state",
					Options: []discord.ApplicationCommandOption{
						discord.ApplicationCommandOptionString{
							Name:        "name",
							Description: "Rule name",
							Required:    true,
						},
					},
				},
				discord.ApplicationCommandOptionSubCommand{
					Name:        "list",
					Description: "List repetition rules",
				},
			},
		},
		discord.SlashCommandCreate{
			Name:        violationsCommandName,
			Description: "Show a member's violation statistics for a rule",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionUser{
					Name:        "member",
					Description: "Member to look up",
					Required:    true,
				},
				discord.ApplicationCommandOptionString{
					Name:        "rule",
					Description: "Repetition rule name",
					Required:    true,
				},
			},
		},
		discord.SlashCommandCreate{
			Name:        verifyPanelCommand,
			Description: "Post the member verification panel in this channel",
		},
	}
}

// handleApplicationCommandInteraction gates every command on guild context,
// Manage Server permission and the command rate limit, then dispatches.
func (b *Bot) handleApplicationCommandInteraction(event *events.ApplicationCommandInteractionCreate) {
	go func() {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("Panic in application command handler", zap.Any("panic", r))
			}
			b.logger.Debug("Application command handled",
				zap.String("command", event.SlashCommandInteractionData().CommandName()),
				zap.Duration("duration", time.Since(start)))
		}()

		if event.GuildID() == nil {
			b.respond(event, "Commands only work inside a server.")
			return
		}

		member := event.Member()
		if member == nil || !member.Permissions.Has(discord.PermissionManageGuild) {
			b.respond(event, "You need the Manage Server permission to use this.")
			return
		}

		userID := event.User().ID
		if !b.commands.Allow(userID) {
			if b.commands.ShouldWarn(userID) {
				b.respond(event, "You are issuing commands too quickly. Slow down.")
			} else {
				b.respond(event, "Rate limited.")
			}
			return
		}

		community := *event.GuildID()
		data := event.SlashCommandInteractionData()

		var reply string
		var err error
		switch data.CommandName() {
		case filterCommandName:
			reply, err = b.handleFilterCommand(community, data)
		case repeatCommandName:
			reply, err = b.handleRepeatCommand(community, data)
		case violationsCommandName:
			reply = b.handleViolationsCommand(community, data)
		case verifyPanelCommand:
			b.postVerifyPanel(event)
			return
		default:
			reply = "Unknown command."
		}

		if err != nil {
			reply = commandError(err)
		}
		b.respond(event, reply)
	}()
}

func (b *Bot) handleFilterCommand(community snowflake.ID, data discord.SlashCommandInteractionData) (string, error) {
	switch sub := ptrValue(data.SubCommandName); sub {
	case "define":
		name := data.String("name")
		if err := b.engine.DefineFilterRule(community, name, data.String("pattern")); err != nil {
			return "", err
		}
		return fmt.Sprintf("Filter rule `%s` saved. Set its channels with `/filter channels` before it takes effect.", name), nil

	case "channels":
		channels, err := parseIDList(data.String("channels"))
		if err != nil {
			return "", err
		}
		if err := b.engine.UpdateFilterScope(community, data.String("name"), channels); err != nil {
			return "", err
		}
		return fmt.Sprintf("Filter rule `%s` now monitors %d channel(s).", data.String("name"), len(channels)), nil

	case "exempt":
		users, err := parseIDList(data.String("users"))
		if err != nil {
			return "", err
		}
		roles, err := parseIDList(data.String("roles"))
		if err != nil {
			return "", err
		}
		if err := b.engine.SetFilterExemptions(community, data.String("name"), users, roles); err != nil {
			return "", err
		}
		return fmt.Sprintf("Filter rule `%s` exemptions updated.", data.String("name")), nil

	case "remove":
		if err := b.engine.RemoveFilterRule(community, data.String("name")); err != nil {
			return "", err
		}
		return fmt.Sprintf("Filter rule `%s` removed.", data.String("name")), nil

	case "list":
		filterRules := b.engine.ListFilterRules(community)
		if len(filterRules) == 0 {
			return "No filter rules defined.", nil
		}
		lines := make([]string, 0, len(filterRules))
		for _, r := range filterRules {
			lines = append(lines, fmt.Sprintf("`%s` — %d channel(s), %d exempt user(s), %d exempt role(s)",
				r.Name, len(r.Channels), len(r.ExemptUsers), len(r.ExemptRoles)))
		}
		sort.Strings(lines)
		return strings.Join(lines, "\n"), nil

	default:
		return "Unknown subcommand.", nil
	}
}

func (b *Bot) handleRepeatCommand(community snowflake.ID, data discord.SlashCommandInteractionData) (string, error) {
	switch sub := ptrValue(data.SubCommandName); sub {
	case "define":
		rule, err := repeatRuleFromOptions(data)
		if err != nil {
			return "", err
		}
		if err := b.engine.DefineRepetitionRule(community, rule); err != nil {
			return "", err
		}
		return fmt.Sprintf("Repetition rule `%s` saved.", rule.Name), nil

	case "remove":
		if err := b.engine.RemoveRepetitionRule(community, data.String("name")); err != nil {
			return "", err
		}
		return fmt.Sprintf("Repetition rule `%s` removed along with its history and statistics.", data.String("name")), nil

	case "list":
		repRules := b.engine.ListRepetitionRules(community)
		if len(repRules) == 0 {
			return "No repetition rules defined.", nil
		}
		lines := make([]string, 0, len(repRules))
		for _, r := range repRules {
			mode := fmt.Sprintf("similarity %.0f%%", r.SimilarityThreshold*100)
			if r.PatternMode() {
				mode = "pattern"
			}
			lines = append(lines, fmt.Sprintf("`%s` — %s, %d messages in %s, action %q",
				r.Name, mode, r.MessageCount, (time.Duration(r.TimeWindow) * time.Second).String(), string(r.ModAction)))
		}
		sort.Strings(lines)
		return strings.Join(lines, "\n"), nil

	default:
		return "Unknown subcommand.", nil
	}
}

func (b *Bot) handleViolationsCommand(community snowflake.ID, data discord.SlashCommandInteractionData) string {
	member := data.Snowflake("member")
	ruleKey := rules.NormalizeName(data.String("rule"))

	record, ok := b.engine.Stats().Lookup(community, member, ruleKey)
	if !ok {
		return fmt.Sprintf("No recorded violations of `%s` for <@%d>.", ruleKey, member)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Violations of `%s` by <@%d> (last updated %s):\n", ruleKey, member, record.LastUpdated)
	for _, window := range statWindows {
		if count, ok := record.Aggregates[window]; ok {
			fmt.Fprintf(&sb, "%s: %d\n", window, count)
		}
	}
	return sb.String()
}

func (b *Bot) postVerifyPanel(event *events.ApplicationCommandInteractionCreate) {
	_, err := b.client.Rest().CreateMessage(event.Channel().ID(), discord.NewMessageCreateBuilder().
		SetContent("Click the button below to verify you are human and unlock the server.").
		AddActionRow(discord.NewPrimaryButton("Verify", verify.StartButtonID)).
		Build())
	if err != nil {
		b.logger.Error("Failed to post verification panel", zap.Error(err))
		b.respond(event, "Could not post the panel here. Check my channel permissions.")
		return
	}
	b.respond(event, "Verification panel posted.")
}

// statWindows fixes the display order of aggregate windows.
var statWindows = []string{"24h", "7d", "30d", "90d", "120d", "180d", "360d"}

// repeatRuleFromOptions builds a repetition rule from the define subcommand's
// options. Structural validation happens in the rule itself.
func repeatRuleFromOptions(data discord.SlashCommandInteractionData) (*rules.RepetitionRule, error) {
	window, err := parseDurationSeconds(data.String("window"))
	if err != nil {
		return nil, fmt.Errorf("window: %w", err)
	}

	rule := &rules.RepetitionRule{
		Name:         data.String("name"),
		TimeWindow:   window,
		MessageCount: data.Int("count"),
	}

	if label, ok := data.OptString("label"); ok {
		rule.Label = label
	} else {
		rule.Label = rule.Name
	}
	if percent, ok := data.OptInt("similarity"); ok {
		rule.SimilarityThreshold = float64(percent) / 100
	}
	if pat, ok := data.OptString("pattern"); ok {
		rule.RepeatPattern = pat
	}
	if minLength, ok := data.OptInt("min_length"); ok {
		rule.MinLength = minLength
	}
	if dm, ok := data.OptString("dm"); ok {
		rule.DMMessage = dm
	}
	if action, ok := data.OptString("action"); ok {
		rule.ModAction = rules.ModAction(action)
	}
	if notify, ok := data.OptSnowflake("notify"); ok {
		rule.NotifyChannelID = notify
	}
	if nonReply, ok := data.OptBool("nonreply_only"); ok {
		rule.NonReplyOnly = nonReply
	}
	if raw, ok := data.OptString("cooldown"); ok {
		cooldown, err := parseDurationSeconds(raw)
		if err != nil {
			return nil, fmt.Errorf("cooldown: %w", err)
		}
		rule.TriggerCooldown = cooldown
	}

	for option, dst := range map[string]*rules.IDSet{
		"channels":         &rule.Channels,
		"exclude_channels": &rule.ExcludedChannels,
		"target_roles":     &rule.TargetedRoles,
		"exempt_roles":     &rule.ExemptedRoles,
	} {
		raw, ok := data.OptString(option)
		if !ok {
			continue
		}
		ids, err := parseIDList(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", option, err)
		}
		*dst = rules.NewIDSet(ids...)
	}

	return rule, nil
}

// parseDurationSeconds parses a duration like "90s", "5m", "24h" or "7d" into
// whole seconds. A bare number is taken as seconds.
func parseDurationSeconds(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, errors.New("empty duration")
	}

	if seconds, err := strconv.Atoi(raw); err == nil {
		return seconds, nil
	}

	// time.ParseDuration has no day unit.
	if days, ok := strings.CutSuffix(raw, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", raw)
		}
		return n * 24 * 60 * 60, nil
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	return int(d / time.Second), nil
}

// parseIDList parses space-separated channel, role or user references.
// Mention wrappers like <#...>, <@...>, <@!...> and <@&...> are accepted
// alongside raw IDs. An empty input yields an empty list.
func parseIDList(raw string) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	for _, token := range strings.Fields(raw) {
		trimmed := strings.TrimFunc(token, func(r rune) bool {
			switch r {
			case '<', '>', '#', '@', '!', '&', ',':
				return true
			default:
				return false
			}
		})
		id, err := snowflake.Parse(trimmed)
		if err != nil {
			return nil, fmt.Errorf("invalid ID %q", token)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func commandError(err error) string {
	switch {
	case errors.Is(err, rules.ErrRuleNotFound):
		return "No rule with that name exists."
	case errors.Is(err, rules.ErrInvalidRule):
		return fmt.Sprintf("Invalid rule: %s", err)
	default:
		return fmt.Sprintf("That didn't work: %s", err)
	}
}

func (b *Bot) respond(event *events.ApplicationCommandInteractionCreate, content string) {
	if err := event.CreateMessage(discord.NewMessageCreateBuilder().
		SetContent(content).
		SetEphemeral(true).
		Build()); err != nil {
		b.logger.Error("Failed to respond to command", zap.Error(err))
	}
}

func ptrValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
