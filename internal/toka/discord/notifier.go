package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/shiragiku/toka/internal/toka/schedule"
	"github.com/shiragiku/toka/internal/toka/settings"
)

// maxReminderRows caps the reminder body so a crowded sheet cannot blow the
// 2000-character message limit.
const maxReminderRows = 25

// reminderSession is the slice of the Discord session the notifier needs.
type reminderSession interface {
	Guild(guildID string, options ...discordgo.RequestOption) (*discordgo.Guild, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Notifier posts the daily reminder to the configured channel.  It
// implements the reminder service's Notifier interface.
type Notifier struct {
	session reminderSession
}

// NewNotifier creates a Notifier sharing the bot's session.
func NewNotifier(session *discordgo.Session) *Notifier {
	return &Notifier{session: session}
}

// SendReminder posts the remaining schedule to cfg.ReminderChannelID,
// falling back to the guild's system channel, and mentions
// cfg.ReminderRoleID when set.
func (n *Notifier) SendReminder(_ context.Context, cfg settings.Schedule, records []schedule.Record, purged int) error {
	channelID, err := n.reminderChannel(cfg)
	if err != nil {
		return err
	}

	msg := &discordgo.MessageSend{Content: reminderContent(cfg, records, purged)}
	if cfg.ReminderRoleID != "" {
		msg.AllowedMentions = &discordgo.MessageAllowedMentions{
			Roles: []string{cfg.ReminderRoleID},
		}
	}

	if _, err := n.session.ChannelMessageSendComplex(channelID, msg); err != nil {
		return fmt.Errorf("discord: post reminder: %w", err)
	}
	slog.Info("discord: reminder posted", "channel", channelID, "rows", len(records), "purged", purged)
	return nil
}

// reminderChannel resolves the destination: the explicitly configured
// channel, or the guild's system channel when none is set.
func (n *Notifier) reminderChannel(cfg settings.Schedule) (string, error) {
	if cfg.ReminderChannelID != "" {
		return cfg.ReminderChannelID, nil
	}
	if cfg.ReminderGuildID == "" {
		return "", fmt.Errorf("discord: reminder destination is not configured")
	}
	guild, err := n.session.Guild(cfg.ReminderGuildID)
	if err != nil {
		return "", fmt.Errorf("discord: look up guild %s: %w", cfg.ReminderGuildID, err)
	}
	if guild.SystemChannelID == "" {
		return "", fmt.Errorf("discord: guild %s has no system channel", cfg.ReminderGuildID)
	}
	return guild.SystemChannelID, nil
}

// reminderContent renders the reminder body.
func reminderContent(cfg settings.Schedule, records []schedule.Record, purged int) string {
	var sb strings.Builder
	if cfg.ReminderRoleID != "" {
		fmt.Fprintf(&sb, "<@&%s> ", cfg.ReminderRoleID)
	}
	sb.WriteString("📅 **今日の予定リマインダー**\n")
	if purged > 0 {
		fmt.Fprintf(&sb, "🧹 期限切れの予定を%d件削除しました。\n", purged)
	}

	if len(records) == 0 {
		sb.WriteString("✅ 登録されている予定はありません。")
		return sb.String()
	}

	shown := records
	if len(shown) > maxReminderRows {
		shown = shown[:maxReminderRows]
	}
	for _, rec := range shown {
		fmt.Fprintf(&sb, "• [%s] %s(期限: %s)\n", rec.Type, rec.Task, rec.Due)
	}
	if rest := len(records) - len(shown); rest > 0 {
		fmt.Fprintf(&sb, "…ほか%d件。`/schedule` で確認できます。", rest)
	}
	return strings.TrimRight(sb.String(), "\n")
}
