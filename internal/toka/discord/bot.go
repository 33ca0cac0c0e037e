// Package discord provides the Discord surface of toka: the /schedule
// slash command with its pager and modals, plus the reminder notifier.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/shiragiku/toka/common/trace"
	"github.com/shiragiku/toka/internal/toka/schedule"
)

// interactionTimeout bounds one interaction's backend work (generation plus
// sheet round-trips).  Discord tokens expire after 15 minutes; staying well
// under that keeps the deferred reply editable.
const interactionTimeout = 90 * time.Second

// pagerTTL matches the original collector lifetime: a pager older than this
// no longer responds to its buttons.
const pagerTTL = 5 * time.Minute

// Table is the slice of the sheet reconciler the bot needs.
type Table interface {
	List(ctx context.Context) ([]schedule.Record, error)
	Append(ctx context.Context, records []schedule.Record) (int, error)
	UpdateAt(ctx context.Context, index int, record schedule.Record) error
	DeleteAt(ctx context.Context, indices []int, snapshotLen int) (int, error)
}

// Extractor turns free text into schedule records.
type Extractor interface {
	Extract(ctx context.Context, userText string) ([]schedule.Record, error)
}

// DeletionResolver maps a free-text deletion request onto row indices.
type DeletionResolver interface {
	ResolveDeletion(ctx context.Context, userText string, rows []schedule.Record) (schedule.Deletion, error)
}

// ExpiryScanner flags expired rows for the auto cleanup.
type ExpiryScanner interface {
	ScanExpired(ctx context.Context, rows []schedule.Record, today time.Time) ([]int, error)
}

// Config holds options for creating a Bot.
type Config struct {
	// Token is the Discord bot token.
	Token string
	// GuildID scopes slash-command registration to one guild when set;
	// empty registers the command globally (slower to propagate).
	GuildID string
	// UserRateInterval is the minimum spacing between one user's
	// interactions.  Zero defaults to 3 seconds.
	UserRateInterval time.Duration
}

// pagerState tracks one live /schedule reply.  Only the invoking user may
// drive its buttons, matching the original collector filter.
type pagerState struct {
	userID   string
	index    int
	lastSeen time.Time
}

// Bot wraps the Discord session and owns interaction dispatch.
type Bot struct {
	session  *discordgo.Session
	cfg      Config
	table    Table
	extract  Extractor
	deletion DeletionResolver
	expiry   ExpiryScanner
	limiter  *userLimiter

	mu     sync.Mutex
	pagers map[string]*pagerState // keyed by pager message ID

	commandID string
}

// New creates a Bot.  Start must be called before it serves interactions.
func New(cfg Config, table Table, extract Extractor, deletion DeletionResolver, expiry ExpiryScanner) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages

	interval := cfg.UserRateInterval
	if interval <= 0 {
		interval = 3 * time.Second
	}

	return &Bot{
		session:  session,
		cfg:      cfg,
		table:    table,
		extract:  extract,
		deletion: deletion,
		expiry:   expiry,
		limiter:  newUserLimiter(interval, 2),
		pagers:   make(map[string]*pagerState),
	}, nil
}

// Session exposes the underlying connection for the notifier.
func (b *Bot) Session() *discordgo.Session {
	return b.session
}

// Start opens the gateway connection and registers the /schedule command.
func (b *Bot) Start(ctx context.Context) error {
	b.session.AddHandler(b.handleInteraction)
	b.session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		slog.Info("discord: gateway ready", "user", r.User.Username)
	})

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}

	cmd, err := b.session.ApplicationCommandCreate(b.session.State.User.ID, b.cfg.GuildID, &discordgo.ApplicationCommand{
		Name:        "schedule",
		Description: "予定を確認・追加・編集・削除します。(期限切れは自動削除されます)",
	})
	if err != nil {
		b.session.Close()
		return fmt.Errorf("discord: register /schedule: %w", err)
	}
	b.commandID = cmd.ID

	slog.Info("discord: /schedule registered", "command_id", cmd.ID, "guild", b.cfg.GuildID)
	return nil
}

// Stop unregisters the command and closes the gateway connection.
func (b *Bot) Stop() {
	if b.commandID != "" {
		if err := b.session.ApplicationCommandDelete(b.session.State.User.ID, b.cfg.GuildID, b.commandID); err != nil {
			slog.Warn("discord: unregister /schedule", "err", err)
		}
	}
	if err := b.session.Close(); err != nil {
		slog.Warn("discord: close gateway", "err", err)
	}
}

// handleInteraction is the single gateway dispatch point.  Each interaction
// gets a trace ID so the generation and sheet logs of one user action can be
// correlated.
func (b *Bot) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), interactionTimeout)
	defer cancel()
	ctx = trace.WithTraceID(ctx, trace.GenerateID())

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		if i.ApplicationCommandData().Name == "schedule" {
			b.handleScheduleCommand(ctx, s, i)
		}
	case discordgo.InteractionMessageComponent:
		b.handleComponent(ctx, s, i)
	case discordgo.InteractionModalSubmit:
		b.handleModalSubmit(ctx, s, i)
	}
}

// --- /schedule -----------------------------------------------------------------

func (b *Bot) handleScheduleCommand(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.GuildID == "" {
		respondEphemeral(s, i, "このコマンドはサーバー内でのみ使用できます。")
		return
	}
	userID := interactionUserID(i)
	if !b.limiter.Allow(userID) {
		respondEphemeral(s, i, "⏳ 操作が多すぎます。少し待ってからもう一度お試しください。")
		return
	}

	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}); err != nil {
		slog.Error("discord: defer /schedule reply", "err", err)
		return
	}

	// Auto cleanup runs before the list is rendered so expired rows never
	// show up.  A cleanup failure only skips the purge.
	purged := b.cleanupExpired(ctx)
	if purged > 0 {
		followUpEphemeral(s, i, fmt.Sprintf("🧹 自動クリーンアップを実行し、期限切れの予定を**%d件**削除しました。", purged))
	}

	rows, err := b.table.List(ctx)
	if err != nil {
		slog.Error("discord: list rows for /schedule", "trace", trace.FromContext(ctx), "err", err)
		editReplyContent(s, i, "❌ スプレッドシートからの予定の読み込みに失敗しました。")
		return
	}

	edit := &discordgo.WebhookEdit{}
	components := pagerComponents(0, len(rows), false)
	edit.Components = &components
	if len(rows) > 0 {
		embeds := []*discordgo.MessageEmbed{scheduleEmbed(rows[0], 0, len(rows))}
		edit.Embeds = &embeds
	} else {
		content := emptyListMessage
		edit.Content = &content
	}

	msg, err := s.InteractionResponseEdit(i.Interaction, edit)
	if err != nil {
		slog.Error("discord: render pager", "err", err)
		return
	}

	b.mu.Lock()
	b.pagers[msg.ID] = &pagerState{userID: userID, lastSeen: time.Now()}
	b.prunePagersLocked()
	b.mu.Unlock()
}

// cleanupExpired deletes rows the expiry scanner flags.  Returns the number
// of rows removed; all failures degrade to zero.
func (b *Bot) cleanupExpired(ctx context.Context) int {
	rows, err := b.table.List(ctx)
	if err != nil {
		slog.Warn("discord: cleanup list failed", "trace", trace.FromContext(ctx), "err", err)
		return 0
	}
	if len(rows) == 0 {
		return 0
	}

	expired, err := b.expiry.ScanExpired(ctx, rows, time.Now())
	if err != nil || len(expired) == 0 {
		if err != nil {
			slog.Warn("discord: expiry scan failed", "trace", trace.FromContext(ctx), "err", err)
		}
		return 0
	}

	deleted, err := b.table.DeleteAt(ctx, expired, len(rows))
	if err != nil {
		slog.Warn("discord: cleanup delete failed", "trace", trace.FromContext(ctx), "err", err)
		return 0
	}
	if deleted > 0 {
		slog.Info("discord: auto cleanup removed expired rows", "count", deleted)
	}
	return deleted
}

// --- Buttons -------------------------------------------------------------------

func (b *Bot) handleComponent(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	state, ok := b.pagerFor(i)
	if !ok {
		respondEphemeral(s, i, "⌛ この予定リストは期限切れです。再度 `/schedule` を実行してください。")
		return
	}
	if interactionUserID(i) != state.userID {
		respondEphemeral(s, i, "このリストはコマンドを実行した人だけが操作できます。")
		return
	}

	customID := i.MessageComponentData().CustomID
	switch customID {
	case idAddTrigger:
		if err := s.InteractionRespond(i.Interaction, addModal()); err != nil {
			slog.Error("discord: show add modal", "err", err)
		}
		return
	case idDeleteTrigger:
		if err := s.InteractionRespond(i.Interaction, deleteModal()); err != nil {
			slog.Error("discord: show delete modal", "err", err)
		}
		return
	}

	// prev / next / edit all need the fresh row list.
	rows, err := b.table.List(ctx)
	if err != nil {
		slog.Error("discord: refresh rows for pager", "trace", trace.FromContext(ctx), "err", err)
		respondEphemeral(s, i, "⚠️ ボタンの処理中にエラーが発生しました。")
		return
	}

	var delta int
	switch customID {
	case idPrevious:
		delta = -1
	case idNext:
		delta = 1
	case idEditTrigger:
		index, ok := b.stepPager(i.Message.ID, 0, len(rows))
		if !ok {
			respondEphemeral(s, i, "⌛ この予定リストは期限切れです。再度 `/schedule` を実行してください。")
			return
		}
		if len(rows) == 0 {
			respondEphemeral(s, i, "編集対象の予定がありません。")
			return
		}
		if err := s.InteractionRespond(i.Interaction, editModal(index, rows[index])); err != nil {
			slog.Error("discord: show edit modal", "err", err)
		}
		return
	default:
		return
	}

	index, ok := b.stepPager(i.Message.ID, delta, len(rows))
	if !ok {
		respondEphemeral(s, i, "⌛ この予定リストは期限切れです。再度 `/schedule` を実行してください。")
		return
	}
	b.updatePager(s, i, index, rows)
}

// updatePager re-renders the pager message in place.
func (b *Bot) updatePager(s *discordgo.Session, i *discordgo.InteractionCreate, index int, rows []schedule.Record) {
	data := &discordgo.InteractionResponseData{
		Components: pagerComponents(index, len(rows), false),
	}
	if len(rows) > 0 {
		data.Embeds = []*discordgo.MessageEmbed{scheduleEmbed(rows[index], index, len(rows))}
		data.Content = ""
	} else {
		data.Embeds = []*discordgo.MessageEmbed{}
		data.Content = emptyListMessage
	}

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: data,
	})
	if err != nil {
		slog.Error("discord: update pager", "err", err)
	}
}

// pagerFor resolves the live pager state for a component interaction.
// Event handlers run on their own goroutines, so it returns a snapshot;
// mutations go through stepPager under the same lock.
func (b *Bot) pagerFor(i *discordgo.InteractionCreate) (pagerState, bool) {
	if i.Message == nil {
		return pagerState{}, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	state, ok := b.pagers[i.Message.ID]
	if !ok || time.Since(state.lastSeen) > pagerTTL {
		delete(b.pagers, i.Message.ID)
		return pagerState{}, false
	}
	return *state, true
}

// stepPager moves the pager for messageID by delta, clamped to rowCount,
// and refreshes its TTL.  Returns the index to render and whether the
// pager still exists.
func (b *Bot) stepPager(messageID string, delta, rowCount int) (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	state, ok := b.pagers[messageID]
	if !ok {
		return 0, false
	}
	state.index = clampIndex(state.index+delta, rowCount)
	state.lastSeen = time.Now()
	return state.index, true
}

func (b *Bot) prunePagersLocked() {
	for id, state := range b.pagers {
		if time.Since(state.lastSeen) > pagerTTL {
			delete(b.pagers, id)
		}
	}
}

// --- Modals --------------------------------------------------------------------

func (b *Bot) handleModalSubmit(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ModalSubmitData()

	switch {
	case data.CustomID == idAddModal:
		b.handleAddSubmit(ctx, s, i, data)
	case data.CustomID == idDeleteModal:
		b.handleDeleteSubmit(ctx, s, i, data)
	default:
		if index, ok := parseEditModalID(data.CustomID); ok {
			b.handleEditSubmit(ctx, s, i, data, index)
		}
	}
}

func (b *Bot) handleAddSubmit(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ModalSubmitInteractionData) {
	deferEphemeral(s, i)

	records, err := b.extract.Extract(ctx, modalValue(data, idAddInput))
	if err != nil {
		slog.Error("discord: extract schedules", "trace", trace.FromContext(ctx), "err", err)
		editReplyContent(s, i, "⚠️ 予定の解析中にエラーが発生しました。")
		return
	}
	if len(records) == 0 {
		editReplyContent(s, i, "❌ AIが予定情報を抽出できませんでした。より具体的に入力してください。\n例: 「明日の国語の音読」と「金曜日までの数学ドリルP5」")
		return
	}

	added, err := b.table.Append(ctx, records)
	if err != nil {
		slog.Error("discord: append schedules", "trace", trace.FromContext(ctx), "err", err)
		editReplyContent(s, i, "❌ スプレッドシートへの予定追加中にエラーが発生しました。")
		return
	}
	if added == 0 {
		editReplyContent(s, i, "❌ 有効な予定を作成できませんでした。「内容」は必須です。")
		return
	}
	editReplyContent(s, i, fmt.Sprintf("✅ %d件の予定を追加しました！\nリストを更新するには、再度 `/schedule` コマンドを実行してください。", added))
}

func (b *Bot) handleDeleteSubmit(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ModalSubmitInteractionData) {
	deferEphemeral(s, i)

	rows, err := b.table.List(ctx)
	if err != nil {
		slog.Error("discord: list rows for deletion", "trace", trace.FromContext(ctx), "err", err)
		editReplyContent(s, i, "❌ スプレッドシートからの予定読み込みに失敗しました。")
		return
	}
	if len(rows) == 0 {
		editReplyContent(s, i, "ℹ️ 削除対象の予定がありません。")
		return
	}

	resolved, err := b.deletion.ResolveDeletion(ctx, modalValue(data, idDeleteInput), rows)
	if err != nil {
		slog.Error("discord: resolve deletion", "trace", trace.FromContext(ctx), "err", err)
		editReplyContent(s, i, "⚠️ 削除対象の解析中にエラーが発生しました。")
		return
	}
	if len(resolved.Indices) == 0 {
		reason := resolved.Reason
		if reason == "" {
			reason = "不明"
		}
		editReplyContent(s, i, fmt.Sprintf("❌ AIが削除対象を特定できませんでした。\n> **AIからの理由:** %s", reason))
		return
	}

	deleted, err := b.table.DeleteAt(ctx, resolved.Indices, len(rows))
	if err != nil {
		slog.Error("discord: delete rows", "trace", trace.FromContext(ctx), "err", err)
		editReplyContent(s, i, "❌ スプレッドシートからの予定削除中にエラーが発生しました。")
		return
	}
	if deleted == 0 {
		editReplyContent(s, i, "❌ 有効な削除対象が見つかりませんでした。")
		return
	}
	editReplyContent(s, i, fmt.Sprintf("✅ %d件の予定を削除しました。\n再度 `/schedule` を実行してリストを更新してください。", deleted))
}

func (b *Bot) handleEditSubmit(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, data discordgo.ModalSubmitInteractionData, index int) {
	deferEphemeral(s, i)

	rec := schedule.Record{
		Type: modalValue(data, idEditType),
		Task: modalValue(data, idEditTask),
		Due:  modalValue(data, idEditDue),
	}.Normalize()
	if !rec.Valid() {
		editReplyContent(s, i, "❌ 「内容」は必須です。")
		return
	}

	// Re-run extraction over the edited text so a free-form due like 来週金曜
	// still normalizes to YYYY-MM-DD.  On failure the raw value stands.
	if _, ok := rec.DueDate(); !ok && rec.Due != schedule.DueUnspecified {
		extracted, err := b.extract.Extract(ctx, fmt.Sprintf("%s %s %s", rec.Type, rec.Task, rec.Due))
		if err == nil && len(extracted) > 0 && extracted[0].Due != "" {
			rec.Due = extracted[0].Due
		}
	}

	if err := b.table.UpdateAt(ctx, index, rec); err != nil {
		slog.Error("discord: update row", "trace", trace.FromContext(ctx), "index", index, "err", err)
		editReplyContent(s, i, "❌ スプレッドシートの予定更新中にエラーが発生しました。")
		return
	}
	editReplyContent(s, i, "✅ 予定を更新しました。\n再度 `/schedule` を実行してリストを更新してください。")
}

// --- Response helpers ----------------------------------------------------------

func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

func respondEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		slog.Warn("discord: ephemeral respond", "err", err)
	}
}

func deferEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		slog.Warn("discord: defer ephemeral", "err", err)
	}
}

func editReplyContent(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &content}); err != nil {
		slog.Warn("discord: edit reply", "err", err)
	}
}

func followUpEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	_, err := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Content: content,
		Flags:   discordgo.MessageFlagsEphemeral,
	})
	if err != nil {
		slog.Warn("discord: follow up", "err", err)
	}
}
