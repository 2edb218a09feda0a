// Package bot はTelegramの更新をコマンドごとの処理に振り分ける。
// ポーリングとWebhookのどちらの経路でも同じDispatcherを使用する。
package bot

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/hitoshi/fortunebot/internal/middleware"
	"github.com/hitoshi/fortunebot/internal/model"
	"github.com/hitoshi/fortunebot/internal/telegram"
)

// Sender はメッセージ送信のインターフェース。
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendChatAction(ctx context.Context, chatID int64, action string) error
}

// FortuneDrawer は日替わり占いを引くインターフェース。
type FortuneDrawer interface {
	Draw(ctx context.Context, userID, displayName string) (*model.DrawResult, error)
}

// UserDirectory はユーザーの登録と統計参照のインターフェース。
type UserDirectory interface {
	GetOrCreate(ctx context.Context, userID, displayName string) (model.UserRecord, error)
	StatsFor(ctx context.Context, userID string) (model.UserStats, error)
}

// AIControl はAI解釈の状態確認と切り替えのインターフェース。
type AIControl interface {
	IsAvailable() bool
	IsEnabled() bool
	Toggle() bool
	Interpret(ctx context.Context, cardName, displayName string) (string, bool)
	ListAvailableModels(ctx context.Context) []string
	Models() []string
}

// AdminOps は管理者操作のインターフェース。
type AdminOps interface {
	ResetDatabase(ctx context.Context, callerID string) (*model.ResetResult, error)
	Stats(ctx context.Context, callerID string) (*model.AdminStats, error)
}

// DeckInfo はデッキ構成の参照インターフェース。
type DeckInfo interface {
	CountsByClassification() model.DeckCounts
	CountsBySuit() map[model.Suit]int
}

// Limiter はユーザー単位のレート制限インターフェース。
type Limiter interface {
	Allow(key string) bool
}

// UpdateRecorder は受信した更新の計測インターフェース。
type UpdateRecorder interface {
	RecordUpdate(command string)
}

// TextEscaper はユーザー由来の文字列をHTMLとして安全にするインターフェース。
type TextEscaper interface {
	EscapeText(raw string) string
}

// Deps はDispatcherが依存するサービス群。
type Deps struct {
	Sender   Sender
	Fortune  FortuneDrawer
	Users    UserDirectory
	AI       AIControl
	Admin    AdminOps
	Deck     DeckInfo
	Limiter  Limiter
	Recorder UpdateRecorder
	Escaper  TextEscaper
	Logger   *slog.Logger

	// AIRequestsPerMinute は/statusに表示するAPI呼び出しの上限。
	AIRequestsPerMinute int
	// BotUsername が設定されている場合、別のボット宛てのコマンド（/cmd@other）を無視する。
	BotUsername string
}

// probeCard は/statusでの疎通確認に使うカード名。
const probeCard = "The Fool"

// コマンド名以外のメトリクスラベル。未知のコマンドはラベルに含めない。
const (
	commandLabelText    = "text"
	commandLabelUnknown = "unknown"
	commandLabelLimited = "rate_limited"
)

// Dispatcher は更新1件を処理して返信する。
type Dispatcher struct {
	deps   Deps
	logger *slog.Logger
}

// NewDispatcher はDispatcherの新しいインスタンスを生成する。
func NewDispatcher(deps Deps) *Dispatcher {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	deps.BotUsername = strings.TrimPrefix(strings.ToLower(deps.BotUsername), "@")
	return &Dispatcher{deps: deps, logger: logger}
}

// request は処理中のメッセージに関する情報。
type request struct {
	chatID  int64
	userID  string
	name    string // 保存・プロンプト用の生の表示名
	display string // 返信用にエスケープ済みの表示名
	command string
	logger  *slog.Logger
}

// HandleUpdate は更新を処理する。メッセージや送信者のない更新は無視する。
// 処理中のパニックは回復し、ユーザーには汎用のエラーメッセージを返す。
func (d *Dispatcher) HandleUpdate(ctx context.Context, update telegram.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.From.IsBot {
		return
	}

	requestID := middleware.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
		ctx = middleware.WithRequestID(ctx, requestID)
	}

	command, isCommand := d.parseCommand(msg.Text)
	if isCommand && command == "" {
		// 別のボット宛てのコマンド
		return
	}

	req := &request{
		chatID:  msg.Chat.ID,
		userID:  strconv.FormatInt(msg.From.ID, 10),
		name:    displayName(msg.From),
		command: command,
	}
	req.display = defaultName
	if req.name != "" {
		req.display = d.escape(req.name)
	}
	req.logger = d.logger.With(
		slog.String("request_id", requestID),
		slog.Int64("update_id", update.UpdateID),
		slog.String("user_id", req.userID),
	)

	defer func() {
		if rec := recover(); rec != nil {
			req.logger.Error("panic recovered while handling update",
				slog.Any("panic", rec),
				slog.String("command", req.command),
			)
			d.reply(ctx, req, errorMessage(fmt.Errorf("panic: %v", rec)))
		}
	}()

	if !isCommand {
		d.record(commandLabelText)
		d.reply(ctx, req, textHintMessage(req.display, d.deps.AI.IsEnabled()))
		return
	}

	if d.deps.Limiter != nil && !d.deps.Limiter.Allow(req.userID) {
		d.record(commandLabelLimited)
		d.reply(ctx, req, errorMessage(model.NewRateLimitedError()))
		return
	}

	text, err := d.route(ctx, req)
	if err != nil {
		level := slog.LevelError
		if model.HasCode(err, model.ErrCodeForbidden) || model.HasCode(err, model.ErrCodeUnknownCommand) {
			level = slog.LevelWarn
		}
		req.logger.Log(ctx, level, "command failed",
			slog.String("command", req.command),
			slog.String("error", err.Error()),
		)
		text = errorMessage(err)
	}
	d.reply(ctx, req, text)
}

// route はコマンドを処理し、返信する文面を返す。
func (d *Dispatcher) route(ctx context.Context, req *request) (string, error) {
	switch req.command {
	case "/start":
		d.record(req.command)
		return d.handleStart(ctx, req)
	case "/help":
		d.record(req.command)
		return helpMessage(d.deps.AI.IsAvailable(), d.deps.AI.IsEnabled()), nil
	case "/fortune", "/card":
		d.record("/fortune")
		return d.handleFortune(ctx, req)
	case "/stats":
		d.record(req.command)
		return d.handleStats(ctx, req)
	case "/deck":
		d.record(req.command)
		return deckMessage(d.deps.Deck.CountsByClassification(), d.deps.Deck.CountsBySuit()), nil
	case "/ai":
		d.record(req.command)
		return d.handleToggle(req), nil
	case "/status":
		d.record(req.command)
		return d.handleStatus(ctx), nil
	case "/reset":
		d.record(req.command)
		return d.handleReset(ctx, req)
	case "/adminstats":
		d.record(req.command)
		return d.handleAdminStats(ctx, req)
	default:
		d.record(commandLabelUnknown)
		return "", model.NewUnknownCommandError(req.command)
	}
}

func (d *Dispatcher) handleStart(ctx context.Context, req *request) (string, error) {
	if _, err := d.deps.Users.GetOrCreate(ctx, req.userID, req.name); err != nil {
		return "", err
	}
	req.logger.Info("user started bot")
	return welcomeMessage(req.display, d.deps.Deck.CountsByClassification(), d.deps.AI.IsEnabled()), nil
}

func (d *Dispatcher) handleFortune(ctx context.Context, req *request) (string, error) {
	if err := d.deps.Sender.SendChatAction(ctx, req.chatID, telegram.ChatActionTyping); err != nil {
		req.logger.Debug("failed to send typing action", slog.String("error", err.Error()))
	}

	res, err := d.deps.Fortune.Draw(ctx, req.userID, req.name)
	if err != nil {
		return "", err
	}
	if res.Success {
		req.logger.Info("fortune delivered",
			slog.String("card", res.Card.Name),
			slog.Bool("ai_used", res.AIUsed),
			slog.Int("total_draws", res.Stats.TotalDraws),
		)
	}
	return fortuneMessage(req.display, res), nil
}

func (d *Dispatcher) handleStats(ctx context.Context, req *request) (string, error) {
	stats, err := d.deps.Users.StatsFor(ctx, req.userID)
	if err != nil {
		return "", err
	}
	return statsMessage(req.display, stats), nil
}

func (d *Dispatcher) handleToggle(req *request) string {
	if !d.deps.AI.IsAvailable() {
		return aiUnavailableMessage()
	}
	enabled := d.deps.AI.Toggle()
	req.logger.Info("user toggled AI interpretations", slog.Bool("enabled", enabled))
	return aiToggledMessage(enabled)
}

func (d *Dispatcher) handleStatus(ctx context.Context) string {
	ai := d.deps.AI
	if !ai.IsAvailable() {
		return aiStatusMessage(false, false, false, nil, nil, 0)
	}

	enabled := ai.IsEnabled()
	probeOK := false
	if enabled {
		_, probeOK = ai.Interpret(ctx, probeCard, "test")
		if !probeOK {
			return aiStatusMessage(true, true, false, nil, nil, 0)
		}
	}
	return aiStatusMessage(true, enabled, probeOK, ai.Models(), ai.ListAvailableModels(ctx), d.deps.AIRequestsPerMinute)
}

func (d *Dispatcher) handleReset(ctx context.Context, req *request) (string, error) {
	res, err := d.deps.Admin.ResetDatabase(ctx, req.userID)
	if err != nil {
		return "", err
	}
	return resetMessage(res), nil
}

func (d *Dispatcher) handleAdminStats(ctx context.Context, req *request) (string, error) {
	stats, err := d.deps.Admin.Stats(ctx, req.userID)
	if err != nil {
		return "", err
	}
	return adminStatsMessage(stats), nil
}

// parseCommand はテキストからコマンド名を取り出す。
// 戻り値のboolはテキストがコマンドかどうか。別のボット宛ての場合は空文字を返す。
func (d *Dispatcher) parseCommand(text string) (string, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", false
	}

	cmd := strings.ToLower(fields[0])
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		target := cmd[at+1:]
		cmd = cmd[:at]
		if d.deps.BotUsername != "" && target != d.deps.BotUsername {
			return "", true
		}
	}
	return cmd, true
}

func (d *Dispatcher) reply(ctx context.Context, req *request, text string) {
	if err := d.deps.Sender.SendMessage(ctx, req.chatID, text); err != nil {
		req.logger.Error("failed to send reply",
			slog.String("command", req.command),
			slog.String("error", err.Error()),
		)
	}
}

func (d *Dispatcher) record(command string) {
	if d.deps.Recorder != nil {
		d.deps.Recorder.RecordUpdate(command)
	}
}

func (d *Dispatcher) escape(s string) string {
	if d.deps.Escaper == nil {
		return html.EscapeString(s)
	}
	return d.deps.Escaper.EscapeText(s)
}

// displayName は保存用の名前を返す。first_nameが空の場合は空文字を返し、
// 既定の呼びかけは表示時にのみ使う。
func displayName(u *telegram.User) string {
	return strings.TrimSpace(u.FirstName)
}
