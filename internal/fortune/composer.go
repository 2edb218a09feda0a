// Package fortune は1日1回の占いを組み立てる。
// 資格確認、カードの抽選、AI解釈による補強、記録までを1ユーザー単位で直列に実行する。
package fortune

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/hitoshi/fortunebot/internal/model"
)

// Eligibility はユーザーの利用資格を管理するインターフェース。
type Eligibility interface {
	LockUser(userID string) func()
	GetOrCreate(ctx context.Context, userID, displayName string) (model.UserRecord, error)
	CanDrawToday(ctx context.Context, userID string) (bool, error)
	RecordDraw(ctx context.Context, userID, displayName string) (model.UserRecord, error)
	StatsFor(ctx context.Context, userID string) (model.UserStats, error)
}

// Interpreter はカードのAI解釈を提供するインターフェース。
type Interpreter interface {
	IsEnabled() bool
	Interpret(ctx context.Context, cardName, displayName string) (string, bool)
}

// Deck はカードの抽選元のインターフェース。
type Deck interface {
	Len() int
	At(i int) model.Card
}

// DrawRecorder は占い結果の計測インターフェース。
type DrawRecorder interface {
	RecordDraw(source string)
	RecordDrawDenied()
}

// 解釈の種類。メトリクスのラベルに使用する。
const (
	SourceAI      = "ai"
	SourceClassic = "classic"
)

// Composer は占いリクエストを処理する。
type Composer struct {
	tracker  Eligibility
	interp   Interpreter
	deck     Deck
	logger   *slog.Logger
	recorder DrawRecorder

	intn func(n int) int
}

// NewComposer はComposerを生成する。interpがnilの場合は常に定型文を使う。
func NewComposer(tracker Eligibility, interp Interpreter, deck Deck, logger *slog.Logger, recorder DrawRecorder) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{
		tracker:  tracker,
		interp:   interp,
		deck:     deck,
		logger:   logger,
		recorder: recorder,
		intn:     rand.IntN,
	}
}

// Draw は今日の占いを1回引く。
// 既に引いている場合は Success=false と現在の統計を返し、状態は変更しない。
// 新規の場合はカードを抽選し、文面を組み立ててから記録する。
// 記録に失敗した場合（strictモード）はエラーを返し、その日の利用資格は消費されない。
func (c *Composer) Draw(ctx context.Context, userID, displayName string) (*model.DrawResult, error) {
	unlock := c.tracker.LockUser(userID)
	defer unlock()

	if _, err := c.tracker.GetOrCreate(ctx, userID, displayName); err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	ok, err := c.tracker.CanDrawToday(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("check eligibility: %w", err)
	}

	if !ok {
		stats, err := c.tracker.StatsFor(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("get stats: %w", err)
		}
		if c.recorder != nil {
			c.recorder.RecordDrawDenied()
		}
		c.logger.Info("fortune already drawn today",
			slog.String("user_id", userID),
			slog.Int("total_draws", stats.TotalDraws),
		)
		return &model.DrawResult{Success: false, Stats: stats}, nil
	}

	card := c.pickCard()
	message, aiUsed := c.compose(ctx, card, displayName)

	if _, err := c.tracker.RecordDraw(ctx, userID, displayName); err != nil {
		return nil, fmt.Errorf("record draw: %w", err)
	}

	stats, err := c.tracker.StatsFor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get stats: %w", err)
	}

	source := SourceClassic
	if aiUsed {
		source = SourceAI
	}
	if c.recorder != nil {
		c.recorder.RecordDraw(source)
	}
	c.logger.Info("fortune drawn",
		slog.String("user_id", userID),
		slog.String("card", card.Name),
		slog.String("source", source),
		slog.Int("total_draws", stats.TotalDraws),
	)

	return &model.DrawResult{
		Success: true,
		Card:    card,
		Message: message,
		Stats:   stats,
		AIUsed:  aiUsed,
	}, nil
}

// pickCard はデッキ全体から復元抽出で1枚を選ぶ。
func (c *Composer) pickCard() model.Card {
	return c.deck.At(c.intn(c.deck.Len()))
}

// compose は文面を組み立て、AI解釈を使ったかどうかを返す。
func (c *Composer) compose(ctx context.Context, card model.Card, displayName string) (string, bool) {
	if c.interp != nil && c.interp.IsEnabled() {
		if text, ok := c.interp.Interpret(ctx, card.Name, displayName); ok && text != "" {
			return formatAI(aiTemplates[c.intn(len(aiTemplates))], card, text), true
		}
	}
	return formatClassic(classicTemplates[c.intn(len(classicTemplates))], card), false
}
