// Package admin は管理者向けの操作（データベースのリセット、統計の取得）を提供する。
// 認可は設定された単一の管理者IDとの一致のみで判定する。
package admin

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/fortunebot/internal/model"
	"github.com/hitoshi/fortunebot/internal/user"
)

// UserStore はユーザーデータの管理操作のインターフェース。
type UserStore interface {
	Reset(ctx context.Context) (string, error)
	AggregateStats(ctx context.Context) (model.AggregateStats, error)
	StoreLocation() string
	Mode() user.PersistenceMode
}

// AIStatus はAI解釈の状態を参照するインターフェース。
type AIStatus interface {
	IsAvailable() bool
	IsEnabled() bool
}

// DeckCounter はデッキの枚数を参照するインターフェース。
type DeckCounter interface {
	CountsByClassification() model.DeckCounts
}

// Service は管理者操作のビジネスロジックを提供する。
type Service struct {
	adminID string
	users   UserStore
	ai      AIStatus
	deck    DeckCounter
	logger  *slog.Logger
}

// NewService はServiceを生成する。adminIDが空の場合は誰も管理者として扱わない。
func NewService(adminID string, users UserStore, ai AIStatus, deck DeckCounter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		adminID: strings.TrimSpace(adminID),
		users:   users,
		ai:      ai,
		deck:    deck,
		logger:  logger,
	}
}

// IsAdmin は呼び出し元が管理者かどうかを返す。
func (s *Service) IsAdmin(callerID string) bool {
	return s.adminID != "" && callerID == s.adminID
}

// ResetDatabase は全ユーザーデータをバックアップしてから削除する。
// 管理者以外の場合はストアに触れずにFORBIDDENエラーを返す。
// ストアの失敗はエラーではなく Status=error の結果として返す。
func (s *Service) ResetDatabase(ctx context.Context, callerID string) (*model.ResetResult, error) {
	if !s.IsAdmin(callerID) {
		s.logger.Warn("unauthorized reset attempt", slog.String("user_id", callerID))
		return nil, model.NewForbiddenError()
	}

	backupID, err := s.users.Reset(ctx)
	if err != nil {
		s.logger.Error("database reset failed",
			slog.String("user_id", callerID),
			slog.String("error", err.Error()),
		)
		return &model.ResetResult{
			Status:  model.ResetStatusError,
			Message: fmt.Sprintf("reset failed: %v", err),
		}, nil
	}

	s.logger.Warn("database reset by admin",
		slog.String("user_id", callerID),
		slog.String("backup_id", backupID),
	)

	msg := "database reset successfully"
	if backupID == "" {
		msg = "database was already empty, no backup created"
	}
	return &model.ResetResult{
		Status:   model.ResetStatusSuccess,
		BackupID: backupID,
		Message:  msg,
	}, nil
}

// Stats は管理者向けの統計情報を返す。
func (s *Service) Stats(ctx context.Context, callerID string) (*model.AdminStats, error) {
	if !s.IsAdmin(callerID) {
		return nil, model.NewForbiddenError()
	}

	agg, err := s.users.AggregateStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate stats: %w", err)
	}

	stats := &model.AdminStats{
		Aggregate:       agg,
		StoreLocation:   s.users.StoreLocation(),
		PersistenceMode: string(s.users.Mode()),
		AdminID:         s.adminID,
	}
	if s.deck != nil {
		stats.Deck = s.deck.CountsByClassification()
	}
	if s.ai != nil {
		stats.AIAvailable = s.ai.IsAvailable()
		stats.AIEnabled = s.ai.IsEnabled()
	}

	s.logger.Info("admin stats requested", slog.String("user_id", callerID))
	return stats, nil
}
