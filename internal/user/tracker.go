// Package user はユーザーごとの1日1回の占い利用資格を管理する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/fortunebot/internal/model"
	"github.com/hitoshi/fortunebot/internal/repository"
)

// PersistenceMode は書き込み失敗時の扱いを表す。
type PersistenceMode string

const (
	// ModeStrict は書き込み失敗を呼び出し元へエラーとして返す。
	ModeStrict PersistenceMode = "strict"
	// ModeBestEffort は書き込み失敗をログに記録して処理を継続する。
	ModeBestEffort PersistenceMode = "best_effort"
)

// StoreErrorRecorder は永続化エラーの計測インターフェース。
type StoreErrorRecorder interface {
	RecordStoreError(op string)
}

// Config はTrackerの設定。
type Config struct {
	// Location は「今日」を判定するタイムゾーン。nilの場合はtime.Local。
	Location *time.Location
	// Mode は永続化ポリシー。空の場合はModeStrict。
	Mode PersistenceMode
}

// Tracker はユーザーレコードの読み書きと利用資格の判定を行う。
// スナップショットの読み込みから書き込みまでをmuで直列化する。
type Tracker struct {
	repo    repository.UserRecordRepository
	logger  *slog.Logger
	metrics StoreErrorRecorder
	now     func() time.Time
	loc     *time.Location
	mode    PersistenceMode

	mu    sync.Mutex
	locks *keyedMutex
}

// NewTracker はTrackerを生成する。
func NewTracker(repo repository.UserRecordRepository, logger *slog.Logger, metrics StoreErrorRecorder, cfg Config) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	mode := cfg.Mode
	if mode == "" {
		mode = ModeStrict
	}
	return &Tracker{
		repo:    repo,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
		loc:     loc,
		mode:    mode,
		locks:   newKeyedMutex(),
	}
}

// Today は設定タイムゾーンでの今日の日付（YYYY-MM-DD）を返す。
func (t *Tracker) Today() string {
	return t.now().In(t.loc).Format(model.DateLayout)
}

// Mode は永続化ポリシーを返す。
func (t *Tracker) Mode() PersistenceMode {
	return t.mode
}

// LockUser はユーザー単位のロックを取得し、解放関数を返す。
// 資格確認から記録までを1つのクリティカルセクションにするために使う。
func (t *Tracker) LockUser(userID string) func() {
	return t.locks.Lock(userID)
}

// GetOrCreate はユーザーレコードを返す。存在しない場合は作成して即座に保存する。
// displayNameが空でなく既存の値と異なる場合は更新する。
func (t *Tracker) GetOrCreate(ctx context.Context, userID, displayName string) (model.UserRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	snapshot, writable, err := t.load(ctx)
	if err != nil {
		return model.UserRecord{}, err
	}

	rec, ok := snapshot[userID]
	changed := false
	if !ok {
		rec = model.UserRecord{CreatedAt: t.Today(), DisplayName: displayName}
		changed = true
		t.logger.Info("new user registered", slog.String("user_id", userID))
	} else if displayName != "" && rec.DisplayName != displayName {
		rec.DisplayName = displayName
		changed = true
	}

	if changed {
		snapshot[userID] = rec
		if err := t.save(ctx, snapshot, writable, "get_or_create"); err != nil {
			return model.UserRecord{}, err
		}
	}

	return rec, nil
}

// CanDrawToday はユーザーが今日まだ占っていない場合にtrueを返す。
// 未登録ユーザーはこの呼び出しで作成される。
func (t *Tracker) CanDrawToday(ctx context.Context, userID string) (bool, error) {
	rec, err := t.GetOrCreate(ctx, userID, "")
	if err != nil {
		return false, err
	}
	return t.canDraw(rec), nil
}

// RecordDraw は今日の占いを記録する。last_draw_dateを今日にし、total_drawsを1増やす。
func (t *Tracker) RecordDraw(ctx context.Context, userID, displayName string) (model.UserRecord, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	snapshot, writable, err := t.load(ctx)
	if err != nil {
		return model.UserRecord{}, err
	}

	today := t.Today()
	rec, ok := snapshot[userID]
	if !ok {
		rec = model.UserRecord{CreatedAt: today}
	}
	if displayName != "" {
		rec.DisplayName = displayName
	}
	rec.LastDrawDate = today
	rec.TotalDraws++
	snapshot[userID] = rec

	if err := t.save(ctx, snapshot, writable, "record_draw"); err != nil {
		return model.UserRecord{}, err
	}

	t.logger.Info("fortune recorded",
		slog.String("user_id", userID),
		slog.String("date", today),
		slog.Int("total_draws", rec.TotalDraws),
	)

	return rec, nil
}

// StatsFor はユーザーの統計情報を返す。
func (t *Tracker) StatsFor(ctx context.Context, userID string) (model.UserStats, error) {
	rec, err := t.GetOrCreate(ctx, userID, "")
	if err != nil {
		return model.UserStats{}, err
	}
	return model.UserStats{
		TotalDraws:   rec.TotalDraws,
		LastDrawDate: rec.LastDrawDate,
		CreatedAt:    rec.CreatedAt,
		CanDrawToday: t.canDraw(rec),
	}, nil
}

// AggregateStats は全ユーザーの集計値を返す。
func (t *Tracker) AggregateStats(ctx context.Context) (model.AggregateStats, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	snapshot, _, err := t.load(ctx)
	if err != nil {
		return model.AggregateStats{}, err
	}

	today := t.Today()
	stats := model.AggregateStats{
		TotalUsers: len(snapshot),
		TotalDraws: snapshot.TotalDraws(),
	}
	for _, rec := range snapshot {
		if rec.LastDrawDate == today {
			stats.ActiveToday++
		}
	}
	return stats, nil
}

// Reset は全ユーザーデータをバックアップしてから削除する。
// バックアップ識別子を返す。退避対象がなかった場合は空文字列。
func (t *Tracker) Reset(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	backupID, err := t.repo.ResetWithBackup(ctx)
	if err != nil {
		t.recordStoreError("reset")
		return "", fmt.Errorf("failed to reset user data: %w", err)
	}

	t.logger.Warn("user data reset", slog.String("backup_id", backupID))
	return backupID, nil
}

// StoreLocation は永続化先を返す。
func (t *Tracker) StoreLocation() string {
	return t.repo.Location()
}

// Ping は永続化先への疎通を確認する。
func (t *Tracker) Ping(ctx context.Context) error {
	return t.repo.Ping(ctx)
}

func (t *Tracker) canDraw(rec model.UserRecord) bool {
	return rec.LastDrawDate != t.Today()
}

// load はスナップショットを読み込む。
// best_effortモードで読み込みに失敗した場合は空のスナップショットを返し、
// 既存データを上書きしないようwritable=falseとする。
func (t *Tracker) load(ctx context.Context) (model.Snapshot, bool, error) {
	snapshot, err := t.repo.ReadAll(ctx)
	if err == nil {
		if snapshot == nil {
			snapshot = model.Snapshot{}
		}
		return snapshot, true, nil
	}

	t.recordStoreError("read")
	if t.mode == ModeBestEffort {
		t.logger.Error("failed to read user data, continuing with empty state",
			slog.String("error", err.Error()),
		)
		return model.Snapshot{}, false, nil
	}
	return nil, false, model.NewPersistenceError(err.Error())
}

// save はスナップショットを書き込む。失敗時の扱いは永続化ポリシーに従う。
func (t *Tracker) save(ctx context.Context, snapshot model.Snapshot, writable bool, op string) error {
	if !writable {
		t.logger.Warn("skipping save because user data could not be read",
			slog.String("op", op),
		)
		return nil
	}

	err := t.repo.WriteAll(ctx, snapshot)
	if err == nil {
		return nil
	}

	t.recordStoreError("write")
	if t.mode == ModeBestEffort {
		t.logger.Error("failed to save user data, continuing",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return model.NewPersistenceError(err.Error())
}

func (t *Tracker) recordStoreError(op string) {
	if t.metrics != nil {
		t.metrics.RecordStoreError(op)
	}
}
