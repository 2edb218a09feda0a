// Package repository はユーザーデータの永続化を提供する。
// バックエンドはJSONファイル、PostgreSQL、Redisの3種類。
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/fortunebot/internal/model"
)

// ErrCorrupt は永続化データが解析できなかったことを示す。ログ出力用。
var ErrCorrupt = errors.New("user data is corrupt")

// BackupPrefix はバックアップ識別子の接頭辞。
const BackupPrefix = "users_data_backup_"

// backupTimeLayout はバックアップ識別子に埋め込むタイムスタンプのレイアウト。
const backupTimeLayout = "20060102_150405"

// UserRecordRepository はユーザーデータのスナップショット単位の永続化インターフェース。
// 実装はキャッシュを持たず、ReadAllは毎回永続化先から読み直す。
type UserRecordRepository interface {
	// ReadAll は全ユーザーのスナップショットを返す。
	// データが存在しない場合は空のスナップショットを返す。
	// データが破損している場合はログを出力し、エラーなしで空のスナップショットを返す。
	ReadAll(ctx context.Context) (model.Snapshot, error)

	// WriteAll はスナップショット全体で既存データを置き換える。
	WriteAll(ctx context.Context, snapshot model.Snapshot) error

	// ResetWithBackup は既存データをタイムスタンプ付きバックアップへ退避してから空にする。
	// 退避するデータがなかった場合は空文字列を返す。
	ResetWithBackup(ctx context.Context) (string, error)

	// Ping は永続化先に到達可能かを確認する。
	Ping(ctx context.Context) error

	// Location は管理者向けに永続化先を表す文字列を返す。
	Location() string
}

// newBackupID はタイムスタンプからバックアップ識別子を生成する。
// attempt > 0 の場合は同一秒内の衝突回避用の連番を付与する。
func newBackupID(now time.Time, attempt int) string {
	id := BackupPrefix + now.Format(backupTimeLayout)
	if attempt > 0 {
		id = fmt.Sprintf("%s_%d", id, attempt)
	}
	return id
}

// maxBackupAttempts はバックアップ識別子の衝突時に試行する上限回数。
const maxBackupAttempts = 100
