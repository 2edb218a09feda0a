package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hitoshi/fortunebot/internal/model"
)

// FileUserRecordRepo はJSONファイルを使用したユーザーデータリポジトリ。
// ファイル形式は {"<user_id>": {"last_fortune_date": ..., "total_fortunes": ...}}。
type FileUserRecordRepo struct {
	path   string
	logger *slog.Logger
	now    func() time.Time
}

// NewFileUserRecordRepo はFileUserRecordRepoを生成する。
func NewFileUserRecordRepo(path string, logger *slog.Logger) *FileUserRecordRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileUserRecordRepo{
		path:   path,
		logger: logger,
		now:    time.Now,
	}
}

// ReadAll はファイルから全ユーザーのスナップショットを読み込む。
func (r *FileUserRecordRepo) ReadAll(ctx context.Context) (model.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return model.Snapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read user data file: %w", err)
	}

	snapshot, err := decodeSnapshot(data)
	if err != nil {
		r.logger.Error("user data file is corrupt, starting with empty state",
			slog.String("path", r.path),
			slog.String("error", err.Error()),
		)
		return model.Snapshot{}, nil
	}

	return snapshot, nil
}

// WriteAll はスナップショットを一時ファイルに書き込み、リネームで置き換える。
func (r *FileUserRecordRepo) WriteAll(ctx context.Context, snapshot model.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if snapshot == nil {
		snapshot = model.Snapshot{}
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode user data: %w", err)
	}

	if err := r.writeFile(r.path, data); err != nil {
		r.logger.Error("failed to save user data",
			slog.String("path", r.path),
			slog.String("error", err.Error()),
		)
		return err
	}

	return nil
}

// ResetWithBackup は現在のファイルを同じディレクトリにバイト単位でコピーしてから空にする。
func (r *FileUserRecordRepo) ResetWithBackup(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read user data file: %w", err)
	}

	backupID, backupPath, err := r.reserveBackupPath()
	if err != nil {
		return "", err
	}

	if err := r.writeFile(backupPath, data); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}

	r.logger.Info("user data backup created",
		slog.String("backup_id", backupID),
		slog.String("path", backupPath),
	)

	if err := r.WriteAll(ctx, model.Snapshot{}); err != nil {
		return "", fmt.Errorf("failed to clear user data after backup %s: %w", backupID, err)
	}

	return backupID, nil
}

// Ping はデータディレクトリが利用可能かを確認する。
func (r *FileUserRecordRepo) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("user data directory is not available: %w", err)
	}
	return nil
}

// Location はデータファイルのパスを返す。
func (r *FileUserRecordRepo) Location() string {
	return r.path
}

// BackupPath はバックアップ識別子に対応するファイルパスを返す。
func (r *FileUserRecordRepo) BackupPath(backupID string) string {
	return filepath.Join(filepath.Dir(r.path), backupID+".json")
}

// reserveBackupPath は未使用のバックアップファイルパスを決定する。
func (r *FileUserRecordRepo) reserveBackupPath() (string, string, error) {
	now := r.now()
	for attempt := 0; attempt < maxBackupAttempts; attempt++ {
		id := newBackupID(now, attempt)
		path := r.BackupPath(id)
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return id, path, nil
		}
	}
	return "", "", fmt.Errorf("could not allocate backup file name for %s", now.Format(backupTimeLayout))
}

// writeFile は同一ディレクトリの一時ファイル経由でpathをアトミックに置き換える。
func (r *FileUserRecordRepo) writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".users_data-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

// decodeSnapshot はJSONペイロードをスナップショットに変換する。
// 空ファイルや "null" は空のスナップショットとして扱わず、破損として扱う。
func decodeSnapshot(data []byte) (model.Snapshot, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, fmt.Errorf("%w: empty payload", ErrCorrupt)
	}

	var snapshot model.Snapshot
	if err := json.Unmarshal(trimmed, &snapshot); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return snapshot, nil
}

// compile-time interface check
var _ UserRecordRepository = (*FileUserRecordRepo)(nil)
