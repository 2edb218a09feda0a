package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/fortunebot/internal/model"
)

// PostgresUserRecordRepo はPostgreSQLを使用したユーザーデータリポジトリ。
// スナップショットはuser_recordsテーブル、バックアップはuser_record_backupsテーブルに保存する。
type PostgresUserRecordRepo struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewPostgresUserRecordRepo はPostgresUserRecordRepoを生成する。
func NewPostgresUserRecordRepo(db *sql.DB, logger *slog.Logger) *PostgresUserRecordRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresUserRecordRepo{db: db, logger: logger, now: time.Now}
}

// ReadAll はuser_recordsテーブルの全行をスナップショットとして返す。
func (r *PostgresUserRecordRepo) ReadAll(ctx context.Context) (model.Snapshot, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, last_draw_date, total_draws, display_name, created_at FROM user_records`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query user records: %w", err)
	}
	defer rows.Close()

	snapshot := model.Snapshot{}
	for rows.Next() {
		var (
			userID                           string
			lastDrawDate, displayName, since sql.NullString
			rec                              model.UserRecord
		)
		if err := rows.Scan(&userID, &lastDrawDate, &rec.TotalDraws, &displayName, &since); err != nil {
			return nil, fmt.Errorf("failed to scan user record: %w", err)
		}
		rec.LastDrawDate = lastDrawDate.String
		rec.DisplayName = displayName.String
		rec.CreatedAt = since.String
		snapshot[userID] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user records: %w", err)
	}

	return snapshot, nil
}

// WriteAll はトランザクション内で全行を削除し、スナップショットを挿入し直す。
func (r *PostgresUserRecordRepo) WriteAll(ctx context.Context, snapshot model.Snapshot) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_records`); err != nil {
		return r.logWriteError(fmt.Errorf("failed to clear user records: %w", err))
	}

	if len(snapshot) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO user_records (user_id, last_draw_date, total_draws, display_name, created_at)
			 VALUES ($1, $2, $3, $4, $5)`,
		)
		if err != nil {
			return r.logWriteError(fmt.Errorf("failed to prepare insert: %w", err))
		}
		defer stmt.Close()

		for userID, rec := range snapshot {
			_, err := stmt.ExecContext(ctx,
				userID, nullIfEmpty(rec.LastDrawDate), rec.TotalDraws,
				nullIfEmpty(rec.DisplayName), nullIfEmpty(rec.CreatedAt),
			)
			if err != nil {
				return r.logWriteError(fmt.Errorf("failed to insert user record %s: %w", userID, err))
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return r.logWriteError(fmt.Errorf("failed to commit transaction: %w", err))
	}

	return nil
}

// ResetWithBackup はuser_recordsの全行をuser_record_backupsへコピーしてから削除する。
func (r *PostgresUserRecordRepo) ResetWithBackup(ctx context.Context) (string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM user_records`).Scan(&count); err != nil {
		return "", fmt.Errorf("failed to count user records: %w", err)
	}
	if count == 0 {
		return "", nil
	}

	backupID, err := r.reserveBackupID(ctx, tx)
	if err != nil {
		return "", err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO user_record_backups (backup_id, user_id, last_draw_date, total_draws, display_name, created_at)
		 SELECT $1, user_id, last_draw_date, total_draws, display_name, created_at FROM user_records`,
		backupID,
	)
	if err != nil {
		return "", fmt.Errorf("failed to copy user records to backup: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_records`); err != nil {
		return "", fmt.Errorf("failed to clear user records: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.Info("user data backup created",
		slog.String("backup_id", backupID),
		slog.Int("records", count),
	)

	return backupID, nil
}

// readBackup は指定バックアップの内容をスナップショットとして返す。
func (r *PostgresUserRecordRepo) readBackup(ctx context.Context, backupID string) (model.Snapshot, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, last_draw_date, total_draws, display_name, created_at
		 FROM user_record_backups WHERE backup_id = $1`,
		backupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query backup: %w", err)
	}
	defer rows.Close()

	snapshot := model.Snapshot{}
	for rows.Next() {
		var (
			userID                           string
			lastDrawDate, displayName, since sql.NullString
			rec                              model.UserRecord
		)
		if err := rows.Scan(&userID, &lastDrawDate, &rec.TotalDraws, &displayName, &since); err != nil {
			return nil, fmt.Errorf("failed to scan backup record: %w", err)
		}
		rec.LastDrawDate = lastDrawDate.String
		rec.DisplayName = displayName.String
		rec.CreatedAt = since.String
		snapshot[userID] = rec
	}
	return snapshot, rows.Err()
}

// Ping はデータベースへの疎通を確認する。
func (r *PostgresUserRecordRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Location は永続化先のテーブル名を返す。
func (r *PostgresUserRecordRepo) Location() string {
	return "postgres:user_records"
}

func (r *PostgresUserRecordRepo) reserveBackupID(ctx context.Context, tx *sql.Tx) (string, error) {
	now := r.now()
	for attempt := 0; attempt < maxBackupAttempts; attempt++ {
		id := newBackupID(now, attempt)
		var exists bool
		err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM user_record_backups WHERE backup_id = $1)`,
			id,
		).Scan(&exists)
		if err != nil {
			return "", fmt.Errorf("failed to check backup id: %w", err)
		}
		if !exists {
			return id, nil
		}
	}
	return "", fmt.Errorf("could not allocate backup id for %s", now.Format(backupTimeLayout))
}

func (r *PostgresUserRecordRepo) logWriteError(err error) error {
	r.logger.Error("failed to save user data",
		slog.String("location", r.Location()),
		slog.String("error", err.Error()),
	)
	return err
}

// nullIfEmpty は空文字列をNULLとして扱う。
func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// compile-time interface check
var _ UserRecordRepository = (*PostgresUserRecordRepo)(nil)
