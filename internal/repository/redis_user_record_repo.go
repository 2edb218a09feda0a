package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/fortunebot/internal/model"
)

// RedisConfig はRedis接続設定。
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// NewRedisClient はRedisクライアントを生成し、疎通を確認する。
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return rdb, nil
}

// RedisUserRecordRepo はRedisのハッシュを使用したユーザーデータリポジトリ。
// フィールドがユーザーID、値がUserRecordのJSON。
// バックアップは "<key>:backup:<backup_id>" へのRENAMEで作成する。
type RedisUserRecordRepo struct {
	rdb    redis.UniversalClient
	key    string
	logger *slog.Logger
	now    func() time.Time
}

// NewRedisUserRecordRepo はRedisUserRecordRepoを生成する。
func NewRedisUserRecordRepo(rdb redis.UniversalClient, key string, logger *slog.Logger) *RedisUserRecordRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisUserRecordRepo{rdb: rdb, key: key, logger: logger, now: time.Now}
}

// ReadAll はハッシュ全体を読み込んでスナップショットを返す。
func (r *RedisUserRecordRepo) ReadAll(ctx context.Context) (model.Snapshot, error) {
	fields, err := r.rdb.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read user records: %w", err)
	}

	snapshot, err := decodeHash(fields)
	if err != nil {
		r.logger.Error("user data hash is corrupt, starting with empty state",
			slog.String("key", r.key),
			slog.String("error", err.Error()),
		)
		return model.Snapshot{}, nil
	}
	return snapshot, nil
}

// WriteAll はMULTI/EXEC内でハッシュを削除し、スナップショットを書き込み直す。
func (r *RedisUserRecordRepo) WriteAll(ctx context.Context, snapshot model.Snapshot) error {
	values, err := encodeHash(snapshot)
	if err != nil {
		return err
	}

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.key)
		if len(values) > 0 {
			pipe.HSet(ctx, r.key, values)
		}
		return nil
	})
	if err != nil {
		r.logger.Error("failed to save user data",
			slog.String("key", r.key),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to write user records: %w", err)
	}
	return nil
}

// ResetWithBackup はハッシュをバックアップキーへRENAMEする。
// RENAMENXを使うため既存のバックアップを上書きしない。
func (r *RedisUserRecordRepo) ResetWithBackup(ctx context.Context) (string, error) {
	n, err := r.rdb.Exists(ctx, r.key).Result()
	if err != nil {
		return "", fmt.Errorf("failed to check user records: %w", err)
	}
	if n == 0 {
		return "", nil
	}

	now := r.now()
	for attempt := 0; attempt < maxBackupAttempts; attempt++ {
		backupID := newBackupID(now, attempt)
		ok, err := r.rdb.RenameNX(ctx, r.key, r.BackupKey(backupID)).Result()
		if err != nil {
			return "", fmt.Errorf("failed to move user records to backup: %w", err)
		}
		if ok {
			r.logger.Info("user data backup created",
				slog.String("backup_id", backupID),
				slog.String("key", r.BackupKey(backupID)),
			)
			return backupID, nil
		}
	}
	return "", fmt.Errorf("could not allocate backup key for %s", now.Format(backupTimeLayout))
}

// Ping はRedisへの疎通を確認する。
func (r *RedisUserRecordRepo) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Location は永続化先のキーを返す。
func (r *RedisUserRecordRepo) Location() string {
	return "redis:" + r.key
}

// BackupKey はバックアップ識別子に対応するRedisキーを返す。
func (r *RedisUserRecordRepo) BackupKey(backupID string) string {
	return r.key + ":backup:" + backupID
}

func encodeHash(snapshot model.Snapshot) (map[string]interface{}, error) {
	values := make(map[string]interface{}, len(snapshot))
	for userID, rec := range snapshot {
		data, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("failed to encode user record %s: %w", userID, err)
		}
		values[userID] = string(data)
	}
	return values, nil
}

// decodeHash はハッシュの値をデコードする。1件でも失敗した場合は全体を破損として扱う。
func decodeHash(fields map[string]string) (model.Snapshot, error) {
	snapshot := make(model.Snapshot, len(fields))
	for userID, raw := range fields {
		var rec model.UserRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("%w: field %s: %v", ErrCorrupt, userID, err)
		}
		snapshot[userID] = rec
	}
	return snapshot, nil
}

// compile-time interface check
var _ UserRecordRepository = (*RedisUserRecordRepo)(nil)
