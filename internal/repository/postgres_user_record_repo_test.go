package repository

import (
	"context"
	"database/sql"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/hitoshi/fortunebot/internal/database"
	"github.com/hitoshi/fortunebot/internal/logger"
	"github.com/hitoshi/fortunebot/internal/model"
)

// PostgresUserRecordRepoはUserRecordRepositoryインターフェースを満たすことを検証
func TestPostgresUserRecordRepo_ImplementsInterface(t *testing.T) {
	var _ UserRecordRepository = (*PostgresUserRecordRepo)(nil)
}

// NewPostgresUserRecordRepoが正しく初期化されることを検証
func TestNewPostgresUserRecordRepo_Initializes(t *testing.T) {
	repo := NewPostgresUserRecordRepo(nil, nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
	if repo.Location() != "postgres:user_records" {
		t.Errorf("Location() = %q", repo.Location())
	}
}

func TestNullIfEmpty(t *testing.T) {
	if v := nullIfEmpty(""); v.Valid {
		t.Error("empty string should map to NULL")
	}
	if v := nullIfEmpty("2026-10-19"); !v.Valid || v.String != "2026-10-19" {
		t.Errorf("nullIfEmpty = %+v", v)
	}
}

// setupPostgresRepo はテスト用DBにマイグレーションを適用したリポジトリを返す。
// TEST_DATABASE_URL が未設定、または接続できない場合はスキップする。
func setupPostgresRepo(t *testing.T) *PostgresUserRecordRepo {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL が未設定のためスキップ")
	}

	db, err := database.Open(dbURL, database.DefaultPoolConfig())
	if err != nil {
		t.Fatalf("データベースへの接続に失敗: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Ping(); err != nil {
		t.Skipf("テスト用データベースに接続できません（スキップ）: %v", err)
	}
	if _, err := database.RunMigrations(dbURL); err != nil {
		t.Fatalf("マイグレーション実行に失敗: %v", err)
	}
	truncate(t, db)

	repo := NewPostgresUserRecordRepo(db, logger.Discard())
	repo.now = func() time.Time {
		return time.Date(2026, 10, 19, 15, 30, 0, 0, time.UTC)
	}
	return repo
}

func truncate(t *testing.T, db *sql.DB) {
	t.Helper()
	if _, err := db.Exec(`TRUNCATE user_records, user_record_backups`); err != nil {
		t.Fatalf("テーブルのクリアに失敗: %v", err)
	}
}

func TestPostgresUserRecordRepo_RoundTrip(t *testing.T) {
	repo := setupPostgresRepo(t)
	ctx := context.Background()

	if err := repo.WriteAll(ctx, sampleSnapshot()); err != nil {
		t.Fatalf("WriteAll returned error: %v", err)
	}

	got, err := repo.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll returned error: %v", err)
	}
	if !reflect.DeepEqual(got, sampleSnapshot()) {
		t.Errorf("ReadAll = %v, want %v", got, sampleSnapshot())
	}

	if err := repo.WriteAll(ctx, got); err != nil {
		t.Fatal(err)
	}
	again, err := repo.ReadAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, again) {
		t.Errorf("round trip changed content: %v vs %v", got, again)
	}
}

func TestPostgresUserRecordRepo_ResetWithBackup(t *testing.T) {
	repo := setupPostgresRepo(t)
	ctx := context.Background()

	empty, err := repo.ResetWithBackup(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if empty != "" {
		t.Errorf("backup id for empty table = %q, want empty", empty)
	}

	if err := repo.WriteAll(ctx, sampleSnapshot()); err != nil {
		t.Fatal(err)
	}

	backupID, err := repo.ResetWithBackup(ctx)
	if err != nil {
		t.Fatalf("ResetWithBackup returned error: %v", err)
	}
	if backupID != "users_data_backup_20261019_153000" {
		t.Errorf("backupID = %q", backupID)
	}

	after, err := repo.ReadAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(after) != 0 {
		t.Errorf("expected empty table after reset, got %v", after)
	}

	backup, err := repo.readBackup(ctx, backupID)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(backup, sampleSnapshot()) {
		t.Errorf("backup = %v, want %v", backup, sampleSnapshot())
	}

	if err := repo.WriteAll(ctx, model.Snapshot{"1": {TotalDraws: 1, LastDrawDate: "2026-10-19"}}); err != nil {
		t.Fatal(err)
	}
	second, err := repo.ResetWithBackup(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if second != backupID+"_1" {
		t.Errorf("second backup id = %q, want %q", second, backupID+"_1")
	}
}
