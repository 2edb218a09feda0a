package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/fortunebot/internal/config"
	"github.com/hitoshi/fortunebot/internal/model"
)

// fakeBotAPI はBot APIのテスト用フェイク。
// getUpdatesは保持している更新を1回だけ返し、以降は空を返す。
type fakeBotAPI struct {
	t      *testing.T
	status int // getMeが返すステータス（0の場合は200）

	mu       sync.Mutex
	pending  []map[string]any
	methods  []string
	sent     []string
	sentCh   chan string
	username string
}

func newFakeBotAPI(t *testing.T) *fakeBotAPI {
	return &fakeBotAPI{t: t, sentCh: make(chan string, 16), username: "TarotTestBot"}
}

func (f *fakeBotAPI) enqueueText(updateID int64, userID int64, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, map[string]any{
		"update_id": updateID,
		"message": map[string]any{
			"message_id": updateID,
			"from":       map[string]any{"id": userID, "is_bot": false, "first_name": "Alice"},
			"chat":       map[string]any{"id": userID, "type": "private"},
			"date":       time.Now().Unix(),
			"text":       text,
		},
	})
}

func (f *fakeBotAPI) calledMethods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.methods...)
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	method := parts[len(parts)-1]

	var params map[string]any
	json.NewDecoder(r.Body).Decode(&params)

	f.mu.Lock()
	f.methods = append(f.methods, method)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch method {
	case "getMe":
		if f.status != 0 && f.status != http.StatusOK {
			w.WriteHeader(f.status)
			io.WriteString(w, `{"ok":false,"error_code":401,"description":"Unauthorized"}`)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": map[string]any{
			"id": 1, "is_bot": true, "first_name": "Tarot", "username": f.username,
		}})
	case "getUpdates":
		f.mu.Lock()
		updates := f.pending
		f.pending = nil
		f.mu.Unlock()
		if len(updates) == 0 {
			// ロングポーリングの待機を模擬する
			select {
			case <-time.After(20 * time.Millisecond):
			case <-r.Context().Done():
				return
			}
			updates = []map[string]any{}
		}
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": updates})
	case "sendMessage":
		text, _ := params["text"].(string)
		f.mu.Lock()
		f.sent = append(f.sent, text)
		f.mu.Unlock()
		f.sentCh <- text
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": map[string]any{"message_id": 1}})
	default:
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": true})
	}
}

func testConfig(t *testing.T, apiURL string) *config.Config {
	t.Helper()
	return &config.Config{
		BotToken:             "123456:test-token",
		AdminID:              "42",
		TelegramAPIURL:       apiURL,
		TelegramMode:         config.TelegramModePolling,
		PollTimeout:          time.Second,
		MaxConcurrentUpdates: 2,
		GeminiModels:         config.DefaultGeminiModels,
		GeminiAttemptTimeout: time.Second,
		UseAIInterpretations: true,
		StoreBackend:         config.StoreBackendFile,
		UserDataFile:         filepath.Join(t.TempDir(), "users", "users_data.json"),
		PersistenceMode:      config.PersistenceStrict,
		Timezone:             "UTC",
		RateLimitCommands:    20,
		ServerPort:           "0",
		LogLevel:             "debug",
	}
}

func waitForMessage(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case text := <-ch:
		return text
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for sendMessage")
		return ""
	}
}

// TestServe_PollingDeliversFortune はポーリングモードで更新を受け取り、
// 占い結果を返信してユーザーデータを保存することを検証する。
func TestServe_PollingDeliversFortune(t *testing.T) {
	api := newFakeBotAPI(t)
	srv := httptest.NewServer(api)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	api.enqueueText(1, 42, "/fortune")
	api.enqueueText(2, 42, "/fortune@TarotTestBot")

	var logs bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfg, slog.New(slog.NewJSONHandler(&logs, nil))) }()

	replies := []string{waitForMessage(t, api.sentCh), waitForMessage(t, api.sentCh)}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}

	// 同じユーザーの2回の要求のうち成功するのは1回だけ
	successes, waits := 0, 0
	for _, r := range replies {
		switch {
		case strings.Contains(r, "Hello, Alice!"):
			successes++
		case strings.Contains(r, "already revealed"):
			waits++
		default:
			t.Errorf("unexpected reply: %s", r)
		}
	}
	if successes != 1 || waits != 1 {
		t.Errorf("successes = %d, waits = %d, want 1 and 1", successes, waits)
	}

	data, err := os.ReadFile(cfg.UserDataFile)
	if err != nil {
		t.Fatalf("user data file not written: %v", err)
	}
	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("user data file is not valid JSON: %v", err)
	}
	rec, ok := snap["42"]
	if !ok || rec.TotalDraws != 1 || rec.DisplayName != "Alice" {
		t.Errorf("record = %+v (exists=%v), want one draw by Alice", rec, ok)
	}

	methods := api.calledMethods()
	if len(methods) < 3 || methods[0] != "getMe" || methods[1] != "deleteWebhook" {
		t.Errorf("methods = %v, want getMe then deleteWebhook before polling", methods)
	}
}

// TestServe_InvalidTokenFails はトークン検証に失敗した場合に起動しないことを検証する。
func TestServe_InvalidTokenFails(t *testing.T) {
	api := newFakeBotAPI(t)
	api.status = http.StatusUnauthorized
	srv := httptest.NewServer(api)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)

	err := serve(context.Background(), cfg, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	if err == nil {
		t.Fatal("serve should fail with an invalid token")
	}
	if !strings.Contains(err.Error(), "verify bot token") {
		t.Errorf("error = %v, want token verification failure", err)
	}
}

// TestServe_WebhookModeDoesNotPoll はWebhookモードではgetUpdatesを呼ばないことを検証する。
func TestServe_WebhookModeDoesNotPoll(t *testing.T) {
	api := newFakeBotAPI(t)
	srv := httptest.NewServer(api)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	cfg.TelegramMode = config.TelegramModeWebhook
	cfg.TelegramWebhookSecret = "secret"

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	if err := serve(ctx, cfg, slog.New(slog.NewJSONHandler(io.Discard, nil))); err != nil {
		t.Fatalf("serve returned error: %v", err)
	}
	for _, m := range api.calledMethods() {
		if m == "getUpdates" || m == "deleteWebhook" {
			t.Errorf("webhook mode should not call %s", m)
		}
	}
}

func TestRun_WithMissingEnv_ReturnsError(t *testing.T) {
	t.Setenv("BOT_TOKEN", "")
	t.Chdir(t.TempDir())

	var buf bytes.Buffer
	err := Run(&buf, []string{"serve"})
	if err == nil {
		t.Fatal("Run with missing env should return error")
	}
}

// TestRun_MigrateWithFileBackend はファイルバックエンドではマイグレーションが何もしないことを検証する。
func TestRun_MigrateWithFileBackend(t *testing.T) {
	setRequiredEnv(t)
	t.Chdir(t.TempDir())

	var buf bytes.Buffer
	if err := Run(&buf, []string{"migrate"}); err != nil {
		t.Fatalf("Run(migrate) with file backend returned error: %v", err)
	}
	if !strings.Contains(buf.String(), "nothing to do") {
		t.Errorf("expected skip log, got %s", buf.String())
	}
}

func TestRunHealthcheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	port := srv.URL[strings.LastIndex(srv.URL, ":")+1:]
	if err := runHealthcheck(port); err != nil {
		t.Errorf("runHealthcheck() = %v, want nil", err)
	}
}

func TestRunHealthcheck_Unhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	port := srv.URL[strings.LastIndex(srv.URL, ":")+1:]
	if err := runHealthcheck(port); err == nil {
		t.Error("runHealthcheck() should fail on 503")
	}
}
