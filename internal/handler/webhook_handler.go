package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/fortunebot/internal/middleware"
	"github.com/hitoshi/fortunebot/internal/model"
	"github.com/hitoshi/fortunebot/internal/telegram"
)

// SecretTokenHeader はsetWebhookで登録したシークレットをTelegramが付与するヘッダー。
const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// maxUpdateSize はWebhookで受け付ける更新の最大サイズ（1MB）。
const maxUpdateSize = 1 << 20

// UpdateHandler は更新1件を処理するインターフェース。
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update telegram.Update)
}

// WebhookHandler はTelegramからのWebhookを受け付けるHTTPハンドラー。
type WebhookHandler struct {
	updates UpdateHandler
	secret  string
	logger  *slog.Logger
}

// NewWebhookHandler はWebhookHandlerを生成する。
func NewWebhookHandler(updates UpdateHandler, secret string, logger *slog.Logger) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{updates: updates, secret: secret, logger: logger}
}

// Receive はシークレットを検証して更新を処理する。
// POST /telegram/webhook
//
// 処理が終わるまで応答しない。Telegramは応答が返るまで同じチャットの次の更新を送らない。
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	got := r.Header.Get(SecretTokenHeader)
	if h.secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
		h.logger.Warn("webhook secret mismatch",
			slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
		)
		middleware.WriteUnauthorized(w)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxUpdateSize+1))
	if err != nil || len(body) > maxUpdateSize {
		writeBadRequest(w, "Failed to read update body.")
		return
	}

	var update telegram.Update
	if err := json.Unmarshal(body, &update); err != nil {
		writeBadRequest(w, "Update body is not valid JSON.")
		return
	}

	// クライアントの切断で処理が中断されないようにする
	h.updates.HandleUpdate(context.WithoutCancel(r.Context()), update)

	w.WriteHeader(http.StatusOK)
}

func writeBadRequest(w http.ResponseWriter, message string) {
	middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
		Code:     "INVALID_UPDATE",
		Message:  message,
		Category: "validation",
		Action:   "Send a Telegram Update object as JSON.",
	})
}
