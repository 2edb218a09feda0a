// Package telegram はTelegram Bot APIの最小限のクライアントを提供する。
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultAPIURL はBot APIのベースURL。
	DefaultAPIURL = "https://api.telegram.org"
	// maxResponseSize はレスポンスボディの最大サイズ（4MB）。
	maxResponseSize = 4 << 20

	// ParseModeHTML はHTMLパースモード。
	ParseModeHTML = "HTML"
	// ChatActionTyping は「入力中」インジケーター。
	ChatActionTyping = "typing"
)

// StatusRecorder はAPIレスポンスのHTTPステータスを記録するインターフェース。
type StatusRecorder interface {
	RecordTelegramStatus(statusCode int)
}

// APIError はBot APIが ok=false を返した場合のエラー。
type APIError struct {
	ErrorCode   int
	Description string
	// RetryAfter はフラッド制御で待機が指示された時間。指示がない場合は0。
	RetryAfter time.Duration
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("telegram api error %d: %s (retry after %s)", e.ErrorCode, e.Description, e.RetryAfter)
	}
	return fmt.Sprintf("telegram api error %d: %s", e.ErrorCode, e.Description)
}

// User はTelegramユーザー。
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// Chat はメッセージの送信先チャット。
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// Message は受信メッセージ。
type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from,omitempty"`
	Chat      Chat   `json:"chat"`
	Date      int64  `json:"date"`
	Text      string `json:"text,omitempty"`
}

// Update はgetUpdatesおよびWebhookで受け取る更新。
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// Client はBot APIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	recorder   StatusRecorder
	baseURL    string // テスト用に差し替え可能
	token      string
}

// NewClient はClientの新しいインスタンスを生成する。
// httpClientのタイムアウトはロングポーリングの待機時間より長くしておくこと。
func NewClient(httpClient *http.Client, baseURL, token string, logger *slog.Logger, recorder StatusRecorder) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		recorder:   recorder,
		baseURL:    baseURL,
		token:      token,
	}
}

// GetMe はボット自身の情報を返す。トークンの検証に使用する。
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var u User
	if err := c.call(ctx, "getMe", struct{}{}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUpdates はoffset以降の更新をロングポーリングで取得する。
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	req := struct {
		Offset         int64    `json:"offset,omitempty"`
		Timeout        int      `json:"timeout"`
		AllowedUpdates []string `json:"allowed_updates"`
	}{
		Offset:         offset,
		Timeout:        int(timeout / time.Second),
		AllowedUpdates: []string{"message"},
	}

	var updates []Update
	if err := c.call(ctx, "getUpdates", req, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// SendMessage はHTMLパースモードでメッセージを送信する。
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	req := struct {
		ChatID                int64  `json:"chat_id"`
		Text                  string `json:"text"`
		ParseMode             string `json:"parse_mode"`
		DisableWebPagePreview bool   `json:"disable_web_page_preview"`
	}{
		ChatID:                chatID,
		Text:                  text,
		ParseMode:             ParseModeHTML,
		DisableWebPagePreview: true,
	}
	return c.call(ctx, "sendMessage", req, nil)
}

// SendChatAction はチャットアクション（入力中など）を送信する。
func (c *Client) SendChatAction(ctx context.Context, chatID int64, action string) error {
	req := struct {
		ChatID int64  `json:"chat_id"`
		Action string `json:"action"`
	}{ChatID: chatID, Action: action}
	return c.call(ctx, "sendChatAction", req, nil)
}

// DeleteWebhook はWebhookを解除する。getUpdatesを使う前に呼び出す。
func (c *Client) DeleteWebhook(ctx context.Context) error {
	return c.call(ctx, "deleteWebhook", struct {
		DropPendingUpdates bool `json:"drop_pending_updates"`
	}{}, nil)
}

// call はBot APIのメソッドを呼び出し、resultをoutにデコードする。
func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", method, err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// url.Errorにはトークンを含むURLが入るため、内側のエラーだけを返す
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		if ctx.Err() == nil {
			c.logger.Error("telegram request failed",
				slog.String("method", method),
				slog.String("error", err.Error()),
			)
		}
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	if c.recorder != nil {
		c.recorder.RecordTelegramStatus(resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", method, err)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(data, &apiResp); err != nil {
		return fmt.Errorf("failed to decode %s response (status %d): %w", method, resp.StatusCode, err)
	}

	if !apiResp.OK {
		apiErr := &APIError{ErrorCode: apiResp.ErrorCode, Description: apiResp.Description}
		if apiErr.ErrorCode == 0 {
			apiErr.ErrorCode = resp.StatusCode
		}
		if apiResp.Parameters != nil && apiResp.Parameters.RetryAfter > 0 {
			apiErr.RetryAfter = time.Duration(apiResp.Parameters.RetryAfter) * time.Second
		}
		c.logger.Warn("telegram api returned error",
			slog.String("method", method),
			slog.Int("error_code", apiErr.ErrorCode),
			slog.String("description", apiErr.Description),
		)
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(apiResp.Result, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}
