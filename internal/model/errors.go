package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// ユーザーに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, storage, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeForbidden      = "FORBIDDEN"
	ErrCodePersistence    = "PERSISTENCE_FAILED"
	ErrCodeRateLimited    = "RATE_LIMITED"
	ErrCodeUnknownCommand = "UNKNOWN_COMMAND"
)

// NewForbiddenError は管理者以外が管理操作を実行しようとした場合のエラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "You do not have permission to run this command.",
		Category: "auth",
		Action:   "Only the configured administrator can use this command.",
	}
}

// NewPersistenceError はユーザーデータの保存に失敗した場合のエラーを生成する。
func NewPersistenceError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodePersistence,
		Message:  fmt.Sprintf("Failed to save user data: %s", reason),
		Category: "storage",
		Action:   "Please try again in a few seconds.",
	}
}

// NewRateLimitedError はコマンドのレート制限に達した場合のエラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many commands.",
		Category: "system",
		Action:   "Please wait a moment before sending another command.",
	}
}

// NewUnknownCommandError は未知のコマンドを受信した場合のエラーを生成する。
func NewUnknownCommandError(command string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownCommand,
		Message:  fmt.Sprintf("Unknown command: %s", command),
		Category: "validation",
		Action:   "Use /help to see the available commands.",
	}
}

// HasCode はerrがcodeを持つAPIErrorを含むかどうかを返す。
func HasCode(err error, code string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}
