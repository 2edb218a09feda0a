package interpret

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/fortunebot/internal/gemini"
)

// FailureClass は生成APIの失敗分類。ログと計測に使用する。
type FailureClass string

const (
	ClassQuota    FailureClass = "quota"
	ClassAuth     FailureClass = "auth"
	ClassSafety   FailureClass = "safety"
	ClassNotFound FailureClass = "not_found"
	ClassOther    FailureClass = "other"
)

// Classify はエラーを失敗分類に変換する。
// 型付きエラーのステータスを優先し、判別できない場合はメッセージの部分一致で判定する。
func Classify(err error) FailureClass {
	if err == nil {
		return ClassOther
	}

	var blocked *gemini.BlockedError
	if errors.As(err, &blocked) {
		return ClassSafety
	}

	var apiErr *gemini.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED":
			return ClassQuota
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden,
			apiErr.Status == "UNAUTHENTICATED" || apiErr.Status == "PERMISSION_DENIED":
			return ClassAuth
		case apiErr.StatusCode == http.StatusNotFound || apiErr.Status == "NOT_FOUND":
			return ClassNotFound
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ClassOther
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "quota") || strings.Contains(msg, "limit"):
		return ClassQuota
	case strings.Contains(msg, "api_key") || strings.Contains(msg, "api key") || strings.Contains(msg, "authentication"):
		return ClassAuth
	case strings.Contains(msg, "safety") || strings.Contains(msg, "blocked"):
		return ClassSafety
	case strings.Contains(msg, "404") || strings.Contains(msg, "not found"):
		return ClassNotFound
	default:
		return ClassOther
	}
}

// logLevel は分類ごとのログレベルを返す。
// クォータ超過と安全性ブロックは想定内の事象のためWARNとする。
func (c FailureClass) logLevel() slog.Level {
	switch c {
	case ClassQuota, ClassSafety:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
