package poll

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/hitoshi/fortunebot/internal/telegram"
)

// PollResult はgetUpdatesのエラーに対する処理方針の分類。
type PollResult int

const (
	// PollResultOK は取得成功。
	PollResultOK PollResult = iota
	// PollResultStop はポーリング停止が必要なエラー（トークン不正など）。
	PollResultStop
	// PollResultBackoff はバックオフ後に再試行するエラー（429/5xx/通信エラー）。
	PollResultBackoff
	// PollResultCanceled はコンテキストのキャンセル。
	PollResultCanceled
)

const (
	// initialBackoff は指数バックオフの初回遅延（1秒）。
	initialBackoff = time.Second
	// maxBackoff は指数バックオフの最大遅延（1分）。
	maxBackoff = time.Minute
)

// ClassifyError はgetUpdatesのエラーを処理方針に分類する。
func ClassifyError(ctx context.Context, err error) PollResult {
	if err == nil {
		return PollResultOK
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return PollResultCanceled
	}

	var apiErr *telegram.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode {
		// トークンが無効な場合Bot APIは401または404を返す
		case http.StatusUnauthorized, http.StatusNotFound:
			return PollResultStop
		}
	}
	return PollResultBackoff
}

// CalculateBackoff は連続エラー回数に基づいて指数バックオフ遅延を計算する。
// 初回1秒、2倍ずつ増加、最大1分。
func CalculateBackoff(consecutiveErrors int) time.Duration {
	delay := initialBackoff
	for i := 0; i < consecutiveErrors; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// RetryDelay は待機時間を返す。retry_afterの指示がバックオフより長ければそちらを優先する。
func RetryDelay(err error, consecutiveErrors int) time.Duration {
	delay := CalculateBackoff(consecutiveErrors)
	var apiErr *telegram.APIError
	if errors.As(err, &apiErr) && apiErr.RetryAfter > delay {
		return apiErr.RetryAfter
	}
	return delay
}
