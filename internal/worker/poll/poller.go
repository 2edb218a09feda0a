// Package poll はTelegramのロングポーリングによる更新取得を提供する。
// オフセット管理、並列数の制御、リトライ/バックオフ戦略を含む。
package poll

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hitoshi/fortunebot/internal/telegram"
)

// UpdateSource は更新の取得元インターフェース。
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, error)
}

// UpdateHandler は更新1件を処理するインターフェース。
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update telegram.Update)
}

// Poller はgetUpdatesをループで呼び出し、受け取った更新を並列で処理する。
// semaphoreパターンで同時に処理する更新数を制御する。
type Poller struct {
	source         UpdateSource
	handler        UpdateHandler
	logger         *slog.Logger
	timeout        time.Duration
	maxConcurrency int

	sem    chan struct{}
	wg     sync.WaitGroup
	offset atomic.Int64 // Startのループだけが更新する

	// sleep はバックオフの待機。テスト用に差し替え可能。
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPoller はPollerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値8を使用する。
func NewPoller(
	source UpdateSource,
	handler UpdateHandler,
	logger *slog.Logger,
	timeout time.Duration,
	maxConcurrency int,
) *Poller {
	if maxConcurrency <= 0 {
		maxConcurrency = 8
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		source:         source,
		handler:        handler,
		logger:         logger,
		timeout:        timeout,
		maxConcurrency: maxConcurrency,
		sem:            make(chan struct{}, maxConcurrency),
		sleep:          sleepContext,
	}
}

// Offset は次回getUpdatesに渡すオフセットを返す。
func (p *Poller) Offset() int64 {
	return p.offset.Load()
}

// Start はコンテキストがキャンセルされるまでポーリングを継続する。
// 終了時は処理中の更新の完了を待つ。停止が必要なエラーの場合はそのエラーを返す。
func (p *Poller) Start(ctx context.Context) error {
	p.logger.Info("update poller started",
		slog.Duration("timeout", p.timeout),
		slog.Int("max_concurrency", p.maxConcurrency),
	)
	defer func() {
		p.Wait()
		p.logger.Info("update poller stopped", slog.Int64("offset", p.Offset()))
	}()

	consecutiveErrors := 0
	for {
		err := p.PollOnce(ctx)
		switch ClassifyError(ctx, err) {
		case PollResultOK:
			consecutiveErrors = 0
		case PollResultCanceled:
			return nil
		case PollResultStop:
			p.logger.Error("update polling stopped by unrecoverable error",
				slog.String("error", err.Error()),
			)
			return fmt.Errorf("poll updates: %w", err)
		case PollResultBackoff:
			delay := RetryDelay(err, consecutiveErrors)
			consecutiveErrors++
			p.logger.Warn("failed to get updates, backing off",
				slog.String("error", err.Error()),
				slog.Int("consecutive_errors", consecutiveErrors),
				slog.Duration("delay", delay),
			)
			if err := p.sleep(ctx, delay); err != nil {
				return nil
			}
		}
	}
}

// PollOnce は更新を1回取得し、各更新の処理を開始する。処理の完了は待たない。
// オフセットは処理を開始した最後の更新のupdate_id+1に進める。
func (p *Poller) PollOnce(ctx context.Context) error {
	updates, err := p.source.GetUpdates(ctx, p.Offset(), p.timeout)
	if err != nil {
		return err
	}

	for _, u := range updates {
		// semaphore取得（ブロック）
		select {
		case p.sem <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}

		if u.UpdateID >= p.Offset() {
			p.offset.Store(u.UpdateID + 1)
		}

		p.wg.Add(1)
		// 停止シグナル後も処理中の更新は最後まで完了させる
		go func(u telegram.Update) {
			defer p.wg.Done()
			defer func() { <-p.sem }() // semaphore解放
			p.handler.HandleUpdate(context.WithoutCancel(ctx), u)
		}(u)
	}

	if len(updates) > 0 {
		p.logger.Debug("updates dispatched",
			slog.Int("update_count", len(updates)),
			slog.Int64("offset", p.Offset()),
		)
	}
	return nil
}

// Wait は処理中の更新がすべて完了するまで待つ。
func (p *Poller) Wait() {
	p.wg.Wait()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
