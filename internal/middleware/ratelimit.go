package middleware

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// KeyedLimiterConfig はキー単位のレート制限の設定を保持する。
type KeyedLimiterConfig struct {
	Rate            rate.Limit    // 1キーあたりのレート（req/sec）
	Burst           int           // 1キーあたりのバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// PerMinute は1分あたりの回数からKeyedLimiterConfigを生成する。
// バーストは1分間の上限と同じにする。
func PerMinute(n int) KeyedLimiterConfig {
	return KeyedLimiterConfig{
		Rate:            rate.Limit(float64(n) / 60.0),
		Burst:           n,
		CleanupInterval: 5 * time.Minute,
	}
}

// keyLimiter はキーごとのレートリミッターとアクセス時刻を保持する。
type keyLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// KeyedLimiter はキー（ユーザーIDなど）ごとのレート制限を管理する。
type KeyedLimiter struct {
	config KeyedLimiterConfig

	mu       sync.Mutex
	limiters map[string]*keyLimiter

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewKeyedLimiter は新しいKeyedLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewKeyedLimiter(config KeyedLimiterConfig) *KeyedLimiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	kl := &KeyedLimiter{
		config:   config,
		limiters: make(map[string]*keyLimiter),
		stopCh:   make(chan struct{}),
	}

	go kl.cleanupLoop()

	return kl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。複数回呼び出しても安全。
func (kl *KeyedLimiter) Stop() {
	kl.stopOnce.Do(func() { close(kl.stopCh) })
}

// Allow はkeyのリクエストを1件許可できる場合にtrueを返す。
// Rateが0以下の場合は制限しない。
func (kl *KeyedLimiter) Allow(key string) bool {
	if kl.config.Rate <= 0 {
		return true
	}
	if kl.getOrCreate(key).Allow() {
		return true
	}
	slog.Warn("rate limit exceeded", slog.String("key", key))
	return false
}

// Count は現在管理されているリミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (kl *KeyedLimiter) Count() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	return len(kl.limiters)
}

// getOrCreate はkeyのリミッターを取得または作成する。
func (kl *KeyedLimiter) getOrCreate(key string) *rate.Limiter {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	now := time.Now()
	if l, exists := kl.limiters[key]; exists {
		l.lastAccess = now
		return l.limiter
	}

	limiter := rate.NewLimiter(kl.config.Rate, kl.config.Burst)
	kl.limiters[key] = &keyLimiter{
		limiter:    limiter,
		lastAccess: now,
	}
	return limiter
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (kl *KeyedLimiter) cleanupLoop() {
	ticker := time.NewTicker(kl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			kl.cleanup(time.Now())
		case <-kl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (kl *KeyedLimiter) cleanup(now time.Time) {
	ttl := kl.config.CleanupInterval * 2

	kl.mu.Lock()
	defer kl.mu.Unlock()
	for key, l := range kl.limiters {
		if now.Sub(l.lastAccess) > ttl {
			delete(kl.limiters, key)
		}
	}
}
