// Package interpret はカードの意味をAIで解釈し、占い文を補強する。
// 生成に失敗した場合は呼び出し元が定型文にフォールバックできるよう、
// エラーを返さず ("", false) を返す。
package interpret

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/fortunebot/internal/gemini"
	"github.com/hitoshi/fortunebot/internal/security"
)

// Generator はテキスト生成APIのインターフェース。
type Generator interface {
	GenerateContent(ctx context.Context, model, prompt string) (string, error)
	ListModels(ctx context.Context) ([]gemini.Model, error)
}

// Recorder は生成結果の計測インターフェース。
type Recorder interface {
	RecordInterpretFailure(class string)
	ObserveInterpretLatency(model string, d time.Duration)
}

// Sanitizer は生成テキストを送信可能な形に整えるインターフェース。
type Sanitizer interface {
	SanitizeRich(raw string) string
}

// Config はProviderの設定。
type Config struct {
	// Models は試行するモデル名の順序付きリスト。
	Models []string
	// AttemptTimeout はモデル1回の呼び出しのタイムアウト。
	AttemptTimeout time.Duration
	// Enabled は起動時のAI解釈の有効状態。
	Enabled bool
	// RequestsPerMinute はAPI呼び出しの上限。0以下の場合は制限しない。
	RequestsPerMinute int
}

// Provider はAI解釈の提供者。
// 有効/無効の切り替え状態はインスタンスが保持し、Toggleでのみ変更される。
type Provider struct {
	gen       Generator
	logger    *slog.Logger
	recorder  Recorder
	sanitizer Sanitizer
	limiter   *rate.Limiter

	models         []string
	attemptTimeout time.Duration

	mu      sync.RWMutex
	enabled bool
}

// NewProvider はProviderを生成する。genがnilの場合はAI解釈を利用不可として扱う。
func NewProvider(gen Generator, cfg Config, logger *slog.Logger, recorder Recorder, sanitizer Sanitizer) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.AttemptTimeout
	if timeout <= 0 {
		timeout = 4 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), cfg.RequestsPerMinute)
	}

	models := make([]string, len(cfg.Models))
	copy(models, cfg.Models)

	p := &Provider{
		gen:            gen,
		logger:         logger,
		recorder:       recorder,
		sanitizer:      sanitizer,
		limiter:        limiter,
		models:         models,
		attemptTimeout: timeout,
	}
	p.enabled = p.IsAvailable() && cfg.Enabled
	return p
}

// IsAvailable はAPIクライアントとモデルが設定されているかを返す。
func (p *Provider) IsAvailable() bool {
	return p.gen != nil && len(p.models) > 0
}

// IsEnabled はAI解釈が利用可能かつ有効になっているかを返す。
func (p *Provider) IsEnabled() bool {
	if !p.IsAvailable() {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.enabled
}

// Toggle は有効/無効を切り替え、切り替え後の状態を返す。
// 利用不可の場合は何もせずfalseを返す。
func (p *Provider) Toggle() bool {
	if !p.IsAvailable() {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = !p.enabled

	p.logger.Info("AI interpretations toggled", slog.Bool("enabled", p.enabled))
	return p.enabled
}

// Models は設定されたモデルの試行順を返す。
func (p *Provider) Models() []string {
	out := make([]string, len(p.models))
	copy(out, p.models)
	return out
}

// Interpret はカードの解釈文を生成する。
// モデルを順に1回ずつ試行し、最初に得られた空でないテキストを返す。
// 無効・全モデル失敗・レート制限時は ("", false) を返す。
func (p *Provider) Interpret(ctx context.Context, cardName, displayName string) (string, bool) {
	if !p.IsEnabled() {
		return "", false
	}

	prompt := BuildPrompt(cardName, displayName)

	for _, model := range p.models {
		if ctx.Err() != nil {
			break
		}

		if p.limiter != nil && !p.limiter.Allow() {
			p.fail(ClassQuota, model, cardName, fmt.Errorf("local rate limit exceeded"))
			return "", false
		}

		text, err := p.attempt(ctx, model, prompt)
		if err != nil {
			p.fail(Classify(err), model, cardName, err)
			continue
		}

		if p.sanitizer != nil {
			text = p.sanitizer.SanitizeRich(text)
		}
		if text == "" {
			p.fail(ClassOther, model, cardName, gemini.ErrEmptyResponse)
			continue
		}
		if !security.TagsBalanced(text) {
			// HTMLパースモードで送信できないため、この結果は使わない
			p.fail(ClassOther, model, cardName, security.ErrUnbalancedMarkup)
			continue
		}

		p.logger.Info("AI interpretation generated",
			slog.String("model", model),
			slog.String("card", cardName),
		)
		return text, true
	}

	p.logger.Warn("all AI models failed, using classic interpretation",
		slog.String("card", cardName),
		slog.Int("models_tried", len(p.models)),
	)
	return "", false
}

// attempt はモデル1回分の呼び出しを個別のタイムアウト付きで実行する。
func (p *Provider) attempt(ctx context.Context, model, prompt string) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, p.attemptTimeout)
	defer cancel()

	start := time.Now()
	text, err := p.gen.GenerateContent(attemptCtx, model, prompt)
	if p.recorder != nil {
		p.recorder.ObserveInterpretLatency(model, time.Since(start))
	}
	return text, err
}

func (p *Provider) fail(class FailureClass, model, cardName string, err error) {
	p.logger.Log(context.Background(), class.logLevel(), "AI interpretation attempt failed",
		slog.String("model", model),
		slog.String("card", cardName),
		slog.String("class", string(class)),
		slog.String("error", err.Error()),
	)
	if p.recorder != nil {
		p.recorder.RecordInterpretFailure(string(class))
	}
}

// ListAvailableModels はgenerateContentに対応したモデル名の一覧を返す。
// 取得に失敗した場合は空のスライスを返す。
func (p *Provider) ListAvailableModels(ctx context.Context) []string {
	if p.gen == nil {
		return []string{}
	}

	ctx, cancel := context.WithTimeout(ctx, 2*p.attemptTimeout)
	defer cancel()

	models, err := p.gen.ListModels(ctx)
	if err != nil {
		p.logger.Error("failed to list AI models",
			slog.String("class", string(Classify(err))),
			slog.String("error", err.Error()),
		)
		return []string{}
	}

	names := make([]string, 0, len(models))
	for _, m := range models {
		if m.Supports("generateContent") {
			names = append(names, m.Name)
		}
	}
	return names
}
