package fortune

import (
	"context"
	"errors"
	"html"
	"maps"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/fortunebot/internal/deck"
	"github.com/hitoshi/fortunebot/internal/gemini"
	"github.com/hitoshi/fortunebot/internal/interpret"
	"github.com/hitoshi/fortunebot/internal/logger"
	"github.com/hitoshi/fortunebot/internal/model"
	"github.com/hitoshi/fortunebot/internal/repository"
	"github.com/hitoshi/fortunebot/internal/security"
	"github.com/hitoshi/fortunebot/internal/user"
)

// --- モック ---

type mockInterpreter struct {
	enabled     bool
	interpretFn func(ctx context.Context, cardName, displayName string) (string, bool)

	mu    sync.Mutex
	calls int
}

func (m *mockInterpreter) IsEnabled() bool { return m.enabled }

func (m *mockInterpreter) Interpret(ctx context.Context, cardName, displayName string) (string, bool) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.interpretFn != nil {
		return m.interpretFn(ctx, cardName, displayName)
	}
	return "A bright path opens before you.", true
}

type mockRecorder struct {
	mu      sync.Mutex
	draws   map[string]int
	denials int
}

func newMockRecorder() *mockRecorder {
	return &mockRecorder{draws: make(map[string]int)}
}

func (r *mockRecorder) RecordDraw(source string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.draws[source]++
}

func (r *mockRecorder) RecordDrawDenied() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.denials++
}

// failingWriteRepo は読み込みは成功し、書き込みだけが失敗するリポジトリ。
type failingWriteRepo struct {
	snapshot model.Snapshot
}

func (r *failingWriteRepo) ReadAll(ctx context.Context) (model.Snapshot, error) {
	return maps.Clone(r.snapshot), nil
}

func (r *failingWriteRepo) WriteAll(ctx context.Context, snapshot model.Snapshot) error {
	return errors.New("disk full")
}

func (r *failingWriteRepo) ResetWithBackup(ctx context.Context) (string, error) { return "", nil }
func (r *failingWriteRepo) Ping(ctx context.Context) error                     { return nil }
func (r *failingWriteRepo) Location() string                                   { return "memory" }

var _ repository.UserRecordRepository = (*failingWriteRepo)(nil)

// aiMarkers はAI解釈の文面にのみ含まれるフレーズ。
var aiMarkers = []string{
	"card of the day",
	"turns <b>",
	"The cards have spoken",
	"May this message guide you",
	"Trust the wisdom of the cards",
	"Receive this guidance",
}

func newFileTracker(t *testing.T, mode user.PersistenceMode) (*user.Tracker, *repository.FileUserRecordRepo) {
	t.Helper()
	repo := repository.NewFileUserRecordRepo(filepath.Join(t.TempDir(), "users_data.json"), logger.Discard())
	return user.NewTracker(repo, logger.Discard(), nil, user.Config{Mode: mode}), repo
}

func containsAIMarker(msg string) bool {
	for _, m := range aiMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// --- テスト ---

// TestDraw_FreshUserSucceeds は新規ユーザーの初回ドローが成功することを検証する。
func TestDraw_FreshUserSucceeds(t *testing.T) {
	tracker, _ := newFileTracker(t, user.ModeStrict)
	interp := &mockInterpreter{enabled: true}
	rec := newMockRecorder()
	c := NewComposer(tracker, interp, deck.New(), logger.Discard(), rec)

	result, err := c.Draw(context.Background(), "42", "Ann")
	if err != nil {
		t.Fatalf("Draw returned error: %v", err)
	}
	if !result.Success {
		t.Fatal("expected success for a fresh user")
	}
	if result.Stats.TotalDraws != 1 {
		t.Errorf("TotalDraws = %d, want 1", result.Stats.TotalDraws)
	}
	if result.Stats.CanDrawToday {
		t.Error("CanDrawToday should be false after drawing")
	}
	if !result.AIUsed {
		t.Error("AIUsed should be true when the interpreter returns text")
	}
	if result.Card.Name == "" {
		t.Error("expected a card to be drawn")
	}
	if !strings.Contains(result.Message, "A bright path opens before you.") {
		t.Errorf("message should contain the interpretation: %q", result.Message)
	}
	if !strings.Contains(result.Message, result.Card.Name) {
		t.Errorf("message should contain the card name: %q", result.Message)
	}
	if rec.draws[SourceAI] != 1 {
		t.Errorf("recorded ai draws = %d, want 1", rec.draws[SourceAI])
	}
}

// TestDraw_SecondDrawSameDayIsDenied は同日2回目のドローが拒否されることを検証する。
func TestDraw_SecondDrawSameDayIsDenied(t *testing.T) {
	tracker, _ := newFileTracker(t, user.ModeStrict)
	interp := &mockInterpreter{enabled: true}
	rec := newMockRecorder()
	c := NewComposer(tracker, interp, deck.New(), logger.Discard(), rec)
	ctx := context.Background()

	if _, err := c.Draw(ctx, "42", "Ann"); err != nil {
		t.Fatalf("first Draw: %v", err)
	}

	result, err := c.Draw(ctx, "42", "Ann")
	if err != nil {
		t.Fatalf("second Draw: %v", err)
	}
	if result.Success {
		t.Fatal("second draw on the same day should not succeed")
	}
	if result.Stats.TotalDraws != 1 {
		t.Errorf("TotalDraws = %d, want 1 (unchanged)", result.Stats.TotalDraws)
	}
	if result.Message != "" {
		t.Errorf("denied result should carry no message, got %q", result.Message)
	}
	if interp.calls != 1 {
		t.Errorf("interpreter calls = %d, want 1", interp.calls)
	}
	if rec.denials != 1 {
		t.Errorf("denials = %d, want 1", rec.denials)
	}
}

// TestDraw_DisabledInterpreterUsesClassic はAI無効時に定型文とカードの意味を使うことを検証する。
func TestDraw_DisabledInterpreterUsesClassic(t *testing.T) {
	tracker, _ := newFileTracker(t, user.ModeStrict)
	interp := &mockInterpreter{enabled: false}
	c := NewComposer(tracker, interp, deck.New(), logger.Discard(), nil)

	result, err := c.Draw(context.Background(), "7", "")
	if err != nil {
		t.Fatalf("Draw: %v", err)
	}
	if result.AIUsed {
		t.Error("AIUsed should be false when the interpreter is disabled")
	}
	if interp.calls != 0 {
		t.Errorf("disabled interpreter should not be called, got %d calls", interp.calls)
	}
}

// TestDraw_InterpreterFailureFallsBack はAI解釈が得られない場合に定型文へフォールバックすることを検証する。
func TestDraw_InterpreterFailureFallsBack(t *testing.T) {
	tracker, _ := newFileTracker(t, user.ModeStrict)
	interp := &mockInterpreter{
		enabled: true,
		interpretFn: func(ctx context.Context, cardName, displayName string) (string, bool) {
			return "", false
		},
	}
	rec := newMockRecorder()
	c := NewComposer(tracker, interp, deck.New(), logger.Discard(), rec)

	result, err := c.Draw(context.Background(), "42", "Ann")
	if err != nil {
		t.Fatalf("Draw: %v", err)
	}
	if !result.Success {
		t.Fatal("expected success")
	}
	if result.AIUsed {
		t.Error("AIUsed should be false after fallback")
	}
	if rec.draws[SourceClassic] != 1 {
		t.Errorf("recorded classic draws = %d, want 1", rec.draws[SourceClassic])
	}
}

// quotaGenerator は常にクォータ超過を返す生成API。
type quotaGenerator struct {
	mu    sync.Mutex
	calls int
}

func (g *quotaGenerator) GenerateContent(ctx context.Context, model, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return "", &gemini.APIError{StatusCode: 429, Status: "RESOURCE_EXHAUSTED", Message: "Quota exceeded"}
}

func (g *quotaGenerator) ListModels(ctx context.Context) ([]gemini.Model, error) {
	return nil, nil
}

// TestDraw_QuotaExhaustedOnEveryModelUsesClassic は全モデルがクォータ超過でも
// 定型文で占いを届けることを検証する。
func TestDraw_QuotaExhaustedOnEveryModelUsesClassic(t *testing.T) {
	tracker, _ := newFileTracker(t, user.ModeStrict)
	gen := &quotaGenerator{}
	models := []string{"model-a", "model-b"}
	provider := interpret.NewProvider(gen, interpret.Config{
		Models:         models,
		AttemptTimeout: time.Second,
		Enabled:        true,
	}, logger.Discard(), nil, security.NewMessageSanitizer())
	rec := newMockRecorder()
	c := NewComposer(tracker, provider, deck.New(), logger.Discard(), rec)

	result, err := c.Draw(context.Background(), "42", "Ann")
	if err != nil {
		t.Fatalf("Draw: %v", err)
	}
	if !result.Success {
		t.Fatal("expected success")
	}
	if result.AIUsed {
		t.Error("AIUsed should be false when every model is out of quota")
	}
	if !strings.Contains(result.Message, html.EscapeString(result.Card.Meaning)) {
		t.Errorf("message should contain the card meaning: %q", result.Message)
	}
	if containsAIMarker(result.Message) {
		t.Errorf("classic message contains an AI marker: %q", result.Message)
	}
	if gen.calls != len(models) {
		t.Errorf("generator calls = %d, want %d", gen.calls, len(models))
	}
	if rec.draws[SourceClassic] != 1 {
		t.Errorf("recorded classic draws = %d, want 1", rec.draws[SourceClassic])
	}
}

// TestCompose_FallbackLaw は全カード・全定型文について、
// フォールバック時の文面がカードの意味を含みAI専用のフレーズを含まないことを検証する。
func TestCompose_FallbackLaw(t *testing.T) {
	d := deck.New()
	for _, interp := range []*mockInterpreter{
		{enabled: false},
		{enabled: true, interpretFn: func(context.Context, string, string) (string, bool) { return "", false }},
	} {
		c := NewComposer(nil, interp, d, logger.Discard(), nil)
		for tmpl := range classicTemplates {
			c.intn = func(n int) int { return tmpl % n }
			for _, card := range d.All() {
				msg, aiUsed := c.compose(context.Background(), card, "Ann")
				if aiUsed {
					t.Fatalf("aiUsed = true for %s", card.Name)
				}
				if !strings.Contains(msg, card.Meaning) {
					t.Errorf("classic message for %s does not contain its meaning: %q", card.Name, msg)
				}
				if containsAIMarker(msg) {
					t.Errorf("classic message for %s contains an AI marker: %q", card.Name, msg)
				}
			}
		}
	}
}

// TestCompose_AITemplatesCarryMarkers はAIの各文面がAI専用フレーズを含むことを検証する。
func TestCompose_AITemplatesCarryMarkers(t *testing.T) {
	card := model.Card{Name: "The Star", Meaning: "Hope returns."}
	for i, tmpl := range aiTemplates {
		msg := formatAI(tmpl, card, "Shine on.")
		if !containsAIMarker(msg) {
			t.Errorf("aiTemplates[%d] has no AI marker: %q", i, msg)
		}
		if !strings.Contains(msg, "Shine on.") || !strings.Contains(msg, "The Star") {
			t.Errorf("aiTemplates[%d] lost a substitution: %q", i, msg)
		}
	}
}

func TestFormatClassic_EscapesHTML(t *testing.T) {
	card := model.Card{Name: "Cups & <Swords>", Meaning: "a < b"}
	msg := formatClassic(classicTemplates[0], card)
	if strings.Contains(msg, "<Swords>") || !strings.Contains(msg, "&amp;") || !strings.Contains(msg, "a &lt; b") {
		t.Errorf("formatClassic did not escape: %q", msg)
	}
}

// TestDraw_PicksUniformlyFromWholeDeck は抽選がデッキ全体から行われることを検証する。
func TestDraw_PicksUniformlyFromWholeDeck(t *testing.T) {
	cards := []model.Card{
		{Name: "A", Meaning: "a"},
		{Name: "B", Meaning: "b"},
		{Name: "C", Meaning: "c"},
	}
	var gotN []int
	c := NewComposer(nil, nil, deck.NewFromCards(cards), logger.Discard(), nil)
	c.intn = func(n int) int {
		gotN = append(gotN, n)
		return n - 1
	}

	if card := c.pickCard(); card.Name != "C" {
		t.Errorf("pickCard = %s, want C", card.Name)
	}
	if len(gotN) != 1 || gotN[0] != len(cards) {
		t.Errorf("intn called with %v, want [%d]", gotN, len(cards))
	}
}

// TestDraw_StrictWriteFailureFailsRequest はstrictモードで記録に失敗した場合に
// エラーを返し、利用資格を消費しないことを検証する。
func TestDraw_StrictWriteFailureFailsRequest(t *testing.T) {
	repo := &failingWriteRepo{snapshot: model.Snapshot{
		"42": {DisplayName: "Ann", CreatedAt: "2026-10-01"},
	}}
	tracker := user.NewTracker(repo, logger.Discard(), nil, user.Config{Mode: user.ModeStrict})
	rec := newMockRecorder()
	c := NewComposer(tracker, &mockInterpreter{enabled: false}, deck.New(), logger.Discard(), rec)

	result, err := c.Draw(context.Background(), "42", "Ann")
	if err == nil {
		t.Fatalf("expected error, got result %+v", result)
	}
	if !model.HasCode(err, model.ErrCodePersistence) {
		t.Errorf("error = %v, want PERSISTENCE_FAILED", err)
	}
	if len(rec.draws) != 0 {
		t.Errorf("no draw should be recorded in metrics, got %v", rec.draws)
	}

	ok, err := tracker.CanDrawToday(context.Background(), "42")
	if err != nil {
		t.Fatalf("CanDrawToday: %v", err)
	}
	if !ok {
		t.Error("user should still be eligible after a failed write")
	}
}

// TestDraw_BestEffortWriteFailureStillDelivers はbest_effortモードでは書き込み失敗でも結果を返すことを検証する。
func TestDraw_BestEffortWriteFailureStillDelivers(t *testing.T) {
	repo := &failingWriteRepo{snapshot: model.Snapshot{}}
	tracker := user.NewTracker(repo, logger.Discard(), nil, user.Config{Mode: user.ModeBestEffort})
	c := NewComposer(tracker, nil, deck.New(), logger.Discard(), nil)

	result, err := c.Draw(context.Background(), "42", "Ann")
	if err != nil {
		t.Fatalf("Draw: %v", err)
	}
	if !result.Success || result.Message == "" {
		t.Errorf("expected a delivered fortune, got %+v", result)
	}
}

// TestDraw_ConcurrentSameUserDrawsOnce は同一ユーザーの同時リクエストで1回だけ成功することを検証する。
func TestDraw_ConcurrentSameUserDrawsOnce(t *testing.T) {
	tracker, repo := newFileTracker(t, user.ModeStrict)
	interp := &mockInterpreter{enabled: true}
	c := NewComposer(tracker, interp, deck.New(), logger.Discard(), nil)

	const n = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := c.Draw(context.Background(), "42", "Ann")
			if err != nil {
				t.Errorf("Draw: %v", err)
				return
			}
			if result.Success {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Errorf("successes = %d, want 1", successes)
	}

	snapshot, err := repo.ReadAll(context.Background())
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if snapshot["42"].TotalDraws != 1 {
		t.Errorf("stored TotalDraws = %d, want 1", snapshot["42"].TotalDraws)
	}
}

// TestDraw_ConcurrentDifferentUsersNoLostUpdates は別ユーザーの同時ドローで更新が失われないことを検証する。
func TestDraw_ConcurrentDifferentUsersNoLostUpdates(t *testing.T) {
	tracker, repo := newFileTracker(t, user.ModeStrict)
	c := NewComposer(tracker, &mockInterpreter{enabled: true}, deck.New(), logger.Discard(), nil)

	ids := []string{"1", "2", "3", "4", "5", "6", "7", "8"}
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := c.Draw(context.Background(), id, ""); err != nil {
				t.Errorf("Draw(%s): %v", id, err)
			}
		}(id)
	}
	wg.Wait()

	snapshot, err := repo.ReadAll(context.Background())
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(snapshot) != len(ids) {
		t.Errorf("stored users = %d, want %d", len(snapshot), len(ids))
	}

	agg, err := tracker.AggregateStats(context.Background())
	if err != nil {
		t.Fatalf("AggregateStats: %v", err)
	}
	if agg.TotalDraws != snapshot.TotalDraws() || agg.TotalDraws != len(ids) {
		t.Errorf("aggregate TotalDraws = %d, snapshot sum = %d, want %d", agg.TotalDraws, snapshot.TotalDraws(), len(ids))
	}
}
