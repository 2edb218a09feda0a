// Package gemini はGoogle Gemini（Generative Language API）のRESTクライアントを提供する。
package gemini

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
)

const (
	// DefaultBaseURL はGenerative Language APIのベースURL。
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	// apiVersion はAPIバージョンのパス。
	apiVersion = "v1beta"
	// maxResponseSize はレスポンスボディの最大サイズ（1MB）。
	maxResponseSize = 1 << 20
	// listPageSize はモデル一覧取得時の1ページあたりの件数。
	listPageSize = 100
)

// ErrEmptyResponse は候補にテキストが含まれていなかったことを示す。
var ErrEmptyResponse = errors.New("gemini returned no text")

// APIError はAPIがエラーステータスを返した場合のエラー。
type APIError struct {
	StatusCode int    // HTTPステータスコード
	Status     string // APIのステータス文字列（例: RESOURCE_EXHAUSTED）
	Message    string
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("gemini api error %d %s: %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("gemini api error %d: %s", e.StatusCode, e.Message)
}

// BlockedError はコンテンツ安全性フィルタにより応答がブロックされた場合のエラー。
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string {
	return "gemini response blocked by safety filter: " + e.Reason
}

// GenerationConfig はテキスト生成のパラメータ。
type GenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
	TopP            float64 `json:"topP"`
	TopK            int     `json:"topK"`
}

// DefaultGenerationConfig は占い文の生成に使うパラメータ。
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Temperature:     0.8,
		MaxOutputTokens: 200,
		TopP:            0.9,
		TopK:            40,
	}
}

// Model はモデル一覧APIが返すモデル情報。
type Model struct {
	Name                       string   `json:"name"`
	DisplayName                string   `json:"displayName"`
	SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
}

// Supports は指定した生成メソッドに対応しているかを返す。
func (m Model) Supports(method string) bool {
	for _, s := range m.SupportedGenerationMethods {
		if s == method {
			return true
		}
	}
	return false
}

// Config はClientの設定。
type Config struct {
	APIKey     string
	BaseURL    string
	Generation GenerationConfig
}

// Client はGemini APIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	apiKey     string
	baseURL    string // テスト用に差し替え可能
	generation GenerationConfig
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, cfg Config, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	gen := cfg.Generation
	if gen == (GenerationConfig{}) {
		gen = DefaultGenerationConfig()
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		generation: gen,
	}
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig GenerationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

type listModelsResponse struct {
	Models        []Model `json:"models"`
	NextPageToken string  `json:"nextPageToken"`
}

// GenerateContent は指定モデルでプロンプトからテキストを生成する。
// modelは "gemini-1.5-flash" と "models/gemini-1.5-flash" のどちらの形式でもよい。
func (c *Client) GenerateContent(ctx context.Context, model, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Contents:         []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: c.generation,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/%s:generateContent", c.baseURL, apiVersion, modelPath(model))
	respBody, err := c.do(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", err
	}

	var resp generateResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if reason := resp.PromptFeedback.BlockReason; reason != "" {
		return "", &BlockedError{Reason: reason}
	}

	var sb strings.Builder
	blocked := ""
	for _, cand := range resp.Candidates {
		for _, p := range cand.Content.Parts {
			sb.WriteString(p.Text)
		}
		if sb.Len() > 0 {
			break
		}
		if cand.FinishReason == "SAFETY" || cand.FinishReason == "BLOCKLIST" || cand.FinishReason == "PROHIBITED_CONTENT" {
			blocked = cand.FinishReason
		}
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		if blocked != "" {
			return "", &BlockedError{Reason: blocked}
		}
		return "", ErrEmptyResponse
	}
	return text, nil
}

// ListModels は利用可能なモデルの一覧を全ページ取得する。
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	var models []Model
	pageToken := ""
	for {
		q := url.Values{}
		q.Set("pageSize", fmt.Sprintf("%d", listPageSize))
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}
		endpoint := fmt.Sprintf("%s/%s/models?%s", c.baseURL, apiVersion, q.Encode())

		respBody, err := c.do(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}

		var page listModelsResponse
		if err := json.Unmarshal(respBody, &page); err != nil {
			return nil, fmt.Errorf("failed to decode model list: %w", err)
		}
		models = append(models, page.Models...)

		if page.NextPageToken == "" || page.NextPageToken == pageToken {
			return models, nil
		}
		pageToken = page.NextPageToken
	}
}

// do はHTTPリクエストを実行し、2xxの場合にレスポンスボディを返す。
func (c *Client) do(ctx context.Context, method, endpoint string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-goog-api-key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var errResp errorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			apiErr.Message = errResp.Error.Message
			apiErr.Status = errResp.Error.Status
		}
		c.logger.Debug("gemini api returned error status",
			slog.Int("http_status", resp.StatusCode),
			slog.String("status", apiErr.Status),
		)
		return nil, apiErr
	}

	return respBody, nil
}

// modelPath はモデル名をAPIパス形式（models/<name>）に正規化する。
func modelPath(model string) string {
	model = strings.TrimSpace(model)
	if strings.HasPrefix(model, "models/") || strings.HasPrefix(model, "tunedModels/") {
		return model
	}
	return "models/" + model
}
