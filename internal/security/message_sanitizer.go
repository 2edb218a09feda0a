// Package security はアプリケーションのセキュリティ機能を提供する。
//
// MessageSanitizer は外部APIが生成したテキストやユーザー由来の文字列を
// TelegramのHTMLパースモードで安全に送信できる形に整える。
// bluemondayライブラリを使用した許可リストベースのポリシーで、
// Telegramが解釈できるタグのみを通過させる。
package security

import (
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// MessageSanitizerService はメッセージのサニタイズ機能のインターフェースを定義する。
type MessageSanitizerService interface {
	// SanitizeRich は生成テキストをサニタイズする。
	// 許可タグ（b, strong, i, em, u, s, code, pre）のみを通過させ、
	// Markdownの **太字** と *斜体* を対応するタグに変換する。
	SanitizeRich(raw string) string

	// EscapeText は全てのタグを除去し、HTML特殊文字をエスケープする。
	// 表示名などユーザー由来の文字列に使用する。
	EscapeText(raw string) string
}

var (
	markdownBold   = regexp.MustCompile(`\*\*([^*\n]+)\*\*`)
	markdownItalic = regexp.MustCompile(`(^|[^*])\*([^*\n]+)\*`)
)

// messageSanitizer はMessageSanitizerServiceの実装。
// bluemondayのポリシーはスレッドセーフに利用できる。
type messageSanitizer struct {
	rich   *bluemonday.Policy
	strict *bluemonday.Policy
}

// NewMessageSanitizer はMessageSanitizerServiceの新しいインスタンスを生成する。
// ポリシーの内容:
//   - 許可タグ: b, strong, i, em, u, s, code, pre（属性なし）
//   - script, style, a, img 等はTelegramで不要なため除去
func NewMessageSanitizer() *messageSanitizer {
	p := bluemonday.NewPolicy()
	p.AllowElements("b", "strong", "i", "em", "u", "s", "code", "pre")

	return &messageSanitizer{
		rich:   p,
		strict: bluemonday.StrictPolicy(),
	}
}

// SanitizeRich は生成テキストをサニタイズして前後の空白を除去する。
func (s *messageSanitizer) SanitizeRich(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}
	text = markdownBold.ReplaceAllString(text, "<b>$1</b>")
	text = markdownItalic.ReplaceAllString(text, "$1<i>$2</i>")
	return strings.TrimSpace(s.rich.Sanitize(text))
}

// EscapeText は全てのタグを除去してエスケープする。
func (s *messageSanitizer) EscapeText(raw string) string {
	return s.strict.Sanitize(raw)
}
