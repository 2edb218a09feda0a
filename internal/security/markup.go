package security

import (
	"errors"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// ErrUnbalancedMarkup はタグの開始と終了が対応していないことを示す。
var ErrUnbalancedMarkup = errors.New("unbalanced markup")

// TagsBalanced はテキスト中のタグが正しく入れ子になって閉じているかを返す。
// TelegramのHTMLパースモードは閉じていないタグや交差したタグを含むメッセージを拒否する。
func TagsBalanced(text string) bool {
	var open []string
	z := html.NewTokenizer(strings.NewReader(text))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return errors.Is(z.Err(), io.EOF) && len(open) == 0
		case html.StartTagToken:
			name, _ := z.TagName()
			open = append(open, string(name))
		case html.EndTagToken:
			name, _ := z.TagName()
			if len(open) == 0 || open[len(open)-1] != string(name) {
				return false
			}
			open = open[:len(open)-1]
		case html.SelfClosingTagToken:
			return false
		}
	}
}
