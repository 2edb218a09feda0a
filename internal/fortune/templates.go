package fortune

import (
	"fmt"
	"html"

	"github.com/hitoshi/fortunebot/internal/model"
)

// aiTemplates はAI解釈を使う場合の文面。%[1]s=カード名、%[2]s=解釈文。
var aiTemplates = []string{
	"🔮 Your card of the day is <b>%[1]s</b>\n\n%[2]s\n\n💫 May this message guide you through the day!",
	"🌟 The universe turns <b>%[1]s</b> face up for you today.\n\n%[2]s\n\n🙏 Trust the wisdom of the cards.",
	"✨ The cards have spoken! <b>%[1]s</b> brings you a personal message.\n\n%[2]s\n\n🌙 Receive this guidance with an open heart.",
}

// classicTemplates はカード固有の意味を使う場合の文面。%[1]s=カード名、%[2]s=意味。
var classicTemplates = []string{
	"🃏 Today you drew <b>%[1]s</b>\n\n📜 %[2]s",
	"🎴 <b>%[1]s</b> appears before you.\n\n📜 Meaning: %[2]s",
	"🕯 The deck offers you <b>%[1]s</b>.\n\n📜 %[2]s",
	"🌠 Your fortune for today: <b>%[1]s</b>\n\n📜 %[2]s",
	"🌀 Out of the shuffle comes <b>%[1]s</b>.\n\n📜 What it tells you: %[2]s",
}

// formatAI はAI解釈の文面を組み立てる。interpretationはサニタイズ済みであること。
func formatAI(tmpl string, card model.Card, interpretation string) string {
	return fmt.Sprintf(tmpl, html.EscapeString(card.Name), interpretation)
}

// formatClassic はカードの意味を使った文面を組み立てる。
func formatClassic(tmpl string, card model.Card) string {
	return fmt.Sprintf(tmpl, html.EscapeString(card.Name), html.EscapeString(card.Meaning))
}
