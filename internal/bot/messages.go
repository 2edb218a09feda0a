package bot

import (
	"fmt"
	"strings"

	"github.com/hitoshi/fortunebot/internal/model"
)

// ユーザー向けの文面。すべてTelegramのHTMLパースモードで送信する。
// 表示名などユーザー由来の値は呼び出し前にエスケープしておくこと。

const defaultName = "friend"

// maxListedModels は/statusで表示するモデル数の上限。
const maxListedModels = 5

func aiModeLabel(enabled bool) string {
	if enabled {
		return "🤖 Gemini AI interpretations"
	}
	return "📚 Classic interpretations"
}

func onOff(b bool) string {
	if b {
		return "✅ yes"
	}
	return "❌ no"
}

func welcomeMessage(name string, counts model.DeckCounts, aiEnabled bool) string {
	return fmt.Sprintf(`🔮 Welcome to the Daily Tarot bot, %s! 🔮

✨ I give only ONE reading a day, like a true tarot reader.

🎴 <b>My deck holds %d cards:</b>
🔮 %d Major Arcana
⚔️ %d Minor Arcana (all four suits)

🧠 <b>Interpretation mode:</b> %s

<b>Commands:</b>
/fortune - draw your daily card
/card - same as /fortune
/stats - your statistics
/deck - about the deck
/ai - switch interpretation mode
/help - show help

🌟 Ready to see what the cards hold for you today? Use /fortune!
💫 Remember: the cards share their wisdom only once a day.`,
		name, counts.Total, counts.Major, counts.Minor, aiModeLabel(aiEnabled))
}

func helpMessage(aiAvailable, aiEnabled bool) string {
	state := "📚 off"
	if aiEnabled {
		state = "🤖 on"
	}
	availability := ""
	if !aiAvailable {
		availability = "\n❌ AI is unavailable (no Gemini API key configured)"
	}
	return fmt.Sprintf(`🃏 <b>Daily Tarot commands</b>

<b>Readings:</b>
/fortune - draw your daily tarot card
/card - same as /fortune
/stats - your statistics
/deck - about the deck

<b>AI and settings:</b>
/ai - switch between AI and classic interpretations
/status - check the AI service

<b>Help:</b>
/start - welcome message
/help - this help

✨ <b>How it works:</b>
🌙 One reading per person per day
🎴 A full 78-card tarot deck
🤖 Gemini AI interpretations: %s%s

<i>Tarot readings are for entertainment and self-reflection.</i>`, state, availability)
}

func textHintMessage(name string, aiEnabled bool) string {
	return fmt.Sprintf(`🔮 Hi, %s! I am your Daily Tarot bot.

✨ /fortune - draw your daily card
📊 /stats - your statistics
🎴 /deck - about the deck
🤖 /ai - switch interpretation mode
🔧 /status - check the AI service
❓ /help - all commands

🧠 <b>Current mode:</b> %s
🌟 The cards share their wisdom only once a day!`, name, aiModeLabel(aiEnabled))
}

// fortuneMessage は占い結果を文面にする。
func fortuneMessage(name string, res *model.DrawResult) string {
	if !res.Success {
		return waitingMessage(name, res.Stats)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Hello, %s! 🌟\n\n%s\n\n", name, res.Message)

	if res.Stats.TotalDraws == 1 {
		sb.WriteString("🎉 This is your first reading! Welcome to the world of tarot!\n\n")
	} else {
		fmt.Fprintf(&sb, "📊 This is reading number %d for you\n\n", res.Stats.TotalDraws)
	}

	if res.AIUsed {
		sb.WriteString("🤖 Personal Gemini interpretation\n")
	} else {
		sb.WriteString("📚 Classic interpretation\n")
	}
	sb.WriteString("💫 Remember: your next reading will be ready tomorrow!")
	return sb.String()
}

func waitingMessage(name string, stats model.UserStats) string {
	last := stats.LastDrawDate
	if last == "" {
		last = "unknown"
	}
	return fmt.Sprintf(`🌙 %s, the cards have already revealed their secrets to you today...

✨ The universe grants only one reading per day.
🕐 Come back tomorrow to see what the stars have prepared.

📊 <b>Your statistics:</b>
🔮 Total readings: %d
📅 Last reading: %s

💫 Let today's message guide you until tomorrow's dawn!`, name, stats.TotalDraws, last)
}

func statsMessage(name string, stats model.UserStats) string {
	if stats.TotalDraws == 0 {
		return fmt.Sprintf(`📊 %s, your statistics are still empty...

🔮 You have not received a reading yet.
✨ Use /fortune to get your first message!`, name)
	}

	today := "⏳ come back tomorrow"
	if stats.CanDrawToday {
		today = "✅ available"
	}
	created := stats.CreatedAt
	if created == "" {
		created = "unknown"
	}
	return fmt.Sprintf(`📊 <b>Statistics for %s</b>

🔮 Total readings: %d
📅 Last reading: %s
🎂 Registered: %s
🌟 Today's reading: %s`, name, stats.TotalDraws, stats.LastDrawDate, created, today)
}

func deckMessage(counts model.DeckCounts, bySuit map[model.Suit]int) string {
	return fmt.Sprintf(`🃏 <b>About the tarot deck</b>

🔮 Major Arcana: %d cards
⚔️ Minor Arcana: %d cards
🎴 Total: %d cards

🌟 <b>The Minor Arcana suits:</b>
💧 Cups (Water), %d cards: emotions, relationships, spirit
🌍 Pentacles (Earth), %d cards: material world, money, career
💨 Swords (Air), %d cards: thoughts, conflict, communication
🔥 Wands (Fire), %d cards: action, energy, creativity

✨ Every reading is drawn at random from the full deck.
🌙 One reading per person per day.
📚 Classic meanings are used whenever AI is unavailable.`,
		counts.Major, counts.Minor, counts.Total,
		bySuit[model.SuitCups], bySuit[model.SuitPentacles], bySuit[model.SuitSwords], bySuit[model.SuitWands])
}

func aiUnavailableMessage() string {
	return "❌ AI interpretations are unavailable.\n\nSet GEMINI_API_KEY to enable them."
}

func aiToggledMessage(enabled bool) string {
	status, mode := "off 📚", "classic card meanings"
	if enabled {
		status, mode = "on 🤖", "personal Gemini interpretations"
	}
	return fmt.Sprintf(`🔄 <b>Interpretation mode changed!</b>

✨ AI interpretations: %s
🎯 Current mode: %s

💡 Use /ai again to switch back.`, status, mode)
}

// aiStatusMessage は/statusの文面。probeOKはテスト生成の成否（無効時は無視）。
// orderは設定された試行順、modelsはAPIから取得した利用可能なモデル。
func aiStatusMessage(available, enabled, probeOK bool, order, models []string, rpm int) string {
	if !available {
		return `⚠️ <b>AI status: not configured</b>

🔑 GEMINI_API_KEY is not set.
🔄 Classic interpretations are used.`
	}
	if enabled && !probeOK {
		return `❌ <b>AI status: error</b>

🔑 The API key is configured but the test request failed:
• the configured models may be unavailable
• the request quota may be exhausted
• the network may be unreachable

🔄 Classic interpretations are used automatically.`
	}

	var sb strings.Builder
	if enabled {
		sb.WriteString("✅ <b>AI status: working</b>\n\n🤖 Google Gemini API is connected\n🔮 AI interpretations: on\n")
	} else {
		sb.WriteString("✅ <b>AI status: available</b>\n\n🔮 AI interpretations: off\n")
	}
	if rpm > 0 {
		fmt.Fprintf(&sb, "💰 Request budget: %d per minute\n", rpm)
	}
	if len(order) > 0 {
		fmt.Fprintf(&sb, "🔁 Fallback order: %s\n", strings.Join(order, " → "))
	}

	sb.WriteString("\n📋 <b>Available models:</b>\n")
	if len(models) == 0 {
		sb.WriteString("  • (model list unavailable)\n")
	}
	for i, m := range models {
		if i == maxListedModels {
			fmt.Fprintf(&sb, "  • ... and %d more\n", len(models)-maxListedModels)
			break
		}
		fmt.Fprintf(&sb, "  • %s\n", m)
	}
	sb.WriteString("\n💡 Use /ai to switch mode")
	return sb.String()
}

func resetMessage(res *model.ResetResult) string {
	if res.Status != model.ResetStatusSuccess {
		return "❌ Database reset failed: " + res.Message
	}
	backup := "nothing to back up"
	if res.BackupID != "" {
		backup = "saved as <code>" + res.BackupID + "</code>"
	}
	return fmt.Sprintf(`🔧 <b>Database reset!</b>

✅ Previous data: %s
🗑️ Active data cleared
🔄 Every user can draw a new reading

⚠️ This action cannot be undone!`, backup)
}

func adminStatsMessage(stats *model.AdminStats) string {
	return fmt.Sprintf(`📊 <b>Bot statistics</b>

👥 <b>Users:</b>
• Total users: %d
• Active today: %d
• Total readings: %d

🎴 <b>Content:</b>
• Cards in deck: %d

🤖 <b>AI:</b>
• Available: %s
• Enabled: %s

💾 <b>Storage:</b>
• Location: <code>%s</code>
• Persistence: %s

⚙️ <b>Admin commands:</b>
/reset - reset the database
/adminstats - these statistics

👑 Admin ID: %s`,
		stats.Aggregate.TotalUsers, stats.Aggregate.ActiveToday, stats.Aggregate.TotalDraws,
		stats.Deck.Total,
		onOff(stats.AIAvailable), onOff(stats.AIEnabled),
		stats.StoreLocation, stats.PersistenceMode, stats.AdminID)
}

// errorMessage はエラーをユーザー向けの文面に変換する。
func errorMessage(err error) string {
	switch {
	case model.HasCode(err, model.ErrCodeForbidden):
		return "❌ You do not have permission to run this command."
	case model.HasCode(err, model.ErrCodeRateLimited):
		return "⏳ Too many commands. Please wait a moment."
	case model.HasCode(err, model.ErrCodePersistence):
		return "❌ Your reading could not be saved.\n\n🔄 Please try again in a few seconds."
	case model.HasCode(err, model.ErrCodeUnknownCommand):
		return "🤔 I do not know that command. Use /help to see what I can do."
	default:
		return "❌ Something went wrong.\n\n🔄 Please try again in a few seconds.\n📞 If it keeps happening, use /help."
	}
}
