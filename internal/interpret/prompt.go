package interpret

import (
	"fmt"
	"strings"
)

// BuildPrompt はカード解釈を依頼するプロンプトを組み立てる。
func BuildPrompt(cardName, displayName string) string {
	name := strings.TrimSpace(displayName)
	if name == "" {
		name = "the seeker"
	}

	var sb strings.Builder
	sb.WriteString("You are a wise and gentle tarot reader.\n")
	fmt.Fprintf(&sb, "Today %s drew the card \"%s\".\n", name, cardName)
	sb.WriteString("Write a personal interpretation of this card for today in 2-3 sentences.\n")
	sb.WriteString("Requirements:\n")
	sb.WriteString("- mystical but kind and encouraging tone\n")
	sb.WriteString("- include one practical tip for the day\n")
	sb.WriteString("- no negative or frightening predictions\n")
	sb.WriteString("- plain text, no headings or lists\n")
	return sb.String()
}
