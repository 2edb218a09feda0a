package model

// Arcana はカードの大分類。
type Arcana string

const (
	ArcanaMajor Arcana = "major"
	ArcanaMinor Arcana = "minor"
)

// Suit は小アルカナのスート。大アルカナでは空文字列。
type Suit string

const (
	SuitNone      Suit = ""
	SuitWands     Suit = "wands"
	SuitCups      Suit = "cups"
	SuitSwords    Suit = "swords"
	SuitPentacles Suit = "pentacles"
)

// Card はデッキ中の1枚のカードを表す。起動時に一度だけ読み込まれ、変更されない。
type Card struct {
	Name    string
	Meaning string
	Arcana  Arcana
	Suit    Suit
}

// IsMajor は大アルカナかどうかを返す。
func (c Card) IsMajor() bool {
	return c.Arcana == ArcanaMajor
}

// DeckCounts は分類ごとのカード枚数。
type DeckCounts struct {
	Major int
	Minor int
	Total int
}
