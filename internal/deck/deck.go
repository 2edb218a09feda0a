// Package deck は78枚のタロットデッキ（読み取り専用）を提供する。
package deck

import (
	"github.com/hitoshi/fortunebot/internal/model"
)

// Deck は読み取り専用のカードカタログ。
// 生成後は変更されないため、複数ゴルーチンから安全に参照できる。
type Deck struct {
	cards []model.Card
}

// New は標準の78枚デッキを生成する。
func New() *Deck {
	cards := make([]model.Card, 0, len(majorArcana)+len(suitMeanings)*len(rankNames))
	for _, c := range majorArcana {
		c.Arcana = model.ArcanaMajor
		c.Suit = model.SuitNone
		cards = append(cards, c)
	}
	for _, s := range suitMeanings {
		for i, meaning := range s.meanings {
			cards = append(cards, model.Card{
				Name:    rankNames[i] + " of " + s.title,
				Meaning: meaning,
				Arcana:  model.ArcanaMinor,
				Suit:    s.suit,
			})
		}
	}
	return &Deck{cards: cards}
}

// NewFromCards は任意のカードでDeckを生成する。テスト用。
func NewFromCards(cards []model.Card) *Deck {
	cp := make([]model.Card, len(cards))
	copy(cp, cards)
	return &Deck{cards: cp}
}

// All は全カードのコピーを返す。
func (d *Deck) All() []model.Card {
	out := make([]model.Card, len(d.cards))
	copy(out, d.cards)
	return out
}

// Len はカード枚数を返す。
func (d *Deck) Len() int {
	return len(d.cards)
}

// At はi番目のカードを返す。
func (d *Deck) At(i int) model.Card {
	return d.cards[i]
}

// CountsByClassification は大アルカナ・小アルカナの枚数を返す。
func (d *Deck) CountsByClassification() model.DeckCounts {
	var counts model.DeckCounts
	for _, c := range d.cards {
		if c.IsMajor() {
			counts.Major++
		} else {
			counts.Minor++
		}
	}
	counts.Total = len(d.cards)
	return counts
}

// CountsBySuit は小アルカナのスートごとの枚数を返す。
func (d *Deck) CountsBySuit() map[model.Suit]int {
	counts := make(map[model.Suit]int, 4)
	for _, c := range d.cards {
		if c.Arcana == model.ArcanaMinor {
			counts[c.Suit]++
		}
	}
	return counts
}
