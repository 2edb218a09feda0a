package deck

import "github.com/hitoshi/fortunebot/internal/model"

// majorArcana は大アルカナ22枚。
var majorArcana = []model.Card{
	{Name: "The Fool", Meaning: "A fresh start is calling. Step forward with curiosity and trust that the road will meet you."},
	{Name: "The Magician", Meaning: "Everything you need is already in your hands. Focus your will and turn ideas into action."},
	{Name: "The High Priestess", Meaning: "Listen to the quiet voice within. Your intuition knows more than the noise around you."},
	{Name: "The Empress", Meaning: "Abundance grows where care is given. Nurture your plans, your body and the people close to you."},
	{Name: "The Emperor", Meaning: "Structure brings freedom today. Set clear boundaries and lead with calm authority."},
	{Name: "The Hierophant", Meaning: "Tradition holds a useful lesson. Seek a mentor or a proven path before improvising."},
	{Name: "The Lovers", Meaning: "A meaningful choice of the heart is near. Align your decision with your deepest values."},
	{Name: "The Chariot", Meaning: "Victory comes through determination. Hold the reins firmly and keep moving toward your goal."},
	{Name: "Strength", Meaning: "Gentle courage outlasts force. Patience and compassion will tame what seems wild."},
	{Name: "The Hermit", Meaning: "Step back and reflect. A little solitude will light the way forward."},
	{Name: "Wheel of Fortune", Meaning: "The wheel is turning in your favor. Embrace change and watch for lucky openings."},
	{Name: "Justice", Meaning: "Truth and fairness prevail. Act with integrity and the balance will settle in your favor."},
	{Name: "The Hanged Man", Meaning: "A pause reveals a new perspective. Let go of control and see the situation from another angle."},
	{Name: "Death", Meaning: "One chapter closes so another can begin. Release what no longer serves you."},
	{Name: "Temperance", Meaning: "Moderation and patience bring harmony. Blend opposites and find the middle way."},
	{Name: "The Devil", Meaning: "Notice the chains you can remove yourself. Freedom starts with honest awareness of your habits."},
	{Name: "The Tower", Meaning: "A sudden shake-up clears false foundations. What remains standing is truly yours."},
	{Name: "The Star", Meaning: "Hope and healing return. Keep faith in your vision and let yourself be inspired."},
	{Name: "The Moon", Meaning: "Not everything is as it seems. Move carefully through uncertainty and trust your dreams."},
	{Name: "The Sun", Meaning: "Joy, clarity and success shine on you. Share your warmth generously today."},
	{Name: "Judgement", Meaning: "A calling to rise and renew. Forgive the past and answer the invitation to grow."},
	{Name: "The World", Meaning: "A cycle completes with fulfillment. Celebrate how far you have come."},
}

// suitMeanings は小アルカナのスートごとのカード名と意味。
// 並びはAce, Two..Ten, Page, Knight, Queen, King。
var suitMeanings = []struct {
	suit     model.Suit
	title    string
	meanings [14]string
}{
	{
		suit:  model.SuitWands,
		title: "Wands",
		meanings: [14]string{
			"A spark of inspiration arrives. Start the project that excites you.",
			"Plan boldly and look beyond the horizon before you commit.",
			"Your efforts are expanding. Opportunities arrive from afar.",
			"Celebrate a milestone with the people who support you.",
			"Friendly competition sharpens your skills. Stay focused on your own game.",
			"Recognition is coming. Accept praise with grace.",
			"Stand your ground. Your position is stronger than it looks.",
			"Things move fast now. Act quickly while the momentum lasts.",
			"You are close to the finish line. One more push will do it.",
			"Lighten your load. Delegate what you do not need to carry alone.",
			"Curiosity opens doors. Explore a new idea with enthusiasm.",
			"Passion drives you forward. Channel it with a little patience.",
			"Confidence and warmth draw others to you. Lead by example.",
			"Vision and leadership are yours. Set the direction and others will follow.",
		},
	},
	{
		suit:  model.SuitCups,
		title: "Cups",
		meanings: [14]string{
			"Your heart overflows. New love or friendship is beginning.",
			"A deep connection forms. Meet others halfway.",
			"Celebrate with friends. Shared joy multiplies.",
			"Look again at what is offered. Gratitude reveals hidden gifts.",
			"Grieve briefly, then turn around. Not everything is lost.",
			"Sweet memories bring comfort. Reconnect with someone from the past.",
			"Many options glitter. Choose what is real, not just what shines.",
			"It is time to walk away from what no longer fulfills you.",
			"A wish is ready to come true. Enjoy your contentment.",
			"Harmony at home and in the heart. Treasure your people.",
			"A gentle message of affection or creativity is on its way.",
			"Follow your heart with romance and imagination.",
			"Compassion and emotional wisdom guide you. Trust your feelings.",
			"Stay calm in emotional waters. Balance heart and mind.",
		},
	},
	{
		suit:  model.SuitSwords,
		title: "Swords",
		meanings: [14]string{
			"A breakthrough of clarity cuts through confusion. Speak the truth.",
			"A decision is waiting. Remove the blindfold and weigh your options.",
			"Let old hurts heal. Honest words release the pain.",
			"Rest and recover. Quiet time restores your strength.",
			"Choose your battles wisely. Not every win is worth the cost.",
			"You are moving toward calmer waters. Leave the turbulence behind.",
			"Think strategically and be discreet about your plans.",
			"The limits you feel are mostly in the mind. Step out of the circle.",
			"Worries are louder at night. Share your fears and they will shrink.",
			"The hardest part is over. A new dawn follows the end.",
			"Stay curious and alert. Ask good questions.",
			"Act decisively but watch that haste does not cause harm.",
			"Clear boundaries and honest perception serve you well.",
			"Logic and fairness lead to the right decision.",
		},
	},
	{
		suit:  model.SuitPentacles,
		title: "Pentacles",
		meanings: [14]string{
			"A new opportunity for prosperity appears. Plant the seed.",
			"Juggle your priorities with flexibility and a sense of humor.",
			"Teamwork and skill build something lasting.",
			"Save wisely but do not hold on too tightly.",
			"Help is closer than you think. Ask for support.",
			"Generosity flows both ways. Give and receive with balance.",
			"Patience pays. Your investment is growing.",
			"Master your craft through steady, dedicated practice.",
			"Enjoy the rewards of your independence and hard work.",
			"Lasting security and family blessings surround you.",
			"A practical study or new skill brings future rewards.",
			"Slow and steady wins. Keep your routine.",
			"Practical care creates comfort for you and others.",
			"Success and stability are within reach. Build your legacy.",
		},
	},
}

// rankNames は小アルカナのランク名。
var rankNames = [14]string{
	"Ace", "Two", "Three", "Four", "Five", "Six", "Seven",
	"Eight", "Nine", "Ten", "Page", "Knight", "Queen", "King",
}
