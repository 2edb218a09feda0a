// Package model はドメインモデルを定義する。
package model

// DateLayout は永続化する日付（ISO-8601のカレンダー日付）のレイアウト。
const DateLayout = "2006-01-02"

// UserRecord はユーザーごとの占い利用状況を表す。
// JSONのフィールド名は既存のusers_data.jsonとの互換性のために固定している。
// 不変条件: TotalDraws == 0 ⇔ LastDrawDate == ""。
type UserRecord struct {
	LastDrawDate string `json:"last_fortune_date,omitempty"`
	TotalDraws   int    `json:"total_fortunes"`
	DisplayName  string `json:"first_name,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
}

// Snapshot はユーザーID（文字列化済み）からUserRecordへの完全なマッピング。
// 永続化の単位であり、Storeだけが所有する。
type Snapshot map[string]UserRecord

// TotalDraws は全ユーザーの累計ドロー数を返す。
func (s Snapshot) TotalDraws() int {
	total := 0
	for _, rec := range s {
		total += rec.TotalDraws
	}
	return total
}

// UserStats は1ユーザー分の統計情報。
type UserStats struct {
	TotalDraws   int
	LastDrawDate string
	CreatedAt    string
	CanDrawToday bool
}

// AggregateStats は全ユーザーの集計値。
type AggregateStats struct {
	TotalUsers  int
	TotalDraws  int
	ActiveToday int
}
