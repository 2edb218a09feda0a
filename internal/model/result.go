package model

// DrawResult は占いリクエスト1件の結果。
// Success=false の場合は本日すでに引いているため、Statsのみが意味を持つ。
type DrawResult struct {
	Success bool
	Card    Card
	Message string
	Stats   UserStats
	AIUsed  bool
}

// ResetStatus はリセット操作の結果ステータス。
type ResetStatus string

const (
	ResetStatusSuccess ResetStatus = "success"
	ResetStatusError   ResetStatus = "error"
)

// ResetResult はデータベースリセットの結果。
// BackupID はバックアップが作成されなかった場合は空文字列。
type ResetResult struct {
	Status   ResetStatus
	BackupID string
	Message  string
}

// AdminStats は管理者向けの統計情報。
type AdminStats struct {
	Aggregate       AggregateStats
	Deck            DeckCounts
	AIAvailable     bool
	AIEnabled       bool
	StoreLocation   string
	PersistenceMode string
	AdminID         string
}
