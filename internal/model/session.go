package model

import "time"

// SessionType はレースウィークエンド内のセッション種別を表す。
type SessionType string

const (
	SessionTypePractice   SessionType = "practice"
	SessionTypeQualifying SessionType = "qualifying"
	SessionTypeSprint     SessionType = "sprint"
	SessionTypeRace       SessionType = "race"
	SessionTypeOther      SessionType = "other"
)

// SessionStatus はセッションの進行状態を表す。
type SessionStatus string

const (
	SessionStatusScheduled  SessionStatus = "scheduled"
	SessionStatusInProgress SessionStatus = "in_progress"
	SessionStatusCompleted  SessionStatus = "completed"
)

// Session はレースウィークエンドの1セッション（FP1、予選、決勝など）を表す。
// カタログデータは外部から投入され、本サービスでは読み取り専用となる。
type Session struct {
	ID        string
	RoundID   string
	CircuitID string // ラウンド経由で結合して取得する
	Type      SessionType
	StartTime time.Time
	Status    SessionStatus
}

// Round はシーズン内の1大会（レースウィークエンド）を表す。
type Round struct {
	ID        string
	CircuitID string
	Name      string
}

// Grandstand はサーキット内の観客席エリアを表す。
type Grandstand struct {
	ID        string
	CircuitID string
	Name      string
}
