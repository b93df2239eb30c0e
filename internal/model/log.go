package model

import "time"

// DateLayout は date_watched の入出力形式。
const DateLayout = "2006-01-02"

// Log はユーザーが1セッションを観戦（現地またはTV等）した記録を表す。
// 同一ユーザー・同一セッションに対してLogは1件のみ存在できる。
type Log struct {
	ID               string
	UserID           string
	SessionID        string
	Attended         bool
	StarRating       *float64 // 0〜5、0.5刻み
	ExcitementRating *int     // 0〜10
	Liked            bool
	LoggedAt         time.Time
	DateWatched      time.Time // 日付のみ（UTC 0時）
}

// Review はLogに付随する文章レビューを表す。Log1件につき最大1件。
type Review struct {
	ID               string
	LogID            string
	UserID           string // Log経由で結合して取得する
	SessionID        string // Log経由で結合して取得する
	Body             string
	ContainsSpoilers bool
	Language         string
	LikeCount        int
	CommentCount     int
	CreatedAt        time.Time
	UpdatedAt        time.Time

	// BodyHidden は閲覧者に対してネタバレ本文を伏せた場合に true。永続化しない。
	BodyHidden bool
}

// Experience は現地観戦時の座席・会場体験を表す。attended=true のLogにのみ付随する。
type Experience struct {
	ID               string
	LogID            string
	GrandstandID     *string
	SeatDescription  string
	VenueRating      *int
	ViewRating       *int
	AccessRating     *int
	FacilitiesRating *int
	AtmosphereRating *int
	PhotoURL         string
	CreatedAt        time.Time
}

// ReviewLike はユーザーによるレビューへの「いいね」を表す。
type ReviewLike struct {
	UserID    string
	ReviewID  string
	CreatedAt time.Time
}

// LogView はLogと付随するReview・Experienceをまとめた読み取り用の値。
type LogView struct {
	Log        Log
	Review     *Review
	Experience *Experience
}

// LogEntry は集計用にLogへレビュー有無とサーキットIDを付与したもの。
type LogEntry struct {
	Log       Log
	HasReview bool
	CircuitID string
}
