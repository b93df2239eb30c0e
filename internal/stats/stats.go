// Package stats はユーザー・セッション単位の集計を提供する。
// 集計は永続化済みの観戦記録とレビューの有無のみから都度計算し、カウンタは保持しない。
package stats

import (
	"github.com/shopspring/decimal"

	"github.com/hitoshi/pitlog/internal/model"
)

// UserStats はユーザー単位の集計結果。
type UserStats struct {
	UserID                  string   `json:"user_id"`
	TotalLogs               int      `json:"total_logs"`
	TotalReviews            int      `json:"total_reviews"`
	AttendedCount           int      `json:"attended_count"`
	WatchedCount            int      `json:"watched_count"`
	CircuitsVisited         int      `json:"circuits_visited"`
	AverageStarRating       *float64 `json:"average_star_rating"`
	AverageExcitementRating *float64 `json:"average_excitement_rating"`
}

// SessionStats はセッション単位の集計結果。
type SessionStats struct {
	SessionID               string   `json:"session_id"`
	TotalLogs               int      `json:"total_logs"`
	TotalReviews            int      `json:"total_reviews"`
	AttendedCount           int      `json:"attended_count"`
	WatchedCount            int      `json:"watched_count"`
	LikedCount              int      `json:"liked_count"`
	AverageStarRating       *float64 `json:"average_star_rating"`
	AverageExcitementRating *float64 `json:"average_excitement_rating"`
}

type counts struct {
	logs, reviews, attended, watched, liked int
}

func count(entries []model.LogEntry) counts {
	var c counts
	for _, e := range entries {
		c.logs++
		if e.HasReview {
			c.reviews++
		}
		if e.Log.Attended {
			c.attended++
		} else {
			c.watched++
		}
		if e.Log.Liked {
			c.liked++
		}
	}
	return c
}

// ForUser はユーザーの観戦記録から集計する。
// 訪問サーキット数は現地観戦（attended）の記録のみを対象に重複を除いて数える。
func ForUser(userID string, entries []model.LogEntry) UserStats {
	c := count(entries)
	circuits := make(map[string]struct{})
	for _, e := range entries {
		if e.Log.Attended && e.CircuitID != "" {
			circuits[e.CircuitID] = struct{}{}
		}
	}
	return UserStats{
		UserID:                  userID,
		TotalLogs:               c.logs,
		TotalReviews:            c.reviews,
		AttendedCount:           c.attended,
		WatchedCount:            c.watched,
		CircuitsVisited:         len(circuits),
		AverageStarRating:       MeanStarRating(logsOf(entries)),
		AverageExcitementRating: MeanExcitementRating(logsOf(entries)),
	}
}

// ForSession はセッションの観戦記録から集計する。
func ForSession(sessionID string, entries []model.LogEntry) SessionStats {
	c := count(entries)
	return SessionStats{
		SessionID:               sessionID,
		TotalLogs:               c.logs,
		TotalReviews:            c.reviews,
		AttendedCount:           c.attended,
		WatchedCount:            c.watched,
		LikedCount:              c.liked,
		AverageStarRating:       MeanStarRating(logsOf(entries)),
		AverageExcitementRating: MeanExcitementRating(logsOf(entries)),
	}
}

func logsOf(entries []model.LogEntry) []model.Log {
	logs := make([]model.Log, len(entries))
	for i, e := range entries {
		logs[i] = e.Log
	}
	return logs
}

// MeanStarRating は星評価が指定された記録のみの算術平均を返す。該当がなければnil。
func MeanStarRating(logs []model.Log) *float64 {
	values := make([]decimal.Decimal, 0, len(logs))
	for _, l := range logs {
		if l.StarRating != nil {
			values = append(values, decimal.NewFromFloat(*l.StarRating))
		}
	}
	return mean(values)
}

// MeanExcitementRating は興奮度が指定された記録のみの算術平均を返す。該当がなければnil。
func MeanExcitementRating(logs []model.Log) *float64 {
	values := make([]decimal.Decimal, 0, len(logs))
	for _, l := range logs {
		if l.ExcitementRating != nil {
			values = append(values, decimal.NewFromInt(int64(*l.ExcitementRating)))
		}
	}
	return mean(values)
}

// mean は小数点以下2桁に丸めた平均を返す。
func mean(values []decimal.Decimal) *float64 {
	if len(values) == 0 {
		return nil
	}
	sum := decimal.Sum(values[0], values[1:]...)
	avg, _ := sum.Div(decimal.NewFromInt(int64(len(values)))).Round(2).Float64()
	return &avg
}
