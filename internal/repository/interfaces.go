// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hitoshi/pitlog/internal/model"
)

// ErrDuplicate は一意制約違反を表す。サービス層はこれをConflictに変換する。
var ErrDuplicate = errors.New("duplicate key")

// AuthSessionRepository は外部IDサービスが発行したログインセッションの参照インターフェース。
type AuthSessionRepository interface {
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.AuthSession, error)
}

// CatalogRepository はセッション・ラウンド・観客席の参照インターフェース。
// カタログは外部から投入されるため更新系は持たない。
type CatalogRepository interface {
	// FindSession は指定IDのセッションをサーキットIDと結合して取得する。見つからない場合はnilを返す。
	FindSession(ctx context.Context, id string) (*model.Session, error)

	// FindSessions は指定IDのセッションをまとめて取得する。存在しないIDは結果に含まれない。
	FindSessions(ctx context.Context, ids []string) ([]*model.Session, error)

	// FindRound は指定IDのラウンドを取得する。見つからない場合はnilを返す。
	FindRound(ctx context.Context, id string) (*model.Round, error)

	// FindGrandstand は指定IDの観客席を取得する。見つからない場合はnilを返す。
	FindGrandstand(ctx context.Context, id string) (*model.Grandstand, error)
}

// LogRepository は観戦記録の永続化インターフェース。
// Review・Experienceを伴う書き込みは全て1トランザクションで行う。
type LogRepository interface {
	// FindByID は指定IDの観戦記録を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Log, error)

	// FindByUserAndSession はユーザーとセッションで観戦記録を取得する。見つからない場合はnilを返す。
	FindByUserAndSession(ctx context.Context, userID, sessionID string) (*model.Log, error)

	// ListLoggedSessionIDs は指定セッションのうちユーザーが記録済みのセッションIDを返す。
	ListLoggedSessionIDs(ctx context.Context, userID string, sessionIDs []string) ([]string, error)

	// CreateWithAttachments はLogと付随するReview・Experienceを同一トランザクションで作成する。
	// (user_id, session_id) の重複時は ErrDuplicate をラップして返す。
	CreateWithAttachments(ctx context.Context, view *model.LogView) error

	// CreateBatch は複数のLogと付随データを同一トランザクションで作成する。
	// 1件でも失敗した場合は何も永続化しない。
	CreateBatch(ctx context.Context, views []*model.LogView) error

	// Update は観戦記録の可変項目を更新する。dropExperience が true の場合は
	// 同一トランザクションでExperienceを削除する。
	Update(ctx context.Context, log *model.Log, dropExperience bool) error

	// DeleteCascade はいいね、Review、Experience、Logの順に同一トランザクションで削除する。
	// 観戦記録が存在しない場合は false を返す。
	DeleteCascade(ctx context.Context, id string) (bool, error)

	// ListEntriesByUser は集計用にユーザーの全観戦記録を返す。
	ListEntriesByUser(ctx context.Context, userID string) ([]model.LogEntry, error)

	// ListEntriesBySession は集計用にセッションの全観戦記録を返す。
	ListEntriesBySession(ctx context.Context, sessionID string) ([]model.LogEntry, error)
}

// ReviewRepository はレビューの永続化インターフェース。
type ReviewRepository interface {
	// FindByID は指定IDのレビューを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Review, error)

	// FindByLogID は観戦記録に付随するレビューを取得する。見つからない場合はnilを返す。
	FindByLogID(ctx context.Context, logID string) (*model.Review, error)

	// Create はレビューを作成する。同じ観戦記録に既存のレビューがある場合は ErrDuplicate をラップして返す。
	Create(ctx context.Context, review *model.Review) error

	// Update は本文・ネタバレフラグ・言語を更新する。
	Update(ctx context.Context, review *model.Review) error

	// Delete はレビューといいねを同一トランザクションで削除する。
	Delete(ctx context.Context, id string) error

	// ListBySession はセッションに対する全レビューを作成日時の降順で返す。
	ListBySession(ctx context.Context, sessionID string) ([]*model.Review, error)
}

// ExperienceRepository は現地観戦体験の永続化インターフェース。
// 作成と削除はLogRepository経由でのみ行う。
type ExperienceRepository interface {
	// FindByLogID は観戦記録に付随する体験を取得する。見つからない場合はnilを返す。
	FindByLogID(ctx context.Context, logID string) (*model.Experience, error)

	// Update は体験の内容を更新する。
	Update(ctx context.Context, experience *model.Experience) error
}

// LikeRepository はレビューへのいいねの永続化インターフェース。
type LikeRepository interface {
	// Like はいいねを追加し、更新後のいいね数を返す。既にいいね済みの場合は ErrDuplicate をラップして返す。
	Like(ctx context.Context, userID, reviewID string, at time.Time) (int, error)

	// Unlike はいいねを取り消し、更新後のいいね数を返す。いいねしていない場合も成功する。
	Unlike(ctx context.Context, userID, reviewID string) (int, error)

	// Recount は全レビューの like_count を review_likes から再計算し、補正した件数を返す。
	Recount(ctx context.Context) (int64, error)
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
