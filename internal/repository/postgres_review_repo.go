package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/pitlog/internal/model"
)

// PostgresReviewRepo はPostgreSQLを使用したレビューリポジトリ。
type PostgresReviewRepo struct {
	db *sql.DB
}

// NewPostgresReviewRepo はPostgresReviewRepoを生成する。
func NewPostgresReviewRepo(db *sql.DB) *PostgresReviewRepo {
	return &PostgresReviewRepo{db: db}
}

const reviewSelect = `SELECT rv.id, rv.log_id, l.user_id, l.session_id, rv.body, rv.contains_spoilers, rv.language,
       rv.like_count, rv.comment_count, rv.created_at, rv.updated_at
  FROM reviews rv JOIN logs l ON l.id = rv.log_id`

func scanReview(row interface{ Scan(...any) error }) (*model.Review, error) {
	rv := &model.Review{}
	err := row.Scan(&rv.ID, &rv.LogID, &rv.UserID, &rv.SessionID, &rv.Body, &rv.ContainsSpoilers, &rv.Language,
		&rv.LikeCount, &rv.CommentCount, &rv.CreatedAt, &rv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rv.CreatedAt = rv.CreatedAt.UTC()
	rv.UpdatedAt = rv.UpdatedAt.UTC()
	return rv, nil
}

func insertReview(ctx context.Context, tx *sql.Tx, rv *model.Review) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO reviews (id, log_id, body, contains_spoilers, language, like_count, comment_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rv.ID, rv.LogID, rv.Body, rv.ContainsSpoilers, rv.Language, rv.LikeCount, rv.CommentCount, rv.CreatedAt, rv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("レビューの作成に失敗しました: %w", translateError(err))
	}
	return nil
}

// FindByID は指定IDのレビューを取得する。見つからない場合はnilを返す。
func (r *PostgresReviewRepo) FindByID(ctx context.Context, id string) (*model.Review, error) {
	if !validUUID(id) {
		return nil, nil
	}
	rv, err := scanReview(r.db.QueryRowContext(ctx, reviewSelect+` WHERE rv.id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("レビューの取得に失敗しました: %w", err)
	}
	return rv, nil
}

// FindByLogID は観戦記録に付随するレビューを取得する。見つからない場合はnilを返す。
func (r *PostgresReviewRepo) FindByLogID(ctx context.Context, logID string) (*model.Review, error) {
	if !validUUID(logID) {
		return nil, nil
	}
	rv, err := scanReview(r.db.QueryRowContext(ctx, reviewSelect+` WHERE rv.log_id = $1`, logID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("観戦記録のレビュー取得に失敗しました: %w", err)
	}
	return rv, nil
}

// Create はレビューを作成する。
func (r *PostgresReviewRepo) Create(ctx context.Context, rv *model.Review) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		return insertReview(ctx, tx, rv)
	})
}

// Update は本文・ネタバレフラグ・言語を更新する。
func (r *PostgresReviewRepo) Update(ctx context.Context, rv *model.Review) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE reviews SET body = $2, contains_spoilers = $3, language = $4, updated_at = $5 WHERE id = $1`,
		rv.ID, rv.Body, rv.ContainsSpoilers, rv.Language, rv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("レビューの更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("レビューが見つかりません: %s", rv.ID)
	}
	return nil
}

// Delete はレビューといいねを同一トランザクションで削除する。
func (r *PostgresReviewRepo) Delete(ctx context.Context, id string) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM review_likes WHERE review_id = $1`, id); err != nil {
			return fmt.Errorf("いいねの削除に失敗しました: %w", err)
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM reviews WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("レビューの削除に失敗しました: %w", err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("削除結果の取得に失敗しました: %w", err)
		}
		if rowsAffected == 0 {
			return fmt.Errorf("レビューが見つかりません: %s", id)
		}
		return nil
	})
}

// ListBySession はセッションに対する全レビューを作成日時の降順で返す。
func (r *PostgresReviewRepo) ListBySession(ctx context.Context, sessionID string) ([]*model.Review, error) {
	if !validUUID(sessionID) {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		reviewSelect+` WHERE l.session_id = $1 ORDER BY rv.created_at DESC, rv.id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("セッションのレビュー一覧取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var reviews []*model.Review
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("レビュー行の読み取りに失敗しました: %w", err)
		}
		reviews = append(reviews, rv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("レビュー一覧の走査に失敗しました: %w", err)
	}
	return reviews, nil
}

// compile-time interface check
var _ ReviewRepository = (*PostgresReviewRepo)(nil)
