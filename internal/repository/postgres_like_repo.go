package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresLikeRepo はPostgreSQLを使用したいいねリポジトリ。
// reviews.like_count は表示用の非正規化カラムで、いいねの追加・取消と同じトランザクションで更新する。
type PostgresLikeRepo struct {
	db *sql.DB
}

// NewPostgresLikeRepo はPostgresLikeRepoを生成する。
func NewPostgresLikeRepo(db *sql.DB) *PostgresLikeRepo {
	return &PostgresLikeRepo{db: db}
}

// Like はいいねを追加し、更新後のいいね数を返す。
func (r *PostgresLikeRepo) Like(ctx context.Context, userID, reviewID string, at time.Time) (int, error) {
	var count int
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := lockReview(ctx, tx, reviewID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO review_likes (user_id, review_id, created_at) VALUES ($1, $2, $3)`,
			userID, reviewID, at,
		)
		if err != nil {
			return fmt.Errorf("いいねの追加に失敗しました: %w", translateError(err))
		}
		return syncLikeCount(ctx, tx, reviewID, &count)
	})
	return count, err
}

// Unlike はいいねを取り消し、更新後のいいね数を返す。いいねしていない場合も成功する。
func (r *PostgresLikeRepo) Unlike(ctx context.Context, userID, reviewID string) (int, error) {
	var count int
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := lockReview(ctx, tx, reviewID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`DELETE FROM review_likes WHERE user_id = $1 AND review_id = $2`,
			userID, reviewID,
		)
		if err != nil {
			return fmt.Errorf("いいねの取消に失敗しました: %w", err)
		}
		return syncLikeCount(ctx, tx, reviewID, &count)
	})
	return count, err
}

// lockReview はレビュー行を排他ロックする。
// 同じレビューへのいいね操作を直列化し、syncLikeCount が他トランザクションの確定済みいいねを数えられるようにする。
func lockReview(ctx context.Context, tx *sql.Tx, reviewID string) error {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM reviews WHERE id = $1 FOR UPDATE`, reviewID).Scan(&id)
	if err == sql.ErrNoRows {
		return fmt.Errorf("レビューが見つかりません: %s", reviewID)
	}
	if err != nil {
		return fmt.Errorf("レビューのロックに失敗しました: %w", err)
	}
	return nil
}

func syncLikeCount(ctx context.Context, tx *sql.Tx, reviewID string, count *int) error {
	err := tx.QueryRowContext(ctx,
		`UPDATE reviews
		 SET like_count = (SELECT COUNT(*) FROM review_likes WHERE review_id = $1)
		 WHERE id = $1
		 RETURNING like_count`,
		reviewID,
	).Scan(count)
	if err == sql.ErrNoRows {
		return fmt.Errorf("レビューが見つかりません: %s", reviewID)
	}
	if err != nil {
		return fmt.Errorf("いいね数の更新に失敗しました: %w", err)
	}
	return nil
}

// Recount は全レビューの like_count を review_likes から再計算し、補正した件数を返す。
func (r *PostgresLikeRepo) Recount(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE reviews rv
		 SET like_count = c.cnt
		 FROM (
		     SELECT rv2.id, COUNT(rl.review_id) AS cnt
		     FROM reviews rv2
		     LEFT JOIN review_likes rl ON rl.review_id = rv2.id
		     GROUP BY rv2.id
		 ) c
		 WHERE rv.id = c.id AND rv.like_count <> c.cnt`,
	)
	if err != nil {
		return 0, fmt.Errorf("いいね数の再計算に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("再計算結果の取得に失敗しました: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ LikeRepository = (*PostgresLikeRepo)(nil)
