package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/pitlog/internal/model"
)

// PostgresLogRepo はPostgreSQLを使用した観戦記録リポジトリ。
type PostgresLogRepo struct {
	db *sql.DB
}

// NewPostgresLogRepo はPostgresLogRepoを生成する。
func NewPostgresLogRepo(db *sql.DB) *PostgresLogRepo {
	return &PostgresLogRepo{db: db}
}

const logColumns = `l.id, l.user_id, l.session_id, l.attended, l.star_rating, l.excitement_rating, l.liked, l.logged_at, l.date_watched`

func scanLog(row interface{ Scan(...any) error }, extra ...any) (*model.Log, error) {
	l := &model.Log{}
	var star sql.NullFloat64
	var excitement sql.NullInt64
	dest := []any{&l.ID, &l.UserID, &l.SessionID, &l.Attended, &star, &excitement, &l.Liked, &l.LoggedAt, &l.DateWatched}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	l.StarRating = floatPtr(star)
	l.ExcitementRating = intPtr(excitement)
	l.LoggedAt = l.LoggedAt.UTC()
	l.DateWatched = dateOnly(l.DateWatched)
	return l, nil
}

// FindByID は指定IDの観戦記録を取得する。見つからない場合はnilを返す。
func (r *PostgresLogRepo) FindByID(ctx context.Context, id string) (*model.Log, error) {
	if !validUUID(id) {
		return nil, nil
	}
	l, err := scanLog(r.db.QueryRowContext(ctx,
		`SELECT `+logColumns+` FROM logs l WHERE l.id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("観戦記録の取得に失敗しました: %w", err)
	}
	return l, nil
}

// FindByUserAndSession はユーザーとセッションで観戦記録を取得する。見つからない場合はnilを返す。
func (r *PostgresLogRepo) FindByUserAndSession(ctx context.Context, userID, sessionID string) (*model.Log, error) {
	if !validUUID(userID) || !validUUID(sessionID) {
		return nil, nil
	}
	l, err := scanLog(r.db.QueryRowContext(ctx,
		`SELECT `+logColumns+` FROM logs l WHERE l.user_id = $1 AND l.session_id = $2`,
		userID, sessionID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーとセッションによる観戦記録の検索に失敗しました: %w", err)
	}
	return l, nil
}

// ListLoggedSessionIDs は指定セッションのうちユーザーが記録済みのセッションIDを返す。
func (r *PostgresLogRepo) ListLoggedSessionIDs(ctx context.Context, userID string, sessionIDs []string) ([]string, error) {
	sessionIDs = filterUUIDs(sessionIDs)
	if !validUUID(userID) || len(sessionIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT session_id FROM logs
		 WHERE user_id = $1 AND session_id = ANY($2::uuid[])
		 ORDER BY session_id`,
		userID, pq.Array(sessionIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("記録済みセッションの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("記録済みセッション行の読み取りに失敗しました: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("記録済みセッションの走査に失敗しました: %w", err)
	}
	return ids, nil
}

// CreateWithAttachments はLogと付随するReview・Experienceを同一トランザクションで作成する。
func (r *PostgresLogRepo) CreateWithAttachments(ctx context.Context, view *model.LogView) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		return insertLogView(ctx, tx, view)
	})
}

// CreateBatch は複数のLogと付随データを同一トランザクションで作成する。
func (r *PostgresLogRepo) CreateBatch(ctx context.Context, views []*model.LogView) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, view := range views {
			if err := insertLogView(ctx, tx, view); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertLogView(ctx context.Context, tx *sql.Tx, view *model.LogView) error {
	l := view.Log
	_, err := tx.ExecContext(ctx,
		`INSERT INTO logs (id, user_id, session_id, attended, star_rating, excitement_rating, liked, logged_at, date_watched)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::date)`,
		l.ID, l.UserID, l.SessionID, l.Attended, nullFloat(l.StarRating), nullInt(l.ExcitementRating),
		l.Liked, l.LoggedAt, l.DateWatched.Format(model.DateLayout),
	)
	if err != nil {
		return fmt.Errorf("観戦記録の作成に失敗しました (session_id=%s): %w", l.SessionID, translateError(err))
	}

	if rv := view.Review; rv != nil {
		if err := insertReview(ctx, tx, rv); err != nil {
			return err
		}
	}

	if e := view.Experience; e != nil {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO experiences (id, log_id, grandstand_id, seat_description,
			     venue_rating, view_rating, access_rating, facilities_rating, atmosphere_rating, photo_url, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			e.ID, e.LogID, nullString(e.GrandstandID), e.SeatDescription,
			nullInt(e.VenueRating), nullInt(e.ViewRating), nullInt(e.AccessRating),
			nullInt(e.FacilitiesRating), nullInt(e.AtmosphereRating), e.PhotoURL, e.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("現地観戦体験の作成に失敗しました: %w", translateError(err))
		}
	}
	return nil
}

// Update は観戦記録の可変項目を更新する。
func (r *PostgresLogRepo) Update(ctx context.Context, l *model.Log, dropExperience bool) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE logs
			 SET attended = $2, star_rating = $3, excitement_rating = $4, liked = $5, date_watched = $6::date
			 WHERE id = $1`,
			l.ID, l.Attended, nullFloat(l.StarRating), nullInt(l.ExcitementRating), l.Liked,
			l.DateWatched.Format(model.DateLayout),
		)
		if err != nil {
			return fmt.Errorf("観戦記録の更新に失敗しました: %w", err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("更新結果の取得に失敗しました: %w", err)
		}
		if rowsAffected == 0 {
			return fmt.Errorf("観戦記録が見つかりません: %s", l.ID)
		}

		if dropExperience {
			if _, err := tx.ExecContext(ctx, `DELETE FROM experiences WHERE log_id = $1`, l.ID); err != nil {
				return fmt.Errorf("現地観戦体験の削除に失敗しました: %w", err)
			}
		}
		return nil
	})
}

// DeleteCascade はいいね、Review、Experience、Logの順に同一トランザクションで削除する。
func (r *PostgresLogRepo) DeleteCascade(ctx context.Context, id string) (bool, error) {
	if !validUUID(id) {
		return false, nil
	}
	var deleted bool
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		steps := []struct {
			query string
			what  string
		}{
			{`DELETE FROM review_likes WHERE review_id IN (SELECT id FROM reviews WHERE log_id = $1)`, "いいね"},
			{`DELETE FROM reviews WHERE log_id = $1`, "レビュー"},
			{`DELETE FROM experiences WHERE log_id = $1`, "現地観戦体験"},
		}
		for _, step := range steps {
			if _, err := tx.ExecContext(ctx, step.query, id); err != nil {
				return fmt.Errorf("%sの削除に失敗しました: %w", step.what, err)
			}
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM logs WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("観戦記録の削除に失敗しました: %w", err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("削除結果の取得に失敗しました: %w", err)
		}
		deleted = rowsAffected > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

// ListEntriesByUser は集計用にユーザーの全観戦記録を返す。
func (r *PostgresLogRepo) ListEntriesByUser(ctx context.Context, userID string) ([]model.LogEntry, error) {
	if !validUUID(userID) {
		return nil, nil
	}
	return r.listEntries(ctx, `l.user_id = $1`, userID)
}

// ListEntriesBySession は集計用にセッションの全観戦記録を返す。
func (r *PostgresLogRepo) ListEntriesBySession(ctx context.Context, sessionID string) ([]model.LogEntry, error) {
	if !validUUID(sessionID) {
		return nil, nil
	}
	return r.listEntries(ctx, `l.session_id = $1`, sessionID)
}

func (r *PostgresLogRepo) listEntries(ctx context.Context, where string, arg string) ([]model.LogEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+logColumns+`, rv.id IS NOT NULL, rd.circuit_id
		 FROM logs l
		 JOIN sessions s ON s.id = l.session_id
		 JOIN rounds rd ON rd.id = s.round_id
		 LEFT JOIN reviews rv ON rv.log_id = l.id
		 WHERE `+where+`
		 ORDER BY l.logged_at ASC`,
		arg,
	)
	if err != nil {
		return nil, fmt.Errorf("集計用観戦記録の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var entries []model.LogEntry
	for rows.Next() {
		var hasReview bool
		var circuitID string
		l, err := scanLog(rows, &hasReview, &circuitID)
		if err != nil {
			return nil, fmt.Errorf("集計用観戦記録行の読み取りに失敗しました: %w", err)
		}
		entries = append(entries, model.LogEntry{Log: *l, HasReview: hasReview, CircuitID: circuitID})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("集計用観戦記録の走査に失敗しました: %w", err)
	}
	return entries, nil
}

// compile-time interface check
var _ LogRepository = (*PostgresLogRepo)(nil)
