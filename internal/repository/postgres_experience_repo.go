package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/pitlog/internal/model"
)

// PostgresExperienceRepo はPostgreSQLを使用した現地観戦体験リポジトリ。
type PostgresExperienceRepo struct {
	db *sql.DB
}

// NewPostgresExperienceRepo はPostgresExperienceRepoを生成する。
func NewPostgresExperienceRepo(db *sql.DB) *PostgresExperienceRepo {
	return &PostgresExperienceRepo{db: db}
}

// FindByLogID は観戦記録に付随する体験を取得する。見つからない場合はnilを返す。
func (r *PostgresExperienceRepo) FindByLogID(ctx context.Context, logID string) (*model.Experience, error) {
	if !validUUID(logID) {
		return nil, nil
	}
	e := &model.Experience{}
	var grandstand sql.NullString
	var venue, view, access, facilities, atmosphere sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT id, log_id, grandstand_id, seat_description,
		        venue_rating, view_rating, access_rating, facilities_rating, atmosphere_rating, photo_url, created_at
		 FROM experiences WHERE log_id = $1`,
		logID,
	).Scan(&e.ID, &e.LogID, &grandstand, &e.SeatDescription,
		&venue, &view, &access, &facilities, &atmosphere, &e.PhotoURL, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("現地観戦体験の取得に失敗しました: %w", err)
	}

	e.GrandstandID = stringPtr(grandstand)
	e.VenueRating = intPtr(venue)
	e.ViewRating = intPtr(view)
	e.AccessRating = intPtr(access)
	e.FacilitiesRating = intPtr(facilities)
	e.AtmosphereRating = intPtr(atmosphere)
	e.CreatedAt = e.CreatedAt.UTC()
	return e, nil
}

// Update は体験の内容を更新する。
func (r *PostgresExperienceRepo) Update(ctx context.Context, e *model.Experience) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE experiences
		 SET grandstand_id = $2, seat_description = $3, venue_rating = $4, view_rating = $5,
		     access_rating = $6, facilities_rating = $7, atmosphere_rating = $8, photo_url = $9
		 WHERE id = $1`,
		e.ID, nullString(e.GrandstandID), e.SeatDescription, nullInt(e.VenueRating), nullInt(e.ViewRating),
		nullInt(e.AccessRating), nullInt(e.FacilitiesRating), nullInt(e.AtmosphereRating), e.PhotoURL,
	)
	if err != nil {
		return fmt.Errorf("現地観戦体験の更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("現地観戦体験が見つかりません: %s", e.ID)
	}
	return nil
}

// compile-time interface check
var _ ExperienceRepository = (*PostgresExperienceRepo)(nil)
