package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/pitlog/internal/model"
)

// PostgresCatalogRepo はPostgreSQLを使用したカタログ参照リポジトリ。
type PostgresCatalogRepo struct {
	db *sql.DB
}

// NewPostgresCatalogRepo はPostgresCatalogRepoを生成する。
func NewPostgresCatalogRepo(db *sql.DB) *PostgresCatalogRepo {
	return &PostgresCatalogRepo{db: db}
}

const sessionColumns = `s.id, s.round_id, r.circuit_id, s.type, s.start_time, s.status`

func scanSession(row interface{ Scan(...any) error }) (*model.Session, error) {
	s := &model.Session{}
	var typ, status string
	if err := row.Scan(&s.ID, &s.RoundID, &s.CircuitID, &typ, &s.StartTime, &status); err != nil {
		return nil, err
	}
	s.Type = model.SessionType(typ)
	s.Status = model.SessionStatus(status)
	s.StartTime = s.StartTime.UTC()
	return s, nil
}

// FindSession は指定IDのセッションをサーキットIDと結合して取得する。見つからない場合はnilを返す。
func (r *PostgresCatalogRepo) FindSession(ctx context.Context, id string) (*model.Session, error) {
	if !validUUID(id) {
		return nil, nil
	}
	s, err := scanSession(r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+`
		 FROM sessions s JOIN rounds r ON r.id = s.round_id
		 WHERE s.id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("セッションの取得に失敗しました: %w", err)
	}
	return s, nil
}

// FindSessions は指定IDのセッションをまとめて取得する。存在しないIDは結果に含まれない。
func (r *PostgresCatalogRepo) FindSessions(ctx context.Context, ids []string) ([]*model.Session, error) {
	ids = filterUUIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sessionColumns+`
		 FROM sessions s JOIN rounds r ON r.id = s.round_id
		 WHERE s.id = ANY($1::uuid[])
		 ORDER BY s.start_time ASC`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("セッション一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var sessions []*model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("セッション行の読み取りに失敗しました: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("セッション一覧の走査に失敗しました: %w", err)
	}
	return sessions, nil
}

// FindRound は指定IDのラウンドを取得する。見つからない場合はnilを返す。
func (r *PostgresCatalogRepo) FindRound(ctx context.Context, id string) (*model.Round, error) {
	if !validUUID(id) {
		return nil, nil
	}
	round := &model.Round{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, circuit_id, name FROM rounds WHERE id = $1`,
		id,
	).Scan(&round.ID, &round.CircuitID, &round.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ラウンドの取得に失敗しました: %w", err)
	}
	return round, nil
}

// FindGrandstand は指定IDの観客席を取得する。見つからない場合はnilを返す。
func (r *PostgresCatalogRepo) FindGrandstand(ctx context.Context, id string) (*model.Grandstand, error) {
	if !validUUID(id) {
		return nil, nil
	}
	g := &model.Grandstand{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, circuit_id, name FROM grandstands WHERE id = $1`,
		id,
	).Scan(&g.ID, &g.CircuitID, &g.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("観客席の取得に失敗しました: %w", err)
	}
	return g, nil
}

// compile-time interface check
var _ CatalogRepository = (*PostgresCatalogRepo)(nil)
