package stats

import (
	"context"

	"github.com/hitoshi/pitlog/internal/model"
	"github.com/hitoshi/pitlog/internal/repository"
)

// Service は集計対象の観戦記録をストアから読み込み、集計結果を返す。
type Service struct {
	catalog repository.CatalogRepository
	logs    repository.LogRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(catalog repository.CatalogRepository, logs repository.LogRepository) *Service {
	return &Service{catalog: catalog, logs: logs}
}

// UserStats はユーザーの集計を返す。
func (s *Service) UserStats(ctx context.Context, userID string) (*UserStats, error) {
	entries, err := s.logs.ListEntriesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	result := ForUser(userID, entries)
	return &result, nil
}

// SessionStats はセッションの集計を返す。セッションが存在しない場合はNotFoundを返す。
func (s *Service) SessionStats(ctx context.Context, sessionID string) (*SessionStats, error) {
	session, err := s.catalog.FindSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, model.NewSessionNotFoundError(sessionID)
	}

	entries, err := s.logs.ListEntriesBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	result := ForSession(sessionID, entries)
	return &result, nil
}
