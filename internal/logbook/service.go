// Package logbook は観戦記録（Log）のライフサイクルを管理する。
package logbook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/pitlog/internal/draft"
	"github.com/hitoshi/pitlog/internal/metrics"
	"github.com/hitoshi/pitlog/internal/model"
	"github.com/hitoshi/pitlog/internal/ownership"
	"github.com/hitoshi/pitlog/internal/repository"
	"github.com/hitoshi/pitlog/internal/spoiler"
	"github.com/hitoshi/pitlog/internal/validate"
)

// CreateLogInput は観戦記録作成の入力値。
type CreateLogInput struct {
	UserID           string
	SessionID        string
	Attended         bool
	StarRating       *float64
	ExcitementRating *int
	Liked            bool
	DateWatched      *string
	Review           *draft.ReviewInput
	Experience       *draft.ExperienceInput
}

// LogPatch は観戦記録の部分更新。nilの項目は変更しない。
// 評価を未指定に戻す場合は Clear* を true にする。
type LogPatch struct {
	Attended              *bool
	StarRating            *float64
	ClearStarRating       bool
	ExcitementRating      *int
	ClearExcitementRating bool
	Liked                 *bool
	DateWatched           *string
}

// Service は観戦記録の作成・取得・更新・削除を提供する。
type Service struct {
	catalog     repository.CatalogRepository
	logs        repository.LogRepository
	reviews     repository.ReviewRepository
	experiences repository.ExperienceRepository
	builder     *draft.Builder
	resolver    *spoiler.Resolver
	metrics     metrics.MetricsCollector
	now         func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	catalog repository.CatalogRepository,
	logs repository.LogRepository,
	reviews repository.ReviewRepository,
	experiences repository.ExperienceRepository,
	builder *draft.Builder,
	resolver *spoiler.Resolver,
	collector metrics.MetricsCollector,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		catalog:     catalog,
		logs:        logs,
		reviews:     reviews,
		experiences: experiences,
		builder:     builder,
		resolver:    resolver,
		metrics:     collector,
		now:         time.Now,
	}
}

// CreateLog は観戦記録を作成する。レビュー・現地観戦体験が指定された場合は同一トランザクションで作成する。
// attended=false の場合、現地観戦体験は無視される。
func (s *Service) CreateLog(ctx context.Context, in CreateLogInput) (*model.LogView, error) {
	session, err := s.catalog.FindSession(ctx, in.SessionID)
	if err != nil {
		return nil, fmt.Errorf("セッションの取得に失敗しました: %w", err)
	}
	if session == nil {
		return nil, model.NewSessionNotFoundError(in.SessionID)
	}

	existing, err := s.logs.FindByUserAndSession(ctx, in.UserID, in.SessionID)
	if err != nil {
		return nil, fmt.Errorf("既存の観戦記録の確認に失敗しました: %w", err)
	}
	if existing != nil {
		s.metrics.RecordConflict("duplicate_log")
		return nil, model.NewDuplicateLogError(in.SessionID)
	}

	now := s.now().UTC()
	var report validate.Report
	watched := draft.Ratings("", in.StarRating, in.ExcitementRating, in.DateWatched, now, &report)

	view := &model.LogView{
		Log: model.Log{
			ID:               draft.NewID(),
			UserID:           in.UserID,
			SessionID:        in.SessionID,
			Attended:         in.Attended,
			StarRating:       in.StarRating,
			ExcitementRating: in.ExcitementRating,
			Liked:            in.Liked,
			LoggedAt:         now,
			DateWatched:      watched,
		},
	}

	if in.Review != nil {
		view.Review = s.builder.Review("review", *in.Review, session, now, &report)
		view.Review.LogID = view.Log.ID
		view.Review.UserID = in.UserID
		view.Review.SessionID = in.SessionID
	}

	if in.Experience != nil && in.Attended {
		exp, err := s.builder.Experience(ctx, "experience", *in.Experience, session.CircuitID, now, &report)
		if err != nil {
			return nil, fmt.Errorf("観客席の確認に失敗しました: %w", err)
		}
		exp.LogID = view.Log.ID
		view.Experience = exp
	}

	if err := report.Err(); err != nil {
		return nil, err
	}

	if err := s.logs.CreateWithAttachments(ctx, view); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			s.metrics.RecordConflict("duplicate_log")
			return nil, model.NewDuplicateLogError(in.SessionID)
		}
		return nil, fmt.Errorf("観戦記録の作成に失敗しました: %w", err)
	}

	s.metrics.RecordLogsCreated(metrics.SourceSingle, 1)
	slog.Info("log created",
		slog.String("log_id", view.Log.ID),
		slog.String("user_id", in.UserID),
		slog.String("session_id", in.SessionID),
		slog.Bool("with_review", view.Review != nil),
		slog.Bool("with_experience", view.Experience != nil),
	)

	return view, nil
}

// GetLog は観戦記録をレビュー・現地観戦体験と合わせて取得する。
// 閲覧者が結果を表示できない場合、ネタバレを含むレビューは本文を伏せて返す。
// 所有者はセッションを記録済みのため常に本文を受け取る。
func (s *Service) GetLog(ctx context.Context, logID, readerID string, revealRequested bool) (*model.LogView, error) {
	log, err := s.logs.FindByID(ctx, logID)
	if err != nil {
		return nil, fmt.Errorf("観戦記録の取得に失敗しました: %w", err)
	}
	if log == nil {
		return nil, model.NewLogNotFoundError(logID)
	}
	view, err := s.compose(ctx, log)
	if err != nil {
		return nil, err
	}
	if log.UserID == readerID {
		return view, nil
	}
	view.Review, err = s.resolver.ShieldReview(ctx, readerID, view.Review, revealRequested)
	if err != nil {
		return nil, fmt.Errorf("ネタバレ表示状態の判定に失敗しました: %w", err)
	}
	return view, nil
}

// GetLogForUserAndSession はユーザーのセッションに対する観戦記録を取得する。
func (s *Service) GetLogForUserAndSession(ctx context.Context, userID, sessionID string) (*model.LogView, error) {
	log, err := s.logs.FindByUserAndSession(ctx, userID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("観戦記録の取得に失敗しました: %w", err)
	}
	if log == nil {
		return nil, &model.APIError{
			Code:     model.ErrCodeLogNotFound,
			Message:  fmt.Sprintf("このセッションの観戦記録はありません: %s", sessionID),
			Category: model.CategoryNotFound,
			Action:   "観戦記録を作成してください。",
		}
	}
	return s.compose(ctx, log)
}

func (s *Service) compose(ctx context.Context, log *model.Log) (*model.LogView, error) {
	review, err := s.reviews.FindByLogID(ctx, log.ID)
	if err != nil {
		return nil, fmt.Errorf("レビューの取得に失敗しました: %w", err)
	}
	experience, err := s.experiences.FindByLogID(ctx, log.ID)
	if err != nil {
		return nil, fmt.Errorf("現地観戦体験の取得に失敗しました: %w", err)
	}
	return &model.LogView{Log: *log, Review: review, Experience: experience}, nil
}

// UpdateLog は観戦記録を部分更新する。所有者のみ実行できる。
// attended を true から false に変更した場合、現地観戦体験は削除される。
func (s *Service) UpdateLog(ctx context.Context, logID, actingUserID string, patch LogPatch) (*model.LogView, error) {
	log, err := s.logs.FindByID(ctx, logID)
	if err != nil {
		return nil, fmt.Errorf("観戦記録の取得に失敗しました: %w", err)
	}
	if log == nil {
		return nil, model.NewLogNotFoundError(logID)
	}
	if err := ownership.RequireLog(actingUserID, log); err != nil {
		return nil, err
	}

	updated := *log
	if patch.Attended != nil {
		updated.Attended = *patch.Attended
	}
	switch {
	case patch.ClearStarRating:
		updated.StarRating = nil
	case patch.StarRating != nil:
		updated.StarRating = patch.StarRating
	}
	switch {
	case patch.ClearExcitementRating:
		updated.ExcitementRating = nil
	case patch.ExcitementRating != nil:
		updated.ExcitementRating = patch.ExcitementRating
	}
	if patch.Liked != nil {
		updated.Liked = *patch.Liked
	}

	var report validate.Report
	report.Add("", validate.Ratings(updated.StarRating, updated.ExcitementRating))
	if d, ok := draft.WatchedDate("date_watched", patch.DateWatched, s.now(), &report); ok {
		updated.DateWatched = d
	}
	if err := report.Err(); err != nil {
		return nil, err
	}

	dropExperience := log.Attended && !updated.Attended
	if err := s.logs.Update(ctx, &updated, dropExperience); err != nil {
		return nil, fmt.Errorf("観戦記録の更新に失敗しました: %w", err)
	}

	return s.compose(ctx, &updated)
}

// DeleteLog は観戦記録を削除する。所有者のみ実行できる。
// レビュー（いいねを含む）と現地観戦体験も同一トランザクションで削除される。
func (s *Service) DeleteLog(ctx context.Context, logID, actingUserID string) error {
	log, err := s.logs.FindByID(ctx, logID)
	if err != nil {
		return fmt.Errorf("観戦記録の取得に失敗しました: %w", err)
	}
	if log == nil {
		return model.NewLogNotFoundError(logID)
	}
	if err := ownership.RequireLog(actingUserID, log); err != nil {
		return err
	}

	deleted, err := s.logs.DeleteCascade(ctx, logID)
	if err != nil {
		return fmt.Errorf("観戦記録の削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewLogNotFoundError(logID)
	}

	s.metrics.RecordLogDeleted()
	slog.Info("log deleted",
		slog.String("log_id", logID),
		slog.String("user_id", actingUserID),
	)
	return nil
}

// UpdateExperience は観戦記録に付随する現地観戦体験を置き換える。所有者のみ実行できる。
func (s *Service) UpdateExperience(ctx context.Context, logID, actingUserID string, in draft.ExperienceInput) (*model.LogView, error) {
	log, err := s.logs.FindByID(ctx, logID)
	if err != nil {
		return nil, fmt.Errorf("観戦記録の取得に失敗しました: %w", err)
	}
	if log == nil {
		return nil, model.NewLogNotFoundError(logID)
	}
	if err := ownership.RequireLog(actingUserID, log); err != nil {
		return nil, err
	}

	current, err := s.experiences.FindByLogID(ctx, logID)
	if err != nil {
		return nil, fmt.Errorf("現地観戦体験の取得に失敗しました: %w", err)
	}
	if current == nil {
		return nil, model.NewExperienceNotFoundError(logID)
	}

	session, err := s.catalog.FindSession(ctx, log.SessionID)
	if err != nil {
		return nil, fmt.Errorf("セッションの取得に失敗しました: %w", err)
	}
	if session == nil {
		return nil, model.NewSessionNotFoundError(log.SessionID)
	}

	var report validate.Report
	next, err := s.builder.Experience(ctx, "", in, session.CircuitID, current.CreatedAt, &report)
	if err != nil {
		return nil, fmt.Errorf("観客席の確認に失敗しました: %w", err)
	}
	if err := report.Err(); err != nil {
		return nil, err
	}
	next.ID = current.ID
	next.LogID = current.LogID

	if err := s.experiences.Update(ctx, next); err != nil {
		return nil, fmt.Errorf("現地観戦体験の更新に失敗しました: %w", err)
	}
	return s.compose(ctx, log)
}
