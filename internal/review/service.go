// Package review はレビューのライフサイクル（作成・更新・削除・いいね・一覧）を管理する。
package review

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

// ReviewPatch はレビューの部分更新。nilの項目は変更しない。
type ReviewPatch struct {
	Body             *string
	ContainsSpoilers *bool
	Language         *string
}

// LikeResult はいいね操作の結果。
type LikeResult struct {
	ReviewID  string `json:"review_id"`
	LikeCount int    `json:"like_count"`
	Liked     bool   `json:"liked"`
}

// SessionReviews はセッションのレビュー一覧。
// 結果を表示できない閲覧者には、ネタバレを含むレビューは件数のみ返す。
type SessionReviews struct {
	SessionID   string             `json:"session_id"`
	Visibility  spoiler.Resolution `json:"visibility"`
	Reviews     []*model.Review    `json:"reviews"`
	HiddenCount int                `json:"hidden_count"`
}

// Service はレビュー操作を提供する。
type Service struct {
	catalog  repository.CatalogRepository
	logs     repository.LogRepository
	reviews  repository.ReviewRepository
	likes    repository.LikeRepository
	builder  *draft.Builder
	resolver *spoiler.Resolver
	metrics  metrics.MetricsCollector
	now      func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	catalog repository.CatalogRepository,
	logs repository.LogRepository,
	reviews repository.ReviewRepository,
	likes repository.LikeRepository,
	builder *draft.Builder,
	resolver *spoiler.Resolver,
	collector metrics.MetricsCollector,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		catalog:  catalog,
		logs:     logs,
		reviews:  reviews,
		likes:    likes,
		builder:  builder,
		resolver: resolver,
		metrics:  collector,
		now:      time.Now,
	}
}

// CreateReview は既存の観戦記録にレビューを追加する。観戦記録の所有者のみ実行できる。
func (s *Service) CreateReview(ctx context.Context, logID, actingUserID string, in draft.ReviewInput) (*model.Review, error) {
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

	existing, err := s.reviews.FindByLogID(ctx, logID)
	if err != nil {
		return nil, fmt.Errorf("既存のレビューの確認に失敗しました: %w", err)
	}
	if existing != nil {
		s.metrics.RecordConflict("duplicate_review")
		return nil, model.NewDuplicateReviewError()
	}

	session, err := s.session(ctx, log.SessionID)
	if err != nil {
		return nil, err
	}

	var report validate.Report
	rv := s.builder.Review("", in, session, s.now().UTC(), &report)
	if err := report.Err(); err != nil {
		return nil, err
	}
	rv.LogID = log.ID
	rv.UserID = log.UserID
	rv.SessionID = log.SessionID

	if err := s.reviews.Create(ctx, rv); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			s.metrics.RecordConflict("duplicate_review")
			return nil, model.NewDuplicateReviewError()
		}
		return nil, fmt.Errorf("レビューの作成に失敗しました: %w", err)
	}

	slog.Info("review created",
		slog.String("review_id", rv.ID),
		slog.String("log_id", log.ID),
		slog.Bool("contains_spoilers", rv.ContainsSpoilers),
	)
	return rv, nil
}

// GetReview はレビューを取得する。readerID が空の場合は未ログインとして扱う。
// 閲覧者が結果を表示できない場合、ネタバレを含むレビューは本文を伏せて返す。
func (s *Service) GetReview(ctx context.Context, reviewID, readerID string, revealRequested bool) (*model.Review, error) {
	rv, err := s.find(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	shielded, err := s.resolver.ShieldReview(ctx, readerID, rv, revealRequested)
	if err != nil {
		return nil, fmt.Errorf("ネタバレ表示状態の判定に失敗しました: %w", err)
	}
	return shielded, nil
}

func (s *Service) find(ctx context.Context, reviewID string) (*model.Review, error) {
	rv, err := s.reviews.FindByID(ctx, reviewID)
	if err != nil {
		return nil, fmt.Errorf("レビューの取得に失敗しました: %w", err)
	}
	if rv == nil {
		return nil, model.NewReviewNotFoundError(reviewID)
	}
	return rv, nil
}

// UpdateReview はレビューを部分更新する。所有者のみ実行できる。
// ネタバレフラグは更新時にも直近セッションの規則を再適用する。
func (s *Service) UpdateReview(ctx context.Context, reviewID, actingUserID string, patch ReviewPatch) (*model.Review, error) {
	rv, err := s.find(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	if err := ownership.RequireReview(actingUserID, rv); err != nil {
		return nil, err
	}

	session, err := s.session(ctx, rv.SessionID)
	if err != nil {
		return nil, err
	}

	body := rv.Body
	if patch.Body != nil {
		body = *patch.Body
	}
	lang := rv.Language
	if patch.Language != nil {
		lang = *patch.Language
	}
	requested := rv.ContainsSpoilers
	if patch.ContainsSpoilers != nil {
		requested = *patch.ContainsSpoilers
	}

	now := s.now().UTC()
	var report validate.Report
	clean, tag := s.builder.ReviewFields("", body, lang, &report)
	if err := report.Err(); err != nil {
		return nil, err
	}

	updated := *rv
	updated.Body = clean
	updated.Language = tag
	updated.ContainsSpoilers = s.builder.SpoilerFlag(requested, session, now)
	updated.UpdatedAt = now

	if err := s.reviews.Update(ctx, &updated); err != nil {
		return nil, fmt.Errorf("レビューの更新に失敗しました: %w", err)
	}
	return &updated, nil
}

// DeleteReview はレビューといいねを削除する。観戦記録は残る。所有者のみ実行できる。
func (s *Service) DeleteReview(ctx context.Context, reviewID, actingUserID string) error {
	rv, err := s.find(ctx, reviewID)
	if err != nil {
		return err
	}
	if err := ownership.RequireReview(actingUserID, rv); err != nil {
		return err
	}
	if err := s.reviews.Delete(ctx, reviewID); err != nil {
		return fmt.Errorf("レビューの削除に失敗しました: %w", err)
	}
	slog.Info("review deleted",
		slog.String("review_id", reviewID),
		slog.String("user_id", actingUserID),
	)
	return nil
}

// LikeReview はレビューにいいねする。同じユーザーの2回目のいいねはConflictになる。
func (s *Service) LikeReview(ctx context.Context, reviewID, userID string) (*LikeResult, error) {
	if _, err := s.find(ctx, reviewID); err != nil {
		return nil, err
	}

	count, err := s.likes.Like(ctx, userID, reviewID, s.now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			s.metrics.RecordConflict("already_liked")
			return nil, model.NewAlreadyLikedError()
		}
		return nil, fmt.Errorf("いいねの登録に失敗しました: %w", err)
	}

	s.metrics.RecordReviewLike("like")
	return &LikeResult{ReviewID: reviewID, LikeCount: count, Liked: true}, nil
}

// UnlikeReview はいいねを取り消す。いいねしていない場合も成功し、件数は変わらない。
func (s *Service) UnlikeReview(ctx context.Context, reviewID, userID string) (*LikeResult, error) {
	if _, err := s.find(ctx, reviewID); err != nil {
		return nil, err
	}

	count, err := s.likes.Unlike(ctx, userID, reviewID)
	if err != nil {
		return nil, fmt.Errorf("いいねの取り消しに失敗しました: %w", err)
	}

	s.metrics.RecordReviewLike("unlike")
	return &LikeResult{ReviewID: reviewID, LikeCount: count, Liked: false}, nil
}

// ListSessionReviews はセッションのレビュー一覧を返す。readerID が空の場合は未ログインとして扱う。
// 閲覧者が結果を表示できない場合、ネタバレを含むレビューは除外される。
func (s *Service) ListSessionReviews(ctx context.Context, sessionID, readerID string, revealRequested bool) (*SessionReviews, error) {
	session, err := s.session(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	res, err := s.resolver.ResolveSession(ctx, readerID, session, revealRequested)
	if err != nil {
		return nil, fmt.Errorf("ネタバレ表示状態の判定に失敗しました: %w", err)
	}

	all, err := s.reviews.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("レビュー一覧の取得に失敗しました: %w", err)
	}

	out := &SessionReviews{
		SessionID:  sessionID,
		Visibility: res,
		Reviews:    make([]*model.Review, 0, len(all)),
	}
	for _, rv := range all {
		if rv.ContainsSpoilers && !res.ResultsIncluded {
			out.HiddenCount++
			continue
		}
		out.Reviews = append(out.Reviews, rv)
	}
	return out, nil
}

func (s *Service) session(ctx context.Context, sessionID string) (*model.Session, error) {
	session, err := s.catalog.FindSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("セッションの取得に失敗しました: %w", err)
	}
	if session == nil {
		return nil, model.NewSessionNotFoundError(sessionID)
	}
	return session, nil
}
