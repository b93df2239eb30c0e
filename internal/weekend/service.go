// Package weekend は1ラウンド分の複数セッションを一括で記録する。
// 検証を全て通過した場合のみ1トランザクションで書き込み、途中で失敗した場合は何も残さない。
package weekend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/pitlog/internal/draft"
	"github.com/hitoshi/pitlog/internal/metrics"
	"github.com/hitoshi/pitlog/internal/model"
	"github.com/hitoshi/pitlog/internal/repository"
	"github.com/hitoshi/pitlog/internal/stats"
	"github.com/hitoshi/pitlog/internal/validate"
)

// Entry はセッションごとの記録内容。
type Entry struct {
	SessionID        string
	StarRating       *float64
	ExcitementRating *int
	Liked            bool
	Review           *draft.ReviewInput
}

// Input は一括記録の入力値。Attended と DateWatched は全セッションで共通。
type Input struct {
	UserID      string
	RoundID     string
	Attended    bool
	DateWatched *string
	Entries     []Entry
	Experience  *draft.ExperienceInput
}

// Summary は作成された観戦記録の要約。
type Summary struct {
	LogID         string            `json:"log_id"`
	SessionID     string            `json:"session_id"`
	SessionType   model.SessionType `json:"session_type"`
	StarRating    *float64          `json:"star_rating"`
	HasReview     bool              `json:"has_review"`
	HasExperience bool              `json:"has_experience"`
}

// Result は一括記録の結果。AverageStarRating は評価を指定したエントリのみの平均で、1件もない場合はnil。
type Result struct {
	RoundID           string    `json:"round_id"`
	Logs              []Summary `json:"logs"`
	AverageStarRating *float64  `json:"average_star_rating"`
}

// Service はウィークエンド一括記録を提供する。
type Service struct {
	catalog repository.CatalogRepository
	logs    repository.LogRepository
	builder *draft.Builder
	metrics metrics.MetricsCollector
	now     func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	catalog repository.CatalogRepository,
	logs repository.LogRepository,
	builder *draft.Builder,
	collector metrics.MetricsCollector,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		catalog: catalog,
		logs:    logs,
		builder: builder,
		metrics: collector,
		now:     time.Now,
	}
}

// LogWeekend はラウンドの複数セッションを一括で記録する。
//
// 検証順序:
//  1. ラウンドが存在すること（NotFound）
//  2. 全セッションがラウンドに属し、重複していないこと（BadRequest、該当セッションIDを列挙）
//  3. いずれのセッションも記録済みでないこと（Conflict、該当セッションIDを列挙）
//  4. 各エントリと体験テンプレートの入力値（ValidationError）
//
// attended が true で体験テンプレートが指定された場合、観戦記録ごとに体験を複製して作成する。
func (s *Service) LogWeekend(ctx context.Context, in Input) (*Result, error) {
	round, err := s.catalog.FindRound(ctx, in.RoundID)
	if err != nil {
		return nil, fmt.Errorf("ラウンドの取得に失敗しました: %w", err)
	}
	if round == nil {
		return nil, model.NewRoundNotFoundError(in.RoundID)
	}
	if len(in.Entries) == 0 {
		return nil, model.NewEmptyWeekendError()
	}

	sessions, err := s.sessionsInRound(ctx, round.ID, in.Entries)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(in.Entries))
	for i, e := range in.Entries {
		ids[i] = e.SessionID
	}
	logged, err := s.logs.ListLoggedSessionIDs(ctx, in.UserID, ids)
	if err != nil {
		return nil, fmt.Errorf("記録済みセッションの確認に失敗しました: %w", err)
	}
	if len(logged) > 0 {
		s.metrics.RecordConflict("weekend_already_logged")
		return nil, model.NewSessionsAlreadyLoggedError(inInputOrder(ids, logged))
	}

	now := s.now().UTC()
	var report validate.Report
	watched, _ := draft.WatchedDate("date_watched", in.DateWatched, now, &report)

	var tmpl *model.Experience
	if in.Attended && in.Experience != nil {
		tmpl, err = s.builder.Experience(ctx, "experience", *in.Experience, round.CircuitID, now, &report)
		if err != nil {
			return nil, fmt.Errorf("観客席の確認に失敗しました: %w", err)
		}
	}

	views := make([]*model.LogView, 0, len(in.Entries))
	for i, e := range in.Entries {
		prefix := fmt.Sprintf("entries[%d]", i)
		session := sessions[e.SessionID]
		report.Add(prefix, validate.Ratings(e.StarRating, e.ExcitementRating))

		view := &model.LogView{
			Log: model.Log{
				ID:               draft.NewID(),
				UserID:           in.UserID,
				SessionID:        e.SessionID,
				Attended:         in.Attended,
				StarRating:       e.StarRating,
				ExcitementRating: e.ExcitementRating,
				Liked:            e.Liked,
				LoggedAt:         now,
				DateWatched:      watched,
			},
		}
		if e.Review != nil {
			view.Review = s.builder.Review(prefix+".review", *e.Review, session, now, &report)
			view.Review.LogID = view.Log.ID
			view.Review.UserID = in.UserID
			view.Review.SessionID = e.SessionID
		}
		if tmpl != nil {
			view.Experience = draft.CloneExperience(tmpl, view.Log.ID)
		}
		views = append(views, view)
	}

	if err := report.Err(); err != nil {
		return nil, err
	}

	if err := s.logs.CreateBatch(ctx, views); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			s.metrics.RecordConflict("weekend_already_logged")
			raced, lerr := s.logs.ListLoggedSessionIDs(ctx, in.UserID, ids)
			if lerr != nil {
				return nil, fmt.Errorf("記録済みセッションの確認に失敗しました: %w", lerr)
			}
			return nil, model.NewSessionsAlreadyLoggedError(inInputOrder(ids, raced))
		}
		return nil, fmt.Errorf("ウィークエンドの一括記録に失敗しました: %w", err)
	}

	result := &Result{RoundID: round.ID, Logs: make([]Summary, 0, len(views))}
	created := make([]model.Log, 0, len(views))
	for _, v := range views {
		created = append(created, v.Log)
		result.Logs = append(result.Logs, Summary{
			LogID:         v.Log.ID,
			SessionID:     v.Log.SessionID,
			SessionType:   sessions[v.Log.SessionID].Type,
			StarRating:    v.Log.StarRating,
			HasReview:     v.Review != nil,
			HasExperience: v.Experience != nil,
		})
	}
	result.AverageStarRating = stats.MeanStarRating(created)

	s.metrics.RecordLogsCreated(metrics.SourceWeekend, len(views))
	s.metrics.RecordWeekendBatch(len(views))
	slog.Info("weekend logged",
		slog.String("user_id", in.UserID),
		slog.String("round_id", round.ID),
		slog.Int("sessions", len(views)),
		slog.Bool("attended", in.Attended),
	)

	return result, nil
}

// sessionsInRound はエントリのセッションを取得し、全てがラウンドに属することを確認する。
// 存在しない・別ラウンドの・重複したセッションIDは入力順で列挙して返す。
func (s *Service) sessionsInRound(ctx context.Context, roundID string, entries []Entry) (map[string]*model.Session, error) {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.SessionID
	}
	found, err := s.catalog.FindSessions(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("セッションの取得に失敗しました: %w", err)
	}
	byID := make(map[string]*model.Session, len(found))
	for _, sess := range found {
		byID[sess.ID] = sess
	}

	var offending []string
	seen := make(map[string]bool, len(ids))
	reported := make(map[string]bool)
	for _, id := range ids {
		sess, ok := byID[id]
		bad := !ok || sess.RoundID != roundID || seen[id]
		seen[id] = true
		if bad && !reported[id] {
			reported[id] = true
			offending = append(offending, id)
		}
	}
	if len(offending) > 0 {
		return nil, model.NewSessionsNotInRoundError(roundID, offending)
	}
	return byID, nil
}

// inInputOrder は subset を order の並び順に揃える。
func inInputOrder(order, subset []string) []string {
	in := make(map[string]bool, len(subset))
	for _, id := range subset {
		in[id] = true
	}
	out := make([]string, 0, len(subset))
	for _, id := range order {
		if in[id] {
			out = append(out, id)
			delete(in, id)
		}
	}
	return out
}
