// Package spoiler はユーザーごと・セッションごとのネタバレ表示可否を判定する。
//
// 判定は読み取り時に毎回行い、状態は永続化しない。一時的な表示要求（reveal）は
// 呼び出しごとのパラメータとして渡され、リクエストをまたいで保持されない。
package spoiler

import (
	"context"
	"time"

	"github.com/hitoshi/pitlog/internal/model"
	"github.com/hitoshi/pitlog/internal/repository"
)

// State はネタバレ表示状態。
type State string

const (
	// Hidden は完了済みセッションを未記録のユーザーが閲覧している状態。
	Hidden State = "hidden"
	// VisibleTemporary はユーザーが今回の閲覧に限り表示を要求した状態。
	VisibleTemporary State = "visible_temporary"
	// VisiblePermanent はユーザーがセッションを記録済みの状態。一度記録すれば以後は常に表示される。
	VisiblePermanent State = "visible_permanent"
	// VisibleNotApplicable はセッションが未完了で、隠すべき結果がない状態。
	VisibleNotApplicable State = "visible_not_applicable"
)

// DefaultWindow はレビューのネタバレフラグを強制する期間の既定値。
const DefaultWindow = 7 * 24 * time.Hour

// Resolution は判定結果。ResultsIncluded が true の場合のみ、呼び出し側は結果を応答に含めてよい。
type Resolution struct {
	State           State `json:"state"`
	ResultsIncluded bool  `json:"results_included"`
}

// Decide は記録の有無・セッション状態・表示要求から表示状態を決定する。
// 優先順位: 記録済み > 未完了 > 一時表示要求 > 非表示。
func Decide(hasLog bool, status model.SessionStatus, revealRequested bool) Resolution {
	var state State
	switch {
	case hasLog:
		state = VisiblePermanent
	case status != model.SessionStatusCompleted:
		state = VisibleNotApplicable
	case revealRequested:
		state = VisibleTemporary
	default:
		state = Hidden
	}
	return Resolution{State: state, ResultsIncluded: state != Hidden}
}

// RequiresSpoilerFlag はセッション開始時刻が now から window 以内（未来を含む）かを返す。
// true の場合、レビューの contains_spoilers は投稿者の指定に関わらず true になる。
func RequiresSpoilerFlag(start, now time.Time, window time.Duration) bool {
	return start.After(now.Add(-window))
}

// MetricsRecorder は判定結果を記録するメトリクスのインターフェース。
type MetricsRecorder interface {
	RecordSpoilerResolution(state string)
}

// Resolver はエンティティストアを参照して表示状態を判定する。
type Resolver struct {
	catalog repository.CatalogRepository
	logs    repository.LogRepository
	metrics MetricsRecorder
}

// NewResolver はResolverを生成する。metrics はnilでもよい。
func NewResolver(catalog repository.CatalogRepository, logs repository.LogRepository, metrics MetricsRecorder) *Resolver {
	return &Resolver{catalog: catalog, logs: logs, metrics: metrics}
}

// Resolve はユーザーとセッションの表示状態を判定する。
// userID が空（未ログイン）の場合は記録なしとして扱う。セッションが存在しない場合はNotFoundを返す。
func (r *Resolver) Resolve(ctx context.Context, userID, sessionID string, revealRequested bool) (Resolution, error) {
	session, err := r.catalog.FindSession(ctx, sessionID)
	if err != nil {
		return Resolution{}, err
	}
	if session == nil {
		return Resolution{}, model.NewSessionNotFoundError(sessionID)
	}
	return r.ResolveSession(ctx, userID, session, revealRequested)
}

// ResolveSession は取得済みのセッションに対して表示状態を判定する。
func (r *Resolver) ResolveSession(ctx context.Context, userID string, session *model.Session, revealRequested bool) (Resolution, error) {
	hasLog := false
	if userID != "" {
		log, err := r.logs.FindByUserAndSession(ctx, userID, session.ID)
		if err != nil {
			return Resolution{}, err
		}
		hasLog = log != nil
	}

	res := Decide(hasLog, session.Status, revealRequested)
	if r.metrics != nil {
		r.metrics.RecordSpoilerResolution(string(res.State))
	}
	return res, nil
}

// ShieldReview は閲覧者が結果を表示できない場合、ネタバレを含むレビューの本文を伏せて返す。
// ネタバレなしのレビューはそのまま返す。rv が nil の場合は nil を返す。
func (r *Resolver) ShieldReview(ctx context.Context, readerID string, rv *model.Review, revealRequested bool) (*model.Review, error) {
	if rv == nil || !rv.ContainsSpoilers {
		return rv, nil
	}
	res, err := r.Resolve(ctx, readerID, rv.SessionID, revealRequested)
	if err != nil {
		return nil, err
	}
	return Shield(rv, res), nil
}

// Shield は判定結果に従ってレビューの本文を伏せた複製を返す。
// 結果を表示できる場合やネタバレなしのレビューは元の値を返す。
func Shield(rv *model.Review, res Resolution) *model.Review {
	if rv == nil || !rv.ContainsSpoilers || res.ResultsIncluded {
		return rv
	}
	redacted := *rv
	redacted.Body = ""
	redacted.BodyHidden = true
	return &redacted
}
