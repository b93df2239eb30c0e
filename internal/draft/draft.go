// Package draft はリクエスト入力から検証済みのReview・Experienceを組み立てる。
// 単体の観戦記録作成、レビュー作成、ウィークエンド一括記録で同じ規則を共有する。
package draft

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/pitlog/internal/model"
	"github.com/hitoshi/pitlog/internal/repository"
	"github.com/hitoshi/pitlog/internal/security"
	"github.com/hitoshi/pitlog/internal/spoiler"
	"github.com/hitoshi/pitlog/internal/validate"
)

// ReviewInput はレビューの入力値。
type ReviewInput struct {
	Body             string
	ContainsSpoilers bool
	Language         string
}

// ExperienceInput は現地観戦体験の入力値。
type ExperienceInput struct {
	GrandstandID     *string
	SeatDescription  string
	VenueRating      *int
	ViewRating       *int
	AccessRating     *int
	FacilitiesRating *int
	AtmosphereRating *int
	PhotoURL         string
}

// Builder は入力値を検証し、永続化可能なモデルを組み立てる。
type Builder struct {
	catalog       repository.CatalogRepository
	sanitizer     security.TextSanitizer
	spoilerWindow time.Duration
}

// NewBuilder はBuilderを生成する。spoilerWindow が0以下の場合は既定の7日間を使う。
func NewBuilder(catalog repository.CatalogRepository, sanitizer security.TextSanitizer, spoilerWindow time.Duration) *Builder {
	if spoilerWindow <= 0 {
		spoilerWindow = spoiler.DefaultWindow
	}
	return &Builder{catalog: catalog, sanitizer: sanitizer, spoilerWindow: spoilerWindow}
}

// NewID は新しいエンティティIDを生成する。
func NewID() string {
	return uuid.New().String()
}

// SpoilerFlag は保存するネタバレフラグを返す。
// セッション開始が直近の場合は投稿者の指定に関わらず true になる。
func (b *Builder) SpoilerFlag(requested bool, session *model.Session, now time.Time) bool {
	return requested || spoiler.RequiresSpoilerFlag(session.StartTime, now, b.spoilerWindow)
}

// ReviewFields はレビュー本文をサニタイズし、本文と言語タグを検証する。
// 違反は report に prefix 付きで追加される。
func (b *Builder) ReviewFields(prefix string, body, language string, report *validate.Report) (string, string) {
	clean := b.sanitizer.Sanitize(body)
	report.Add(joinField(prefix, "body"), validate.ReviewBody(clean))
	tag, err := validate.Language(language)
	report.Add(joinField(prefix, "language"), err)
	return clean, tag
}

// Review は新規レビューを組み立てる。LogIDは呼び出し側で設定する。
func (b *Builder) Review(prefix string, in ReviewInput, session *model.Session, now time.Time, report *validate.Report) *model.Review {
	body, tag := b.ReviewFields(prefix, in.Body, in.Language, report)
	return &model.Review{
		ID:               NewID(),
		Body:             body,
		ContainsSpoilers: b.SpoilerFlag(in.ContainsSpoilers, session, now),
		Language:         tag,
		LikeCount:        0,
		CommentCount:     0,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Experience は現地観戦体験を組み立てる。観客席が指定された場合は circuitID のサーキットに属することを確認する。
// LogIDは呼び出し側で設定する。
func (b *Builder) Experience(ctx context.Context, prefix string, in ExperienceInput, circuitID string, now time.Time, report *validate.Report) (*model.Experience, error) {
	report.Add(prefix, validate.Experience(validate.ExperienceFields{
		SeatDescription:  in.SeatDescription,
		VenueRating:      in.VenueRating,
		ViewRating:       in.ViewRating,
		AccessRating:     in.AccessRating,
		FacilitiesRating: in.FacilitiesRating,
		AtmosphereRating: in.AtmosphereRating,
		PhotoURL:         in.PhotoURL,
	}))

	if in.GrandstandID != nil {
		g, err := b.catalog.FindGrandstand(ctx, *in.GrandstandID)
		if err != nil {
			return nil, err
		}
		switch {
		case g == nil:
			report.AddField(joinField(prefix, "grandstand_id"), "指定された観客席が見つかりません")
		case g.CircuitID != circuitID:
			report.AddField(joinField(prefix, "grandstand_id"), "セッションのサーキットに属する観客席を指定してください")
		}
	}

	return &model.Experience{
		ID:               NewID(),
		GrandstandID:     cloneString(in.GrandstandID),
		SeatDescription:  in.SeatDescription,
		VenueRating:      cloneInt(in.VenueRating),
		ViewRating:       cloneInt(in.ViewRating),
		AccessRating:     cloneInt(in.AccessRating),
		FacilitiesRating: cloneInt(in.FacilitiesRating),
		AtmosphereRating: cloneInt(in.AtmosphereRating),
		PhotoURL:         in.PhotoURL,
		CreatedAt:        now,
	}, nil
}

// CloneExperience はテンプレートから別の観戦記録用の体験を複製する。IDは新しく採番する。
func CloneExperience(tmpl *model.Experience, logID string) *model.Experience {
	c := *tmpl
	c.ID = NewID()
	c.LogID = logID
	c.GrandstandID = cloneString(tmpl.GrandstandID)
	c.VenueRating = cloneInt(tmpl.VenueRating)
	c.ViewRating = cloneInt(tmpl.ViewRating)
	c.AccessRating = cloneInt(tmpl.AccessRating)
	c.FacilitiesRating = cloneInt(tmpl.FacilitiesRating)
	c.AtmosphereRating = cloneInt(tmpl.AtmosphereRating)
	return &c
}

// Ratings は星評価・興奮度・観戦日を検証し、観戦日を確定して返す。
// date は YYYY-MM-DD 形式。nil の場合は now のUTC日付を使う。
func Ratings(prefix string, star *float64, excitement *int, date *string, now time.Time, report *validate.Report) time.Time {
	report.Add(prefix, validate.Ratings(star, excitement))
	watched, _ := WatchedDate(joinField(prefix, "date_watched"), date, now, report)
	return watched
}

// WatchedDate は観戦日を解析し、未来日でないことを検証する。
// 形式違反も日付違反も report に追加し、他の項目の検証は止めない。
// raw が nil または解析できない場合は now のUTC日付と false を返す。
func WatchedDate(field string, raw *string, now time.Time, report *validate.Report) (time.Time, bool) {
	today := validate.Today(now)
	if raw == nil {
		return today, false
	}
	d, err := validate.ParseDate(*raw)
	if err != nil {
		report.Add(field, err)
		return today, false
	}
	report.Add(field, validate.DateWatched(d, now))
	return d, true
}

func joinField(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
