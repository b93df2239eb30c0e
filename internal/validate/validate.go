// Package validate は観戦記録・レビュー・現地観戦体験の入力検証ルールを提供する。
// 最初の違反で止めず、違反した全フィールドを収集して返す。
package validate

import (
	"errors"
	"math"
	"sort"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"

	"github.com/hitoshi/pitlog/internal/model"
	"github.com/hitoshi/pitlog/internal/security"
)

// 入力値の上限・下限。
const (
	MaxStarRating       = 5.0
	MaxExcitementRating = 10
	MaxReviewBodyLength = 10000
	MaxSeatDescription  = 500
	MinVenueRating      = 1
	MaxVenueRating      = 5
)

var halfPoint = decimal.NewFromFloat(0.5)

// Report は検証エラーを収集する。ゼロ値で使用できる。
type Report struct {
	fields []model.FieldError
}

// Add はozzo-validationのエラーを prefix 付きのフィールド名で追加する。
// validation.Errors はネストを辿って平坦化する。
func (r *Report) Add(prefix string, err error) {
	if err == nil {
		return
	}
	var errs validation.Errors
	if errors.As(err, &errs) {
		for name, e := range errs {
			if e == nil {
				continue
			}
			r.Add(join(prefix, name), e)
		}
		return
	}
	r.fields = append(r.fields, model.FieldError{Field: prefix, Message: err.Error()})
}

// AddField は単一フィールドの違反を追加する。
func (r *Report) AddField(field, message string) {
	r.fields = append(r.fields, model.FieldError{Field: field, Message: message})
}

// Empty は違反が1件もないかを返す。
func (r *Report) Empty() bool {
	return len(r.fields) == 0
}

// Err は違反があれば ValidationError を返す。フィールドは名前順に並べる。
func (r *Report) Err() error {
	if r.Empty() {
		return nil
	}
	fields := make([]model.FieldError, len(r.fields))
	copy(fields, r.fields)
	sort.SliceStable(fields, func(i, j int) bool { return fields[i].Field < fields[j].Field })
	return model.NewValidationError(fields)
}

func join(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// halfStep は0.5刻みの値であることを検証する。
var halfStep = validation.By(func(value interface{}) error {
	v, isNil := validation.Indirect(value)
	if isNil || v == nil {
		return nil
	}
	f, ok := v.(float64)
	if !ok {
		return errors.New("数値で指定してください")
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return errors.New("有限の数値で指定してください")
	}
	if !decimal.NewFromFloat(f).Mod(halfPoint).IsZero() {
		return errors.New("0.5刻みで指定してください")
	}
	return nil
})

// Ratings は星評価（0〜5、0.5刻み）と興奮度（0〜10の整数）を検証する。nilは未指定として許可する。
func Ratings(star *float64, excitement *int) error {
	return validation.Errors{
		"star_rating": validation.Validate(star,
			halfStep,
			validation.Min(0.0).Error("0以上で指定してください"),
			validation.Max(MaxStarRating).Error("5以下で指定してください"),
		),
		"excitement_rating": validation.Validate(excitement,
			validation.Min(0).Error("0以上で指定してください"),
			validation.Max(MaxExcitementRating).Error("10以下で指定してください"),
		),
	}.Filter()
}

// DateWatched は観戦日が未来日でないことを検証する。
// タイムゾーン差を考慮し、UTC基準で翌日までは許可する。
func DateWatched(d, now time.Time) error {
	limit := Today(now).AddDate(0, 0, 1)
	if d.After(limit) {
		return errors.New("未来の日付は指定できません")
	}
	return nil
}

// Today は now のUTC日付（0時）を返す。
func Today(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate は YYYY-MM-DD 形式の日付をUTC 0時として解析する。
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(model.DateLayout, s)
	if err != nil {
		return time.Time{}, errors.New("YYYY-MM-DD 形式で指定してください")
	}
	return t, nil
}

// ReviewBody はサニタイズ済みのレビュー本文を検証する。
func ReviewBody(body string) error {
	return validation.Validate(body,
		validation.Required.Error("本文を入力してください"),
		validation.RuneLength(1, MaxReviewBodyLength).Error("10000文字以内で入力してください"),
	)
}

// Language はBCP 47言語タグを検証し、正規化したタグを返す。空文字は未指定として許可する。
func Language(tag string) (string, error) {
	if tag == "" {
		return "", nil
	}
	parsed, err := language.Parse(tag)
	if err != nil {
		return "", errors.New("BCP 47形式の言語タグを指定してください")
	}
	return parsed.String(), nil
}

// ExperienceFields は現地観戦体験の検証対象。
type ExperienceFields struct {
	SeatDescription  string
	VenueRating      *int
	ViewRating       *int
	AccessRating     *int
	FacilitiesRating *int
	AtmosphereRating *int
	PhotoURL         string
}

func venueRating() []validation.Rule {
	return []validation.Rule{
		validation.NilOrNotEmpty.Error("1〜5で指定してください"),
		validation.Min(MinVenueRating).Error("1以上で指定してください"),
		validation.Max(MaxVenueRating).Error("5以下で指定してください"),
	}
}

var photoURL = validation.By(func(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if err := security.ValidatePhotoURL(s); err != nil {
		return errors.New("公開されているhttp/httpsのURLを指定してください")
	}
	return nil
})

// Experience は現地観戦体験の各項目を検証する。
func Experience(e ExperienceFields) error {
	return validation.Errors{
		"seat_description": validation.Validate(e.SeatDescription,
			validation.RuneLength(0, MaxSeatDescription).Error("500文字以内で入力してください"),
		),
		"venue_rating":      validation.Validate(e.VenueRating, venueRating()...),
		"view_rating":       validation.Validate(e.ViewRating, venueRating()...),
		"access_rating":     validation.Validate(e.AccessRating, venueRating()...),
		"facilities_rating": validation.Validate(e.FacilitiesRating, venueRating()...),
		"atmosphere_rating": validation.Validate(e.AtmosphereRating, venueRating()...),
		"photo_url": validation.Validate(e.PhotoURL,
			is.URL.Error("URL形式で指定してください"),
			photoURL,
		),
	}.Filter()
}
