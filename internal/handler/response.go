package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/pitlog/internal/draft"
	"github.com/hitoshi/pitlog/internal/middleware"
	"github.com/hitoshi/pitlog/internal/model"
)

// maxRequestBody はリクエストボディの上限バイト数。
const maxRequestBody = 1 << 20

// writeAPIErrorResponse は統一エラーフォーマットでレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorのカテゴリからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Category {
	case model.CategoryValidation, model.CategoryBadRequest:
		return http.StatusBadRequest
	case model.CategoryNotFound:
		return http.StatusNotFound
	case model.CategoryForbidden:
		return http.StatusForbidden
	case model.CategoryConflict:
		return http.StatusConflict
	case model.CategoryAuth:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// requireUserID は認証済みユーザーIDを返す。未認証の場合は401を書き込み false を返す。
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteUnauthorized(w)
		return "", false
	}
	return userID, true
}

// decodeJSON はリクエストボディをdstに読み込む。失敗時は400を書き込み false を返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("リクエストボディの解析に失敗しました: "+err.Error()))
		return false
	}
	return true
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// revealRequested は ?reveal= クエリを解析する。未指定は false。
func revealRequested(w http.ResponseWriter, r *http.Request) (bool, bool) {
	raw := r.URL.Query().Get("reveal")
	if raw == "" {
		return false, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("reveal には true または false を指定してください"))
		return false, false
	}
	return v, true
}

// --- リクエスト ---

// reviewRequest はレビュー作成のリクエストボディ。
type reviewRequest struct {
	Body             string `json:"body"`
	ContainsSpoilers bool   `json:"contains_spoilers"`
	Language         string `json:"language"`
}

func (r *reviewRequest) input() *draft.ReviewInput {
	if r == nil {
		return nil
	}
	return &draft.ReviewInput{Body: r.Body, ContainsSpoilers: r.ContainsSpoilers, Language: r.Language}
}

// experienceRequest は現地観戦体験のリクエストボディ。
type experienceRequest struct {
	GrandstandID     *string `json:"grandstand_id"`
	SeatDescription  string  `json:"seat_description"`
	VenueRating      *int    `json:"venue_rating"`
	ViewRating       *int    `json:"view_rating"`
	AccessRating     *int    `json:"access_rating"`
	FacilitiesRating *int    `json:"facilities_rating"`
	AtmosphereRating *int    `json:"atmosphere_rating"`
	PhotoURL         string  `json:"photo_url"`
}

func (r *experienceRequest) input() *draft.ExperienceInput {
	if r == nil {
		return nil
	}
	return &draft.ExperienceInput{
		GrandstandID:     r.GrandstandID,
		SeatDescription:  r.SeatDescription,
		VenueRating:      r.VenueRating,
		ViewRating:       r.ViewRating,
		AccessRating:     r.AccessRating,
		FacilitiesRating: r.FacilitiesRating,
		AtmosphereRating: r.AtmosphereRating,
		PhotoURL:         r.PhotoURL,
	}
}

// --- レスポンス ---

// reviewResponse はレビューのAPIレスポンス。
type reviewResponse struct {
	ID               string    `json:"id"`
	LogID            string    `json:"log_id"`
	UserID           string    `json:"user_id"`
	SessionID        string    `json:"session_id"`
	Body             string    `json:"body"`
	BodyHidden       bool      `json:"body_hidden,omitempty"`
	ContainsSpoilers bool      `json:"contains_spoilers"`
	Language         string    `json:"language,omitempty"`
	LikeCount        int       `json:"like_count"`
	CommentCount     int       `json:"comment_count"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func toReviewResponse(rv *model.Review) *reviewResponse {
	if rv == nil {
		return nil
	}
	return &reviewResponse{
		ID:               rv.ID,
		LogID:            rv.LogID,
		UserID:           rv.UserID,
		SessionID:        rv.SessionID,
		Body:             rv.Body,
		BodyHidden:       rv.BodyHidden,
		ContainsSpoilers: rv.ContainsSpoilers,
		Language:         rv.Language,
		LikeCount:        rv.LikeCount,
		CommentCount:     rv.CommentCount,
		CreatedAt:        rv.CreatedAt,
		UpdatedAt:        rv.UpdatedAt,
	}
}

// experienceResponse は現地観戦体験のAPIレスポンス。
type experienceResponse struct {
	ID               string    `json:"id"`
	GrandstandID     *string   `json:"grandstand_id"`
	SeatDescription  string    `json:"seat_description"`
	VenueRating      *int      `json:"venue_rating"`
	ViewRating       *int      `json:"view_rating"`
	AccessRating     *int      `json:"access_rating"`
	FacilitiesRating *int      `json:"facilities_rating"`
	AtmosphereRating *int      `json:"atmosphere_rating"`
	PhotoURL         string    `json:"photo_url,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

func toExperienceResponse(e *model.Experience) *experienceResponse {
	if e == nil {
		return nil
	}
	return &experienceResponse{
		ID:               e.ID,
		GrandstandID:     e.GrandstandID,
		SeatDescription:  e.SeatDescription,
		VenueRating:      e.VenueRating,
		ViewRating:       e.ViewRating,
		AccessRating:     e.AccessRating,
		FacilitiesRating: e.FacilitiesRating,
		AtmosphereRating: e.AtmosphereRating,
		PhotoURL:         e.PhotoURL,
		CreatedAt:        e.CreatedAt,
	}
}

// logResponse は観戦記録のAPIレスポンス。レビューと現地観戦体験を含む。
type logResponse struct {
	ID               string              `json:"id"`
	UserID           string              `json:"user_id"`
	SessionID        string              `json:"session_id"`
	Attended         bool                `json:"attended"`
	StarRating       *float64            `json:"star_rating"`
	ExcitementRating *int                `json:"excitement_rating"`
	Liked            bool                `json:"liked"`
	LoggedAt         time.Time           `json:"logged_at"`
	DateWatched      string              `json:"date_watched"`
	Review           *reviewResponse     `json:"review"`
	Experience       *experienceResponse `json:"experience"`
}

func toLogResponse(v *model.LogView) *logResponse {
	return &logResponse{
		ID:               v.Log.ID,
		UserID:           v.Log.UserID,
		SessionID:        v.Log.SessionID,
		Attended:         v.Log.Attended,
		StarRating:       v.Log.StarRating,
		ExcitementRating: v.Log.ExcitementRating,
		Liked:            v.Log.Liked,
		LoggedAt:         v.Log.LoggedAt,
		DateWatched:      v.Log.DateWatched.Format(model.DateLayout),
		Review:           toReviewResponse(v.Review),
		Experience:       toExperienceResponse(v.Experience),
	}
}
