package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/pitlog/internal/draft"
	"github.com/hitoshi/pitlog/internal/logbook"
	"github.com/hitoshi/pitlog/internal/model"
	"github.com/hitoshi/pitlog/internal/weekend"
)

// LogServiceInterface は観戦記録ハンドラーが必要とするサービスインターフェース。
type LogServiceInterface interface {
	CreateLog(ctx context.Context, in logbook.CreateLogInput) (*model.LogView, error)
	GetLog(ctx context.Context, logID, readerID string, revealRequested bool) (*model.LogView, error)
	GetLogForUserAndSession(ctx context.Context, userID, sessionID string) (*model.LogView, error)
	UpdateLog(ctx context.Context, logID, actingUserID string, patch logbook.LogPatch) (*model.LogView, error)
	DeleteLog(ctx context.Context, logID, actingUserID string) error
	UpdateExperience(ctx context.Context, logID, actingUserID string, in draft.ExperienceInput) (*model.LogView, error)
}

// WeekendServiceInterface はウィークエンド一括記録のサービスインターフェース。
type WeekendServiceInterface interface {
	LogWeekend(ctx context.Context, in weekend.Input) (*weekend.Result, error)
}

// LogHandler は観戦記録のHTTPハンドラー。
type LogHandler struct {
	logs    LogServiceInterface
	weekend WeekendServiceInterface
}

// NewLogHandler はLogHandlerを生成する。
func NewLogHandler(logs LogServiceInterface, weekend WeekendServiceInterface) *LogHandler {
	return &LogHandler{logs: logs, weekend: weekend}
}

// createLogRequest は観戦記録作成のリクエストボディ。
type createLogRequest struct {
	SessionID        string             `json:"session_id"`
	Attended         bool               `json:"attended"`
	StarRating       *float64           `json:"star_rating"`
	ExcitementRating *int               `json:"excitement_rating"`
	Liked            bool               `json:"liked"`
	DateWatched      *string            `json:"date_watched"`
	Review           *reviewRequest     `json:"review"`
	Experience       *experienceRequest `json:"experience"`
}

// updateLogRequest は観戦記録更新のリクエストボディ。省略した項目は変更しない。
type updateLogRequest struct {
	Attended              *bool    `json:"attended"`
	StarRating            *float64 `json:"star_rating"`
	ClearStarRating       bool     `json:"clear_star_rating"`
	ExcitementRating      *int     `json:"excitement_rating"`
	ClearExcitementRating bool     `json:"clear_excitement_rating"`
	Liked                 *bool    `json:"liked"`
	DateWatched           *string  `json:"date_watched"`
}

// weekendEntryRequest はウィークエンド一括記録の1セッション分。
type weekendEntryRequest struct {
	SessionID        string         `json:"session_id"`
	StarRating       *float64       `json:"star_rating"`
	ExcitementRating *int           `json:"excitement_rating"`
	Liked            bool           `json:"liked"`
	Review           *reviewRequest `json:"review"`
}

// weekendRequest はウィークエンド一括記録のリクエストボディ。
type weekendRequest struct {
	RoundID     string                `json:"round_id"`
	Attended    bool                  `json:"attended"`
	DateWatched *string               `json:"date_watched"`
	Entries     []weekendEntryRequest `json:"entries"`
	Experience  *experienceRequest    `json:"experience"`
}

// CreateLog は観戦記録を作成する。
// POST /logs
func (h *LogHandler) CreateLog(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req createLogRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError([]model.FieldError{
			{Field: "session_id", Message: "セッションIDを指定してください"},
		}))
		return
	}

	view, err := h.logs.CreateLog(r.Context(), logbook.CreateLogInput{
		UserID:           userID,
		SessionID:        req.SessionID,
		Attended:         req.Attended,
		StarRating:       req.StarRating,
		ExcitementRating: req.ExcitementRating,
		Liked:            req.Liked,
		DateWatched:      req.DateWatched,
		Review:           req.Review.input(),
		Experience:       req.Experience.input(),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toLogResponse(view))
}

// LogWeekend はラウンドの複数セッションを一括で記録する。
// POST /logs/weekend
func (h *LogHandler) LogWeekend(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req weekendRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	in := weekend.Input{
		UserID:      userID,
		RoundID:     req.RoundID,
		Attended:    req.Attended,
		DateWatched: req.DateWatched,
		Entries:     make([]weekend.Entry, 0, len(req.Entries)),
		Experience:  req.Experience.input(),
	}
	for _, e := range req.Entries {
		in.Entries = append(in.Entries, weekend.Entry{
			SessionID:        e.SessionID,
			StarRating:       e.StarRating,
			ExcitementRating: e.ExcitementRating,
			Liked:            e.Liked,
			Review:           e.Review.input(),
		})
	}

	result, err := h.weekend.LogWeekend(r.Context(), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// GetLog は観戦記録を取得する。他ユーザーのネタバレレビューは閲覧者の状態に応じて本文を伏せる。
// GET /logs/{id}?reveal=true
func (h *LogHandler) GetLog(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	reveal, ok := revealRequested(w, r)
	if !ok {
		return
	}

	view, err := h.logs.GetLog(r.Context(), chi.URLParam(r, "id"), userID, reveal)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLogResponse(view))
}

// GetMyLogForSession はログインユーザーのセッションに対する観戦記録を取得する。
// GET /logs/session/{sessionId}
func (h *LogHandler) GetMyLogForSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	view, err := h.logs.GetLogForUserAndSession(r.Context(), userID, chi.URLParam(r, "sessionId"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLogResponse(view))
}

// UpdateLog は観戦記録を部分更新する。
// PUT /logs/{id}
func (h *LogHandler) UpdateLog(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req updateLogRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	view, err := h.logs.UpdateLog(r.Context(), chi.URLParam(r, "id"), userID, logbook.LogPatch{
		Attended:              req.Attended,
		StarRating:            req.StarRating,
		ClearStarRating:       req.ClearStarRating,
		ExcitementRating:      req.ExcitementRating,
		ClearExcitementRating: req.ClearExcitementRating,
		Liked:                 req.Liked,
		DateWatched:           req.DateWatched,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLogResponse(view))
}

// DeleteLog は観戦記録をレビュー・現地観戦体験ごと削除する。
// DELETE /logs/{id}
func (h *LogHandler) DeleteLog(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.logs.DeleteLog(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateExperience は観戦記録の現地観戦体験を置き換える。
// PUT /logs/{id}/experience
func (h *LogHandler) UpdateExperience(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req experienceRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	view, err := h.logs.UpdateExperience(r.Context(), chi.URLParam(r, "id"), userID, *req.input())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLogResponse(view))
}
