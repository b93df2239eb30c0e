package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/pitlog/internal/stats"
)

// StatsServiceInterface は集計ハンドラーが必要とするサービスインターフェース。
type StatsServiceInterface interface {
	UserStats(ctx context.Context, userID string) (*stats.UserStats, error)
	SessionStats(ctx context.Context, sessionID string) (*stats.SessionStats, error)
}

// StatsHandler は集計のHTTPハンドラー。
type StatsHandler struct {
	service StatsServiceInterface
}

// NewStatsHandler はStatsHandlerを生成する。
func NewStatsHandler(service StatsServiceInterface) *StatsHandler {
	return &StatsHandler{service: service}
}

// MyStats はログインユーザーの集計を返す。
// GET /stats/me
func (h *StatsHandler) MyStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	s, err := h.service.UserStats(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// SessionStats はセッションの集計を返す。
// GET /stats/sessions/{sessionId}
func (h *StatsHandler) SessionStats(w http.ResponseWriter, r *http.Request) {
	s, err := h.service.SessionStats(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
