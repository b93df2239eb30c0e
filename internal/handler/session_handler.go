package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/pitlog/internal/middleware"
	"github.com/hitoshi/pitlog/internal/spoiler"
)

// VisibilityResolver はネタバレ表示状態の判定インターフェース。
type VisibilityResolver interface {
	Resolve(ctx context.Context, userID, sessionID string, revealRequested bool) (spoiler.Resolution, error)
}

// SessionHandler はセッション単位の表示状態を返すHTTPハンドラー。
type SessionHandler struct {
	resolver VisibilityResolver
}

// NewSessionHandler はSessionHandlerを生成する。
func NewSessionHandler(resolver VisibilityResolver) *SessionHandler {
	return &SessionHandler{resolver: resolver}
}

// visibilityResponse はネタバレ表示状態のAPIレスポンス。
type visibilityResponse struct {
	SessionID string `json:"session_id"`
	spoiler.Resolution
}

// Visibility は閲覧者にとってのセッション結果の表示状態を返す。
// GET /sessions/{sessionId}/visibility?reveal=true
func (h *SessionHandler) Visibility(w http.ResponseWriter, r *http.Request) {
	reveal, ok := revealRequested(w, r)
	if !ok {
		return
	}

	sessionID := chi.URLParam(r, "sessionId")
	res, err := h.resolver.Resolve(r.Context(), middleware.OptionalUserID(r.Context()), sessionID, reveal)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, visibilityResponse{SessionID: sessionID, Resolution: res})
}
