package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/pitlog/internal/draft"
	"github.com/hitoshi/pitlog/internal/middleware"
	"github.com/hitoshi/pitlog/internal/model"
	"github.com/hitoshi/pitlog/internal/review"
	"github.com/hitoshi/pitlog/internal/spoiler"
)

// ReviewServiceInterface はレビューハンドラーが必要とするサービスインターフェース。
type ReviewServiceInterface interface {
	CreateReview(ctx context.Context, logID, actingUserID string, in draft.ReviewInput) (*model.Review, error)
	GetReview(ctx context.Context, reviewID, readerID string, revealRequested bool) (*model.Review, error)
	UpdateReview(ctx context.Context, reviewID, actingUserID string, patch review.ReviewPatch) (*model.Review, error)
	DeleteReview(ctx context.Context, reviewID, actingUserID string) error
	LikeReview(ctx context.Context, reviewID, userID string) (*review.LikeResult, error)
	UnlikeReview(ctx context.Context, reviewID, userID string) (*review.LikeResult, error)
	ListSessionReviews(ctx context.Context, sessionID, readerID string, revealRequested bool) (*review.SessionReviews, error)
}

// ReviewHandler はレビューのHTTPハンドラー。
type ReviewHandler struct {
	service ReviewServiceInterface
}

// NewReviewHandler はReviewHandlerを生成する。
func NewReviewHandler(service ReviewServiceInterface) *ReviewHandler {
	return &ReviewHandler{service: service}
}

// updateReviewRequest はレビュー更新のリクエストボディ。省略した項目は変更しない。
type updateReviewRequest struct {
	Body             *string `json:"body"`
	ContainsSpoilers *bool   `json:"contains_spoilers"`
	Language         *string `json:"language"`
}

// sessionReviewsResponse はセッションのレビュー一覧のAPIレスポンス。
type sessionReviewsResponse struct {
	SessionID   string             `json:"session_id"`
	Visibility  spoiler.Resolution `json:"visibility"`
	Reviews     []*reviewResponse  `json:"reviews"`
	HiddenCount int                `json:"hidden_count"`
}

// CreateReview は観戦記録にレビューを追加する。
// POST /reviews/log/{logId}
func (h *ReviewHandler) CreateReview(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req reviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rv, err := h.service.CreateReview(r.Context(), chi.URLParam(r, "logId"), userID, *req.input())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReviewResponse(rv))
}

// GetReview はレビューを取得する。閲覧者が結果を表示できない場合、ネタバレ本文は伏せられる。
// GET /reviews/{id}?reveal=true
func (h *ReviewHandler) GetReview(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	reveal, ok := revealRequested(w, r)
	if !ok {
		return
	}

	rv, err := h.service.GetReview(r.Context(), chi.URLParam(r, "id"), userID, reveal)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReviewResponse(rv))
}

// UpdateReview はレビューを部分更新する。
// PUT /reviews/{id}
func (h *ReviewHandler) UpdateReview(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req updateReviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rv, err := h.service.UpdateReview(r.Context(), chi.URLParam(r, "id"), userID, review.ReviewPatch{
		Body:             req.Body,
		ContainsSpoilers: req.ContainsSpoilers,
		Language:         req.Language,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReviewResponse(rv))
}

// DeleteReview はレビューを削除する。
// DELETE /reviews/{id}
func (h *ReviewHandler) DeleteReview(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteReview(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Like はレビューにいいねする。
// POST /reviews/{id}/like
func (h *ReviewHandler) Like(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	res, err := h.service.LikeReview(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Unlike はレビューへのいいねを取り消す。
// DELETE /reviews/{id}/like
func (h *ReviewHandler) Unlike(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	res, err := h.service.UnlikeReview(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListSessionReviews はセッションのレビュー一覧を返す。未ログインでも取得できる。
// GET /reviews/session/{sessionId}?reveal=true
func (h *ReviewHandler) ListSessionReviews(w http.ResponseWriter, r *http.Request) {
	reveal, ok := revealRequested(w, r)
	if !ok {
		return
	}

	list, err := h.service.ListSessionReviews(r.Context(), chi.URLParam(r, "sessionId"),
		middleware.OptionalUserID(r.Context()), reveal)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := sessionReviewsResponse{
		SessionID:   list.SessionID,
		Visibility:  list.Visibility,
		Reviews:     make([]*reviewResponse, 0, len(list.Reviews)),
		HiddenCount: list.HiddenCount,
	}
	for _, rv := range list.Reviews {
		resp.Reviews = append(resp.Reviews, toReviewResponse(rv))
	}
	writeJSON(w, http.StatusOK, resp)
}
