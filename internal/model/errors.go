// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"strings"
)

// エラーカテゴリ。ハンドラーはカテゴリからHTTPステータスを決定する。
const (
	CategoryValidation = "validation"
	CategoryBadRequest = "bad_request"
	CategoryNotFound   = "not_found"
	CategoryForbidden  = "forbidden"
	CategoryConflict   = "conflict"
	CategoryAuth       = "auth"
	CategorySystem     = "system"
)

// FieldError は1フィールド分の検証エラーを表す。
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code       string       // エラーコード
	Message    string       // エラーメッセージ
	Category   string       // カテゴリ: validation, bad_request, not_found, forbidden, conflict, auth, system
	Action     string       // ユーザー向け対処方法
	Fields     []FieldError // 検証エラー時の違反フィールド一覧
	SessionIDs []string     // 一括記録時に問題のあったセッションID一覧
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if len(e.Fields) > 0 {
		names := make([]string, 0, len(e.Fields))
		for _, f := range e.Fields {
			names = append(names, f.Field)
		}
		return fmt.Sprintf("[%s] %s (%s)", e.Code, e.Message, strings.Join(names, ", "))
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation         = "VALIDATION_FAILED"
	ErrCodeSessionNotFound    = "SESSION_NOT_FOUND"
	ErrCodeRoundNotFound      = "ROUND_NOT_FOUND"
	ErrCodeLogNotFound        = "LOG_NOT_FOUND"
	ErrCodeReviewNotFound     = "REVIEW_NOT_FOUND"
	ErrCodeExperienceNotFound = "EXPERIENCE_NOT_FOUND"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeDuplicateLog       = "DUPLICATE_LOG"
	ErrCodeDuplicateReview    = "DUPLICATE_REVIEW"
	ErrCodeAlreadyLiked       = "ALREADY_LIKED"
	ErrCodeSessionsNotInRound = "SESSIONS_NOT_IN_ROUND"
	ErrCodeSessionsLogged     = "SESSIONS_ALREADY_LOGGED"
	ErrCodeEmptyWeekend       = "EMPTY_WEEKEND"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
)

// NewValidationError は検証エラーを生成する。違反した全フィールドを保持する。
func NewValidationError(fields []FieldError) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  "入力内容に誤りがあります。",
		Category: CategoryValidation,
		Action:   "fields に示された項目を修正してください。",
		Fields:   fields,
	}
}

// NewInvalidRequestError はリクエストボディの形式不正エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストの形式が正しくありません: %s", reason),
		Category: CategoryBadRequest,
		Action:   "リクエストボディを確認してください。",
	}
}

// NewSessionNotFoundError はセッション未検出エラーを生成する。
func NewSessionNotFoundError(sessionID string) *APIError {
	return &APIError{
		Code:     ErrCodeSessionNotFound,
		Message:  fmt.Sprintf("指定されたセッションが見つかりません: %s", sessionID),
		Category: CategoryNotFound,
		Action:   "セッションIDを確認してください。",
	}
}

// NewRoundNotFoundError はラウンド未検出エラーを生成する。
func NewRoundNotFoundError(roundID string) *APIError {
	return &APIError{
		Code:     ErrCodeRoundNotFound,
		Message:  fmt.Sprintf("指定されたラウンドが見つかりません: %s", roundID),
		Category: CategoryNotFound,
		Action:   "ラウンドIDを確認してください。",
	}
}

// NewLogNotFoundError は観戦記録未検出エラーを生成する。
func NewLogNotFoundError(logID string) *APIError {
	return &APIError{
		Code:     ErrCodeLogNotFound,
		Message:  fmt.Sprintf("指定された観戦記録が見つかりません: %s", logID),
		Category: CategoryNotFound,
		Action:   "観戦記録IDを確認してください。",
	}
}

// NewReviewNotFoundError はレビュー未検出エラーを生成する。
func NewReviewNotFoundError(reviewID string) *APIError {
	return &APIError{
		Code:     ErrCodeReviewNotFound,
		Message:  fmt.Sprintf("指定されたレビューが見つかりません: %s", reviewID),
		Category: CategoryNotFound,
		Action:   "レビューIDを確認してください。",
	}
}

// NewExperienceNotFoundError は現地観戦体験が未登録の場合のエラーを生成する。
func NewExperienceNotFoundError(logID string) *APIError {
	return &APIError{
		Code:     ErrCodeExperienceNotFound,
		Message:  fmt.Sprintf("観戦記録に現地観戦体験が登録されていません: %s", logID),
		Category: CategoryNotFound,
		Action:   "現地観戦として記録された観戦記録を指定してください。",
	}
}

// NewForbiddenError は所有者以外による変更操作のエラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません。",
		Category: CategoryForbidden,
		Action:   "自分の観戦記録・レビューのみ変更できます。",
	}
}

// NewDuplicateLogError は同一セッションの二重記録エラーを生成する。
func NewDuplicateLogError(sessionID string) *APIError {
	return &APIError{
		Code:       ErrCodeDuplicateLog,
		Message:    fmt.Sprintf("このセッションは既に記録済みです: %s", sessionID),
		Category:   CategoryConflict,
		Action:     "既存の観戦記録を編集してください。",
		SessionIDs: []string{sessionID},
	}
}

// NewDuplicateReviewError は観戦記録に2件目のレビューを作成しようとした場合のエラーを生成する。
func NewDuplicateReviewError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateReview,
		Message:  "この観戦記録には既にレビューがあります。",
		Category: CategoryConflict,
		Action:   "既存のレビューを編集してください。",
	}
}

// NewAlreadyLikedError は同一レビューへの二重いいねエラーを生成する。
func NewAlreadyLikedError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyLiked,
		Message:  "このレビューには既にいいねしています。",
		Category: CategoryConflict,
		Action:   "いいねを取り消す場合は DELETE を使用してください。",
	}
}

// NewSessionsNotInRoundError はラウンドに属さないセッションが含まれる場合のエラーを生成する。
func NewSessionsNotInRoundError(roundID string, sessionIDs []string) *APIError {
	return &APIError{
		Code:       ErrCodeSessionsNotInRound,
		Message:    fmt.Sprintf("ラウンド %s に属さないセッションが含まれています。", roundID),
		Category:   CategoryBadRequest,
		Action:     "session_ids に示されたセッションを取り除いてください。",
		SessionIDs: sessionIDs,
	}
}

// NewSessionsAlreadyLoggedError は一括記録対象に記録済みセッションが含まれる場合のエラーを生成する。
func NewSessionsAlreadyLoggedError(sessionIDs []string) *APIError {
	return &APIError{
		Code:       ErrCodeSessionsLogged,
		Message:    "既に記録済みのセッションが含まれています。",
		Category:   CategoryConflict,
		Action:     "session_ids に示されたセッションを取り除くか、既存の記録を編集してください。",
		SessionIDs: sessionIDs,
	}
}

// NewEmptyWeekendError は一括記録のエントリが空の場合のエラーを生成する。
func NewEmptyWeekendError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptyWeekend,
		Message:  "記録するセッションが指定されていません。",
		Category: CategoryBadRequest,
		Action:   "entries に1件以上のセッションを指定してください。",
	}
}
