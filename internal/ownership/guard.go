// Package ownership は変更操作前の所有者チェックを一元的に提供する。
package ownership

import "github.com/hitoshi/pitlog/internal/model"

// Decision は所有者チェックの結果。
type Decision int

const (
	// Forbidden は操作ユーザーが所有者でないことを表す。ゼロ値は拒否として扱う。
	Forbidden Decision = iota
	// Allowed は操作ユーザーが所有者であることを表す。
	Allowed
)

// String はログ出力用の文字列表現を返す。
func (d Decision) String() string {
	if d == Allowed {
		return "allowed"
	}
	return "forbidden"
}

// Check は操作ユーザーがリソースの所有者かを判定する。
// どちらかのIDが空の場合は常に拒否する。
func Check(actingUserID, ownerUserID string) Decision {
	if actingUserID == "" || ownerUserID == "" {
		return Forbidden
	}
	if actingUserID != ownerUserID {
		return Forbidden
	}
	return Allowed
}

// Err は拒否の場合に Forbidden エラーを返す。
func (d Decision) Err() error {
	if d == Allowed {
		return nil
	}
	return model.NewForbiddenError()
}

// RequireLog は観戦記録の所有者であることを要求する。
func RequireLog(actingUserID string, log *model.Log) error {
	return Check(actingUserID, log.UserID).Err()
}

// RequireReview はレビューが付随する観戦記録の所有者であることを要求する。
func RequireReview(actingUserID string, review *model.Review) error {
	return Check(actingUserID, review.UserID).Err()
}
