// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// ユーザーの作成・認証は外部のIDサービスが担当し、本サービスは参照のみ行う。
type User struct {
	ID          string
	DisplayName string
	CreatedAt   time.Time
}

// AuthSession は外部IDサービスが発行したログインセッションを表す。
// レースのセッション（Session）と区別するため AuthSession と呼ぶ。
type AuthSession struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
