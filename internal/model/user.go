// Package model はドメインモデルを定義する。
package model

import "time"

// User はチャット利用ユーザーを表す。
// username と email はそれぞれ全体で一意。
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	AvatarPath   *string // 未設定の場合はnil
	Bio          string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ProfileUpdate はプロフィールの部分更新内容を表す。
// nilのフィールドは変更しない。
type ProfileUpdate struct {
	Username   *string
	Bio        *string
	AvatarPath *string
}

// IsEmpty は更新対象のフィールドが1つもない場合にtrueを返す。
func (u ProfileUpdate) IsEmpty() bool {
	return u.Username == nil && u.Bio == nil && u.AvatarPath == nil
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
}
