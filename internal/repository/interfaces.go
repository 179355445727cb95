// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/chatline/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// Create はユーザーを作成し、採番されたIDと作成日時をuserに設定する。
	// usernameまたはemailが重複する場合はDUPLICATE_USERのAPIErrorを返す。
	Create(ctx context.Context, user *model.User) error

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// UpdateProfile はプロフィールを部分更新する。
	// usernameが重複する場合はDUPLICATE_USERのAPIErrorを返す。
	UpdateProfile(ctx context.Context, id int64, update model.ProfileUpdate) error

	// UpdatePasswordHash はパスワードハッシュを更新する。
	UpdatePasswordHash(ctx context.Context, id int64, passwordHash string) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID int64) error
}

// MessageRepository はチャットメッセージの永続化インターフェース。
// コアからは追記専用として扱う。
type MessageRepository interface {
	// Save はメッセージを追記し、採番されたIDとサーバー時刻を設定したメッセージを返す。
	// 失敗するのはストレージ障害の場合のみ。
	Save(ctx context.Context, authorID int64, authorName, body string) (*model.Message, error)

	// Recent は最新のメッセージを新しい順に最大limit件返す。
	// limitは1からmodel.MaxHistoryLimitの範囲に丸められる。
	Recent(ctx context.Context, limit int) ([]*model.Message, error)
}
