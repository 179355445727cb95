package model

import "time"

// MaxHistoryLimit はメッセージ履歴の1回の取得件数の上限。
const MaxHistoryLimit = 100

// Message はチャットメッセージを表す。作成後は変更されない。
type Message struct {
	ID int64
	// AuthorID は送信者のユーザーID。送信者が削除された場合はnil。
	AuthorID *int64
	// AuthorName は送信時点のユーザー名のスナップショット。
	AuthorName string
	Body       string
	// AuthorAvatar は履歴取得時に結合される送信者の現在のアバター参照。
	AuthorAvatar *string
	CreatedAt    time.Time
}
