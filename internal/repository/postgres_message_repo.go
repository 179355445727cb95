package repository

import (
	"context"
	"database/sql"

	"github.com/hitoshi/chatline/internal/model"
)

// PostgresMessageRepo はPostgreSQLを使用したメッセージリポジトリ。
type PostgresMessageRepo struct {
	db *sql.DB
}

// NewPostgresMessageRepo はPostgresMessageRepoを生成する。
func NewPostgresMessageRepo(db *sql.DB) *PostgresMessageRepo {
	return &PostgresMessageRepo{db: db}
}

// Save はメッセージを追記する。created_atはDB側の時計で採番する。
// 送信者IDに対応するユーザーが存在しない場合もuser_idはNULLとして保存し、失敗にはしない。
func (r *PostgresMessageRepo) Save(ctx context.Context, authorID int64, authorName, body string) (*model.Message, error) {
	msg := &model.Message{
		AuthorName: authorName,
		Body:       body,
	}

	var storedAuthor sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO messages (user_id, username, body)
		 VALUES ((SELECT id FROM users WHERE id = $1), $2, $3)
		 RETURNING id, user_id, created_at`,
		authorID, authorName, body,
	).Scan(&msg.ID, &storedAuthor, &msg.CreatedAt)
	if err != nil {
		return nil, model.NewStorageError("insert message", err)
	}
	if storedAuthor.Valid {
		id := storedAuthor.Int64
		msg.AuthorID = &id
	}

	return msg, nil
}

// Recent は最新のメッセージを新しい順に返す。
// 同一時刻のメッセージはIDの降順で並べる。
func (r *PostgresMessageRepo) Recent(ctx context.Context, limit int) ([]*model.Message, error) {
	limit = clampLimit(limit, model.MaxHistoryLimit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT m.id, m.user_id, m.username, m.body, m.created_at, u.avatar_path
		 FROM messages m
		 LEFT JOIN users u ON m.user_id = u.id
		 ORDER BY m.created_at DESC, m.id DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, model.NewStorageError("list recent messages", err)
	}
	defer rows.Close()

	messages := make([]*model.Message, 0, limit)
	for rows.Next() {
		msg := &model.Message{}
		var authorID sql.NullInt64
		var avatar sql.NullString
		if err := rows.Scan(&msg.ID, &authorID, &msg.AuthorName, &msg.Body, &msg.CreatedAt, &avatar); err != nil {
			return nil, model.NewStorageError("scan message", err)
		}
		if authorID.Valid {
			id := authorID.Int64
			msg.AuthorID = &id
		}
		if avatar.Valid {
			msg.AuthorAvatar = &avatar.String
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, model.NewStorageError("iterate messages", err)
	}

	return messages, nil
}

// compile-time interface check
var _ MessageRepository = (*PostgresMessageRepo)(nil)
