package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hitoshi/chatline/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const userColumns = `id, username, email, password_hash, avatar_path, bio, created_at, updated_at`

func scanUser(row *sql.Row) (*model.User, error) {
	user := &model.User{}
	var avatar sql.NullString
	err := row.Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash,
		&avatar, &user.Bio, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if avatar.Valid {
		user.AvatarPath = &avatar.String
	}
	return user, nil
}

// Create はユーザーを作成する。
// 重複チェックは一意制約に任せ、違反時は副作用なしでDUPLICATE_USERを返す。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO users (username, email, password_hash, bio)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at, updated_at`,
		user.Username, user.Email, user.PasswordHash, user.Bio,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if isUniqueViolation(err) {
		return model.NewDuplicateUserError()
	}
	if err != nil {
		return model.NewStorageError("insert user", err)
	}
	return nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, model.NewStorageError("find user by id", err)
	}
	return user, nil
}

// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`,
		email,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, model.NewStorageError("find user by email", err)
	}
	return user, nil
}

// UpdateProfile は指定されたフィールドのみを更新する。
func (r *PostgresUserRepo) UpdateProfile(ctx context.Context, id int64, update model.ProfileUpdate) error {
	sets, args := buildProfileUpdate(update)
	if len(sets) == 0 {
		return model.NewNothingToUpdateError()
	}
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE users SET %s, updated_at = now() WHERE id = $%d`,
		strings.Join(sets, ", "), len(args))

	result, err := r.db.ExecContext(ctx, query, args...)
	if isUniqueViolation(err) {
		return model.NewDuplicateUserError()
	}
	if err != nil {
		return model.NewStorageError("update profile", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return model.NewStorageError("update profile", err)
	}
	if rowsAffected == 0 {
		return model.NewUserNotFoundError()
	}
	return nil
}

// buildProfileUpdate はSET句とプレースホルダ引数を組み立てる。
func buildProfileUpdate(update model.ProfileUpdate) ([]string, []any) {
	var sets []string
	var args []any

	if update.Username != nil {
		args = append(args, *update.Username)
		sets = append(sets, fmt.Sprintf("username = $%d", len(args)))
	}
	if update.Bio != nil {
		args = append(args, *update.Bio)
		sets = append(sets, fmt.Sprintf("bio = $%d", len(args)))
	}
	if update.AvatarPath != nil {
		args = append(args, *update.AvatarPath)
		sets = append(sets, fmt.Sprintf("avatar_path = $%d", len(args)))
	}
	return sets, args
}

// UpdatePasswordHash はパスワードハッシュを更新する。
func (r *PostgresUserRepo) UpdatePasswordHash(ctx context.Context, id int64, passwordHash string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = $1, updated_at = now() WHERE id = $2`,
		passwordHash, id,
	)
	if err != nil {
		return model.NewStorageError("update password", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return model.NewStorageError("update password", err)
	}
	if rowsAffected == 0 {
		return model.NewUserNotFoundError()
	}
	return nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
