// Package user はプロフィール参照・更新とパスワード変更のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/chatline/internal/auth"
	"github.com/hitoshi/chatline/internal/model"
	"github.com/hitoshi/chatline/internal/repository"
)

// MaxBioLength は自己紹介の最大文字数。
const MaxBioLength = 500

// Service はユーザー管理のサービス層。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	bcryptCost  int
}

// NewService はServiceの新しいインスタンスを生成する。
// bcryptCostが0の場合はbcrypt.DefaultCostを使う。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	bcryptCost int,
) *Service {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		bcryptCost:  bcryptCost,
	}
}

// GetProfile はユーザーを取得する。存在しない場合はUSER_NOT_FOUNDを返す。
func (s *Service) GetProfile(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// UpdateProfile はプロフィールを部分更新し、更新後のユーザーを返す。
func (s *Service) UpdateProfile(ctx context.Context, userID int64, update model.ProfileUpdate) (*model.User, error) {
	if update.IsEmpty() {
		return nil, model.NewNothingToUpdateError()
	}
	if update.Username != nil {
		name := strings.TrimSpace(*update.Username)
		if name == "" {
			return nil, model.NewInvalidInputError("username is required")
		}
		if utf8.RuneCountInString(name) > auth.MaxUsernameLength {
			return nil, model.NewInvalidInputError(fmt.Sprintf("username must be at most %d characters", auth.MaxUsernameLength))
		}
		update.Username = &name
	}
	if update.Bio != nil && utf8.RuneCountInString(*update.Bio) > MaxBioLength {
		return nil, model.NewInvalidInputError(fmt.Sprintf("bio must be at most %d characters", MaxBioLength))
	}

	if err := s.userRepo.UpdateProfile(ctx, userID, update); err != nil {
		return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}

	slog.Info("プロフィールを更新しました", slog.Int64("user_id", userID))
	return s.GetProfile(ctx, userID)
}

// ChangePassword は現在のパスワードを検証してから新しいパスワードに変更する。
// 変更後はそのユーザーの全セッションを失効させる。
func (s *Service) ChangePassword(ctx context.Context, userID int64, current, next string) error {
	if err := auth.ValidatePassword(next); err != nil {
		return err
	}

	user, err := s.GetProfile(ctx, userID)
	if err != nil {
		return err
	}

	ok, err := auth.VerifyPassword(user.PasswordHash, current)
	if err != nil {
		return fmt.Errorf("パスワードの検証に失敗しました: %w", err)
	}
	if !ok {
		return model.NewWrongPasswordError()
	}

	hash, err := auth.HashPassword(next, s.bcryptCost)
	if err != nil {
		return fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
	}
	if err := s.userRepo.UpdatePasswordHash(ctx, userID, hash); err != nil {
		return fmt.Errorf("パスワードの更新に失敗しました: %w", err)
	}

	if s.sessionRepo != nil {
		if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
			return fmt.Errorf("セッションの削除に失敗しました: %w", err)
		}
	}

	slog.Info("パスワードを変更しました", slog.Int64("user_id", userID))
	return nil
}
