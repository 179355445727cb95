package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/chatline/internal/model"
)

func TestPostgresUserRepo_ImplementsInterface(t *testing.T) {
	var _ UserRepository = (*PostgresUserRepo)(nil)
}

func TestPostgresSessionRepo_ImplementsInterface(t *testing.T) {
	var _ SessionRepository = (*PostgresSessionRepo)(nil)
}

func TestBuildProfileUpdate(t *testing.T) {
	tests := []struct {
		name     string
		update   model.ProfileUpdate
		wantSets []string
		wantArgs int
	}{
		{"空", model.ProfileUpdate{}, nil, 0},
		{"usernameのみ", model.ProfileUpdate{Username: strPtr("alice")}, []string{"username = $1"}, 1},
		{"bioとavatar", model.ProfileUpdate{Bio: strPtr(""), AvatarPath: strPtr("a.png")}, []string{"bio = $1", "avatar_path = $2"}, 2},
		{
			"全フィールド",
			model.ProfileUpdate{Username: strPtr("a"), Bio: strPtr("b"), AvatarPath: strPtr("c")},
			[]string{"username = $1", "bio = $2", "avatar_path = $3"},
			3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sets, args := buildProfileUpdate(tt.update)
			if len(sets) != len(tt.wantSets) {
				t.Fatalf("sets = %v, want %v", sets, tt.wantSets)
			}
			for i := range sets {
				if sets[i] != tt.wantSets[i] {
					t.Errorf("sets[%d] = %q, want %q", i, sets[i], tt.wantSets[i])
				}
			}
			if len(args) != tt.wantArgs {
				t.Errorf("len(args) = %d, want %d", len(args), tt.wantArgs)
			}
		})
	}
}

func TestPostgresUserRepo_CreateAndFind(t *testing.T) {
	db := openTestDB(t)
	repo := NewPostgresUserRepo(db)
	ctx := context.Background()

	user := &model.User{Username: "alice", Email: "alice@example.com", PasswordHash: "hash"}
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if user.ID == 0 {
		t.Fatal("expected generated ID")
	}
	if user.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}

	byEmail, err := repo.FindByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("FindByEmail failed: %v", err)
	}
	if byEmail == nil || byEmail.ID != user.ID {
		t.Fatalf("FindByEmail = %+v, want ID %d", byEmail, user.ID)
	}
	if byEmail.AvatarPath != nil {
		t.Errorf("AvatarPath = %v, want nil", *byEmail.AvatarPath)
	}

	missing, err := repo.FindByID(ctx, user.ID+1000)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown user, got %+v", missing)
	}
}

func TestPostgresUserRepo_Create_Duplicate(t *testing.T) {
	db := openTestDB(t)
	repo := NewPostgresUserRepo(db)
	ctx := context.Background()

	if err := repo.Create(ctx, &model.User{Username: "alice", Email: "alice@example.com", PasswordHash: "h"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	err := repo.Create(ctx, &model.User{Username: "alice", Email: "another@example.com", PasswordHash: "h"})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeDuplicateUser {
		t.Fatalf("err = %v, want DUPLICATE_USER", err)
	}

	var count int
	if err := db.QueryRow(`SELECT count(*) FROM users`).Scan(&count); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("users count = %d, want 1 (重複登録で副作用が発生)", count)
	}
}

func TestPostgresUserRepo_UpdateProfileAndPassword(t *testing.T) {
	db := openTestDB(t)
	repo := NewPostgresUserRepo(db)
	ctx := context.Background()

	alice := &model.User{Username: "alice", Email: "alice@example.com", PasswordHash: "h"}
	bob := &model.User{Username: "bob", Email: "bob@example.com", PasswordHash: "h"}
	for _, u := range []*model.User{alice, bob} {
		if err := repo.Create(ctx, u); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	if err := repo.UpdateProfile(ctx, alice.ID, model.ProfileUpdate{Bio: strPtr("hello"), AvatarPath: strPtr("avatars/a.png")}); err != nil {
		t.Fatalf("UpdateProfile failed: %v", err)
	}
	got, err := repo.FindByID(ctx, alice.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if got.Bio != "hello" || got.AvatarPath == nil || *got.AvatarPath != "avatars/a.png" {
		t.Errorf("profile = %+v, want bio=hello avatar=avatars/a.png", got)
	}

	err = repo.UpdateProfile(ctx, alice.ID, model.ProfileUpdate{Username: strPtr("bob")})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeDuplicateUser {
		t.Errorf("err = %v, want DUPLICATE_USER", err)
	}

	if err := repo.UpdatePasswordHash(ctx, alice.ID, "new-hash"); err != nil {
		t.Fatalf("UpdatePasswordHash failed: %v", err)
	}
	got, _ = repo.FindByID(ctx, alice.ID)
	if got.PasswordHash != "new-hash" {
		t.Errorf("PasswordHash = %q, want %q", got.PasswordHash, "new-hash")
	}

	err = repo.UpdatePasswordHash(ctx, 999999, "x")
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUserNotFound {
		t.Errorf("err = %v, want USER_NOT_FOUND", err)
	}
}

func TestPostgresSessionRepo_Lifecycle(t *testing.T) {
	db := openTestDB(t)
	users := NewPostgresUserRepo(db)
	sessions := NewPostgresSessionRepo(db)
	ctx := context.Background()

	u := &model.User{Username: "alice", Email: "alice@example.com", PasswordHash: "h"}
	if err := users.Create(ctx, u); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	now := time.Now()
	active := &model.Session{ID: "active", UserID: u.ID, ExpiresAt: now.Add(time.Hour), CreatedAt: now}
	expired := &model.Session{ID: "expired", UserID: u.ID, ExpiresAt: now.Add(-time.Hour), CreatedAt: now}
	for _, s := range []*model.Session{active, expired} {
		if err := sessions.Create(ctx, s); err != nil {
			t.Fatalf("session Create failed: %v", err)
		}
	}

	got, err := sessions.FindByID(ctx, "active")
	if err != nil || got == nil || got.UserID != u.ID {
		t.Fatalf("FindByID(active) = %+v, %v", got, err)
	}
	got, err = sessions.FindByID(ctx, "expired")
	if err != nil || got != nil {
		t.Errorf("FindByID(expired) = %+v, %v; want nil, nil", got, err)
	}

	if err := sessions.DeleteByUserID(ctx, u.ID); err != nil {
		t.Fatalf("DeleteByUserID failed: %v", err)
	}
	got, _ = sessions.FindByID(ctx, "active")
	if got != nil {
		t.Error("expected session to be deleted")
	}
}
