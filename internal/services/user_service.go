package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"task-manager/backend/internal/cache"
	"task-manager/backend/internal/models"
	"task-manager/backend/internal/policy"
	"task-manager/backend/internal/repositories"
)

const (
	maxUsernameLength = 150
	minPasswordLength = 6
)

// UserService はユーザー関連のビジネスロジックを扱います。
type UserService struct {
	userRepo repositories.UserRepository
	cache    *cache.TaskCache
}

// NewUserService は新しいUserServiceを作成します。taskCacheがnilならキャッシュは使いません。
func NewUserService(userRepo repositories.UserRepository, taskCache *cache.TaskCache) *UserService {
	return &UserService{userRepo: userRepo, cache: taskCache}
}

// RegisterUser はユーザーを登録します。ユーザー名が使われている場合はValidationErrorを返します。
func (s *UserService) RegisterUser(ctx context.Context, req models.UserRegisterRequest) (*models.User, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.TrimSpace(req.Email)
	switch {
	case username == "":
		return nil, validationError("username", "this field is required")
	case len(username) > maxUsernameLength:
		return nil, validationError("username", fmt.Sprintf("must be at most %d characters", maxUsernameLength))
	case req.Password == "":
		return nil, validationError("password", "this field is required")
	case len(req.Password) < minPasswordLength:
		return nil, validationError("password", fmt.Sprintf("must be at least %d characters", minPasswordLength))
	}

	if _, err := s.userRepo.FindByUsername(ctx, username); err == nil {
		return nil, validationError("username", "a user with that username already exists")
	} else if !errors.Is(err, repositories.ErrUserNotFound) {
		return nil, err
	}

	hashedPassword, err := repositories.HashPassword(req.Password)
	if err != nil {
		log.Printf("Failed to hash password: %v", err)
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	createdUser, err := s.userRepo.Create(ctx, &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hashedPassword,
		Role:         models.RoleUser,
	})
	if err != nil {
		// FindByUsernameの後に同名で登録された場合
		if errors.Is(err, repositories.ErrDuplicateUsername) {
			return nil, validationError("username", "a user with that username already exists")
		}
		return nil, err
	}
	createdUser.PasswordHash = "" // レスポンスにパスワードを含めない
	return createdUser, nil
}

// AuthenticateUser はユーザーを認証し、成功したらユーザーを返します。
func (s *UserService) AuthenticateUser(ctx context.Context, req models.UserLoginRequest) (*models.User, error) {
	foundUser, err := s.userRepo.FindByUsername(ctx, strings.TrimSpace(req.Username))
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := repositories.VerifyPassword(foundUser.PasswordHash, req.Password); err != nil {
		return nil, ErrInvalidCredentials
	}

	foundUser.PasswordHash = "" // レスポンスにパスワードを含めない
	return foundUser, nil
}

// GetUserByID はユーザーを取得します。
func (s *UserService) GetUserByID(ctx context.Context, id int) (*models.User, error) {
	u, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.PasswordHash = ""
	return u, nil
}

// GetUsers は共有相手を選ぶためのユーザー一覧を返します。
func (s *UserService) GetUsers(ctx context.Context) ([]models.UserSummary, error) {
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.UserSummary, 0, len(users))
	for _, u := range users {
		out = append(out, u.Summary())
	}
	return out, nil
}

// DeleteUser はユーザーを削除します。本人または管理者だけが実行できます。
// 所有するタスクとカテゴリーも削除されます。
func (s *UserService) DeleteUser(ctx context.Context, requester models.Requester, id int) error {
	if _, err := s.userRepo.FindByID(ctx, id); err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return ErrNotFound
		}
		return err
	}
	if !policy.CanDeleteUser(requester, id) {
		return ErrPermissionDenied
	}

	if err := s.userRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return ErrNotFound
		}
		return err
	}

	// 共有されていた他ユーザーの一覧からも消えるので全体を無効化する
	if s.cache != nil {
		if err := s.cache.InvalidateAll(ctx); err != nil {
			log.Printf("Failed to invalidate task cache: %v", err)
		}
	}
	return nil
}
