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

const maxCategoryNameLength = 100

// CategoryService はカテゴリー関連のビジネスロジックを扱います。
type CategoryService struct {
	categoryRepo repositories.CategoryRepository
	cache        *cache.TaskCache
}

// NewCategoryService は新しいCategoryServiceを作成します。
func NewCategoryService(categoryRepo repositories.CategoryRepository, taskCache *cache.TaskCache) *CategoryService {
	return &CategoryService{categoryRepo: categoryRepo, cache: taskCache}
}

// CreateCategory はリクエストしたユーザーのカテゴリーを作成します。
func (s *CategoryService) CreateCategory(ctx context.Context, requester models.Requester, req models.CategoryRequest) (*models.Category, error) {
	name, err := validateCategoryName(req.Name)
	if err != nil {
		return nil, err
	}
	created, err := s.categoryRepo.Create(ctx, &models.Category{Name: name, OwnerID: requester.ID})
	if err != nil {
		if errors.Is(err, repositories.ErrDuplicateCategory) {
			return nil, validationError("name", "you already have a category with this name")
		}
		return nil, fmt.Errorf("could not create category: %w", err)
	}
	return created, nil
}

// GetCategories は自分のカテゴリーだけを返します。
func (s *CategoryService) GetCategories(ctx context.Context, requester models.Requester) ([]*models.Category, error) {
	categories, err := s.categoryRepo.ListByOwner(ctx, requester.ID)
	if err != nil {
		return nil, fmt.Errorf("could not list categories: %w", err)
	}
	return categories, nil
}

func (s *CategoryService) GetCategoryByID(ctx context.Context, requester models.Requester, id int) (*models.Category, error) {
	return s.authorize(ctx, requester, id, policy.ActionRead)
}

// UpdateCategory はカテゴリー名を変更します。nameがnilなら何も変えません。
func (s *CategoryService) UpdateCategory(ctx context.Context, requester models.Requester, id int, name *string) (*models.Category, error) {
	if _, err := s.authorize(ctx, requester, id, policy.ActionWrite); err != nil {
		return nil, err
	}
	var newName string
	if name != nil {
		var err error
		if newName, err = validateCategoryName(*name); err != nil {
			return nil, err
		}
	}

	updated, err := s.categoryRepo.Update(ctx, id, func(c *models.Category) error {
		if !policy.CanAccessCategory(requester.ID, c, policy.ActionWrite) {
			return ErrNotFound
		}
		if name != nil {
			c.Name = newName
		}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrCategoryNotFound):
			return nil, ErrNotFound
		case errors.Is(err, repositories.ErrDuplicateCategory):
			return nil, validationError("name", "you already have a category with this name")
		case errors.Is(err, ErrNotFound):
			return nil, err
		}
		return nil, fmt.Errorf("could not update category: %w", err)
	}
	return updated, nil
}

// DeleteCategory はカテゴリーを削除します。属していたタスクはカテゴリーなしになります。
func (s *CategoryService) DeleteCategory(ctx context.Context, requester models.Requester, id int) error {
	if _, err := s.authorize(ctx, requester, id, policy.ActionDelete); err != nil {
		return err
	}
	if err := s.categoryRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, repositories.ErrCategoryNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("could not delete category: %w", err)
	}
	// 共有相手の一覧にも同じタスクが載っているため全体を消す
	if s.cache != nil {
		if err := s.cache.InvalidateAll(ctx); err != nil {
			log.Printf("Failed to invalidate task cache: %v", err)
		}
	}
	return nil
}

// authorize はカテゴリーを返します。他人のカテゴリーは存在しないものとして扱います。
func (s *CategoryService) authorize(ctx context.Context, requester models.Requester, id int, action policy.Action) (*models.Category, error) {
	c, err := s.categoryRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrCategoryNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !policy.CanAccessCategory(requester.ID, c, action) {
		return nil, ErrNotFound
	}
	return c, nil
}

func validateCategoryName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", validationError("name", "this field may not be blank")
	}
	if len([]rune(name)) > maxCategoryNameLength {
		return "", validationError("name", fmt.Sprintf("must be at most %d characters", maxCategoryNameLength))
	}
	return name, nil
}
