package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"task-manager/backend/internal/cache"
	"task-manager/backend/internal/models"
	"task-manager/backend/internal/policy"
	"task-manager/backend/internal/repositories"
)

const (
	maxTitleLength       = 200
	maxDescriptionLength = 2000

	listLoadTimeout = 10 * time.Second
)

// TaskService はタスク関連のビジネスロジックを扱います。
// すべての操作はリクエストしたユーザーを受け取り、アクセスポリシーで判定します。
type TaskService struct {
	taskRepo     repositories.TaskRepository
	categoryRepo repositories.CategoryRepository
	userRepo     repositories.UserRepository
	cache        *cache.TaskCache
	sf           singleflight.Group
	now          func() time.Time
}

// NewTaskService は新しいTaskServiceを作成します。taskCacheはnilでも構いません。
func NewTaskService(
	taskRepo repositories.TaskRepository,
	categoryRepo repositories.CategoryRepository,
	userRepo repositories.UserRepository,
	taskCache *cache.TaskCache,
) *TaskService {
	return &TaskService{
		taskRepo:     taskRepo,
		categoryRepo: categoryRepo,
		userRepo:     userRepo,
		cache:        taskCache,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// CreateTask は新しいタスクを作成します。所有者は常にリクエストしたユーザーです。
func (s *TaskService) CreateTask(ctx context.Context, requester models.Requester, req models.TaskCreateRequest) (*models.Task, error) {
	title, err := validateTitle(req.Title)
	if err != nil {
		return nil, err
	}
	if err := validateDescription(req.Description); err != nil {
		return nil, err
	}
	if req.Category != nil {
		if err := s.checkCategory(ctx, requester.ID, *req.Category); err != nil {
			return nil, err
		}
	}
	shared, err := s.checkSharedWith(ctx, requester.ID, req.SharedWith)
	if err != nil {
		return nil, err
	}

	t := &models.Task{
		Title:       title,
		Description: req.Description,
		IsCompleted: req.IsCompleted,
		CategoryID:  req.Category,
		OwnerID:     requester.ID,
		SharedWith:  shared,
	}
	if t.IsCompleted {
		now := s.now()
		t.CompletedAt = &now
	}

	created, err := s.taskRepo.Create(ctx, t)
	if err != nil {
		if errors.Is(err, repositories.ErrInvalidReference) {
			return nil, validationError("", "referenced category or user does not exist")
		}
		return nil, fmt.Errorf("could not create task: %w", err)
	}
	s.invalidate(ctx, created.OwnerID, created.SharedWith)
	return created, nil
}

// GetTasks はユーザーが所有または共有されているタスクを新しい順に返します。
// キャッシュがある場合、同じ世代・同じ条件の同時リクエストはsingleflightで1回の読み込みにまとめます。
func (s *TaskService) GetTasks(ctx context.Context, requester models.Requester, filter models.TaskFilter) ([]*models.Task, error) {
	if s.cache == nil {
		return s.listVisible(ctx, requester.ID, filter)
	}

	gen, err := s.cache.Generation(ctx, requester.ID)
	if err != nil {
		log.Printf("Failed to read task cache generation: %v", err)
		return s.listVisible(ctx, requester.ID, filter)
	}
	cached, err := s.cache.GetList(ctx, requester.ID, gen, filter)
	if err != nil {
		log.Printf("Failed to read task cache: %v", err)
	} else if cached != nil {
		return cached, nil
	}

	// 読み込みは待っている全員の分なので、最初の呼び出し元が切断しても止めない
	detached := context.WithoutCancel(ctx)
	v, err, _ := s.sf.Do(cache.ListKey(requester.ID, gen, filter), func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(detached, listLoadTimeout)
		defer cancel()
		tasks, err := s.listVisible(loadCtx, requester.ID, filter)
		if err != nil {
			return nil, err
		}
		if err := s.cache.SetList(loadCtx, requester.ID, gen, filter, tasks); err != nil {
			log.Printf("Failed to write task cache: %v", err)
		}
		return tasks, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]*models.Task), nil
}

func (s *TaskService) listVisible(ctx context.Context, userID int, filter models.TaskFilter) ([]*models.Task, error) {
	tasks, err := s.taskRepo.ListVisible(ctx, userID, filter)
	if err != nil {
		return nil, fmt.Errorf("could not list tasks: %w", err)
	}
	return tasks, nil
}

// GetTaskByID は1件のタスクを返します。見えないタスクは存在しないものとして扱います。
func (s *TaskService) GetTaskByID(ctx context.Context, requester models.Requester, id int) (*models.Task, error) {
	return s.findVisibleTask(ctx, requester, id)
}

// UpdateTask はpatchをタスクに適用します。PUTとPATCHの両方から使います。
// カテゴリーと共有相手は、値が実際に変わる場合だけ所有者の権限が必要です。
func (s *TaskService) UpdateTask(ctx context.Context, requester models.Requester, id int, patch models.TaskPatch) (*models.Task, error) {
	current, err := s.findVisibleTask(ctx, requester, id)
	if err != nil {
		return nil, err
	}
	if !policy.CanWriteTask(requester.ID, current) {
		return nil, ErrPermissionDenied
	}

	var title string
	if patch.Title != nil {
		if title, err = validateTitle(*patch.Title); err != nil {
			return nil, err
		}
	}
	if patch.Description != nil {
		if err := validateDescription(*patch.Description); err != nil {
			return nil, err
		}
	}

	// 他リポジトリの参照はロックを取る前に済ませる
	var category *models.Category
	if patch.CategorySet && patch.CategoryID != nil {
		category, err = s.categoryRepo.FindByID(ctx, *patch.CategoryID)
		if err != nil && !errors.Is(err, repositories.ErrCategoryNotFound) {
			return nil, err
		}
	}
	var shared []int
	if patch.SharedWith != nil {
		shared = normalizeIDs(*patch.SharedWith)
		if err := s.checkUsersExist(ctx, shared); err != nil {
			return nil, err
		}
	}

	var previouslyShared []int
	updated, err := s.taskRepo.Update(ctx, id, func(t *models.Task) error {
		// 読み込み後に共有を外された場合
		if !policy.CanReadTask(requester.ID, t) {
			return ErrNotFound
		}
		if !policy.CanWriteTask(requester.ID, t) {
			return ErrPermissionDenied
		}
		previouslyShared = append([]int{}, t.SharedWith...)

		if patch.CategorySet && !sameID(t.CategoryID, patch.CategoryID) {
			if !policy.CanManageTaskSharing(requester.ID, t) {
				return ErrPermissionDenied
			}
			if patch.CategoryID != nil && !policy.CanAssignCategory(t.OwnerID, category) {
				return validationError("category", fmt.Sprintf("invalid category %d", *patch.CategoryID))
			}
			t.CategoryID = patch.CategoryID
		}
		if patch.SharedWith != nil && !sameIDs(t.SharedWith, shared) {
			if !policy.CanManageTaskSharing(requester.ID, t) {
				return ErrPermissionDenied
			}
			for _, uid := range shared {
				if uid == t.OwnerID {
					return validationError("shared_with", "a task cannot be shared with its owner")
				}
			}
			t.SharedWith = shared
		}

		if patch.Title != nil {
			t.Title = title
		}
		if patch.Description != nil {
			t.Description = *patch.Description
		}
		if patch.IsCompleted != nil {
			s.setCompleted(t, *patch.IsCompleted)
		}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrTaskNotFound):
			return nil, ErrNotFound
		case errors.Is(err, repositories.ErrInvalidReference):
			return nil, validationError("", "referenced category or user does not exist")
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrPermissionDenied), errors.Is(err, ErrValidation):
			return nil, err
		}
		return nil, fmt.Errorf("could not update task: %w", err)
	}

	s.invalidate(ctx, updated.OwnerID, append(previouslyShared, updated.SharedWith...))
	return updated, nil
}

// DeleteTask はタスクを削除します。所有者と共有相手が削除できます。
func (s *TaskService) DeleteTask(ctx context.Context, requester models.Requester, id int) error {
	t, err := s.findVisibleTask(ctx, requester, id)
	if err != nil {
		return err
	}
	if !policy.CanDeleteTask(requester.ID, t) {
		return ErrPermissionDenied
	}
	if err := s.taskRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, repositories.ErrTaskNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("could not delete task: %w", err)
	}
	s.invalidate(ctx, t.OwnerID, t.SharedWith)
	return nil
}

// findVisibleTask はrequesterから見えるタスクを返します。存在しない場合と見えない場合は
// どちらもErrNotFoundです。
func (s *TaskService) findVisibleTask(ctx context.Context, requester models.Requester, id int) (*models.Task, error) {
	t, err := s.taskRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrTaskNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !policy.CanReadTask(requester.ID, t) {
		return nil, ErrNotFound
	}
	return t, nil
}

// setCompleted はcompleted_atをis_completedに合わせます。
// 完了済みのまま更新された場合は元の完了日時を残します。
func (s *TaskService) setCompleted(t *models.Task, completed bool) {
	switch {
	case completed && !t.IsCompleted:
		now := s.now()
		t.CompletedAt = &now
	case !completed:
		t.CompletedAt = nil
	}
	t.IsCompleted = completed
}

func (s *TaskService) checkCategory(ctx context.Context, ownerID, categoryID int) error {
	c, err := s.categoryRepo.FindByID(ctx, categoryID)
	if err != nil && !errors.Is(err, repositories.ErrCategoryNotFound) {
		return err
	}
	if !policy.CanAssignCategory(ownerID, c) {
		return validationError("category", fmt.Sprintf("invalid category %d", categoryID))
	}
	return nil
}

func (s *TaskService) checkSharedWith(ctx context.Context, ownerID int, ids []int) ([]int, error) {
	shared := normalizeIDs(ids)
	for _, id := range shared {
		if id == ownerID {
			return nil, validationError("shared_with", "a task cannot be shared with its owner")
		}
	}
	if err := s.checkUsersExist(ctx, shared); err != nil {
		return nil, err
	}
	return shared, nil
}

func (s *TaskService) checkUsersExist(ctx context.Context, ids []int) error {
	if len(ids) == 0 {
		return nil
	}
	found, err := s.userRepo.ExistingIDs(ctx, ids)
	if err != nil {
		return err
	}
	exists := make(map[int]bool, len(found))
	for _, id := range found {
		exists[id] = true
	}
	for _, id := range ids {
		if !exists[id] {
			return validationError("shared_with", fmt.Sprintf("user %d does not exist", id))
		}
	}
	return nil
}

// invalidate は所有者と共有相手の一覧キャッシュを消します。
func (s *TaskService) invalidate(ctx context.Context, ownerID int, shared []int) {
	if s.cache == nil {
		return
	}
	ids := normalizeIDs(append([]int{ownerID}, shared...))
	if err := s.cache.InvalidateUsers(ctx, ids...); err != nil {
		log.Printf("Failed to invalidate task cache: %v", err)
	}
}

func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", validationError("title", "this field may not be blank")
	}
	if len([]rune(title)) > maxTitleLength {
		return "", validationError("title", fmt.Sprintf("must be at most %d characters", maxTitleLength))
	}
	return title, nil
}

func validateDescription(desc string) error {
	if len([]rune(desc)) > maxDescriptionLength {
		return validationError("description", fmt.Sprintf("must be at most %d characters", maxDescriptionLength))
	}
	return nil
}

// normalizeIDs は重複を除いて昇順に並べます。
func normalizeIDs(ids []int) []int {
	out := make([]int, 0, len(ids))
	seen := make(map[int]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Ints(out)
	return out
}

func sameID(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameIDs(a, b []int) bool {
	a, b = normalizeIDs(a), normalizeIDs(b)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
