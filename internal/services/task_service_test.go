package services_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"task-manager/backend/internal/models"
	"task-manager/backend/internal/services"
	"task-manager/backend/testutil"
)

type taskFixture struct {
	store      *testutil.MemoryStore
	tasks      *services.TaskService
	categories *services.CategoryService
	alice      models.Requester
	bob        models.Requester
	carol      models.Requester
}

func newTaskFixture(t *testing.T) *taskFixture {
	t.Helper()
	store := testutil.NewMemoryStore()
	f := &taskFixture{
		store:      store,
		tasks:      services.NewTaskService(store.Tasks(), store.Categories(), store.Users(), nil),
		categories: services.NewCategoryService(store.Categories(), nil),
	}
	for _, name := range []string{"alice", "bob", "carol"} {
		u := testutil.CreateTestUser(t, store.Users(), name, "password123", models.RoleUser)
		r := models.Requester{ID: u.ID, Username: u.Username, Role: u.Role}
		switch name {
		case "alice":
			f.alice = r
		case "bob":
			f.bob = r
		case "carol":
			f.carol = r
		}
	}
	return f
}

func ptr[T any](v T) *T { return &v }

func assertValidation(t *testing.T, err error, field string) {
	t.Helper()
	var verr *services.ValidationError
	require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
	assert.Equal(t, field, verr.Field)
	assert.ErrorIs(t, err, services.ErrValidation)
}

func TestCreateTask(t *testing.T) {
	ctx := context.Background()

	t.Run("owner is the requester and completed_at is empty", func(t *testing.T) {
		f := newTaskFixture(t)
		task, err := f.tasks.CreateTask(ctx, f.alice, models.TaskCreateRequest{Title: "Buy milk"})
		require.NoError(t, err)

		assert.NotZero(t, task.ID)
		assert.Equal(t, f.alice.ID, task.OwnerID)
		assert.Equal(t, "alice", task.OwnerUsername)
		assert.False(t, task.IsCompleted)
		assert.False(t, task.CreatedAt.IsZero())
		assert.Nil(t, task.CompletedAt)
		assert.Empty(t, task.SharedWith)
	})

	t.Run("completed on creation sets completed_at", func(t *testing.T) {
		f := newTaskFixture(t)
		task, err := f.tasks.CreateTask(ctx, f.alice, models.TaskCreateRequest{Title: "done", IsCompleted: true})
		require.NoError(t, err)
		assert.NotNil(t, task.CompletedAt)
	})

	t.Run("blank title is rejected", func(t *testing.T) {
		f := newTaskFixture(t)
		_, err := f.tasks.CreateTask(ctx, f.alice, models.TaskCreateRequest{Title: "   "})
		assertValidation(t, err, "title")
		assert.Equal(t, 0, f.store.TaskCount())
	})

	t.Run("category of another user is rejected", func(t *testing.T) {
		f := newTaskFixture(t)
		bobs, err := f.categories.CreateCategory(ctx, f.bob, models.CategoryRequest{Name: "work"})
		require.NoError(t, err)

		_, err = f.tasks.CreateTask(ctx, f.alice, models.TaskCreateRequest{Title: "x", Category: &bobs.ID})
		assertValidation(t, err, "category")
	})

	t.Run("unknown category is rejected", func(t *testing.T) {
		f := newTaskFixture(t)
		_, err := f.tasks.CreateTask(ctx, f.alice, models.TaskCreateRequest{Title: "x", Category: ptr(999)})
		assertValidation(t, err, "category")
	})

	t.Run("shared_with is deduplicated and sorted", func(t *testing.T) {
		f := newTaskFixture(t)
		task, err := f.tasks.CreateTask(ctx, f.alice, models.TaskCreateRequest{
			Title:      "x",
			SharedWith: []int{f.carol.ID, f.bob.ID, f.carol.ID},
		})
		require.NoError(t, err)
		assert.Equal(t, []int{f.bob.ID, f.carol.ID}, task.SharedWith)
	})

	t.Run("sharing with the owner is rejected", func(t *testing.T) {
		f := newTaskFixture(t)
		_, err := f.tasks.CreateTask(ctx, f.alice, models.TaskCreateRequest{Title: "x", SharedWith: []int{f.alice.ID}})
		assertValidation(t, err, "shared_with")
	})

	t.Run("sharing with an unknown user is rejected", func(t *testing.T) {
		f := newTaskFixture(t)
		_, err := f.tasks.CreateTask(ctx, f.alice, models.TaskCreateRequest{Title: "x", SharedWith: []int{4242}})
		assertValidation(t, err, "shared_with")
	})
}

func TestGetTasks_Visibility(t *testing.T) {
	ctx := context.Background()
	f := newTaskFixture(t)

	own, err := f.tasks.CreateTask(ctx, f.alice, models.TaskCreateRequest{Title: "alice private"})
	require.NoError(t, err)
	shared, err := f.tasks.CreateTask(ctx, f.alice, models.TaskCreateRequest{Title: "alice shared", SharedWith: []int{f.bob.ID}})
	require.NoError(t, err)
	bobs, err := f.tasks.CreateTask(ctx, f.bob, models.TaskCreateRequest{Title: "bob private", IsCompleted: true})
	require.NoError(t, err)

	aliceList, err := f.tasks.GetTasks(ctx, f.alice, models.TaskFilter{})
	require.NoError(t, err)
	assert.Equal(t, []int{shared.ID, own.ID}, taskIDs(aliceList), "newest first")

	bobList, err := f.tasks.GetTasks(ctx, f.bob, models.TaskFilter{})
	require.NoError(t, err)
	assert.Equal(t, []int{bobs.ID, shared.ID}, taskIDs(bobList))

	carolList, err := f.tasks.GetTasks(ctx, f.carol, models.TaskFilter{})
	require.NoError(t, err)
	assert.Empty(t, carolList)

	completed, err := f.tasks.GetTasks(ctx, f.bob, models.TaskFilter{IsCompleted: ptr(true)})
	require.NoError(t, err)
	assert.Equal(t, []int{bobs.ID}, taskIDs(completed))
}

func TestGetTasks_FilterByCategory(t *testing.T) {
	ctx := context.Background()
	f := newTaskFixture(t)

	work, err := f.categories.CreateCategory(ctx, f.alice, models.CategoryRequest{Name: "work"})
	require.NoError(t, err)
	inWork, err := f.tasks.CreateTask(ctx, f.alice, models.TaskCreateRequest{Title: "report", Category: &work.ID})
	require.NoError(t, err)
	_, err = f.tasks.CreateTask(ctx, f.alice, models.TaskCreateRequest{Title: "groceries"})
	require.NoError(t, err)

	list, err := f.tasks.GetTasks(ctx, f.alice, models.TaskFilter{CategoryID: &work.ID})
	require.NoError(t, err)
	assert.Equal(t, []int{inWork.ID}, taskIDs(list))
}

func TestGetTaskByID(t *testing.T) {
	ctx := context.Background()
	f := newTaskFixture(t)
	task, err := f.tasks.CreateTask(ctx, f.alice, models.TaskCreateRequest{Title: "x", SharedWith: []int{f.bob.ID}})
	require.NoError(t, err)

	_, err = f.tasks.GetTaskByID(ctx, f.bob, task.ID)
	assert.NoError(t, err)

	// 見えないタスクと存在しないタスクは区別できない
	_, err = f.tasks.GetTaskByID(ctx, f.carol, task.ID)
	assert.ErrorIs(t, err, services.ErrNotFound)

	_, err = f.tasks.GetTaskByID(ctx, f.carol, 9999)
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestUpdateTask_CompletedAt(t *testing.T) {
	ctx := context.Background()
	f := newTaskFixture(t)
	task, err := f.tasks.CreateTask(ctx, f.alice, models.TaskCreateRequest{Title: "x"})
	require.NoError(t, err)

	done, err := f.tasks.UpdateTask(ctx, f.alice, task.ID, models.TaskPatch{IsCompleted: ptr(true)})
	require.NoError(t, err)
	require.NotNil(t, done.CompletedAt)
	firstCompletedAt := *done.CompletedAt

	stillDone, err := f.tasks.UpdateTask(ctx, f.alice, task.ID, models.TaskPatch{Title: ptr("renamed"), IsCompleted: ptr(true)})
	require.NoError(t, err)
	require.NotNil(t, stillDone.CompletedAt)
	assert.True(t, firstCompletedAt.Equal(*stillDone.CompletedAt), "completed_at must be preserved")
	assert.Equal(t, "renamed", stillDone.Title)

	reopened, err := f.tasks.UpdateTask(ctx, f.alice, task.ID, models.TaskPatch{IsCompleted: ptr(false)})
	require.NoError(t, err)
	assert.False(t, reopened.IsCompleted)
	assert.Nil(t, reopened.CompletedAt)
}

func TestUpdateTask_SharedUser(t *testing.T) {
	ctx := context.Background()
	f := newTaskFixture(t)
	work, err := f.categories.CreateCategory(ctx, f.alice, models.CategoryRequest{Name: "work"})
	require.NoError(t, err)
	task, err := f.tasks.CreateTask(ctx, f.alice, models.TaskCreateRequest{
		Title:      "x",
		Category:   &work.ID,
		SharedWith: []int{f.bob.ID},
	})
	require.NoError(t, err)

	t.Run("shared user can edit title", func(t *testing.T) {
		updated, err := f.tasks.UpdateTask(ctx, f.bob, task.ID, models.TaskPatch{Title: ptr("from bob")})
		require.NoError(t, err)
		assert.Equal(t, "from bob", updated.Title)
		assert.Equal(t, f.alice.ID, updated.OwnerID)
	})

	t.Run("shared user cannot change category", func(t *testing.T) {
		_, err := f.tasks.UpdateTask(ctx, f.bob, task.ID, models.TaskPatch{CategorySet: true})
		assert.ErrorIs(t, err, services.ErrPermissionDenied)
	})

	t.Run("shared user may resend the same category and sharing", func(t *testing.T) {
		shared := []int{f.bob.ID}
		_, err := f.tasks.UpdateTask(ctx, f.bob, task.ID, models.TaskPatch{
			Title:       ptr("same"),
			CategorySet: true,
			CategoryID:  &work.ID,
			SharedWith:  &shared,
		})
		assert.NoError(t, err)
	})

	t.Run("shared user cannot change sharing", func(t *testing.T) {
		shared := []int{f.bob.ID, f.carol.ID}
		_, err := f.tasks.UpdateTask(ctx, f.bob, task.ID, models.TaskPatch{SharedWith: &shared})
		assert.ErrorIs(t, err, services.ErrPermissionDenied)
	})

	t.Run("stranger does not see the task", func(t *testing.T) {
		_, err := f.tasks.UpdateTask(ctx, f.carol, task.ID, models.TaskPatch{Title: ptr("nope")})
		assert.ErrorIs(t, err, services.ErrNotFound)
	})

	t.Run("missing task", func(t *testing.T) {
		_, err := f.tasks.UpdateTask(ctx, f.alice, 9999, models.TaskPatch{Title: ptr("nope")})
		assert.ErrorIs(t, err, services.ErrNotFound)
	})
}

func TestUpdateTask_OwnerChangesSharing(t *testing.T) {
	ctx := context.Background()
	f := newTaskFixture(t)
	task, err := f.tasks.CreateTask(ctx, f.alice, models.TaskCreateRequest{Title: "x", SharedWith: []int{f.bob.ID}})
	require.NoError(t, err)

	shared := []int{f.carol.ID}
	updated, err := f.tasks.UpdateTask(ctx, f.alice, task.ID, models.TaskPatch{SharedWith: &shared})
	require.NoError(t, err)
	assert.Equal(t, []int{f.carol.ID}, updated.SharedWith)

	_, err = f.tasks.GetTaskByID(ctx, f.bob, task.ID)
	assert.ErrorIs(t, err, services.ErrNotFound, "bob lost access")

	withOwner := []int{f.alice.ID}
	_, err = f.tasks.UpdateTask(ctx, f.alice, task.ID, models.TaskPatch{SharedWith: &withOwner})
	assertValidation(t, err, "shared_with")
}

func TestUpdateTask_PutClearsCategory(t *testing.T) {
	ctx := context.Background()
	f := newTaskFixture(t)
	work, err := f.categories.CreateCategory(ctx, f.alice, models.CategoryRequest{Name: "work"})
	require.NoError(t, err)
	task, err := f.tasks.CreateTask(ctx, f.alice, models.TaskCreateRequest{Title: "x", Category: &work.ID})
	require.NoError(t, err)

	put := models.TaskCreateRequest{Title: "replaced", Description: "d"}
	updated, err := f.tasks.UpdateTask(ctx, f.alice, task.ID, put.ToPatch())
	require.NoError(t, err)
	assert.Nil(t, updated.CategoryID)
	assert.Equal(t, "replaced", updated.Title)
	assert.Equal(t, "d", updated.Description)
}

func TestDeleteTask(t *testing.T) {
	ctx := context.Background()
	f := newTaskFixture(t)
	task, err := f.tasks.CreateTask(ctx, f.alice, models.TaskCreateRequest{Title: "x", SharedWith: []int{f.bob.ID}})
	require.NoError(t, err)

	t.Run("stranger does not see the task", func(t *testing.T) {
		assert.ErrorIs(t, f.tasks.DeleteTask(ctx, f.carol, task.ID), services.ErrNotFound)
		assert.Equal(t, 1, f.store.TaskCount())
	})

	t.Run("shared user can delete", func(t *testing.T) {
		require.NoError(t, f.tasks.DeleteTask(ctx, f.bob, task.ID))
		assert.Equal(t, 0, f.store.TaskCount())
		assert.ErrorIs(t, f.tasks.DeleteTask(ctx, f.alice, task.ID), services.ErrNotFound)
	})

	t.Run("owner can delete", func(t *testing.T) {
		own, err := f.tasks.CreateTask(ctx, f.alice, models.TaskCreateRequest{Title: "y"})
		require.NoError(t, err)
		require.NoError(t, f.tasks.DeleteTask(ctx, f.alice, own.ID))
		assert.Equal(t, 0, f.store.TaskCount())
	})
}

func taskIDs(tasks []*models.Task) []int {
	ids := make([]int, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
	}
	return ids
}
