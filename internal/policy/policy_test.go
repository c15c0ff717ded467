package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"task-manager/backend/internal/models"
)

func TestCanAccessTask(t *testing.T) {
	task := &models.Task{ID: 1, OwnerID: 1, SharedWith: []int{2}}

	tests := []struct {
		name   string
		userID int
		action Action
		want   bool
	}{
		{"owner can read", 1, ActionRead, true},
		{"owner can write", 1, ActionWrite, true},
		{"owner can delete", 1, ActionDelete, true},
		{"shared user can read", 2, ActionRead, true},
		{"shared user can write", 2, ActionWrite, true},
		{"shared user can delete", 2, ActionDelete, true},
		{"stranger cannot read", 3, ActionRead, false},
		{"stranger cannot write", 3, ActionWrite, false},
		{"stranger cannot delete", 3, ActionDelete, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanAccessTask(tt.userID, task, tt.action))
		})
	}

	assert.False(t, CanAccessTask(1, nil, ActionRead))
}

func TestTaskShorthands(t *testing.T) {
	task := &models.Task{ID: 1, OwnerID: 1, SharedWith: []int{2}}

	assert.True(t, CanReadTask(2, task))
	assert.True(t, CanWriteTask(2, task))
	assert.True(t, CanDeleteTask(2, task))
	assert.True(t, CanDeleteTask(1, task))
	assert.False(t, CanReadTask(3, task))
	assert.False(t, CanDeleteTask(3, task))
}

func TestCanManageTaskSharing(t *testing.T) {
	task := &models.Task{ID: 1, OwnerID: 1, SharedWith: []int{2}}

	assert.True(t, CanManageTaskSharing(1, task))
	assert.False(t, CanManageTaskSharing(2, task), "sharing must not grant ownership")
	assert.False(t, CanManageTaskSharing(3, task))
	assert.False(t, CanManageTaskSharing(1, nil))
}

func TestCanAccessCategory(t *testing.T) {
	category := &models.Category{ID: 5, OwnerID: 1, Name: "work"}

	for _, action := range []Action{ActionRead, ActionWrite, ActionDelete} {
		assert.True(t, CanAccessCategory(1, category, action), "owner %s", action)
		assert.False(t, CanAccessCategory(2, category, action), "other user %s", action)
	}
	assert.False(t, CanAccessCategory(1, nil, ActionRead))
}

func TestCanAssignCategory(t *testing.T) {
	category := &models.Category{ID: 5, OwnerID: 1}

	assert.True(t, CanAssignCategory(1, category))
	assert.False(t, CanAssignCategory(2, category))
	assert.False(t, CanAssignCategory(1, nil))
}

func TestCanDeleteUser(t *testing.T) {
	self := models.Requester{ID: 1, Role: models.RoleUser}
	admin := models.Requester{ID: 9, Role: models.RoleAdmin}

	assert.True(t, CanDeleteUser(self, 1))
	assert.False(t, CanDeleteUser(self, 2))
	assert.True(t, CanDeleteUser(admin, 2))
}
