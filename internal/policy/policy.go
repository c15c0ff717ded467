// Package policy はタスク・カテゴリー・ユーザーに対するアクセス可否を判定します。
// I/Oは行わず、渡された値だけで判定します。
package policy

import "task-manager/backend/internal/models"

// Action はリソースに対する操作の種類です。
type Action string

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionDelete Action = "delete"
)

// CanAccessTask はuserIDがタスクに対してactionを行えるかを返します。
// 所有者と共有相手はどの操作もできます。
func CanAccessTask(userID int, t *models.Task, action Action) bool {
	if t == nil {
		return false
	}
	if t.OwnerID == userID {
		return true
	}
	switch action {
	case ActionRead, ActionWrite, ActionDelete:
		return t.IsSharedWith(userID)
	default:
		return false
	}
}

func CanReadTask(userID int, t *models.Task) bool { return CanAccessTask(userID, t, ActionRead) }
func CanWriteTask(userID int, t *models.Task) bool { return CanAccessTask(userID, t, ActionWrite) }
func CanDeleteTask(userID int, t *models.Task) bool { return CanAccessTask(userID, t, ActionDelete) }

// CanManageTaskSharing はカテゴリーや共有相手の変更ができるか (所有者か) を返します。
func CanManageTaskSharing(userID int, t *models.Task) bool {
	return t != nil && t.OwnerID == userID
}

// CanAccessCategory はuserIDがカテゴリーに対してactionを行えるかを返します。
// カテゴリーに共有の概念はないため、どの操作も所有者だけです。
func CanAccessCategory(userID int, c *models.Category, _ Action) bool {
	return c != nil && c.OwnerID == userID
}

// CanAssignCategory はタスクの所有者がそのカテゴリーを使えるかを返します。
func CanAssignCategory(taskOwnerID int, c *models.Category) bool {
	return c != nil && c.OwnerID == taskOwnerID
}

// CanDeleteUser は本人または管理者だけがユーザーを削除できます。
func CanDeleteUser(requester models.Requester, targetID int) bool {
	return requester.ID == targetID || requester.IsAdmin()
}
