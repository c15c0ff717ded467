// Package modelsはTask、Category、Userを定義します。
package models

import (
	"bytes"
	"encoding/json"
	"time"
)

type Task struct {
	ID            int        `json:"id"`                       // 主キー
	Title         string     `json:"title"`                    // タスクのタイトル
	Description   string     `json:"description"`              // 説明 (任意)
	IsCompleted   bool       `json:"is_completed"`             // 完了状態
	CreatedAt     time.Time  `json:"created_at"`               // 作成日時
	CompletedAt   *time.Time `json:"completed_at"`             // 完了日時 (未完了ならnull)
	CategoryID    *int       `json:"category"`                 // カテゴリー (任意)
	OwnerID       int        `json:"owner"`                    // 所有者。作成後は変わらない
	OwnerUsername string     `json:"owner_username,omitempty"` // 所有者のユーザー名
	SharedWith    []int      `json:"shared_with"`              // 共有相手のユーザーID (所有者は含まない)
}

// TaskCreateRequest はPOST /api/tasks と PUT /api/tasks/:id のボディです。
// owner / id / created_at / completed_at はクライアントから受け取りません。
type TaskCreateRequest struct {
	Title       string `json:"title" binding:"required,max=200"`
	Description string `json:"description" binding:"max=2000"`
	IsCompleted bool   `json:"is_completed"`
	Category    *int   `json:"category"`
	SharedWith  []int  `json:"shared_with"`
}

// TaskPatchRequest はPATCH /api/tasks/:id のボディです。送られたフィールドだけ更新します。
type TaskPatchRequest struct {
	Title       *string    `json:"title" binding:"omitempty,max=200"`
	Description *string    `json:"description" binding:"omitempty,max=2000"`
	IsCompleted *bool      `json:"is_completed"`
	Category    NullableID `json:"category"`
	SharedWith  *[]int     `json:"shared_with"`
}

// TaskPatch はサービス層に渡す更新内容です。nilのフィールドは変更しません。
type TaskPatch struct {
	Title       *string
	Description *string
	IsCompleted *bool
	CategorySet bool // trueのときだけCategoryIDを反映 (nilならカテゴリーを外す)
	CategoryID  *int
	SharedWith  *[]int
}

// TaskFilter はタスク一覧の絞り込み条件です。
type TaskFilter struct {
	IsCompleted *bool
	CategoryID  *int
}

// NullableID は「未指定」「null」「値あり」を区別するJSONフィールドです。
type NullableID struct {
	Set   bool
	Value *int
}

func (n *NullableID) UnmarshalJSON(data []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		n.Value = nil
		return nil
	}
	var v int
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	n.Value = &v
	return nil
}

// ToPatch はPUTのボディを全フィールド置き換えのTaskPatchに変換します。
// shared_with が送られていない場合は共有設定を変更しません。
func (r TaskCreateRequest) ToPatch() TaskPatch {
	title := r.Title
	desc := r.Description
	completed := r.IsCompleted
	p := TaskPatch{
		Title:       &title,
		Description: &desc,
		IsCompleted: &completed,
		CategorySet: true,
		CategoryID:  r.Category,
	}
	if r.SharedWith != nil {
		shared := r.SharedWith
		p.SharedWith = &shared
	}
	return p
}

// ToPatch はPATCHのボディをTaskPatchに変換します。
func (r TaskPatchRequest) ToPatch() TaskPatch {
	return TaskPatch{
		Title:       r.Title,
		Description: r.Description,
		IsCompleted: r.IsCompleted,
		CategorySet: r.Category.Set,
		CategoryID:  r.Category.Value,
		SharedWith:  r.SharedWith,
	}
}

// IsSharedWith はuserIDが共有相手に含まれるかを返します。
func (t *Task) IsSharedWith(userID int) bool {
	for _, id := range t.SharedWith {
		if id == userID {
			return true
		}
	}
	return false
}

// Clone はスライスとポインタを含めたコピーを返します。
func (t *Task) Clone() *Task {
	c := *t
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		c.CompletedAt = &at
	}
	if t.CategoryID != nil {
		id := *t.CategoryID
		c.CategoryID = &id
	}
	c.SharedWith = append([]int{}, t.SharedWith...)
	return &c
}
