package models

import "time"

// Category はユーザーごとのタスクのグループです。所有者だけが扱えます。
type Category struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	OwnerID   int       `json:"owner"`
	CreatedAt time.Time `json:"created_at"`
}

type CategoryRequest struct {
	Name string `json:"name" binding:"required,max=100"`
}

type CategoryPatchRequest struct {
	Name *string `json:"name" binding:"omitempty,max=100"`
}
