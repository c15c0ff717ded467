package models

import "time"

// ユーザーロール
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User はユーザーのデータベース構造体を表します。
// JSONタグ: クライアントとの通信用
// bindingタグ: Ginでのリクエストバリデーション用
type User struct {
	ID           int       `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // JSONに出さない
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// UserSummary は他ユーザーに公開してよい最小限のユーザー情報です。
// 共有相手を選ぶための一覧で使います。
type UserSummary struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
}

// Summary はUserから公開用のUserSummaryを作ります。
func (u *User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Username: u.Username}
}

type UserRegisterRequest struct {
	Username string `json:"username" binding:"required,max=150"`
	Email    string `json:"email" binding:"omitempty,email"` // 任意
	Password string `json:"password" binding:"required"`     // 生パスワード
}

type UserLoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"` // 生パスワード
}

type JWTClaims struct {
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Requester はリクエストを送ってきた認証済みユーザーです。
// サービス層とアクセスポリシーには必ず明示的に渡します。
type Requester struct {
	ID       int
	Username string
	Role     string
}

func (r Requester) IsAdmin() bool {
	return r.Role == RoleAdmin
}
