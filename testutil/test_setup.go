// Package testutil はハンドラーとサービスのテストで使う共通処理を提供します。
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"task-manager/backend/internal/models"
	"task-manager/backend/internal/repositories"
	"task-manager/backend/internal/routes"
	"task-manager/backend/internal/services"
)

// TestJWTSecret はテスト用ルーターが使う署名鍵です。
const TestJWTSecret = "test-secret-key-for-jwt-signing"

// SetupTestRouter はメモリ上のストアを使うテスト用のGinルーターを返します。
func SetupTestRouter(t *testing.T) (*gin.Engine, *MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := NewMemoryStore()
	r := routes.NewRouter(routes.Dependencies{
		UserRepo:     store.Users(),
		CategoryRepo: store.Categories(),
		TaskRepo:     store.Tasks(),
		JWTService:   services.NewJWTService(TestJWTSecret, time.Hour),
	})
	return r, store
}

// CreateTestUser はストアに直接ユーザーを作成します。
func CreateTestUser(t *testing.T, userRepo repositories.UserRepository, username, password, role string) *models.User {
	t.Helper()
	hashedPassword, err := repositories.HashPassword(password)
	require.NoError(t, err)

	createdUser, err := userRepo.Create(context.Background(), &models.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hashedPassword,
		Role:         role,
	})
	require.NoError(t, err)
	require.NotNil(t, createdUser)
	require.NotEqual(t, 0, createdUser.ID)
	return createdUser
}

// PerformRequest はJSONボディつきのリクエストをルーターに送ります。tokenが空ならAuthorizationを付けません。
func PerformRequest(router *gin.Engine, method, path, token string, payload any) *httptest.ResponseRecorder {
	var body bytes.Buffer
	if payload != nil {
		_ = json.NewEncoder(&body).Encode(payload)
	}
	req, _ := http.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

// LoginAndGetToken は/api/loginでログインしてトークンを返します。
func LoginAndGetToken(t *testing.T, router *gin.Engine, username, password string) (string, error) {
	t.Helper()
	resp := PerformRequest(router, http.MethodPost, "/api/login", "", map[string]string{
		"username": username,
		"password": password,
	})
	if resp.Code != http.StatusOK {
		return "", fmt.Errorf("login failed with status %d: %s", resp.Code, resp.Body.String())
	}

	var loginRes map[string]interface{}
	if err := json.Unmarshal(resp.Body.Bytes(), &loginRes); err != nil {
		return "", fmt.Errorf("failed to unmarshal login response: %w", err)
	}
	token, ok := loginRes["token"].(string)
	if !ok {
		return "", errors.New("token not found or not a string in login response")
	}
	return token, nil
}

// CreateUserAndLogin はユーザーを作成してトークンを返します。
func CreateUserAndLogin(t *testing.T, router *gin.Engine, store *MemoryStore, username string) (*models.User, string) {
	t.Helper()
	u := CreateTestUser(t, store.Users(), username, "password123", models.RoleUser)
	token, err := LoginAndGetToken(t, router, username, "password123")
	require.NoError(t, err)
	return u, token
}

// CreateTestTask はAPI経由でタスクを作成します。
func CreateTestTask(t *testing.T, router *gin.Engine, token string, payload map[string]interface{}) *models.Task {
	t.Helper()
	resp := PerformRequest(router, http.MethodPost, "/api/tasks", token, payload)
	require.Equal(t, http.StatusCreated, resp.Code, "タスク作成に失敗しました: %s", resp.Body.String())

	var createdTask models.Task
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &createdTask))
	return &createdTask
}

// CreateTestCategory はAPI経由でカテゴリーを作成します。
func CreateTestCategory(t *testing.T, router *gin.Engine, token, name string) *models.Category {
	t.Helper()
	resp := PerformRequest(router, http.MethodPost, "/api/categories", token, map[string]string{"name": name})
	require.Equal(t, http.StatusCreated, resp.Code, "カテゴリー作成に失敗しました: %s", resp.Body.String())

	var created models.Category
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &created))
	return &created
}
