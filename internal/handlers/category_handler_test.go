package handlers_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"task-manager/backend/internal/models"
	"task-manager/backend/testutil"
)

func TestCategoryHandlers(t *testing.T) {
	r, store := testutil.SetupTestRouter(t)
	alice, aliceToken := testutil.CreateUserAndLogin(t, r, store, "alice")
	_, bobToken := testutil.CreateUserAndLogin(t, r, store, "bob")

	work := testutil.CreateTestCategory(t, r, aliceToken, "work")
	assert.Equal(t, alice.ID, work.OwnerID)
	path := fmt.Sprintf("/api/categories/%d", work.ID)

	t.Run("duplicate name", func(t *testing.T) {
		w := testutil.PerformRequest(r, http.MethodPost, "/api/categories", aliceToken, map[string]string{"name": "work"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("other user cannot see or change the category", func(t *testing.T) {
		w := testutil.PerformRequest(r, http.MethodGet, "/api/categories", bobToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var list []models.Category
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
		assert.Empty(t, list)

		w = testutil.PerformRequest(r, http.MethodGet, path, bobToken, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		w = testutil.PerformRequest(r, http.MethodPatch, path, bobToken, map[string]string{"name": "stolen"})
		assert.Equal(t, http.StatusNotFound, w.Code)
		w = testutil.PerformRequest(r, http.MethodDelete, path, bobToken, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("owner renames with PUT and PATCH", func(t *testing.T) {
		w := testutil.PerformRequest(r, http.MethodPut, path, aliceToken, map[string]string{"name": "office"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w = testutil.PerformRequest(r, http.MethodPatch, path, aliceToken, map[string]string{"name": "job"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var updated models.Category
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
		assert.Equal(t, "job", updated.Name)
	})

	t.Run("deleting keeps the tasks", func(t *testing.T) {
		task := testutil.CreateTestTask(t, r, aliceToken, map[string]interface{}{"title": "x", "category": work.ID})

		w := testutil.PerformRequest(r, http.MethodDelete, path, aliceToken, nil)
		assert.Equal(t, http.StatusNoContent, w.Code)

		w = testutil.PerformRequest(r, http.MethodGet, fmt.Sprintf("/api/tasks/%d", task.ID), aliceToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var got models.Task
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Nil(t, got.CategoryID)

		w = testutil.PerformRequest(r, http.MethodGet, path, aliceToken, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
