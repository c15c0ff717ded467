package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"task-manager/backend/internal/models"
	"task-manager/backend/internal/services"
)

// CategoryHandler はカテゴリー関連のハンドラーを管理します。
type CategoryHandler struct {
	categoryService *services.CategoryService
}

func NewCategoryHandler(categoryService *services.CategoryService) *CategoryHandler {
	return &CategoryHandler{categoryService: categoryService}
}

func (h *CategoryHandler) CreateCategoryHandler(c *gin.Context) {
	requester, ok := currentRequester(c)
	if !ok {
		return
	}
	var req models.CategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	category, err := h.categoryService.CreateCategory(c.Request.Context(), requester, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, category)
}

// GetCategoriesHandler は自分のカテゴリーだけを返します。
func (h *CategoryHandler) GetCategoriesHandler(c *gin.Context) {
	requester, ok := currentRequester(c)
	if !ok {
		return
	}
	categories, err := h.categoryService.GetCategories(c.Request.Context(), requester)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, categories)
}

func (h *CategoryHandler) GetCategoryByIDHandler(c *gin.Context) {
	requester, ok := currentRequester(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	category, err := h.categoryService.GetCategoryByID(c.Request.Context(), requester, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, category)
}

// UpdateCategoryHandler はPUTでカテゴリー名を置き換えます。
func (h *CategoryHandler) UpdateCategoryHandler(c *gin.Context) {
	var req models.CategoryRequest
	h.update(c, &req, func() *string { return &req.Name })
}

// PatchCategoryHandler はPATCHでカテゴリー名を変更します。
func (h *CategoryHandler) PatchCategoryHandler(c *gin.Context) {
	var req models.CategoryPatchRequest
	h.update(c, &req, func() *string { return req.Name })
}

func (h *CategoryHandler) update(c *gin.Context, req any, name func() *string) {
	requester, ok := currentRequester(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	if err := c.ShouldBindJSON(req); err != nil {
		respondBindError(c, err)
		return
	}

	category, err := h.categoryService.UpdateCategory(c.Request.Context(), requester, id, name())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, category)
}

// DeleteCategoryHandler はカテゴリーを削除します。タスクは削除されません。
func (h *CategoryHandler) DeleteCategoryHandler(c *gin.Context) {
	requester, ok := currentRequester(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	if err := h.categoryService.DeleteCategory(c.Request.Context(), requester, id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
