package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"task-manager/backend/internal/models"
	"task-manager/backend/internal/services"
)

// TaskHandler はタスク関連のハンドラーを管理します。
type TaskHandler struct {
	taskService *services.TaskService
}

// NewTaskHandler は新しいTaskHandlerを作成します。
func NewTaskHandler(taskService *services.TaskService) *TaskHandler {
	return &TaskHandler{taskService: taskService}
}

// CreateTaskHandler は新しいタスクを作成します。ボディのownerは無視されます。
func (h *TaskHandler) CreateTaskHandler(c *gin.Context) {
	requester, ok := currentRequester(c)
	if !ok {
		return
	}
	var req models.TaskCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	createdTask, err := h.taskService.CreateTask(c.Request.Context(), requester, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, createdTask)
}

// GetTasksHandler は自分が所有または共有されているタスクを返します。
// クエリ ?is_completed=true|false と ?category=<id> で絞り込めます。
func (h *TaskHandler) GetTasksHandler(c *gin.Context) {
	requester, ok := currentRequester(c)
	if !ok {
		return
	}
	filter, err := parseTaskFilter(c)
	if err != nil {
		respondError(c, err)
		return
	}

	tasks, err := h.taskService.GetTasks(c.Request.Context(), requester, filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

// GetTaskByIDHandler は1件のタスクを返します。
func (h *TaskHandler) GetTaskByIDHandler(c *gin.Context) {
	requester, ok := currentRequester(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	task, err := h.taskService.GetTaskByID(c.Request.Context(), requester, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// UpdateTaskHandler はPUTでタスクを置き換えます。
func (h *TaskHandler) UpdateTaskHandler(c *gin.Context) {
	var req models.TaskCreateRequest
	h.update(c, &req, func() models.TaskPatch { return req.ToPatch() })
}

// PatchTaskHandler はPATCHで送られたフィールドだけを更新します。
func (h *TaskHandler) PatchTaskHandler(c *gin.Context) {
	var req models.TaskPatchRequest
	h.update(c, &req, func() models.TaskPatch { return req.ToPatch() })
}

func (h *TaskHandler) update(c *gin.Context, req any, toPatch func() models.TaskPatch) {
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

	updatedTask, err := h.taskService.UpdateTask(c.Request.Context(), requester, id, toPatch())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updatedTask)
}

// DeleteTaskHandler はタスクを削除します。所有者と共有相手が削除できます。
func (h *TaskHandler) DeleteTaskHandler(c *gin.Context) {
	requester, ok := currentRequester(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	if err := h.taskService.DeleteTask(c.Request.Context(), requester, id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func parseTaskFilter(c *gin.Context) (models.TaskFilter, error) {
	var filter models.TaskFilter
	if v, ok := c.GetQuery("is_completed"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return filter, &services.ValidationError{Field: "is_completed", Message: "must be true or false"}
		}
		filter.IsCompleted = &b
	}
	if v, ok := c.GetQuery("category"); ok && v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			return filter, &services.ValidationError{Field: "category", Message: "must be a category id"}
		}
		filter.CategoryID = &id
	}
	return filter, nil
}
