package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"tasktrack/internal/models"
	"tasktrack/internal/repository"
	"tasktrack/internal/websocket"
	"tasktrack/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Task handlers. These routes are public; assignedUserId is accepted as-is
// and only checked syntactically.

const taskListLimitMax = 50

func (h *Handler) CreateTask(c *fiber.Ctx) error {
	type TaskRequest struct {
		Title          string     `json:"title" validate:"required"`
		Description    string     `json:"description"`
		DueDate        *time.Time `json:"dueDate"`
		Status         string     `json:"status"`
		AssignedUserID int        `json:"assignedUserId" validate:"required"`
	}

	var req TaskRequest
	if err := c.BodyParser(&req); err != nil {
		logger.ErrorLogger.Error("Bad request in create task", zap.Error(err))
		return fail(c, fiber.StatusBadRequest, "Bad request")
	}

	if err := h.Validate.Struct(req); err != nil {
		logger.AuditLogger.Warn("Validation error in create task", zap.Error(err))
		return failWith(c, fiber.StatusBadRequest, "Validation error", err.Error())
	}

	if req.Status == "" {
		req.Status = models.StatusPending
	}
	if !models.ValidStatus(req.Status) {
		return fail(c, fiber.StatusBadRequest, "Invalid status")
	}

	task, err := h.Tasks.Create(models.Task{
		Title:          req.Title,
		Description:    req.Description,
		DueDate:        req.DueDate,
		Status:         req.Status,
		AssignedUserID: req.AssignedUserID,
	})
	if err != nil {
		logger.ErrorLogger.Error("Error creating task", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "Error creating task")
	}

	h.Hub.Publish(websocket.EventTaskCreated, task)
	logger.AuditLogger.Info("Task created", zap.Int("task_id", task.ID))
	return respond(c, fiber.StatusCreated, "Task created", fiber.Map{
		"task": task,
	})
}

func (h *Handler) ListTasks(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 10)
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	if limit > taskListLimitMax {
		limit = taskListLimitMax
	}

	filter := repository.TaskFilter{}
	if status := c.Query("status"); status != "" {
		if !models.ValidStatus(status) {
			return fail(c, fiber.StatusBadRequest, "Invalid status filter")
		}
		filter.Status = status
	}
	if assigned := c.Query("assignedUserId"); assigned != "" {
		id, err := strconv.Atoi(assigned)
		if err != nil || id < 1 {
			return fail(c, fiber.StatusBadRequest, "Invalid assignedUserId filter")
		}
		filter.AssignedUserID = id
	}

	result, err := h.Tasks.List(filter, page, limit)
	if err != nil {
		logger.ErrorLogger.Error("Error fetching tasks", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "Error fetching tasks")
	}

	return respond(c, fiber.StatusOK, "Tasks fetched successfully", result)
}

func (h *Handler) GetTask(c *fiber.Ctx) error {
	taskID, err := c.ParamsInt("id")
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid task ID")
	}

	cacheKey := fmt.Sprintf("task:%d", taskID)
	if cached, err := h.Cache.Get(c.Context(), cacheKey).Result(); err == nil {
		var task models.Task
		if err = json.Unmarshal([]byte(cached), &task); err == nil {
			return respond(c, fiber.StatusOK, "Task found (from cache)", fiber.Map{
				"task": task,
			})
		}
	}

	task, err := h.Tasks.GetByID(taskID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fail(c, fiber.StatusNotFound, "Task not found")
		}
		logger.ErrorLogger.Error("Error fetching task", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "Error fetching task")
	}

	if taskJSON, err := json.Marshal(task); err == nil {
		h.Cache.SetEX(c.Context(), cacheKey, taskJSON, cacheTTL)
	}

	return respond(c, fiber.StatusOK, "Task found", fiber.Map{
		"task": task,
	})
}

func (h *Handler) UpdateTask(c *fiber.Ctx) error {
	taskID, err := c.ParamsInt("id")
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid task ID")
	}

	type UpdateTaskRequest struct {
		Title          *string    `json:"title"`
		Description    *string    `json:"description"`
		DueDate        *time.Time `json:"dueDate"`
		Status         *string    `json:"status"`
		AssignedUserID *int       `json:"assignedUserId"`
	}

	var req UpdateTaskRequest
	if err := c.BodyParser(&req); err != nil {
		logger.ErrorLogger.Error("Bad request in update task", zap.Error(err))
		return fail(c, fiber.StatusBadRequest, "Bad request")
	}

	// Re-validate the constraints the merged record must keep satisfying.
	if req.Title != nil && *req.Title == "" {
		return fail(c, fiber.StatusBadRequest, "Task title is required")
	}
	if req.Status != nil && !models.ValidStatus(*req.Status) {
		return fail(c, fiber.StatusBadRequest, "Invalid status")
	}
	if req.AssignedUserID != nil && *req.AssignedUserID < 1 {
		return fail(c, fiber.StatusBadRequest, "Invalid assignedUserId")
	}

	task, err := h.Tasks.Update(taskID, repository.TaskUpdate{
		Title:          req.Title,
		Description:    req.Description,
		DueDate:        req.DueDate,
		Status:         req.Status,
		AssignedUserID: req.AssignedUserID,
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fail(c, fiber.StatusNotFound, "Task not found")
		}
		logger.ErrorLogger.Error("Error updating task", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "Error updating task")
	}

	cacheKey := fmt.Sprintf("task:%d", taskID)
	h.Cache.Del(c.Context(), cacheKey)
	if taskJSON, err := json.Marshal(task); err == nil {
		h.Cache.SetEX(c.Context(), cacheKey, taskJSON, cacheTTL)
	}

	h.Hub.Publish(websocket.EventTaskUpdated, task)
	logger.AuditLogger.Info("Task updated", zap.Int("task_id", taskID))
	return respond(c, fiber.StatusOK, "Task updated", fiber.Map{
		"task": task,
	})
}

func (h *Handler) DeleteTask(c *fiber.Ctx) error {
	taskID, err := c.ParamsInt("id")
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid task ID")
	}

	if err := h.Tasks.Delete(taskID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fail(c, fiber.StatusNotFound, "Task not found")
		}
		logger.ErrorLogger.Error("Error deleting task", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "Error deleting task")
	}

	h.Cache.Del(c.Context(), fmt.Sprintf("task:%d", taskID))

	h.Hub.Publish(websocket.EventTaskDeleted, fiber.Map{"id": taskID})
	logger.AuditLogger.Info("Task deleted", zap.Int("task_id", taskID))
	return respond(c, fiber.StatusOK, "Task deleted", nil)
}
