package handlers

import (
	"encoding/json"
	"errors"
	"fmt"

	"tasktrack/internal/models"
	"tasktrack/internal/repository"
	"tasktrack/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// User handlers. All of these sit behind the session gate, so the resolved
// user is already in the request locals. Responses only ever carry public
// fields; password hashes and refresh tokens never leave the repository.

// Me returns the user resolved by the session middleware.
func (h *Handler) Me(c *fiber.Ctx) error {
	user := c.Locals("user").(models.User)
	return respond(c, fiber.StatusOK, "User found", user)
}

func (h *Handler) ListUsers(c *fiber.Ctx) error {
	users, err := h.Users.List()
	if err != nil {
		logger.ErrorLogger.Error("Error fetching users", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "Error fetching users")
	}

	logger.AuditLogger.Info("Users fetched", zap.Int("count", len(users)))
	return respond(c, fiber.StatusOK, "Users fetched successfully", users)
}

func (h *Handler) GetUser(c *fiber.Ctx) error {
	targetID, err := c.ParamsInt("id")
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid user ID")
	}

	cacheKey := fmt.Sprintf("user:%d", targetID)
	if cached, err := h.Cache.Get(c.Context(), cacheKey).Result(); err == nil {
		var user models.User
		if err = json.Unmarshal([]byte(cached), &user); err == nil {
			return respond(c, fiber.StatusOK, "User found (from cache)", user)
		}
	}

	user, err := h.Users.GetByID(targetID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fail(c, fiber.StatusNotFound, "User not found")
		}
		logger.ErrorLogger.Error("Error fetching user", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "Error fetching user")
	}

	if userJSON, err := json.Marshal(user); err == nil {
		h.Cache.SetEX(c.Context(), cacheKey, userJSON, cacheTTL)
	}

	return respond(c, fiber.StatusOK, "User found", user)
}
