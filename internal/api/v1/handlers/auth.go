package handlers

import (
	"errors"

	"tasktrack/internal/auth"
	"tasktrack/internal/repository"
	"tasktrack/pkg/crypto"
	"tasktrack/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Session handlers: register, login, refresh, logout. A user holds exactly
// zero or one live refresh token; every login or refresh replaces it, which
// ends the previous session.

// storeRefreshToken persists the token encrypted at rest.
func (h *Handler) storeRefreshToken(userID int, token string) error {
	encrypted, err := crypto.Encrypt(token, h.Cfg.EncryptionKey)
	if err != nil {
		return err
	}
	return h.Users.SetRefreshToken(userID, encrypted)
}

// loadRefreshToken returns the user's stored refresh token, decrypted. An
// empty result means the user has no live session.
func (h *Handler) loadRefreshToken(userID int) (string, error) {
	stored, err := h.Users.RefreshToken(userID)
	if err != nil {
		return "", err
	}
	if stored == "" {
		return "", nil
	}
	return crypto.Decrypt(stored, h.Cfg.EncryptionKey)
}

// startSession issues a fresh token pair, persists the refresh half and
// sets both cookies.
func (h *Handler) startSession(c *fiber.Ctx, userID int) (string, string, error) {
	accessToken, refreshToken, err := h.Tokens.IssuePair(userID)
	if err != nil {
		return "", "", err
	}
	if err := h.storeRefreshToken(userID, refreshToken); err != nil {
		return "", "", err
	}
	h.setSessionCookies(c, accessToken, refreshToken)
	return accessToken, refreshToken, nil
}

func (h *Handler) Register(c *fiber.Ctx) error {
	type RegisterRequest struct {
		Username string `json:"username" validate:"required"`
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required,min=6"`
	}

	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		logger.ErrorLogger.Error("Bad request in register", zap.Error(err))
		return fail(c, fiber.StatusBadRequest, "Bad request")
	}

	if err := h.Validate.Struct(req); err != nil {
		logger.AuditLogger.Warn("Validation error during register", zap.Error(err))
		return failWith(c, fiber.StatusBadRequest, "Validation error", err.Error())
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		logger.ErrorLogger.Error("Error hashing password", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "Error creating user")
	}

	user, err := h.Users.Create(req.Username, req.Email, hashedPassword)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			logger.SecurityLogger.Warn("Duplicate email", zap.String("email", req.Email))
			return fail(c, fiber.StatusBadRequest, "Email already registered")
		}
		logger.ErrorLogger.Error("Error creating user", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "Error creating user")
	}

	if _, _, err := h.startSession(c, user.ID); err != nil {
		logger.ErrorLogger.Error("Error starting session", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "Error generating token")
	}

	logger.AuditLogger.Info("User registered", zap.Int("user_id", user.ID))
	return respond(c, fiber.StatusCreated, "User registered successfully", fiber.Map{
		"user": user,
	})
}

func (h *Handler) Login(c *fiber.Ctx) error {
	type LoginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		logger.ErrorLogger.Error("Bad request in login", zap.Error(err))
		return fail(c, fiber.StatusBadRequest, "Bad request")
	}

	if err := h.Validate.Struct(req); err != nil {
		logger.AuditLogger.Warn("Validation error during login", zap.Error(err))
		return failWith(c, fiber.StatusBadRequest, "Validation error", err.Error())
	}

	// Unknown email and wrong password answer identically so the response
	// cannot be used to probe which emails exist.
	user, hash, err := h.Users.GetByEmail(req.Email)
	if err != nil || !auth.CheckPassword(req.Password, hash) {
		logger.SecurityLogger.Warn("Failed login", zap.String("email", req.Email))
		return fail(c, fiber.StatusUnauthorized, "Invalid email or password")
	}

	if _, _, err := h.startSession(c, user.ID); err != nil {
		logger.ErrorLogger.Error("Error starting session", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "Error generating token")
	}

	logger.AuditLogger.Info("Login success", zap.Int("user_id", user.ID))
	return respond(c, fiber.StatusOK, "Login successful", fiber.Map{
		"user": user,
	})
}

// Refresh rotates the token pair. The presented refresh token must verify
// and exactly match the stored one; anything else is rejected without
// detail. A token replayed after rotation or logout fails the match, which
// is how reuse is detected. Concurrent rotations for one user race on the
// stored token: last writer wins, the loser fails its next refresh.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	presented := c.Cookies("refreshToken")
	if presented == "" {
		return fail(c, fiber.StatusUnauthorized, "No refresh token provided")
	}

	userID, err := h.Tokens.ParseRefresh(presented)
	if err != nil {
		logger.SecurityLogger.Warn("Rejected refresh token")
		return fail(c, fiber.StatusForbidden, "Invalid refresh token")
	}

	stored, err := h.loadRefreshToken(userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			logger.SecurityLogger.Warn("Refresh for unknown user", zap.Int("user_id", userID))
			return fail(c, fiber.StatusForbidden, "Invalid refresh token")
		}
		logger.ErrorLogger.Error("Error loading refresh token", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "Internal Server Error")
	}
	if stored == "" || stored != presented {
		logger.SecurityLogger.Warn("Refresh token mismatch", zap.Int("user_id", userID))
		return fail(c, fiber.StatusForbidden, "Invalid refresh token")
	}

	accessToken, refreshToken, err := h.startSession(c, userID)
	if err != nil {
		logger.ErrorLogger.Error("Error rotating tokens", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "Error generating token")
	}

	logger.AuditLogger.Info("Token refreshed", zap.Int("user_id", userID))
	return respond(c, fiber.StatusOK, "Token refreshed", fiber.Map{
		"accessToken":  accessToken,
		"refreshToken": refreshToken,
	})
}

// Logout clears the stored refresh token and both cookies. Clearing an
// already-empty token succeeds, so a double logout is harmless.
func (h *Handler) Logout(c *fiber.Ctx) error {
	userID := c.Locals("userID").(int)

	if err := h.Users.ClearRefreshToken(userID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		logger.ErrorLogger.Error("Error clearing refresh token", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "Internal Server Error")
	}
	h.clearSessionCookies(c)

	logger.AuditLogger.Info("Logout", zap.Int("user_id", userID))
	return respond(c, fiber.StatusOK, "Logged out successfully", nil)
}
