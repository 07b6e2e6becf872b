package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/mindleaf/backend/internal/models"
	"github.com/mindleaf/backend/pkg/logger"
	"github.com/mindleaf/backend/pkg/utils"
	"gorm.io/gorm"
)

type AuthHandler struct {
	DB *gorm.DB
}

func NewAuthHandler(db *gorm.DB) *AuthHandler {
	return &AuthHandler{DB: db}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login verifies credentials and mints a fresh opaque token, replacing any
// token from a previous login so only one session per user stays valid.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	req.Email = normalizeEmail(req.Email)

	if req.Email == "" || req.Password == "" {
		return utils.Error(c, fiber.StatusBadRequest, "email and password are required")
	}

	var user models.User
	if err := h.DB.First(&user, "email = ?", req.Email).Error; err != nil {
		logger.Warn("login_failed_user_not_found", map[string]interface{}{
			"email": req.Email,
			"ip":    c.IP(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid email or password")
	}

	if !utils.CheckPassword(req.Password, user.PasswordHash) {
		logger.Warn("login_failed_invalid_password", map[string]interface{}{
			"user_id": user.ID.String(),
			"ip":      c.IP(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid email or password")
	}

	token := utils.GenerateOpaqueToken()
	if err := h.DB.Model(&user).Update("auth_token", token).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed storing auth token")
	}

	logger.InfoWithUser(user.ID.String(), "user_login", map[string]interface{}{
		"email": user.Email,
		"ip":    c.IP(),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"token": token, "user": user})
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

// ResetPassword consumes an admin-issued reset token. On success the reset
// token and the auth token are both cleared, so stale sessions die with the
// old password.
func (h *AuthHandler) ResetPassword(c *fiber.Ctx) error {
	var req resetPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if req.Token == "" || req.NewPassword == "" {
		return utils.Error(c, fiber.StatusBadRequest, "token and new password are required")
	}

	var user models.User
	err := h.DB.First(&user, "password_reset_token = ?", req.Token).Error
	if err != nil || user.PasswordResetTokenExpiry == nil || user.PasswordResetTokenExpiry.Before(time.Now()) {
		return utils.Error(c, fiber.StatusBadRequest, "invalid or expired reset token")
	}

	hash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed hashing password")
	}

	updates := map[string]interface{}{
		"password_hash":               hash,
		"password_reset_token":        nil,
		"password_reset_token_expiry": nil,
		"auth_token":                  nil,
	}
	if err := h.DB.Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed resetting password")
	}

	logger.InfoWithUser(user.ID.String(), "password_reset", nil)

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "password has been reset successfully"})
}
