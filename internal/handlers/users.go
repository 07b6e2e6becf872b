package handlers

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/mindleaf/backend/internal/middleware"
	"github.com/mindleaf/backend/internal/models"
	"github.com/mindleaf/backend/pkg/logger"
	"github.com/mindleaf/backend/pkg/utils"
	"gorm.io/gorm"
)

type UsersHandler struct {
	DB *gorm.DB
}

func NewUsersHandler(db *gorm.DB) *UsersHandler {
	return &UsersHandler{DB: db}
}

type registerRequest struct {
	Name     *string `json:"name"`
	Email    string  `json:"email"`
	Password string  `json:"password"`
}

// Register creates a STUDENT account. The role is fixed here; elevation to
// CREATOR only happens through the admin upgrade endpoint.
func (h *UsersHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	req.Email = normalizeEmail(req.Email)
	if req.Email == "" || req.Password == "" {
		return utils.Error(c, fiber.StatusBadRequest, "email and password are required")
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid email")
	}

	var existing models.User
	if err := h.DB.First(&existing, "email = ?", req.Email).Error; err == nil {
		return utils.Error(c, fiber.StatusConflict, "email already registered")
	} else if err != gorm.ErrRecordNotFound {
		return utils.Error(c, fiber.StatusInternalServerError, "failed checking existing user")
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to hash password")
	}

	var name *string
	if req.Name != nil {
		if trimmed := strings.TrimSpace(*req.Name); trimmed != "" {
			name = &trimmed
		}
	}

	user := models.User{
		Name:         name,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         models.UserRoleStudent,
	}

	if err := h.DB.Create(&user).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating user")
	}

	logger.Info("user_registered", map[string]interface{}{
		"user_id": user.ID.String(),
		"email":   user.Email,
	})

	return utils.Success(c, fiber.StatusCreated, user)
}

func (h *UsersHandler) List(c *fiber.Ctx) error {
	p := utils.ParsePagination(c)

	var total int64
	if err := h.DB.Model(&models.User{}).Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting users")
	}

	var users []models.User
	if err := utils.ApplyPagination(h.DB.Model(&models.User{}).Order("created_at DESC"), p).Find(&users).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing users")
	}

	return utils.Paginated(c, users, p.Page, p.Limit, total)
}

func (h *UsersHandler) Me(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "not authenticated")
	}
	return utils.Success(c, fiber.StatusOK, user)
}

// UpgradeToCreator elevates a STUDENT to CREATOR. Already-elevated users are
// a state conflict, reported instead of silently re-applied.
func (h *UsersHandler) UpgradeToCreator(c *fiber.Ctx) error {
	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "user not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching user")
	}

	if user.Role == models.UserRoleCreator || user.Role == models.UserRoleAdmin {
		return utils.Error(c, fiber.StatusBadRequest, "user is already a CREATOR or ADMIN")
	}

	if err := h.DB.Model(&user).Update("role", models.UserRoleCreator).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed upgrading user")
	}

	admin := middleware.GetCurrentUser(c)
	logger.InfoWithUser(admin.ID.String(), "user_upgraded_to_creator", map[string]interface{}{
		"target_user_id": user.ID.String(),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"message": "user successfully upgraded to CREATOR",
		"user":    user,
	})
}

// CreateResetToken lets an admin issue a password-reset token for a user.
// The token rides back in the response; delivery to the user is out of band.
func (h *UsersHandler) CreateResetToken(c *fiber.Ctx) error {
	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "user not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching user")
	}

	token := utils.GenerateOpaqueToken()
	expiresAt := time.Now().Add(1 * time.Hour)

	updates := map[string]interface{}{
		"password_reset_token":        token,
		"password_reset_token_expiry": expiresAt,
	}
	if err := h.DB.Model(&user).Updates(updates).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed storing reset token")
	}

	admin := middleware.GetCurrentUser(c)
	logger.InfoWithUser(admin.ID.String(), "password_reset_token_issued", map[string]interface{}{
		"target_user_id": user.ID.String(),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"message":    "password reset link generated",
		"resetToken": token,
		"resetPath":  fmt.Sprintf("/reset-password?token=%s", token),
	})
}
