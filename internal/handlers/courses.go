package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/mindleaf/backend/internal/middleware"
	"github.com/mindleaf/backend/internal/models"
	"github.com/mindleaf/backend/internal/services"
	"github.com/mindleaf/backend/pkg/logger"
	"github.com/mindleaf/backend/pkg/utils"
	"gorm.io/gorm"
)

type CoursesHandler struct {
	DB     *gorm.DB
	Access *services.AccessService
}

func NewCoursesHandler(db *gorm.DB, access *services.AccessService) *CoursesHandler {
	return &CoursesHandler{DB: db, Access: access}
}

// List is public: anonymous callers get unrestricted courses, everyone else
// gets whatever the visibility rules grant them, decided per course.
func (h *CoursesHandler) List(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	var courses []models.Course
	err := h.DB.Preload("AllowedEmails").Preload("Author").Find(&courses).Error
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing courses")
	}

	visible := make([]models.Course, 0, len(courses))
	for _, course := range courses {
		if h.Access.CanSeeCourse(user, &course) {
			visible = append(visible, course)
		}
	}

	return utils.Success(c, fiber.StatusOK, visible)
}

type createCourseRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	AuthorID    *uuid.UUID `json:"authorId"`
}

func (h *CoursesHandler) Create(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	var req createCourseRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return utils.Error(c, fiber.StatusBadRequest, "title is required")
	}

	authorID := req.AuthorID
	if authorID == nil {
		authorID = &currentUser.ID
	}

	course := models.Course{
		Title:       req.Title,
		Description: req.Description,
		AuthorID:    authorID,
	}

	if err := h.DB.Create(&course).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating course")
	}

	logger.InfoWithUser(currentUser.ID.String(), "course_created", map[string]interface{}{
		"course_id": course.ID.String(),
		"title":     course.Title,
	})

	return utils.Success(c, fiber.StatusCreated, course)
}

func (h *CoursesHandler) MyCreated(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	var courses []models.Course
	if err := h.DB.Where("author_id = ?", currentUser.ID).Find(&courses).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing courses")
	}

	return utils.Success(c, fiber.StatusOK, courses)
}

func (h *CoursesHandler) GetAccess(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	courseID, err := parseUUID(c.Params("courseId"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid course id")
	}

	var course models.Course
	if err := h.DB.Preload("AllowedEmails").First(&course, "id = ?", courseID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "course not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading course")
	}

	if !h.Access.CanManageCourse(currentUser, &course) {
		return utils.Error(c, fiber.StatusForbidden, "not allowed to view access settings for this course")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"restrictedToAllowList": course.RestrictedToAllowList,
		"allowedEmails":         allowListEmails(course.AllowedEmails),
	})
}

type updateAccessRequest struct {
	RestrictedToAllowList bool     `json:"restrictedToAllowList"`
	AllowedEmails         []string `json:"allowedEmails"`
}

// UpdateAccess replaces the allowlist wholesale inside one transaction:
// flag update, delete-all, insert normalized set. A failure anywhere rolls
// the whole replacement back, leaving the prior allowlist intact.
func (h *CoursesHandler) UpdateAccess(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	courseID, err := parseUUID(c.Params("courseId"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid course id")
	}

	var course models.Course
	if err := h.DB.First(&course, "id = ?", courseID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "course not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading course")
	}

	if !h.Access.CanManageCourse(currentUser, &course) {
		return utils.Error(c, fiber.StatusForbidden, "not allowed to modify access for this course")
	}

	var req updateAccessRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	normalized := services.NormalizeAllowListEmails(req.AllowedEmails)

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Course{}).Where("id = ?", courseID).
			Update("restricted_to_allow_list", req.RestrictedToAllowList).Error; err != nil {
			return err
		}

		if err := tx.Where("course_id = ?", courseID).Delete(&models.CourseAllowedEmail{}).Error; err != nil {
			return err
		}

		for _, email := range normalized {
			entry := models.CourseAllowedEmail{CourseID: courseID, Email: email}
			if err := tx.Create(&entry).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating course access")
	}

	logger.InfoWithUser(currentUser.ID.String(), "course_access_updated", map[string]interface{}{
		"course_id":  courseID.String(),
		"restricted": req.RestrictedToAllowList,
		"emails":     len(normalized),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"restrictedToAllowList": req.RestrictedToAllowList,
		"allowedEmails":         normalized,
	})
}

// Delete removes a course and everything hanging off it in one transaction:
// progress rows for its lessons, the lessons, enrollments, allowlist rows,
// then the course. All-or-nothing, no partial cascade.
func (h *CoursesHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	courseID, err := parseUUID(c.Params("courseId"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid course id")
	}

	var course models.Course
	if err := h.DB.First(&course, "id = ?", courseID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "course not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading course")
	}

	if !h.Access.CanManageCourse(currentUser, &course) {
		return utils.Error(c, fiber.StatusForbidden, "not allowed to delete this course")
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		lessonIDs := tx.Model(&models.Lesson{}).Select("id").Where("course_id = ?", courseID)

		if err := tx.Where("lesson_id IN (?)", lessonIDs).Delete(&models.LessonProgress{}).Error; err != nil {
			return err
		}
		if err := tx.Where("course_id = ?", courseID).Delete(&models.Lesson{}).Error; err != nil {
			return err
		}
		if err := tx.Where("course_id = ?", courseID).Delete(&models.CourseEnrollment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("course_id = ?", courseID).Delete(&models.CourseAllowedEmail{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Course{}, "id = ?", courseID).Error
	})
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting course")
	}

	logger.InfoWithUser(currentUser.ID.String(), "course_deleted", map[string]interface{}{
		"course_id": courseID.String(),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "course deleted"})
}

func allowListEmails(entries []models.CourseAllowedEmail) []string {
	emails := make([]string, 0, len(entries))
	for _, entry := range entries {
		emails = append(emails, entry.Email)
	}
	return emails
}
