package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/mindleaf/backend/internal/middleware"
	"github.com/mindleaf/backend/internal/models"
	"github.com/mindleaf/backend/internal/services"
	"github.com/mindleaf/backend/pkg/logger"
	"github.com/mindleaf/backend/pkg/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EnrollmentsHandler struct {
	DB       *gorm.DB
	Access   *services.AccessService
	Progress *services.ProgressService
}

func NewEnrollmentsHandler(db *gorm.DB, access *services.AccessService, progress *services.ProgressService) *EnrollmentsHandler {
	return &EnrollmentsHandler{DB: db, Access: access, Progress: progress}
}

// Enroll is self-service. Restricted courses require the caller to be
// admin, author, or on the allowlist; a second enrollment for the same
// pair is a conflict, backed by the store's uniqueness constraint when two
// requests race.
func (h *EnrollmentsHandler) Enroll(c *fiber.Ctx) error {
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

	isAuthor := course.AuthorID != nil && *course.AuthorID == currentUser.ID
	if course.RestrictedToAllowList && !currentUser.IsAdmin() && !isAuthor {
		if !h.Access.IsOnCourseAllowList(c.Context(), currentUser.Email, courseID) {
			return utils.Error(c, fiber.StatusForbidden, "enrollment restricted: you are not on this course's allowlist")
		}
	}

	var existing models.CourseEnrollment
	err = h.DB.First(&existing, "user_id = ? AND course_id = ?", currentUser.ID, courseID).Error
	if err == nil {
		return utils.Error(c, fiber.StatusConflict, "already enrolled in this course")
	}
	if err != gorm.ErrRecordNotFound {
		return utils.Error(c, fiber.StatusInternalServerError, "failed checking enrollment")
	}

	enrollment := models.CourseEnrollment{
		UserID:   currentUser.ID,
		CourseID: courseID,
	}
	if err := h.DB.Create(&enrollment).Error; err != nil {
		// A concurrent writer can slip past the existence check; the unique
		// index rejects the duplicate and we report the conflict.
		return utils.Error(c, fiber.StatusConflict, "already enrolled in this course")
	}

	logger.InfoWithUser(currentUser.ID.String(), "course_enrolled", map[string]interface{}{
		"course_id": courseID.String(),
	})

	return utils.Success(c, fiber.StatusCreated, enrollment)
}

// Unenroll removes the caller's enrollment and their progress rows for that
// course's lessons together.
func (h *EnrollmentsHandler) Unenroll(c *fiber.Ctx) error {
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

	var enrollment models.CourseEnrollment
	err = h.DB.First(&enrollment, "user_id = ? AND course_id = ?", currentUser.ID, courseID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "you are not enrolled in this course")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading enrollment")
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		lessonIDs := tx.Model(&models.Lesson{}).Select("id").Where("course_id = ?", courseID)
		if err := tx.Where("user_id = ? AND lesson_id IN (?)", currentUser.ID, lessonIDs).
			Delete(&models.LessonProgress{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.CourseEnrollment{}, "id = ?", enrollment.ID).Error
	})
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed unenrolling")
	}

	logger.InfoWithUser(currentUser.ID.String(), "course_unenrolled", map[string]interface{}{
		"course_id": courseID.String(),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "unenrolled from course"})
}

func (h *EnrollmentsHandler) MyCourses(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	summaries, err := h.Progress.EnrolledCourseSummaries(c.Context(), currentUser.ID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading enrolled courses")
	}

	return utils.Success(c, fiber.StatusOK, summaries)
}

// CompleteLesson upserts the caller's progress row for a lesson. Repeated
// calls refresh completedAt; the unique (user, lesson) index guarantees a
// single row either way.
func (h *EnrollmentsHandler) CompleteLesson(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	lessonID, err := parseUUID(c.Params("lessonId"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid lesson id")
	}

	var lesson models.Lesson
	if err := h.DB.First(&lesson, "id = ?", lessonID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return utils.Error(c, fiber.StatusNotFound, "lesson not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading lesson")
	}

	if !h.Access.IsEnrolled(c.Context(), currentUser.ID, lesson.CourseID) {
		return utils.Error(c, fiber.StatusForbidden, "you must be enrolled in the course to complete lessons")
	}

	now := time.Now().UTC()
	progress := models.LessonProgress{
		UserID:      currentUser.ID,
		LessonID:    lessonID,
		Completed:   true,
		CompletedAt: &now,
	}

	err = h.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "lesson_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"completed": true, "completed_at": now}),
	}).Create(&progress).Error
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed recording progress")
	}

	var saved models.LessonProgress
	if err := h.DB.First(&saved, "user_id = ? AND lesson_id = ?", currentUser.ID, lessonID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading progress")
	}

	logger.InfoWithUser(currentUser.ID.String(), "lesson_completed", map[string]interface{}{
		"lesson_id": lessonID.String(),
		"course_id": lesson.CourseID.String(),
	})

	return utils.Success(c, fiber.StatusOK, saved)
}

// CourseProgress shows per-lesson completion for one course. Enrollment is
// the gate; even admins and authors go through it here, since progress is
// meaningless without an enrollment.
func (h *EnrollmentsHandler) CourseProgress(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	courseID, err := parseUUID(c.Params("courseId"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid course id")
	}

	if !h.Access.IsEnrolled(c.Context(), currentUser.ID, courseID) {
		return utils.Error(c, fiber.StatusForbidden, "you are not enrolled in this course")
	}

	detail, err := h.Progress.CourseProgress(c.Context(), currentUser.ID, courseID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed computing progress")
	}

	return utils.Success(c, fiber.StatusOK, detail)
}
