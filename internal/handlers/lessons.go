package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/mindleaf/backend/internal/middleware"
	"github.com/mindleaf/backend/internal/models"
	"github.com/mindleaf/backend/internal/services"
	"github.com/mindleaf/backend/internal/storage"
	"github.com/mindleaf/backend/pkg/logger"
	"github.com/mindleaf/backend/pkg/utils"
	"gorm.io/gorm"
)

type LessonsHandler struct {
	DB      *gorm.DB
	Access  *services.AccessService
	Storage *storage.Store
}

func NewLessonsHandler(db *gorm.DB, access *services.AccessService, store *storage.Store) *LessonsHandler {
	return &LessonsHandler{DB: db, Access: access, Storage: store}
}

// List returns every lesson an admin can see, and for everyone else the
// lessons of courses they are enrolled in or author.
func (h *LessonsHandler) List(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	if currentUser.IsAdmin() {
		var lessons []models.Lesson
		if err := h.DB.Find(&lessons).Error; err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed listing lessons")
		}
		h.resolvePDFs(c, lessons)
		return utils.Success(c, fiber.StatusOK, lessons)
	}

	var courseIDs []uuid.UUID
	err := h.DB.Model(&models.CourseEnrollment{}).
		Where("user_id = ?", currentUser.ID).
		Pluck("course_id", &courseIDs).Error
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing lessons")
	}

	var authoredIDs []uuid.UUID
	err = h.DB.Model(&models.Course{}).
		Where("author_id = ?", currentUser.ID).
		Pluck("id", &authoredIDs).Error
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing lessons")
	}
	courseIDs = append(courseIDs, authoredIDs...)

	lessons := []models.Lesson{}
	if len(courseIDs) > 0 {
		if err := h.DB.Where("course_id IN ?", courseIDs).Find(&lessons).Error; err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed listing lessons")
		}
	}

	h.resolvePDFs(c, lessons)
	return utils.Success(c, fiber.StatusOK, lessons)
}

// ListByCourse returns the full ordered lessons for callers with
// full-content access, and bare summaries for everyone else. Summaries
// carry a recomputed 1-based position so clients get a gapless sequence
// even when orderIndex has holes.
func (h *LessonsHandler) ListByCourse(c *fiber.Ctx) error {
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

	var lessons []models.Lesson
	err = h.DB.Where("course_id = ?", courseID).
		Order("order_index ASC, id ASC").
		Find(&lessons).Error
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing lessons")
	}

	if !h.Access.CanViewFullLessonContent(c.Context(), currentUser, courseID) {
		summaries := make([]models.LessonSummary, 0, len(lessons))
		for i, lesson := range lessons {
			summaries = append(summaries, models.LessonSummary{
				ID:         lesson.ID,
				Title:      lesson.Title,
				OrderIndex: lesson.OrderIndex,
				Position:   i + 1,
			})
		}
		return utils.Success(c, fiber.StatusOK, summaries)
	}

	h.resolvePDFs(c, lessons)
	return utils.Success(c, fiber.StatusOK, lessons)
}

func (h *LessonsHandler) Get(c *fiber.Ctx) error {
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

	if !h.Access.CanViewFullLessonContent(c.Context(), currentUser, lesson.CourseID) {
		return utils.Error(c, fiber.StatusForbidden, "you must be enrolled in the course (or be the author/admin) to view this lesson")
	}

	h.resolvePDF(c, &lesson)
	return utils.Success(c, fiber.StatusOK, lesson)
}

// Create accepts multipart form data with an optional pdf file. The new
// lesson's orderIndex is existing-count + 1; indices are never reused after
// deletions, so gaps are expected.
func (h *LessonsHandler) Create(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)

	courseID, err := parseUUID(c.FormValue("courseId"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid course id")
	}

	if !currentUser.IsAdmin() && !h.Access.IsCourseAuthor(c.Context(), currentUser, courseID) {
		return utils.Error(c, fiber.StatusForbidden, "only course authors or admins can create lessons for this course")
	}

	var course models.Course
	if err := h.DB.First(&course, "id = ?", courseID).Error; err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "course not found")
	}

	title := strings.TrimSpace(c.FormValue("title"))
	if title == "" {
		return utils.Error(c, fiber.StatusBadRequest, "title is required")
	}

	var videoURL *string
	if value := strings.TrimSpace(c.FormValue("videoUrl")); value != "" {
		videoURL = &value
	}

	pdfRef, err := h.uploadPDFIfPresent(c)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed storing pdf")
	}

	var count int64
	if err := h.DB.Model(&models.Lesson{}).Where("course_id = ?", courseID).Count(&count).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting lessons")
	}

	lesson := models.Lesson{
		CourseID:   courseID,
		Title:      title,
		Content:    c.FormValue("content"),
		VideoURL:   videoURL,
		PDFURL:     pdfRef,
		OrderIndex: int(count) + 1,
	}

	if err := h.DB.Create(&lesson).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating lesson")
	}

	logger.InfoWithUser(currentUser.ID.String(), "lesson_created", map[string]interface{}{
		"lesson_id":   lesson.ID.String(),
		"course_id":   courseID.String(),
		"order_index": lesson.OrderIndex,
	})

	return utils.Success(c, fiber.StatusCreated, lesson)
}

func (h *LessonsHandler) Update(c *fiber.Ctx) error {
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

	if !currentUser.IsAdmin() && !h.Access.IsCourseAuthor(c.Context(), currentUser, lesson.CourseID) {
		return utils.Error(c, fiber.StatusForbidden, "only course authors or admins can update lessons for this course")
	}

	updates := map[string]interface{}{}
	if value, ok := formValue(c, "title"); ok {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return utils.Error(c, fiber.StatusBadRequest, "title cannot be empty")
		}
		updates["title"] = trimmed
	}
	if value, ok := formValue(c, "content"); ok {
		updates["content"] = value
	}
	if value, ok := formValue(c, "videoUrl"); ok {
		if trimmed := strings.TrimSpace(value); trimmed == "" {
			updates["video_url"] = nil
		} else {
			updates["video_url"] = trimmed
		}
	}

	if pdfRef, err := h.uploadPDFIfPresent(c); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed storing pdf")
	} else if pdfRef != nil {
		updates["pdf_url"] = *pdfRef
	} else if clear, ok := formValue(c, "clearPdf"); ok && clear == "true" {
		updates["pdf_url"] = nil
	}

	if len(updates) > 0 {
		if err := h.DB.Model(&lesson).Updates(updates).Error; err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed updating lesson")
		}
	}

	var updated models.Lesson
	if err := h.DB.First(&updated, "id = ?", lessonID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching updated lesson")
	}

	h.resolvePDF(c, &updated)
	return utils.Success(c, fiber.StatusOK, updated)
}

func (h *LessonsHandler) Delete(c *fiber.Ctx) error {
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

	if !currentUser.IsAdmin() && !h.Access.IsCourseAuthor(c.Context(), currentUser, lesson.CourseID) {
		return utils.Error(c, fiber.StatusForbidden, "only course authors or admins can delete lessons for this course")
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("lesson_id = ?", lessonID).Delete(&models.LessonProgress{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Lesson{}, "id = ?", lessonID).Error
	})
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting lesson")
	}

	logger.InfoWithUser(currentUser.ID.String(), "lesson_deleted", map[string]interface{}{
		"lesson_id": lessonID.String(),
		"course_id": lesson.CourseID.String(),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "lesson deleted"})
}

// Reorder assigns orderIndex 1,2,3... following the caller-supplied id list,
// then keeps counting through lessons omitted from the list that have no
// valid index yet. Omitted lessons that already hold a valid orderIndex are
// left untouched, which can collide with newly assigned indices; that is
// long-standing behavior callers rely on, so it stays.
func (h *LessonsHandler) Reorder(c *fiber.Ctx) error {
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
		return utils.Error(c, fiber.StatusForbidden, "only course authors or admins can reorder lessons for this course")
	}

	var orderedIDs []uuid.UUID
	if err := c.BodyParser(&orderedIDs); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	var lessons []models.Lesson
	err = h.DB.Where("course_id = ?", courseID).
		Order("order_index ASC, id ASC").
		Find(&lessons).Error
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading lessons")
	}

	byID := make(map[uuid.UUID]models.Lesson, len(lessons))
	for _, lesson := range lessons {
		byID[lesson.ID] = lesson
	}

	index := 1
	for _, id := range orderedIDs {
		if _, ok := byID[id]; !ok {
			continue
		}
		if err := h.DB.Model(&models.Lesson{}).Where("id = ?", id).Update("order_index", index).Error; err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed reordering lessons")
		}
		index++
		delete(byID, id)
	}

	for id, lesson := range byID {
		if lesson.OrderIndex >= 1 {
			continue
		}
		if err := h.DB.Model(&models.Lesson{}).Where("id = ?", id).Update("order_index", index).Error; err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed reordering lessons")
		}
		index++
	}

	var updated []models.Lesson
	err = h.DB.Where("course_id = ?", courseID).
		Order("order_index ASC, id ASC").
		Find(&updated).Error
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading lessons")
	}

	h.resolvePDFs(c, updated)
	return utils.Success(c, fiber.StatusOK, updated)
}

func (h *LessonsHandler) uploadPDFIfPresent(c *fiber.Ctx) (*string, error) {
	fileHeader, err := c.FormFile("pdf")
	if err != nil || fileHeader == nil {
		return nil, nil
	}

	stream, err := fileHeader.Open()
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	ref, err := h.Storage.UploadPDF(c.Context(), fileHeader.Filename, stream, fileHeader.Size)
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

func (h *LessonsHandler) resolvePDF(c *fiber.Ctx, lesson *models.Lesson) {
	if lesson.PDFURL == nil || *lesson.PDFURL == "" {
		return
	}
	resolved := h.Storage.ResolveURL(c.Context(), *lesson.PDFURL)
	lesson.PDFURL = &resolved
}

func (h *LessonsHandler) resolvePDFs(c *fiber.Ctx, lessons []models.Lesson) {
	for i := range lessons {
		h.resolvePDF(c, &lessons[i])
	}
}

// formValue reports presence, not just the value: multipart updates must
// distinguish "field absent, keep the old value" from "field sent empty".
func formValue(c *fiber.Ctx, key string) (string, bool) {
	form, err := c.MultipartForm()
	if err != nil || form == nil {
		value := c.FormValue(key)
		return value, value != ""
	}
	values, ok := form.Value[key]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}
