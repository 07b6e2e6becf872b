package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mindleaf/backend/internal/models"
	"gorm.io/gorm"
)

// ProgressService computes completion counts and percentages from
// enrollment, lesson, and progress rows. It does not authorize anything;
// handlers gate calls through AccessService first.
type ProgressService struct {
	DB *gorm.DB
}

func NewProgressService(db *gorm.DB) *ProgressService {
	return &ProgressService{DB: db}
}

type EnrolledCourseSummary struct {
	Course           models.Course `json:"course"`
	EnrolledAt       time.Time     `json:"enrolledAt"`
	TotalLessons     int64         `json:"totalLessons"`
	CompletedLessons int64         `json:"completedLessons"`
	Progress         float64       `json:"progress"`
}

type LessonProgressEntry struct {
	Lesson      models.Lesson `json:"lesson"`
	Completed   bool          `json:"completed"`
	CompletedAt *time.Time    `json:"completedAt"`
}

type CourseProgressDetail struct {
	Lessons          []LessonProgressEntry `json:"lessons"`
	TotalLessons     int64                 `json:"totalLessons"`
	CompletedLessons int64                 `json:"completedLessons"`
	Progress         float64               `json:"progress"`
}

// EnrolledCourseSummaries returns one summary per course the user is
// enrolled in, with the completion percentage per course.
func (p *ProgressService) EnrolledCourseSummaries(ctx context.Context, userID uuid.UUID) ([]EnrolledCourseSummary, error) {
	var enrollments []models.CourseEnrollment
	err := p.DB.WithContext(ctx).
		Preload("Course").
		Where("user_id = ?", userID).
		Find(&enrollments).Error
	if err != nil {
		return nil, err
	}

	summaries := make([]EnrolledCourseSummary, 0, len(enrollments))
	for _, enrollment := range enrollments {
		total, completed, err := p.courseCounts(ctx, userID, enrollment.CourseID)
		if err != nil {
			return nil, err
		}

		summaries = append(summaries, EnrolledCourseSummary{
			Course:           enrollment.Course,
			EnrolledAt:       enrollment.EnrolledAt,
			TotalLessons:     total,
			CompletedLessons: completed,
			Progress:         percentComplete(completed, total),
		})
	}

	return summaries, nil
}

// CourseProgress returns per-lesson completion for one course, ordered the
// way lessons are displayed.
func (p *ProgressService) CourseProgress(ctx context.Context, userID, courseID uuid.UUID) (*CourseProgressDetail, error) {
	var lessons []models.Lesson
	err := p.DB.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("order_index ASC, id ASC").
		Find(&lessons).Error
	if err != nil {
		return nil, err
	}

	var rows []models.LessonProgress
	err = p.DB.WithContext(ctx).
		Joins("JOIN lessons ON lessons.id = lesson_progress.lesson_id").
		Where("lesson_progress.user_id = ? AND lessons.course_id = ?", userID, courseID).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	byLesson := make(map[uuid.UUID]models.LessonProgress, len(rows))
	for _, row := range rows {
		byLesson[row.LessonID] = row
	}

	detail := &CourseProgressDetail{
		Lessons:      make([]LessonProgressEntry, 0, len(lessons)),
		TotalLessons: int64(len(lessons)),
	}
	for _, lesson := range lessons {
		entry := LessonProgressEntry{Lesson: lesson}
		if row, ok := byLesson[lesson.ID]; ok {
			entry.Completed = row.Completed
			entry.CompletedAt = row.CompletedAt
		}
		if entry.Completed {
			detail.CompletedLessons++
		}
		detail.Lessons = append(detail.Lessons, entry)
	}

	detail.Progress = percentComplete(detail.CompletedLessons, detail.TotalLessons)
	return detail, nil
}

func (p *ProgressService) courseCounts(ctx context.Context, userID, courseID uuid.UUID) (total, completed int64, err error) {
	err = p.DB.WithContext(ctx).Model(&models.Lesson{}).
		Where("course_id = ?", courseID).
		Count(&total).Error
	if err != nil {
		return 0, 0, err
	}

	err = p.DB.WithContext(ctx).Model(&models.LessonProgress{}).
		Joins("JOIN lessons ON lessons.id = lesson_progress.lesson_id").
		Where("lesson_progress.user_id = ? AND lessons.course_id = ? AND lesson_progress.completed = ?", userID, courseID, true).
		Count(&completed).Error
	if err != nil {
		return 0, 0, err
	}

	return total, completed, nil
}

// percentComplete never divides by zero: a course with no lessons is 0%.
func percentComplete(completed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(completed) * 100.0 / float64(total)
}
