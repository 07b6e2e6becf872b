package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CourseEnrollment struct {
	BaseModel
	UserID     uuid.UUID `json:"userId" gorm:"type:uuid;not null;index;uniqueIndex:idx_enrollment_user_course"`
	CourseID   uuid.UUID `json:"courseId" gorm:"type:uuid;not null;index;uniqueIndex:idx_enrollment_user_course"`
	EnrolledAt time.Time `json:"enrolledAt" gorm:"not null"`

	User   User   `json:"-" gorm:"foreignKey:UserID;references:ID"`
	Course Course `json:"course,omitempty" gorm:"foreignKey:CourseID;references:ID"`
}

func (e *CourseEnrollment) BeforeCreate(tx *gorm.DB) error {
	if err := e.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	if e.EnrolledAt.IsZero() {
		e.EnrolledAt = time.Now().UTC()
	}
	return nil
}

func (CourseEnrollment) TableName() string {
	return "course_enrollments"
}

// LessonProgress rows are created only by the explicit complete action,
// never implicitly. Completing an already-completed lesson refreshes
// CompletedAt instead of inserting a second row.
type LessonProgress struct {
	BaseModel
	UserID      uuid.UUID  `json:"userId" gorm:"type:uuid;not null;index;uniqueIndex:idx_progress_user_lesson"`
	LessonID    uuid.UUID  `json:"lessonId" gorm:"type:uuid;not null;index;uniqueIndex:idx_progress_user_lesson"`
	Completed   bool       `json:"completed" gorm:"not null;default:false"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	Lesson Lesson `json:"-" gorm:"foreignKey:LessonID;references:ID"`
}

func (LessonProgress) TableName() string {
	return "lesson_progress"
}
