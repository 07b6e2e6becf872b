package models

import "github.com/google/uuid"

type Course struct {
	BaseModel
	Title       string     `json:"title" gorm:"type:varchar(255);not null"`
	Description string     `json:"description" gorm:"type:text"`
	AuthorID    *uuid.UUID `json:"authorId,omitempty" gorm:"type:uuid;index"`

	// RestrictedToAllowList gates visibility and enrollment to the explicit
	// email allowlist (plus admins and the author).
	RestrictedToAllowList bool `json:"restrictedToAllowList" gorm:"not null;default:false"`

	Author        *User                `json:"author,omitempty" gorm:"foreignKey:AuthorID;references:ID"`
	AllowedEmails []CourseAllowedEmail `json:"allowedEmails,omitempty" gorm:"foreignKey:CourseID"`
	Lessons       []Lesson             `json:"-" gorm:"foreignKey:CourseID"`
	Enrollments   []CourseEnrollment   `json:"-" gorm:"foreignKey:CourseID"`
}

func (Course) TableName() string {
	return "courses"
}

// CourseAllowedEmail rows are stored trimmed and lowercased; comparisons are
// case-insensitive. The set is replaced wholesale on access updates, never
// patched row by row.
type CourseAllowedEmail struct {
	BaseModel
	CourseID uuid.UUID `json:"courseId" gorm:"type:uuid;not null;index;uniqueIndex:idx_course_allowed_email"`
	Email    string    `json:"email" gorm:"type:varchar(255);not null;uniqueIndex:idx_course_allowed_email"`
}

func (CourseAllowedEmail) TableName() string {
	return "course_allowed_emails"
}
