package models

import "github.com/google/uuid"

type Lesson struct {
	BaseModel
	CourseID uuid.UUID `json:"courseId" gorm:"type:uuid;not null;index"`
	Title    string    `json:"title" gorm:"type:varchar(255);not null"`
	Content  string    `json:"content" gorm:"type:text"`
	VideoURL *string   `json:"videoUrl,omitempty" gorm:"type:text"`

	// PDFURL holds either a storage object key or a local-path sentinel
	// beginning with /files/. Resolution to a fetchable URL happens at
	// read time in the storage layer.
	PDFURL *string `json:"pdfUrl,omitempty" gorm:"type:text"`

	// OrderIndex is assigned as existing-lesson-count + 1 at creation and is
	// never reused after deletions, so sequences may have gaps.
	OrderIndex int `json:"orderIndex" gorm:"not null;default:0;index"`

	Course Course `json:"-" gorm:"foreignKey:CourseID;references:ID"`
}

func (Lesson) TableName() string {
	return "lessons"
}

// LessonSummary is what callers without full-content access see: no content,
// no media references. Position is the 1-based rank in the ordered sequence,
// recomputed at read time, unlike OrderIndex which may have gaps.
type LessonSummary struct {
	ID         uuid.UUID `json:"id"`
	Title      string    `json:"title"`
	OrderIndex int       `json:"orderIndex"`
	Position   int       `json:"position"`
}
