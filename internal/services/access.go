package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/mindleaf/backend/internal/models"
	"gorm.io/gorm"
)

// AccessService is the single place deciding who may see or act on courses,
// lessons, and enrollments. Every predicate either takes a possibly-nil
// *models.User (anonymous caller) or plain identifiers; handlers compose
// them but never re-implement the rules.
type AccessService struct {
	DB *gorm.DB
}

func NewAccessService(db *gorm.DB) *AccessService {
	return &AccessService{DB: db}
}

// CanSeeCourse evaluates course visibility with fixed precedence:
// unrestricted courses are public, anonymous callers see nothing
// restricted, admins and the author always see their course, everyone
// else needs an allowlist match. The order is load-bearing; each rule
// short-circuits the ones below it.
func (a *AccessService) CanSeeCourse(user *models.User, course *models.Course) bool {
	if !course.RestrictedToAllowList {
		return true
	}
	if user == nil {
		return false
	}
	if user.IsAdmin() {
		return true
	}
	if course.AuthorID != nil && *course.AuthorID == user.ID {
		return true
	}
	return emailInAllowList(user.Email, course.AllowedEmails)
}

// IsOnCourseAllowList checks only the restriction flag and allowlist
// membership. Admin and author short-circuits are deliberately not applied
// here; callers that want them check those separately.
func (a *AccessService) IsOnCourseAllowList(ctx context.Context, email string, courseID uuid.UUID) bool {
	var course models.Course
	err := a.DB.WithContext(ctx).Preload("AllowedEmails").First(&course, "id = ?", courseID).Error
	if err != nil {
		return false
	}
	if !course.RestrictedToAllowList {
		return true
	}
	return emailInAllowList(email, course.AllowedEmails)
}

func (a *AccessService) IsEnrolled(ctx context.Context, userID, courseID uuid.UUID) bool {
	var count int64
	err := a.DB.WithContext(ctx).Model(&models.CourseEnrollment{}).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		Count(&count).Error
	return err == nil && count > 0
}

func (a *AccessService) IsCourseAuthor(ctx context.Context, user *models.User, courseID uuid.UUID) bool {
	if user == nil {
		return false
	}
	var course models.Course
	if err := a.DB.WithContext(ctx).First(&course, "id = ?", courseID).Error; err != nil {
		return false
	}
	return course.AuthorID != nil && *course.AuthorID == user.ID
}

// CanViewFullLessonContent gates lesson bodies and media. Admins and the
// course author pass outright; anyone else must be on the allowlist AND
// enrolled. Allowlist membership alone only earns summaries.
func (a *AccessService) CanViewFullLessonContent(ctx context.Context, user *models.User, courseID uuid.UUID) bool {
	if user == nil {
		return false
	}
	var course models.Course
	if err := a.DB.WithContext(ctx).First(&course, "id = ?", courseID).Error; err != nil {
		return false
	}
	if user.IsAdmin() || (course.AuthorID != nil && *course.AuthorID == user.ID) {
		return true
	}
	if !a.IsOnCourseAllowList(ctx, user.Email, courseID) {
		return false
	}
	return a.IsEnrolled(ctx, user.ID, courseID)
}

// CanManageCourse gates mutations: access settings, course deletion, and
// lesson create/update/delete/reorder.
func (a *AccessService) CanManageCourse(user *models.User, course *models.Course) bool {
	if user == nil {
		return false
	}
	if user.IsAdmin() {
		return true
	}
	return course.AuthorID != nil && *course.AuthorID == user.ID
}

func emailInAllowList(email string, allowed []models.CourseAllowedEmail) bool {
	normalized := strings.ToLower(strings.TrimSpace(email))
	for _, entry := range allowed {
		if strings.ToLower(entry.Email) == normalized {
			return true
		}
	}
	return false
}

// NormalizeAllowListEmails trims, lowercases, deduplicates, and drops empty
// entries, preserving first-seen order. The result is what gets persisted,
// so stored allowlists are always in canonical form.
func NormalizeAllowListEmails(emails []string) []string {
	seen := make(map[string]bool, len(emails))
	normalized := make([]string, 0, len(emails))
	for _, email := range emails {
		value := strings.ToLower(strings.TrimSpace(email))
		if value == "" || seen[value] {
			continue
		}
		seen[value] = true
		normalized = append(normalized, value)
	}
	return normalized
}
