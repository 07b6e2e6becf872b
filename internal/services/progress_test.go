package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mindleaf/backend/internal/models"
	"gorm.io/gorm"
)

func createProgressTestLesson(t *testing.T, db *gorm.DB, courseID uuid.UUID, title string, orderIndex int) *models.Lesson {
	t.Helper()
	lesson := &models.Lesson{
		CourseID:   courseID,
		Title:      title,
		OrderIndex: orderIndex,
	}
	if err := db.Create(lesson).Error; err != nil {
		t.Fatalf("failed creating lesson: %v", err)
	}
	return lesson
}

func completeProgressTestLesson(t *testing.T, db *gorm.DB, userID, lessonID uuid.UUID) {
	t.Helper()
	now := time.Now().UTC()
	row := &models.LessonProgress{
		UserID:      userID,
		LessonID:    lessonID,
		Completed:   true,
		CompletedAt: &now,
	}
	if err := db.Create(row).Error; err != nil {
		t.Fatalf("failed creating progress row: %v", err)
	}
}

func TestProgressService_CourseProgress(t *testing.T) {
	db := setupAccessTestDB(t)
	service := NewProgressService(db)
	ctx := context.Background()

	user := createAccessTestUser(t, db, "student@test.com", models.UserRoleStudent)
	course := createAccessTestCourse(t, db, nil, false)
	enrollAccessTestUser(t, db, user.ID, course.ID)

	first := createProgressTestLesson(t, db, course.ID, "Intro", 1)
	second := createProgressTestLesson(t, db, course.ID, "Middle", 2)
	createProgressTestLesson(t, db, course.ID, "End", 3)

	completeProgressTestLesson(t, db, user.ID, first.ID)
	completeProgressTestLesson(t, db, user.ID, second.ID)

	detail, err := service.CourseProgress(ctx, user.ID, course.ID)
	if err != nil {
		t.Fatalf("CourseProgress failed: %v", err)
	}

	if detail.TotalLessons != 3 {
		t.Fatalf("expected 3 total lessons, got %d", detail.TotalLessons)
	}
	if detail.CompletedLessons != 2 {
		t.Fatalf("expected 2 completed lessons, got %d", detail.CompletedLessons)
	}
	if detail.Progress < 66.6 || detail.Progress > 66.7 {
		t.Fatalf("expected progress near 66.67, got %f", detail.Progress)
	}

	if len(detail.Lessons) != 3 {
		t.Fatalf("expected 3 lesson entries, got %d", len(detail.Lessons))
	}
	for i, title := range []string{"Intro", "Middle", "End"} {
		if detail.Lessons[i].Lesson.Title != title {
			t.Fatalf("entry %d: expected title %q, got %q", i, title, detail.Lessons[i].Lesson.Title)
		}
	}
	if !detail.Lessons[0].Completed || !detail.Lessons[1].Completed || detail.Lessons[2].Completed {
		t.Fatalf("unexpected completion flags: %+v", detail.Lessons)
	}
	if detail.Lessons[0].CompletedAt == nil {
		t.Fatal("expected completedAt on completed lesson")
	}
}

func TestProgressService_CourseProgress_NoLessons(t *testing.T) {
	db := setupAccessTestDB(t)
	service := NewProgressService(db)

	user := createAccessTestUser(t, db, "student@test.com", models.UserRoleStudent)
	course := createAccessTestCourse(t, db, nil, false)
	enrollAccessTestUser(t, db, user.ID, course.ID)

	detail, err := service.CourseProgress(context.Background(), user.ID, course.ID)
	if err != nil {
		t.Fatalf("CourseProgress failed: %v", err)
	}

	if detail.TotalLessons != 0 || detail.CompletedLessons != 0 {
		t.Fatalf("expected zero counts, got total=%d completed=%d", detail.TotalLessons, detail.CompletedLessons)
	}
	if detail.Progress != 0 {
		t.Fatalf("expected 0%% for a course with no lessons, got %f", detail.Progress)
	}
}

func TestProgressService_EnrolledCourseSummaries(t *testing.T) {
	db := setupAccessTestDB(t)
	service := NewProgressService(db)
	ctx := context.Background()

	user := createAccessTestUser(t, db, "student@test.com", models.UserRoleStudent)
	other := createAccessTestUser(t, db, "other@test.com", models.UserRoleStudent)

	full := createAccessTestCourse(t, db, nil, false)
	half := createAccessTestCourse(t, db, nil, false)
	skipped := createAccessTestCourse(t, db, nil, false)

	enrollAccessTestUser(t, db, user.ID, full.ID)
	enrollAccessTestUser(t, db, user.ID, half.ID)
	enrollAccessTestUser(t, db, other.ID, skipped.ID)

	fullLesson := createProgressTestLesson(t, db, full.ID, "Only", 1)
	completeProgressTestLesson(t, db, user.ID, fullLesson.ID)

	halfFirst := createProgressTestLesson(t, db, half.ID, "First", 1)
	createProgressTestLesson(t, db, half.ID, "Second", 2)
	completeProgressTestLesson(t, db, user.ID, halfFirst.ID)

	summaries, err := service.EnrolledCourseSummaries(ctx, user.ID)
	if err != nil {
		t.Fatalf("EnrolledCourseSummaries failed: %v", err)
	}

	if len(summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(summaries))
	}

	byCourse := make(map[uuid.UUID]EnrolledCourseSummary, len(summaries))
	for _, summary := range summaries {
		byCourse[summary.Course.ID] = summary
		if summary.EnrolledAt.IsZero() {
			t.Fatal("expected enrolledAt to be set")
		}
	}

	if got := byCourse[full.ID]; got.TotalLessons != 1 || got.CompletedLessons != 1 || got.Progress != 100 {
		t.Fatalf("unexpected full-course summary: %+v", got)
	}
	if got := byCourse[half.ID]; got.TotalLessons != 2 || got.CompletedLessons != 1 || got.Progress != 50 {
		t.Fatalf("unexpected half-course summary: %+v", got)
	}
	if _, ok := byCourse[skipped.ID]; ok {
		t.Fatal("summaries should only cover the caller's enrollments")
	}
}
