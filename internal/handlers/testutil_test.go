package handlers

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/mindleaf/backend/internal/database"
	"github.com/mindleaf/backend/internal/middleware"
	"github.com/mindleaf/backend/internal/models"
	"github.com/mindleaf/backend/internal/services"
	"github.com/mindleaf/backend/internal/storage"
	"github.com/mindleaf/backend/pkg/logger"
	"github.com/mindleaf/backend/pkg/utils"
	"gorm.io/gorm"
)

type testEnv struct {
	app *fiber.App
	db  *gorm.DB
}

var testSetupOnce sync.Once

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testSetupOnce.Do(func() {
		gosqlite.MustRegisterScalarFunction("NOW", 0, func(ctx *gosqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			return time.Now().UTC(), nil
		})
		logger.Init()
	})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed automigrating models: %v", err)
	}

	accessService := services.NewAccessService(db)
	progressService := services.NewProgressService(db)
	store := storage.NewLocal(t.TempDir())

	authHandler := NewAuthHandler(db)
	usersHandler := NewUsersHandler(db)
	coursesHandler := NewCoursesHandler(db, accessService)
	lessonsHandler := NewLessonsHandler(db, accessService, store)
	enrollmentsHandler := NewEnrollmentsHandler(db, accessService, progressService)
	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New(fiber.Config{BodyLimit: 50 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(authMiddleware.Identify)
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	authRoutes := app.Group("/auth")
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Post("/reset-password", authHandler.ResetPassword)

	userRoutes := app.Group("/users")
	userRoutes.Post("/register", usersHandler.Register)
	userRoutes.Get("/me", middleware.RequireAuth, usersHandler.Me)
	userRoutes.Get("/", middleware.RequireAnyRole(models.UserRoleAdmin), usersHandler.List)
	userRoutes.Post("/:id/upgrade-to-creator", middleware.RequireAnyRole(models.UserRoleAdmin), usersHandler.UpgradeToCreator)
	userRoutes.Post("/:id/reset-password", middleware.RequireAnyRole(models.UserRoleAdmin), usersHandler.CreateResetToken)

	courseRoutes := app.Group("/courses")
	courseRoutes.Get("/", coursesHandler.List)
	courseRoutes.Post("/", middleware.RequireAnyRole(models.UserRoleCreator, models.UserRoleAdmin), coursesHandler.Create)
	courseRoutes.Get("/my-created", middleware.RequireAuth, coursesHandler.MyCreated)
	courseRoutes.Get("/:courseId/access", middleware.RequireAuth, coursesHandler.GetAccess)
	courseRoutes.Put("/:courseId/access", middleware.RequireAuth, coursesHandler.UpdateAccess)
	courseRoutes.Delete("/:courseId", middleware.RequireAuth, coursesHandler.Delete)

	lessonRoutes := app.Group("/lessons", middleware.RequireAuth)
	lessonRoutes.Get("/", lessonsHandler.List)
	lessonRoutes.Get("/course/:courseId", lessonsHandler.ListByCourse)
	lessonRoutes.Post("/course/:courseId/reorder", lessonsHandler.Reorder)
	lessonRoutes.Post("/", lessonsHandler.Create)
	lessonRoutes.Get("/:lessonId", lessonsHandler.Get)
	lessonRoutes.Put("/:lessonId", lessonsHandler.Update)
	lessonRoutes.Delete("/:lessonId", lessonsHandler.Delete)

	enrollmentRoutes := app.Group("/enrollments", middleware.RequireAuth)
	enrollmentRoutes.Post("/courses/:courseId", enrollmentsHandler.Enroll)
	enrollmentRoutes.Delete("/courses/:courseId", enrollmentsHandler.Unenroll)
	enrollmentRoutes.Get("/my-courses", enrollmentsHandler.MyCourses)
	enrollmentRoutes.Post("/lessons/:lessonId/complete", enrollmentsHandler.CompleteLesson)
	enrollmentRoutes.Get("/courses/:courseId/progress", enrollmentsHandler.CourseProgress)

	return &testEnv{app: app, db: db}
}

func createTestUser(t *testing.T, db *gorm.DB, email, password string, role models.UserRole) (*models.User, string) {
	t.Helper()

	hash, err := utils.HashPassword(password)
	if err != nil {
		t.Fatalf("failed hashing password: %v", err)
	}

	token := utils.GenerateOpaqueToken()
	user := &models.User{
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		AuthToken:    &token,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating test user: %v", err)
	}

	return user, token
}

func createTestCourse(t *testing.T, db *gorm.DB, authorID *uuid.UUID, restricted bool, allowedEmails ...string) *models.Course {
	t.Helper()

	course := &models.Course{
		Title:                 "Test Course",
		Description:           "A course for tests",
		AuthorID:              authorID,
		RestrictedToAllowList: restricted,
	}
	if err := db.Create(course).Error; err != nil {
		t.Fatalf("failed creating test course: %v", err)
	}
	for _, email := range allowedEmails {
		entry := &models.CourseAllowedEmail{CourseID: course.ID, Email: email}
		if err := db.Create(entry).Error; err != nil {
			t.Fatalf("failed creating allowlist entry: %v", err)
		}
	}
	return course
}

func createTestLesson(t *testing.T, db *gorm.DB, courseID uuid.UUID, title string, orderIndex int) *models.Lesson {
	t.Helper()

	lesson := &models.Lesson{
		CourseID:   courseID,
		Title:      title,
		Content:    "lesson body",
		OrderIndex: orderIndex,
	}
	if err := db.Create(lesson).Error; err != nil {
		t.Fatalf("failed creating test lesson: %v", err)
	}
	return lesson
}

func enrollTestUser(t *testing.T, db *gorm.DB, userID, courseID uuid.UUID) *models.CourseEnrollment {
	t.Helper()

	enrollment := &models.CourseEnrollment{UserID: userID, CourseID: courseID}
	if err := db.Create(enrollment).Error; err != nil {
		t.Fatalf("failed creating enrollment: %v", err)
	}
	return enrollment
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func performRequest(t *testing.T, app *fiber.App, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req, int((10 * time.Second).Milliseconds()))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}

	return resp
}

func performJSONRequest(t *testing.T, app *fiber.App, method, path string, payload any, headers map[string]string) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	requestHeaders := map[string]string{}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	if payload != nil {
		requestHeaders["Content-Type"] = "application/json"
	}

	return performRequest(t, app, method, path, body, requestHeaders)
}

func performMultipartRequest(t *testing.T, app *fiber.App, method, path string, fields map[string]string, fileField, fileName string, fileContent []byte, headers map[string]string) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("failed writing form field %s: %v", key, err)
		}
	}
	if fileField != "" {
		part, err := writer.CreateFormFile(fileField, fileName)
		if err != nil {
			t.Fatalf("failed creating form file: %v", err)
		}
		if _, err := part.Write(fileContent); err != nil {
			t.Fatalf("failed writing form file: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed closing multipart writer: %v", err)
	}

	requestHeaders := map[string]string{}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	requestHeaders["Content-Type"] = writer.FormDataContentType()

	return performRequest(t, app, method, path, &buf, requestHeaders)
}

func decodeJSONMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed decoding JSON response: %v body=%q", err, string(raw))
	}

	return payload
}

func decodeDataMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()

	payload := decodeJSONMap(t, resp)
	data, ok := payload["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected object data field, got %+v", payload)
	}
	return data
}

func decodeDataSlice(t *testing.T, resp *http.Response) []any {
	t.Helper()

	payload := decodeJSONMap(t, resp)
	data, ok := payload["data"].([]any)
	if !ok {
		t.Fatalf("expected array data field, got %+v", payload)
	}
	return data
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

func assertEnvelopeError(t *testing.T, body map[string]any, expected string) {
	t.Helper()
	if success, _ := body["success"].(bool); success {
		t.Fatalf("expected success=false, got %+v", body)
	}
	if got, _ := body["error"].(string); got != expected {
		t.Fatalf("expected error %q, got %q", expected, got)
	}
}
