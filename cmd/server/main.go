package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/mindleaf/backend/internal/config"
	"github.com/mindleaf/backend/internal/database"
	"github.com/mindleaf/backend/internal/handlers"
	"github.com/mindleaf/backend/internal/middleware"
	"github.com/mindleaf/backend/internal/models"
	"github.com/mindleaf/backend/internal/services"
	"github.com/mindleaf/backend/internal/storage"
	"github.com/mindleaf/backend/pkg/logger"
)

func main() {
	logger.Init()

	cfg := config.Load()

	db, err := database.Connect(cfg.DB, cfg.Admin)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	store, err := storage.New(cfg.S3, cfg.Server.UploadsDir)
	if err != nil {
		log.Fatalf("storage initialization failed: %v", err)
	}
	if err := store.EnsureBucket(context.Background()); err != nil {
		log.Fatalf("failed ensuring storage bucket: %v", err)
	}

	accessService := services.NewAccessService(db)
	progressService := services.NewProgressService(db)

	authHandler := handlers.NewAuthHandler(db)
	usersHandler := handlers.NewUsersHandler(db)
	coursesHandler := handlers.NewCoursesHandler(db, accessService)
	lessonsHandler := handlers.NewLessonsHandler(db, accessService, store)
	enrollmentsHandler := handlers.NewEnrollmentsHandler(db, accessService, progressService)

	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New(fiber.Config{BodyLimit: 50 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	app.Use(authMiddleware.Identify)
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	app.Get("/", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": "courses backend is running"})
	})

	// Locally stored lesson PDFs are served directly; S3-backed ones are
	// fetched through presigned URLs instead.
	app.Static("/files", cfg.Server.UploadsDir)

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

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":    cfg.Server.Port,
		"address": listenAddr,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
		shutdownDone := make(chan struct{})
		go func() {
			_ = app.Shutdown()
			close(shutdownDone)
		}()
		select {
		case <-shutdownDone:
		case <-time.After(10 * time.Second):
			log.Print("forced shutdown timeout reached")
		}
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
}
