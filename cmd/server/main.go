package main

import (
	"context"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"transit-backend/internal/audit"
	"transit-backend/internal/auth"
	"transit-backend/internal/config"
	"transit-backend/internal/localized"
	"transit-backend/internal/resource"
	"transit-backend/internal/storage"
	"transit-backend/internal/store"
	"transit-backend/internal/transit"
)

func main() {
	ctx := context.Background()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("Config loaded (port: %d, driver: %s)", cfg.Server.Port, cfg.Database.Driver)

	// 2. Connect to database
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	// 3. Bootstrap schema and seed data
	if err := db.Bootstrap(ctx); err != nil {
		log.Fatalf("Failed to bootstrap database: %v", err)
	}
	log.Println("Schema ready")

	// 4. Build services
	fileService := storage.NewService(storage.NewLocalBackend(cfg.Storage.LocalPath), db.Dialect)
	services := transit.Services{
		Store:    db,
		Text:     localized.NewService(db.Dialect),
		Files:    fileService,
		Audit:    audit.NewRecorder(db),
		Settings: transit.NewSettingsCache(db),
	}
	if err := services.Settings.Refresh(ctx); err != nil {
		log.Printf("WARN: settings cache initial load: %v", err)
	}

	// 5. Register resources
	reg, err := transit.BuildRegistry(services)
	if err != nil {
		log.Fatalf("Failed to build resource registry: %v", err)
	}
	log.Printf("Registered %d resources", len(reg.All()))

	// 6. Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: resource.ErrorHandler,
		BodyLimit:    int(cfg.Storage.MaxFileSize),
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))

	// 7. Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// 8. Auth routes (no session required)
	auth.RegisterRoutes(app, auth.NewHandler(db, cfg.JWTSecret))

	// 9. Session middleware; anonymous requests pass through and meet the
	// permission gate per resource
	authMW := auth.Middleware(cfg.JWTSecret)

	// 10. File upload/download routes
	storage.NewHandler(fileService, db).RegisterRoutes(app, authMW)

	// 11. Generic resource routes
	engine := resource.NewHandler(db, reg, cfg.Engine.WriteTimeout(), cfg.Engine.MaxPageSize)
	resource.RegisterRoutes(app, engine, authMW)

	// 12. Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("Starting server on %s", addr)
	log.Fatal(app.Listen(addr))
}
