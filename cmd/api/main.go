package main

import (
	"log"
	"time"

	"tasktrack/configs"
	v1 "tasktrack/internal/api/v1"
	"tasktrack/internal/api/v1/handlers"
	"tasktrack/internal/auth"
	"tasktrack/internal/middleware"
	"tasktrack/internal/repository"
	myws "tasktrack/internal/websocket"
	"tasktrack/pkg/database"
	"tasktrack/pkg/logger"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

func main() {
	logger.InitLoggers()
	defer logger.SyncLoggers()
	logger.SystemLogger.Info("Starting application", zap.String("time", time.Now().Format(time.RFC3339)))

	cfg := configs.LoadConfig()

	db := database.ConnectDB(cfg)
	defer db.Close()
	logger.SystemLogger.Info("Database connected")

	if err := repository.CreateTableIfNotExists(db); err != nil {
		log.Fatalf("Error creating tables: %v", err)
	}

	redisClient := database.ConnectRedis(cfg)
	defer redisClient.Close()

	hub := myws.NewHub()
	go hub.Run()

	h := &handlers.Handler{
		Cfg:      cfg,
		Users:    repository.NewUserRepo(db),
		Tasks:    repository.NewTaskRepo(db),
		Tokens:   auth.NewService(cfg.AccessTokenSecret, cfg.RefreshTokenSecret),
		Validate: validator.New(),
		Cache:    redisClient,
		Hub:      hub,
	}

	app := fiber.New()

	app.Use(middleware.ErrorHandler())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigin,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
	}))
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString("Backend API is running.")
	})

	v1.RegisterRoutes(app, h, middleware.RequireAuth(h.Tokens, h.Users))

	// Task event stream
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		client := &myws.Client{Conn: c}
		hub.Register <- client
		defer func() {
			hub.Unregister <- client
		}()
		for {
			// Clients only listen; reads just detect disconnects.
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
	}))

	v1.RegisterNotFound(app)

	logger.SystemLogger.Info("Application ready", zap.String("port", cfg.Port))
	if err := app.Listen(":" + cfg.Port); err != nil {
		logger.ErrorLogger.Error("Application failed to start", zap.Error(err))
	}
}
