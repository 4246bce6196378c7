// Package server assembles the fiber application serving the music job API.
package server

import (
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/dripdrop/musicjobs/internal/config"
	"github.com/dripdrop/musicjobs/internal/handler"
	"github.com/dripdrop/musicjobs/internal/logging"
	"github.com/dripdrop/musicjobs/internal/middleware"
	ws "github.com/dripdrop/musicjobs/internal/websocket"
	"github.com/dripdrop/musicjobs/pkg/response"
)

// Deps are the collaborators the HTTP surface needs.
type Deps struct {
	Config      *config.Config
	Music       handler.MusicJobs
	Hub         *ws.Hub
	RateLimiter *middleware.RateLimiter
	// Health reports the availability of backing services.
	Health func() fiber.Map
	Logger *slog.Logger
}

// New builds the fiber app with every route mounted.
func New(deps Deps) *fiber.App {
	cfg := deps.Config
	log := logging.Or(deps.Logger).With(logging.FieldComponent, "http")

	app := fiber.New(fiber.Config{
		ErrorHandler:          customErrorHandler,
		BodyLimit:             60 * 1024 * 1024, // 50MB upload plus form fields
		DisableStartupMessage: true,
	})

	// Global middleware
	app.Use(recover.New())
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams}\n"
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		services := fiber.Map{}
		if deps.Health != nil {
			services = deps.Health()
		}
		return c.JSON(fiber.Map{
			"status":   "ok",
			"services": services,
		})
	})

	var authenticate fiber.Handler
	if cfg.Gateway.Enabled {
		log.Info("gateway mode enabled, using header-based auth")
		authenticate = middleware.GatewayAuthMiddleware()
	} else {
		authenticate = middleware.NewLegacyAuthMiddleware(cfg.JWT.Secret).Authenticate()
	}

	musicHandler := handler.NewMusicHandler(deps.Music, validator.New())

	// Forward auth verification endpoint, called by the gateway
	app.Get("/auth/verify", handler.NewAuthHandler(cfg.JWT.Secret).Verify)

	// API routes
	api := app.Group("/api", authenticate)

	music := api.Group("/music")
	createLimit := func(c *fiber.Ctx) error { return c.Next() }
	if deps.RateLimiter != nil {
		createLimit = deps.RateLimiter.JobsLimit(cfg.RateLimit.JobsPerHour)
	}
	music.Post("/jobs", createLimit, musicHandler.Create)
	music.Get("/jobs", musicHandler.List)
	music.Get("/jobs/:jobId", musicHandler.Get)
	music.Delete("/jobs/:jobId", musicHandler.Delete)
	music.Get("/artwork", musicHandler.Artwork)
	music.Get("/grouping", musicHandler.Grouping)
	music.Post("/tags", musicHandler.Tags)

	// WebSocket routes
	if deps.Hub != nil {
		app.Use("/ws", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		}, authenticate)

		app.Get("/ws/jobs/:jobId", func(c *fiber.Ctx) error {
			if _, err := deps.Music.GetJob(c.UserContext(), middleware.GetUserID(c), c.Params("jobId")); err != nil {
				return response.FromError(c, err)
			}
			return c.Next()
		}, websocket.New(func(c *websocket.Conn) {
			deps.Hub.HandleConnection(c, c.Params("jobId"))
		}))
	}

	return app
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    response.CodeServiceError,
			"message": message,
		},
	})
}
