package api

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/google/uuid"
	"github.com/park285/cheese-arena/internal/gateway"
	"github.com/park285/cheese-arena/internal/match"
	"go.uber.org/zap"
)

const HeaderRequestID = "X-Request-ID"

type Options struct {
	AllowedOrigins []string
	Stream         gateway.Options
}

// NewApp wires the match routes onto a fiber app.
func NewApp(reg *match.Registry, opts Options, logger *zap.Logger) *fiber.App {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := fiber.New(fiber.Config{
		AppName:               "cheese-arena",
		DisableStartupMessage: true,
		// request-scoped strings outlive the handler in registry state
		Immutable:    true,
		ErrorHandler: errorHandler(logger),
	})

	origins := strings.Join(opts.AllowedOrigins, ",")
	if origins == "" {
		origins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  "GET,POST,OPTIONS",
		AllowHeaders:  "Origin, Content-Type, Accept, " + HeaderRequestID,
		ExposeHeaders: HeaderRequestID,
	}))
	app.Use(requestID())
	app.Use(accessLog(logger))

	h := &handlers{reg: reg}
	app.Get("/healthz", h.health)
	g := app.Group("/api/match")
	g.Post("/create", h.create)
	g.Post("/join", h.join)
	g.Get("/:id", h.get)
	g.Post("/:id/action", h.action)
	g.Get("/:id/stream", gateway.SSEHandler(reg, opts.Stream, logger))
	return app
}

func requestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := strings.TrimSpace(c.Get(HeaderRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		c.Locals("request_id", id)
		c.Set(HeaderRequestID, id)
		return c.Next()
	}
}

func accessLog(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		status := c.Response().StatusCode()
		if err != nil {
			// the error handler has not run yet
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			} else {
				status, _ = statusFor(err)
			}
		}
		logger.Info("http_request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Duration("elapsed", time.Since(start)),
			zap.Any("request_id", c.Locals("request_id")),
		)
		return err
	}
}

// errorHandler keeps the {"error": msg} body shape for everything, including routing errors.
func errorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
		}
		status, msg := statusFor(err)
		if status == fiber.StatusInternalServerError {
			logger.Error("http_internal_error", zap.String("path", c.Path()), zap.Error(err))
			msg = "Internal server error"
		}
		return c.Status(status).JSON(fiber.Map{"error": msg})
	}
}

// statusFor maps a registry error to an HTTP status and client-facing message.
func statusFor(err error) (int, string) {
	switch match.Kind(err) {
	case match.ErrNotFound:
		return fiber.StatusNotFound, err.Error()
	case match.ErrInvalidInput, match.ErrInvalidState, match.ErrNotYourTurn:
		return fiber.StatusBadRequest, err.Error()
	default:
		return fiber.StatusInternalServerError, err.Error()
	}
}
