// Package httpapi exposes the shortener over HTTP with Fiber.
package httpapi

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/MagnunAVF/shorturls/internal/logger"
	"github.com/MagnunAVF/shorturls/internal/shortener"
)

// Shortener is implemented by *shortener.Engine.
type Shortener interface {
	Allocate(ctx context.Context, req shortener.AllocateRequest) (*shortener.Mapping, error)
	Resolve(ctx context.Context, code string, visit shortener.Visit) (string, error)
	Stats(ctx context.Context, code string) (*shortener.Stats, error)
}

type Config struct {
	// BaseURL prefixes codes in returned short links, without a trailing slash.
	BaseURL string
}

type Server struct {
	svc Shortener
	cfg Config
}

// New builds the Fiber app with all routes and middleware registered.
func New(svc Shortener, cfg Config) *fiber.App {
	s := &Server{svc: svc, cfg: cfg}

	app := fiber.New(fiber.Config{
		AppName:               "shorturls",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
		// Header and param strings outlive the request in the click log.
		Immutable:             true,
	})
	app.Use(logger.FiberMiddleware())
	app.Use(recover.New())
	app.Use(cors.New())

	app.Get("/healthz", s.health)
	app.Post("/shorturls", s.create)
	app.Get("/shorturls/:shortcode", s.stats)
	app.Get("/:shortcode", s.redirect)

	return app
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

type errorResponse struct {
	Error string `json:"error"`
}

// errorHandler renders every error that escapes a handler as {"error": msg}.
func errorHandler(c *fiber.Ctx, err error) error {
	status, msg := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		logger.FromContext(c.UserContext()).Error("request failed", "path", c.Path(), "err", err)
	}
	return c.Status(status).JSON(errorResponse{Error: msg})
}

func statusFor(err error) (int, string) {
	var fe *fiber.Error
	switch {
	case errors.Is(err, shortener.ErrInvalidInput):
		return fiber.StatusBadRequest, err.Error()
	case errors.Is(err, shortener.ErrCodeConflict):
		return fiber.StatusConflict, shortener.ErrCodeConflict.Error()
	case errors.Is(err, shortener.ErrNotFound):
		return fiber.StatusNotFound, shortener.ErrNotFound.Error()
	case errors.Is(err, shortener.ErrExpired):
		return fiber.StatusGone, shortener.ErrExpired.Error()
	case errors.Is(err, shortener.ErrAllocationExhausted):
		return fiber.StatusServiceUnavailable, shortener.ErrAllocationExhausted.Error()
	case errors.As(err, &fe):
		return fe.Code, fe.Message
	}
	return fiber.StatusInternalServerError, "internal server error"
}
