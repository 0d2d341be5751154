package logger

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-ID"

// FiberMiddleware tags every request with an id (taken from X-Request-ID or
// generated), exposes it through the user context, and logs the outcome once
// the handler chain and the app error handler have run.
func FiberMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		id := c.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(RequestIDHeader, id)
		ctx := WithRequestID(c.UserContext(), id)
		c.SetUserContext(ctx)

		chainErr := c.Next()
		if chainErr != nil {
			if err := c.App().Config().ErrorHandler(c, chainErr); err != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		route := ""
		if r := c.Route(); r != nil {
			route = r.Path
		}
		status := c.Response().StatusCode()
		attrs := []any{
			"status", status,
			"method", c.Method(),
			"path", c.OriginalURL(),
			"route", route,
			"ip", c.IP(),
			"latency_ms", float64(time.Since(start).Microseconds()) / 1000.0,
		}

		log := FromContext(ctx)
		switch {
		case status >= fiber.StatusInternalServerError:
			if chainErr != nil {
				attrs = append(attrs, "err", chainErr.Error())
			}
			log.Error("http request", attrs...)
		case status >= fiber.StatusBadRequest:
			log.Warn("http request", attrs...)
		default:
			log.Info("http request", attrs...)
		}
		return nil
	}
}
