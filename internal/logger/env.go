package logger

import (
	"log/slog"
	"os"
	"strings"
)

// InitFromEnv configures the default logger from LOG_* variables.
func InitFromEnv() *slog.Logger {
	return Init(Config{
		Level:   envOr("LOG_LEVEL", "info"),
		Format:  envOr("LOG_FORMAT", "json"),
		Service: os.Getenv("LOG_SERVICE"),
		Env:     envOr("LOG_ENV", os.Getenv("APP_ENV")),
		Output:  envOr("LOG_OUTPUT", "stdout"),
	})
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
