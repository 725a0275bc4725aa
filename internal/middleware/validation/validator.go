package validation

import (
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/nainovate/Evaluation-UI-sub000/pkg/logger"
)

type Config struct {
	AllowedContentTypes []string
	// JSONPrefixes are path prefixes whose bodies must be a JSON object.
	JSONPrefixes []string
	Logger       *zap.Logger
}

func Middleware(cfg Config) fiber.Handler {
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{fiber.MIMEApplicationJSON, fiber.MIMEMultipartForm}
	}
	if cfg.JSONPrefixes == nil {
		cfg.JSONPrefixes = []string{"/api/v1/wizard", "/api/v1/evaluation-metadata", "/api/v1/datasets/validate"}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}

	return func(c *fiber.Ctx) error {
		method := c.Method()
		if method != fiber.MethodPost && method != fiber.MethodPut {
			return c.Next()
		}

		contentType := c.Get(fiber.HeaderContentType)
		if contentType != "" && !allowed(contentType, cfg.AllowedContentTypes) {
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
				"error": "Unsupported content type",
			})
		}

		if !hasPrefix(c.Path(), cfg.JSONPrefixes) {
			return c.Next()
		}

		body := c.Body()
		if len(strings.TrimSpace(string(body))) == 0 {
			return c.Next()
		}

		var obj map[string]json.RawMessage
		if err := json.Unmarshal(body, &obj); err != nil {
			cfg.Logger.Warn("Rejected malformed JSON body",
				zap.String("ip", c.IP()),
				zap.String("path", c.Path()),
				zap.Error(err),
			)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid JSON format",
			})
		}

		return c.Next()
	}
}

func allowed(contentType string, types []string) bool {
	for _, t := range types {
		if strings.Contains(contentType, t) {
			return true
		}
	}
	return false
}

func hasPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
