package security

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

type HeadersConfig struct {
	AllowedOrigins []string
	IsDevelopment  bool
}

func HeadersMiddleware(cfg HeadersConfig) fiber.Handler {
	csp := contentSecurityPolicy(cfg.AllowedOrigins)

	return func(c *fiber.Ctx) error {
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")

		if !cfg.IsDevelopment {
			c.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Set("Content-Security-Policy", csp)

		return c.Next()
	}
}

// contentSecurityPolicy allows the wizard UI origins to open the run
// status websocket.
func contentSecurityPolicy(origins []string) string {
	connect := []string{"'self'"}
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin == "" || origin == "*" {
			continue
		}
		connect = append(connect, origin)
		switch {
		case strings.HasPrefix(origin, "https://"):
			connect = append(connect, "wss://"+strings.TrimPrefix(origin, "https://"))
		case strings.HasPrefix(origin, "http://"):
			connect = append(connect, "ws://"+strings.TrimPrefix(origin, "http://"))
		}
	}

	return "default-src 'none'; " +
		"connect-src " + strings.Join(connect, " ") + "; " +
		"frame-ancestors 'none'; " +
		"base-uri 'none'"
}
