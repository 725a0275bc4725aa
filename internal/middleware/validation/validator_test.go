package validation

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(Middleware(Config{Logger: zap.NewNop()}))
	ok := func(c *fiber.Ctx) error { return c.SendString("ok") }
	app.Post("/api/v1/wizard/steps/:key/complete", ok)
	app.Post("/api/v1/datasets", ok)
	app.Get("/api/v1/wizard/state", ok)

	tests := []struct {
		name        string
		method      string
		path        string
		contentType string
		body        string
		want        int
	}{
		{"valid object", "POST", "/api/v1/wizard/steps/dataset/complete", "application/json", `{"id":"d1"}`, 200},
		{"empty body", "POST", "/api/v1/wizard/steps/metrics/complete", "application/json", "", 200},
		{"malformed json", "POST", "/api/v1/wizard/steps/dataset/complete", "application/json", `{"id":`, 400},
		{"array body", "POST", "/api/v1/wizard/steps/dataset/complete", "application/json", `[1,2]`, 400},
		{"unsupported type", "POST", "/api/v1/datasets", "text/plain", "x", 415},
		{"multipart passes", "POST", "/api/v1/datasets", "multipart/form-data; boundary=x", "", 200},
		{"get skips checks", "GET", "/api/v1/wizard/state", "", "", 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}
