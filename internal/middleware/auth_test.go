package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/NdodaEnde/Telehealth-sub000/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

const testSecret = "test-secret"

func setupApp() *fiber.App {
	app := fiber.New()
	app.Get("/protected", AuthRequired(testSecret), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"user_id": c.Locals("user_id"),
			"role":    c.Locals("role"),
		})
	})
	return app
}

func TestAuthRequiredAcceptsValidToken(t *testing.T) {
	token, err := utils.GenerateToken("u1", "nurse", testSecret)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	app := setupApp()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestAuthRequiredRejectsMissingHeader(t *testing.T) {
	app := setupApp()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/protected", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestAuthRequiredRejectsMalformedHeader(t *testing.T) {
	app := setupApp()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Token abc")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestAuthRequiredRejectsWrongSecret(t *testing.T) {
	token, err := utils.GenerateToken("u1", "nurse", "other-secret")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	app := setupApp()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}
