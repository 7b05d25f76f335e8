package auth

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func TestMiddlewarePassesOperatorToHandlers(t *testing.T) {
	tm := NewTokenManager("secret", 30)
	token, _, err := tm.GenerateToken("oncall")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	app := fiber.New()
	app.Get("/whoami", NewMiddleware(tm).Handle, func(c *fiber.Ctx) error {
		operator, ok := OperatorFromContext(c)
		if !ok {
			return fiber.ErrUnauthorized
		}
		return c.SendString(operator)
	})

	req := httptest.NewRequest("GET", "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "oncall" {
		t.Fatalf("operator = %q, want oncall", body)
	}

	bare, err := app.Test(httptest.NewRequest("GET", "/whoami", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer bare.Body.Close()
	if bare.StatusCode == fiber.StatusOK {
		t.Fatal("request without a token reached the handler")
	}
}
