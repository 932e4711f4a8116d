package middlewares

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func adminApp() *fiber.App {
	app := fiber.New()
	app.Get("/admin", RequireRole(RoleOperator), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"operator": c.Locals("operator")})
	})
	return app
}

func TestRequireRole(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "test-secret")
	app := adminApp()

	operatorToken, err := GenerateJWT("alice", RoleOperator)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}
	viewerToken, err := GenerateJWT("bob", "viewer")
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}
	// Valid structure, broken signature.
	tampered := operatorToken[:len(operatorToken)-2] + "xx"

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"operator token", "Bearer " + operatorToken, fiber.StatusOK},
		{"wrong role", "Bearer " + viewerToken, fiber.StatusForbidden},
		{"tampered signature", "Bearer " + tampered, fiber.StatusUnauthorized},
		{"missing header", "", fiber.StatusUnauthorized},
		{"not a bearer scheme", "Basic abc", fiber.StatusUnauthorized},
		{"empty bearer token", "Bearer ", fiber.StatusUnauthorized},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req := httptest.NewRequest(fiber.MethodGet, "/admin", nil)
			if c.header != "" {
				req.Header.Set("Authorization", c.header)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != c.want {
				t.Errorf("status: got %d, want %d", resp.StatusCode, c.want)
			}
		})
	}
}
