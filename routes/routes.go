package routes

import (
	"github.com/gofiber/fiber/v2"

	"paysync-backend/controllers"
	"paysync-backend/middlewares"
)

// Handlers bundles the controllers the router wires up.
type Handlers struct {
	Transactions *controllers.TransactionHandler
	Balance      *controllers.BalanceHandler
	DeadLetters  *controllers.DeadLetterHandler
}

// Register wires all HTTP routes.
func Register(app *fiber.App, h Handlers) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	// Read-only ledger access for reporting/billing consumers
	api.Get("/transactions", h.Transactions.List)
	api.Get("/transactions/:id", h.Transactions.Get)
	api.Get("/balance", h.Balance.Get)

	// Operator endpoints (JWT with operator role)
	admin := api.Group("/admin")
	admin.Use(middlewares.RequireRole(middlewares.RoleOperator))

	admin.Get("/dead-letters", h.DeadLetters.List)
	admin.Post("/dead-letters/:id/requeue", h.DeadLetters.Requeue)
	admin.Delete("/dead-letters/:id", h.DeadLetters.Delete)
}
