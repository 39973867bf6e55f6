package v1

import (
	"tasktrack/internal/api/v1/handlers"

	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes mounts the API surface. Task routes are public; only the
// session and user-directory endpoints sit behind the gate.
func RegisterRoutes(app *fiber.App, h *handlers.Handler, requireAuth fiber.Handler) {
	api := app.Group("/api")

	// Session + user directory
	users := api.Group("/users")
	users.Post("/register", h.Register)
	users.Post("/login", h.Login)
	users.Post("/refresh", h.Refresh)
	users.Post("/logout", requireAuth, h.Logout)
	users.Get("/me", requireAuth, h.Me)
	users.Get("/users", requireAuth, h.ListUsers)
	users.Get("/users/:id", requireAuth, h.GetUser)

	// Task registry
	tasks := api.Group("/tasks")
	tasks.Post("/", h.CreateTask)
	tasks.Get("/", h.ListTasks)
	tasks.Get("/:id", h.GetTask)
	tasks.Put("/:id", h.UpdateTask)
	tasks.Delete("/:id", h.DeleteTask)
}

// RegisterNotFound is mounted after every route so unknown paths get the
// standard envelope instead of fiber's plain 404.
func RegisterNotFound(app *fiber.App) {
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Route not found",
			"data":    nil,
		})
	})
}
