package handlers

import (
	"github.com/JunaidSumsaal/advanceparkingsystem/internal/logger"
	"github.com/gofiber/fiber/v2"
)

// ErrorResponse is the uniform error payload. Every handler, including
// the Fiber fallback below, answers failures as {"error": "..."}.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ErrorHandler catches errors that escape the handlers. Fiber errors
// (unknown routes, oversized bodies, method mismatches) keep their code
// and message; anything else is logged with the request line and masked
// as a plain 500 so internals never leak to the client.
func ErrorHandler(c *fiber.Ctx, err error) error {
	if e, ok := err.(*fiber.Error); ok {
		return c.Status(e.Code).JSON(ErrorResponse{Error: e.Message})
	}

	logger.GetLogger("http").Errorf("Unhandled error on %s %s: %v", c.Method(), c.Path(), err)
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
		Error: "Internal Server Error",
	})
}
