// handlers/respond.go - Shared error response helper
package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"partyhub/apperr"
)

// fail maps a service error onto the HTTP response. Internal errors are
// logged with detail but serialized generically.
func fail(c *fiber.Ctx, err error) error {
	status := apperr.HTTPStatus(err)
	if status == fiber.StatusInternalServerError {
		log.Printf("Internal error on %s %s: %v", c.Method(), c.Path(), err)
	}
	return c.Status(status).JSON(fiber.Map{"error": apperr.Message(err)})
}
