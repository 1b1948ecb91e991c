package resource

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes mounts the generic resource routes. auth resolves the
// principal for every request; public operations are decided per resource
// inside the handlers, so the middleware must tolerate missing credentials.
func RegisterRoutes(app *fiber.App, h *Handler, auth fiber.Handler) {
	api := app.Group("/api", auth)
	api.Get("/:resource", h.List)
	api.Get("/:resource/:id", h.GetByID)
	api.Post("/:resource", h.Create)
	api.Put("/:resource", h.Update)
	api.Delete("/:resource", h.Delete)
}

// ErrorHandler renders every handler error as the uniform failure envelope.
// Unknown errors become opaque 500s; their detail stays in the server log.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			appErr = NewAppError("HTTP_ERROR", fe.Code, fe.Message)
		} else {
			log.Printf("unhandled error on %s %s: %v", c.Method(), c.Path(), err)
			appErr = InternalError()
		}
	}
	return c.Status(appErr.Status).JSON(ErrorResponse{Success: false, Error: appErr})
}
