package storage

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"transit-backend/internal/resource"
	"transit-backend/internal/store"
)

// Handler serves direct file upload and download. Both require a session;
// uploads additionally require the files.manage permission so only staff
// can push binary content.
type Handler struct {
	service *Service
	store   *store.Store
}

func NewHandler(service *Service, st *store.Store) *Handler {
	return &Handler{service: service, store: st}
}

func (h *Handler) RegisterRoutes(app *fiber.App, auth fiber.Handler) {
	files := app.Group("/api/files", auth)
	files.Post("/", h.Upload)
	files.Get("/:id", h.Download)
}

// Upload handles multipart POST /api/files.
func (h *Handler) Upload(c *fiber.Ctx) error {
	p := resource.PrincipalFromFiber(c)
	if p == nil {
		return resource.UnauthorizedError("Authentication required")
	}
	if !p.IsSuperAdmin() && !p.Can("files.manage") {
		return resource.ForbiddenError("Uploading files requires files.manage")
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return resource.ValidationErrorf("file", "required", "multipart field file is required")
	}

	f, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	rec, err := h.service.SaveStream(c.Context(), h.store.DB, fh.Filename, fh.Header.Get("Content-Type"), f)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"id":   rec.ID,
			"name": rec.Name,
			"mime": rec.Mime,
			"size": rec.Size,
		},
	})
}

// Download streams GET /api/files/:id.
func (h *Handler) Download(c *fiber.Ctx) error {
	p := resource.PrincipalFromFiber(c)
	if p == nil {
		return resource.UnauthorizedError("Authentication required")
	}

	id := c.Params("id")
	rec, rc, err := h.service.Open(c.Context(), h.store.DB, id)
	if errors.Is(err, store.ErrNotFound) {
		return resource.NotFoundError("file", id)
	}
	if err != nil {
		return err
	}

	if rec.Mime != "" {
		c.Set(fiber.HeaderContentType, rec.Mime)
	}
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", rec.Name))
	return c.SendStream(rc, int(rec.Size))
}
