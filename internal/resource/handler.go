package resource

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"transit-backend/internal/store"
)

// PrincipalKey is the fiber locals slot the auth middleware fills.
const PrincipalKey = "principal"

// PrincipalFromFiber returns the authenticated principal, or nil for an
// anonymous request.
func PrincipalFromFiber(c *fiber.Ctx) *Principal {
	if p, ok := c.Locals(PrincipalKey).(*Principal); ok {
		return p
	}
	return nil
}

// Handler serves every registered resource through one generic set of
// routes. Per-resource behavior lives entirely in the descriptor.
type Handler struct {
	store        *store.Store
	registry     *Registry
	writeTimeout time.Duration
	maxPageSize  int
}

func NewHandler(st *store.Store, reg *Registry, writeTimeout time.Duration, maxPageSize int) *Handler {
	return &Handler{
		store:        st,
		registry:     reg,
		writeTimeout: writeTimeout,
		maxPageSize:  maxPageSize,
	}
}

func (h *Handler) resolve(c *fiber.Ctx) (*Descriptor, error) {
	name := c.Params("resource")
	d := h.registry.Get(name)
	if d == nil {
		return nil, UnknownResourceError(name)
	}
	return d, nil
}

// List handles GET /api/:resource.
func (h *Handler) List(c *fiber.Ctx) error {
	d, err := h.resolve(c)
	if err != nil {
		return err
	}
	p := PrincipalFromFiber(c)
	if appErr := Authorize(p, d, OpView); appErr != nil {
		return appErr
	}

	qc, err := ParseQuery(c.Queries(), d, p, h.maxPageSize)
	if err != nil {
		return err
	}

	ctx := c.Context()
	if d.Hooks.BeforeList != nil {
		if err := d.Hooks.BeforeList(ctx, qc); err != nil {
			return err
		}
	}

	dialect := h.store.Dialect

	countQ := BuildCountSQL(qc, dialect)
	countRow, err := store.QueryRow(ctx, h.store.DB, countQ.SQL, countQ.Params...)
	if err != nil {
		return fmt.Errorf("count %s: %w", d.Name, err)
	}
	total := toInt64(countRow["total"])

	selectQ := BuildSelectSQL(qc, dialect)
	rows, err := store.QueryRows(ctx, h.store.DB, selectQ.SQL, selectQ.Params...)
	if err != nil {
		return fmt.Errorf("list %s: %w", d.Name, err)
	}

	if err := h.decorate(ctx, d, rows); err != nil {
		return err
	}

	return respond(c, fiber.StatusOK, NewPaginatedResult(rows, total, qc.Page, qc.Limit))
}

// GetByID handles GET /api/:resource/:id.
func (h *Handler) GetByID(c *fiber.Ctx) error {
	d, err := h.resolve(c)
	if err != nil {
		return err
	}
	p := PrincipalFromFiber(c)
	if appErr := Authorize(p, d, OpView); appErr != nil {
		return appErr
	}

	id := c.Params("id")
	ctx := c.Context()

	row, err := h.fetchByID(ctx, h.store.DB, d, id)
	if err != nil {
		return err
	}

	rows := []map[string]any{row}
	if err := h.decorate(ctx, d, rows); err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, rows[0])
}

// Create handles POST /api/:resource.
func (h *Handler) Create(c *fiber.Ctx) error {
	d, err := h.resolve(c)
	if err != nil {
		return err
	}
	p := PrincipalFromFiber(c)
	if appErr := Authorize(p, d, OpCreate); appErr != nil {
		return appErr
	}

	body, appErr := parseBody(c)
	if appErr != nil {
		return appErr
	}
	if details := ValidatePayload(d.CreateSchema, body); len(details) > 0 {
		return ValidationError(details)
	}
	if appErr := CheckFieldGuards(p, d, body); appErr != nil {
		return appErr
	}

	wc := &WriteContext{Principal: p, Input: body}
	if d.Hooks.BeforeCreate != nil {
		if err := d.Hooks.BeforeCreate(c.Context(), wc); err != nil {
			return err
		}
	}

	record, err := h.inTx(c, func(ctx context.Context, tx store.Querier) (map[string]any, error) {
		return d.Composer.Create(ctx, tx, wc.Input)
	})
	if err != nil {
		return h.mapWriteError(d, "", err)
	}

	h.decorateOne(c.Context(), d, record)

	var warning string
	if d.Hooks.AfterCreate != nil {
		if err := d.Hooks.AfterCreate(c.Context(), record, p); err != nil {
			log.Printf("after-create hook failed for %s: %v", d.Name, err)
			warning = "post-processing failed; the record was saved"
		}
	}
	return respondWithWarning(c, fiber.StatusCreated, record, warning)
}

// Update handles PUT /api/:resource. The record id travels in the payload.
func (h *Handler) Update(c *fiber.Ctx) error {
	d, err := h.resolve(c)
	if err != nil {
		return err
	}
	p := PrincipalFromFiber(c)
	if appErr := Authorize(p, d, OpUpdate); appErr != nil {
		return appErr
	}

	body, appErr := parseBody(c)
	if appErr != nil {
		return appErr
	}
	id, appErr := takeID(d, body)
	if appErr != nil {
		return appErr
	}
	if details := ValidatePayload(d.UpdateSchema, body); len(details) > 0 {
		return ValidationError(details)
	}
	if appErr := CheckFieldGuards(p, d, body); appErr != nil {
		return appErr
	}

	current, err := h.fetchByID(c.Context(), h.store.DB, d, id)
	if err != nil {
		return err
	}

	wc := &WriteContext{Principal: p, Input: body, Current: current}
	if d.Hooks.BeforeUpdate != nil {
		if err := d.Hooks.BeforeUpdate(c.Context(), wc); err != nil {
			return err
		}
	}

	record, err := h.inTx(c, func(ctx context.Context, tx store.Querier) (map[string]any, error) {
		return d.Composer.Update(ctx, tx, id, wc.Input)
	})
	if err != nil {
		return h.mapWriteError(d, id, err)
	}

	h.decorateOne(c.Context(), d, record)

	var warning string
	if d.Hooks.AfterUpdate != nil {
		if err := d.Hooks.AfterUpdate(c.Context(), record, p); err != nil {
			log.Printf("after-update hook failed for %s %s: %v", d.Name, id, err)
			warning = "post-processing failed; the record was saved"
		}
	}
	return respondWithWarning(c, fiber.StatusOK, record, warning)
}

// Delete handles DELETE /api/:resource. The record id travels in the payload.
func (h *Handler) Delete(c *fiber.Ctx) error {
	d, err := h.resolve(c)
	if err != nil {
		return err
	}
	p := PrincipalFromFiber(c)
	if appErr := Authorize(p, d, OpDelete); appErr != nil {
		return appErr
	}

	body, appErr := parseBody(c)
	if appErr != nil {
		return appErr
	}
	id, appErr := takeID(d, body)
	if appErr != nil {
		return appErr
	}

	current, err := h.fetchByID(c.Context(), h.store.DB, d, id)
	if err != nil {
		return err
	}

	dc := &DeleteContext{Principal: p, ID: id, Current: current}
	if d.Hooks.BeforeDelete != nil {
		if err := d.Hooks.BeforeDelete(c.Context(), dc); err != nil {
			return err
		}
	}

	_, err = h.inTx(c, func(ctx context.Context, tx store.Querier) (map[string]any, error) {
		return nil, d.Composer.Delete(ctx, tx, id)
	})
	if err != nil {
		return h.mapWriteError(d, id, err)
	}

	var warning string
	if d.Hooks.AfterDelete != nil {
		if err := d.Hooks.AfterDelete(c.Context(), id, p); err != nil {
			log.Printf("after-delete hook failed for %s %s: %v", d.Name, id, err)
			warning = "post-processing failed; the record was deleted"
		}
	}
	return respondWithWarning(c, fiber.StatusOK, fiber.Map{"id": id, "deleted": true}, warning)
}

// inTx runs fn inside a transaction bound to the write timeout. A timeout
// rolls the transaction back; commit errors surface to the caller.
func (h *Handler) inTx(c *fiber.Ctx, fn func(ctx context.Context, tx store.Querier) (map[string]any, error)) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(c.Context(), h.writeTimeout)
	defer cancel()

	tx, err := h.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}

	record, err := fn(ctx, tx)
	if err != nil {
		tx.Rollback()
		if ctx.Err() != nil {
			return nil, context.DeadlineExceeded
		}
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		if ctx.Err() != nil {
			return nil, context.DeadlineExceeded
		}
		return nil, fmt.Errorf("commit: %w", err)
	}
	return record, nil
}

func (h *Handler) fetchByID(ctx context.Context, q store.Querier, d *Descriptor, id string) (map[string]any, error) {
	dialect := h.store.Dialect
	pb := dialect.NewParamBuilder()
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		strings.Join(d.Columns, ", "), d.Table, d.PrimaryKey, pb.Add(id))
	if d.SoftDelete {
		sql += " AND deleted_at IS NULL"
	}
	row, err := store.QueryRow(ctx, q, sql, pb.Params()...)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NotFoundError(d.Name, id)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s %s: %w", d.Name, id, err)
	}
	return row, nil
}

// decorate applies includes, driver bool fixes and field redaction to a
// result set, in place.
func (h *Handler) decorate(ctx context.Context, d *Descriptor, rows []map[string]any) error {
	if err := LoadIncludes(ctx, h.store.DB, h.store.Dialect, d, rows); err != nil {
		return err
	}
	if h.store.Dialect.NeedsBoolFix() {
		store.NormalizeBooleans(rows, d.BooleanFields())
	}
	for _, row := range rows {
		for _, f := range d.ExcludeFields {
			delete(row, f)
		}
	}
	return nil
}

// decorateOne is decorate for a single freshly written record; decoration
// failures after a committed write are logged, not surfaced.
func (h *Handler) decorateOne(ctx context.Context, d *Descriptor, record map[string]any) {
	if record == nil {
		return
	}
	if err := h.decorate(ctx, d, []map[string]any{record}); err != nil {
		log.Printf("decorate %s response: %v", d.Name, err)
	}
}

// mapWriteError translates storage failures from a write path into the
// error taxonomy.
func (h *Handler) mapWriteError(d *Descriptor, id string, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return TimeoutError(fmt.Sprintf("Write to %s timed out", d.Name))
	case errors.Is(err, store.ErrUniqueViolation):
		return ConflictError(fmt.Sprintf("%s violates a uniqueness constraint", d.Name))
	case errors.Is(err, store.ErrNotFound):
		return NotFoundError(d.Name, id)
	}
	return err
}

func parseBody(c *fiber.Ctx) (map[string]any, *AppError) {
	body := map[string]any{}
	if err := c.BodyParser(&body); err != nil {
		return nil, ValidationErrorf("body", "format", "request body must be a JSON object")
	}
	return body, nil
}

// takeID pulls the record id out of a write payload so the remaining keys
// validate against the schema.
func takeID(d *Descriptor, body map[string]any) (string, *AppError) {
	raw, ok := body[d.PrimaryKey]
	if !ok {
		return "", ValidationErrorf(d.PrimaryKey, "required", "%s is required", d.PrimaryKey)
	}
	id, ok := raw.(string)
	if !ok || id == "" {
		return "", ValidationErrorf(d.PrimaryKey, "format", "%s must be a non-empty string", d.PrimaryKey)
	}
	delete(body, d.PrimaryKey)
	return id, nil
}

func respond(c *fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(fiber.Map{"success": true, "data": data})
}

func respondWithWarning(c *fiber.Ctx, status int, data any, warning string) error {
	if warning == "" {
		return respond(c, status, data)
	}
	return c.Status(status).JSON(fiber.Map{"success": true, "data": data, "warning": warning})
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}
