package auth

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"transit-backend/internal/resource"
	"transit-backend/internal/store"
)

// Handler serves the authentication endpoints.
type Handler struct {
	store     *store.Store
	jwtSecret string
}

func NewHandler(s *store.Store, jwtSecret string) *Handler {
	return &Handler{store: s, jwtSecret: jwtSecret}
}

// RegisterRoutes registers auth routes on the given Fiber app.
func RegisterRoutes(app *fiber.App, h *Handler) {
	grp := app.Group("/api/auth")
	grp.Post("/login", h.Login)
	grp.Post("/refresh", h.Refresh)
	grp.Post("/logout", h.Logout)
}

// Login handles POST /api/auth/login.
func (h *Handler) Login(c *fiber.Ctx) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return resource.ValidationErrorf("body", "format", "request body must be a JSON object")
	}
	if body.Email == "" || body.Password == "" {
		return resource.UnauthorizedError("Email and password are required")
	}

	ctx := c.Context()

	user, err := h.findUserByEmail(ctx, body.Email)
	if err != nil {
		return resource.UnauthorizedError("Invalid email or password")
	}

	if !isActive(user["active"]) {
		return resource.UnauthorizedError("Account is disabled")
	}

	passwordHash, _ := user["password_hash"].(string)
	if !CheckPassword(body.Password, passwordHash) {
		return resource.UnauthorizedError("Invalid email or password")
	}

	userID, _ := user["id"].(string)
	roles, err := h.store.Dialect.ScanArray(user["roles"])
	if err != nil {
		return fmt.Errorf("decode roles: %w", err)
	}

	pair, err := h.generateTokenPair(ctx, userID, roles)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": pair})
}

// Refresh handles POST /api/auth/refresh. The presented token is consumed
// whether or not it yields a new pair.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&body); err != nil {
		return resource.ValidationErrorf("body", "format", "request body must be a JSON object")
	}
	if body.RefreshToken == "" {
		return resource.UnauthorizedError("Refresh token is required")
	}

	ctx := c.Context()
	dialect := h.store.Dialect

	pb := dialect.NewParamBuilder()
	row, err := store.QueryRow(ctx, h.store.DB, fmt.Sprintf(
		`SELECT rt.id, rt.user_id, rt.expires_at, u.roles, u.active
		 FROM _refresh_tokens rt
		 JOIN _users u ON u.id = rt.user_id
		 WHERE rt.token = %s`, pb.Add(body.RefreshToken)), pb.Params()...)
	if err != nil {
		return resource.UnauthorizedError("Invalid refresh token")
	}

	// Rotation: the used token is deleted even when the refresh fails below.
	tokenID, _ := row["id"].(string)
	pb = dialect.NewParamBuilder()
	_, _ = store.Exec(ctx, h.store.DB,
		"DELETE FROM _refresh_tokens WHERE id = "+pb.Add(tokenID), pb.Params()...)

	expiresAt, _ := row["expires_at"].(time.Time)
	if time.Now().After(expiresAt) {
		return resource.UnauthorizedError("Refresh token expired")
	}
	if !isActive(row["active"]) {
		return resource.UnauthorizedError("Account is disabled")
	}

	userID, _ := row["user_id"].(string)
	roles, err := dialect.ScanArray(row["roles"])
	if err != nil {
		return fmt.Errorf("decode roles: %w", err)
	}

	pair, err := h.generateTokenPair(ctx, userID, roles)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": pair})
}

// Logout handles POST /api/auth/logout.
func (h *Handler) Logout(c *fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&body); err != nil {
		return resource.ValidationErrorf("body", "format", "request body must be a JSON object")
	}
	if body.RefreshToken == "" {
		return resource.UnauthorizedError("Refresh token is required")
	}

	pb := h.store.Dialect.NewParamBuilder()
	_, _ = store.Exec(c.Context(), h.store.DB,
		"DELETE FROM _refresh_tokens WHERE token = "+pb.Add(body.RefreshToken), pb.Params()...)

	return c.JSON(fiber.Map{"success": true, "data": fiber.Map{"message": "Logged out"}})
}

// --- helpers ---

func (h *Handler) findUserByEmail(ctx context.Context, email string) (map[string]any, error) {
	pb := h.store.Dialect.NewParamBuilder()
	return store.QueryRow(ctx, h.store.DB,
		"SELECT id, email, password_hash, roles, active FROM _users WHERE email = "+pb.Add(email),
		pb.Params()...)
}

// permissionsForRoles aggregates the distinct permissions granted by the
// given roles.
func (h *Handler) permissionsForRoles(ctx context.Context, roles []string) ([]string, error) {
	if len(roles) == 0 {
		return []string{}, nil
	}

	dialect := h.store.Dialect
	values := make([]any, len(roles))
	for i, r := range roles {
		values[i] = r
	}

	pb := dialect.NewParamBuilder()
	sql := "SELECT permissions FROM _roles WHERE " + dialect.InExpr("name", pb, values)
	rows, err := store.QueryRows(ctx, h.store.DB, sql, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("load role permissions: %w", err)
	}

	seen := make(map[string]bool)
	var perms []string
	for _, row := range rows {
		granted, err := dialect.ScanArray(row["permissions"])
		if err != nil {
			return nil, fmt.Errorf("decode permissions: %w", err)
		}
		for _, p := range granted {
			if !seen[p] {
				seen[p] = true
				perms = append(perms, p)
			}
		}
	}
	sort.Strings(perms)
	return perms, nil
}

func (h *Handler) generateTokenPair(ctx context.Context, userID string, roles []string) (*TokenPair, error) {
	permissions, err := h.permissionsForRoles(ctx, roles)
	if err != nil {
		return nil, err
	}

	accessToken, err := GenerateAccessToken(userID, roles, permissions, h.jwtSecret)
	if err != nil {
		return nil, resource.InternalError()
	}

	refreshToken := GenerateRefreshToken()
	expiresAt := time.Now().Add(RefreshTokenTTL)

	dialect := h.store.Dialect
	pb := dialect.NewParamBuilder()
	sql := fmt.Sprintf("INSERT INTO _refresh_tokens (id, user_id, token, expires_at) VALUES (%s, %s, %s, %s)",
		pb.Add(uuid.NewString()), pb.Add(userID), pb.Add(refreshToken), pb.Add(expiresAt))
	if _, err := store.Exec(ctx, h.store.DB, sql, pb.Params()...); err != nil {
		return nil, resource.InternalError()
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

func isActive(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case int64:
		return b != 0
	case float64:
		return b != 0
	}
	return false
}
