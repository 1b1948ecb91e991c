package store

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Bootstrap creates the application schema and seeds the default roles and
// super admin account. Safe to run repeatedly.
func (s *Store) Bootstrap(ctx context.Context) error {
	for _, stmt := range splitStatements(s.Dialect.SchemaSQL()) {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap schema: %w", err)
		}
	}
	if err := s.seedRoles(ctx); err != nil {
		return fmt.Errorf("seed roles: %w", err)
	}
	if err := s.seedAdminUser(ctx); err != nil {
		return fmt.Errorf("seed admin user: %w", err)
	}
	return nil
}

var defaultRoles = map[string][]string{
	"SUPER_ADMIN": {},
	"DISPATCHER": {
		"zones.view", "zones.create", "zones.update", "zones.delete",
		"stops.view", "stops.create", "stops.update", "stops.delete",
		"lines.view", "lines.create", "lines.update", "lines.delete",
		"vehicles.view", "vehicles.create", "vehicles.update", "vehicles.delete",
		"settings.view",
		"files.manage",
	},
	"POS_OPERATOR": {
		"zones.view", "stops.view", "lines.view", "settings.view",
	},
}

func (s *Store) seedRoles(ctx context.Context) error {
	for name, perms := range defaultRoles {
		var count int
		err := s.DB.QueryRowContext(ctx,
			fmt.Sprintf("SELECT COUNT(*) FROM _roles WHERE name = %s", s.Dialect.Placeholder(1)),
			name,
		).Scan(&count)
		if err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		_, err = s.DB.ExecContext(ctx,
			fmt.Sprintf("INSERT INTO _roles (name, permissions) VALUES (%s, %s)",
				s.Dialect.Placeholder(1), s.Dialect.Placeholder(2)),
			name, s.Dialect.ArrayParam(perms),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) seedAdminUser(ctx context.Context) error {
	var count int
	if err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM _users").Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hashBytes, err := bcrypt.GenerateFromPassword([]byte("changeme"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	_, err = s.DB.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO _users (id, email, password_hash, roles) VALUES (%s, %s, %s, %s)",
			s.Dialect.Placeholder(1), s.Dialect.Placeholder(2), s.Dialect.Placeholder(3), s.Dialect.Placeholder(4)),
		uuid.New().String(), "admin@localhost", string(hashBytes), s.Dialect.ArrayParam([]string{"SUPER_ADMIN"}),
	)
	if err != nil {
		return err
	}

	log.Println("WARNING: Default admin user created (admin@localhost / changeme). Change the password immediately.")
	return nil
}

// splitStatements breaks multi-statement DDL into individual statements so it
// works with drivers that reject batched Exec calls.
func splitStatements(ddl string) []string {
	var stmts []string
	for _, raw := range strings.Split(ddl, ";") {
		stmt := strings.TrimSpace(raw)
		if stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}
