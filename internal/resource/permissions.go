package resource

import "fmt"

// Authorize maps an operation and a principal to allow (nil) or deny.
// SUPER_ADMIN bypasses all checks. Operations explicitly declared public are
// allowed without a session; everything else requires a session and the
// declared permission. An operation with no declared permission and no
// public declaration is denied, never default-open.
func Authorize(p *Principal, d *Descriptor, op Operation) *AppError {
	if d.IsPublic(op) {
		return nil
	}
	if p == nil {
		return UnauthorizedError("Authentication required")
	}
	if p.IsSuperAdmin() {
		return nil
	}

	required, declared := d.Permissions[op]
	if !declared {
		return ForbiddenError(fmt.Sprintf("Operation %s is not permitted on %s", op, d.Name))
	}
	if required == "" || p.Can(required) {
		return nil
	}
	return ForbiddenError(fmt.Sprintf("Permission denied for %s on %s", op, d.Name))
}

// CheckFieldGuards enforces field-value-conditional secondary permissions on
// a write payload. SUPER_ADMIN bypasses guards like any other check.
func CheckFieldGuards(p *Principal, d *Descriptor, input map[string]any) *AppError {
	if len(d.FieldGuards) == 0 {
		return nil
	}
	if p != nil && p.IsSuperAdmin() {
		return nil
	}
	for _, g := range d.FieldGuards {
		value, touched := input[g.Field]
		if !touched {
			continue
		}
		if g.When != nil && !g.When(value) {
			continue
		}
		if p == nil {
			return UnauthorizedError("Authentication required")
		}
		if !p.Can(g.Requires) {
			return ForbiddenError(fmt.Sprintf("Changing %s on %s requires %s", g.Field, d.Name, g.Requires))
		}
	}
	return nil
}
