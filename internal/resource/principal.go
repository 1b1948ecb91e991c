package resource

// Principal is the authenticated actor making a request, set by the auth
// middleware. A nil Principal means no session.
type Principal struct {
	ID          string   `json:"id"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// HasRole checks whether the principal has a specific role.
func (p *Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsSuperAdmin reports whether the principal bypasses all permission checks.
func (p *Principal) IsSuperAdmin() bool {
	return p.HasRole("SUPER_ADMIN")
}

// Can checks whether the principal's resolved permission set contains perm.
func (p *Principal) Can(perm string) bool {
	for _, have := range p.Permissions {
		if have == perm {
			return true
		}
	}
	return false
}
