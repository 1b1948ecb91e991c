package resource

import "context"

// WriteContext carries the normalized input of a create/update through the
// before hooks. Hooks may mutate Input; Current is the pre-update row (nil
// on create).
type WriteContext struct {
	Principal *Principal
	Input     map[string]any
	Current   map[string]any
}

// DeleteContext carries a pending delete through the before hook.
type DeleteContext struct {
	Principal *Principal
	ID        string
	Current   map[string]any
}

// Hooks are the optional per-resource callback slots. Before hooks run ahead
// of the transaction (list hooks pre-query) and veto the operation by
// returning an error, preferably an *AppError. After hooks observe the
// committed result; their failure never reverts the mutation and is surfaced
// to the caller as a warning.
type Hooks struct {
	BeforeList   func(ctx context.Context, qc *QueryContext) error
	BeforeCreate func(ctx context.Context, wc *WriteContext) error
	BeforeUpdate func(ctx context.Context, wc *WriteContext) error
	BeforeDelete func(ctx context.Context, dc *DeleteContext) error

	AfterCreate func(ctx context.Context, record map[string]any, p *Principal) error
	AfterUpdate func(ctx context.Context, record map[string]any, p *Principal) error
	AfterDelete func(ctx context.Context, id string, p *Principal) error
}
