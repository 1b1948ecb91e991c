package compose

import (
	"context"

	"transit-backend/internal/resource"
	"transit-backend/internal/store"
)

// GenericComposer is the default transactional write path: validate
// references, pre-check uniqueness, then write. Resources with richer
// business logic embed it and layer their own steps on top.
type GenericComposer struct {
	Desc    *resource.Descriptor
	Dialect store.Dialect
}

func NewGenericComposer(d *resource.Descriptor, dialect store.Dialect) *GenericComposer {
	return &GenericComposer{Desc: d, Dialect: dialect}
}

func (g *GenericComposer) Create(ctx context.Context, q store.Querier, input map[string]any) (map[string]any, error) {
	if err := ValidateReferences(ctx, q, g.Dialect, g.Desc.References, input); err != nil {
		return nil, err
	}
	if err := CheckUnique(ctx, q, g.Dialect, g.Desc, input, ""); err != nil {
		return nil, err
	}
	return InsertRecord(ctx, q, g.Dialect, g.Desc, input)
}

func (g *GenericComposer) Update(ctx context.Context, q store.Querier, id string, input map[string]any) (map[string]any, error) {
	if err := ValidateReferences(ctx, q, g.Dialect, g.Desc.References, input); err != nil {
		return nil, err
	}
	if err := CheckUnique(ctx, q, g.Dialect, g.Desc, input, id); err != nil {
		return nil, err
	}
	return UpdateRecord(ctx, q, g.Dialect, g.Desc, id, input)
}

func (g *GenericComposer) Delete(ctx context.Context, q store.Querier, id string) error {
	if g.Desc.SoftDelete {
		return SoftDeleteRecord(ctx, q, g.Dialect, g.Desc, id)
	}
	return HardDeleteRecord(ctx, q, g.Dialect, g.Desc, id)
}
