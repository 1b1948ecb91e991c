package resource

import (
	"context"

	"transit-backend/internal/store"
)

// nopComposer satisfies the descriptor invariant in tests that never write.
type nopComposer struct{}

func (nopComposer) Create(ctx context.Context, q store.Querier, input map[string]any) (map[string]any, error) {
	return input, nil
}

func (nopComposer) Update(ctx context.Context, q store.Querier, id string, input map[string]any) (map[string]any, error) {
	return input, nil
}

func (nopComposer) Delete(ctx context.Context, q store.Querier, id string) error {
	return nil
}
