// Package audit records committed mutations in the _audit_log table. The
// recorder runs from after hooks, so a failed entry never reverts the
// mutation it describes.
package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"transit-backend/internal/resource"
	"transit-backend/internal/store"
)

type Recorder struct {
	store *store.Store
}

func NewRecorder(st *store.Store) *Recorder {
	return &Recorder{store: st}
}

// Record writes one audit entry. detail is JSON-encoded; a nil detail is
// stored as an empty object.
func (r *Recorder) Record(ctx context.Context, p *resource.Principal, action, resourceName, recordID string, detail map[string]any) error {
	actorID := ""
	if p != nil {
		actorID = p.ID
	}
	if detail == nil {
		detail = map[string]any{}
	}
	encoded, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("encode audit detail: %w", err)
	}

	dialect := r.store.Dialect
	pb := dialect.NewParamBuilder()
	sql := fmt.Sprintf("INSERT INTO _audit_log (id, actor_id, action, resource, record_id, detail, created_at) VALUES (%s, %s, %s, %s, %s, %s, %s)",
		pb.Add(uuid.NewString()), pb.Add(actorID), pb.Add(action), pb.Add(resourceName), pb.Add(recordID), pb.Add(string(encoded)), dialect.NowExpr())
	if _, err := store.Exec(ctx, r.store.DB, sql, pb.Params()...); err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	return nil
}

// Hooks returns after hooks that log creates, updates and deletes for one
// resource.
func (r *Recorder) Hooks(resourceName string) resource.Hooks {
	return resource.Hooks{
		AfterCreate: func(ctx context.Context, record map[string]any, p *resource.Principal) error {
			return r.Record(ctx, p, "create", resourceName, recordID(record), nil)
		},
		AfterUpdate: func(ctx context.Context, record map[string]any, p *resource.Principal) error {
			return r.Record(ctx, p, "update", resourceName, recordID(record), nil)
		},
		AfterDelete: func(ctx context.Context, id string, p *resource.Principal) error {
			return r.Record(ctx, p, "delete", resourceName, id, nil)
		},
	}
}

func recordID(record map[string]any) string {
	if record == nil {
		return ""
	}
	if id, ok := record["id"].(string); ok {
		return id
	}
	return fmt.Sprintf("%v", record["id"])
}
