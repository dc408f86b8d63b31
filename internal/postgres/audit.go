package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aurelia-jewels/checkout-api/internal/domain/audit"
)

const insertAuditSQL = `INSERT INTO audit_log (id, user_id, user_name, action, entity_type, entity_id, details)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

var _ audit.Repository = (*AuditRepository)(nil)

// AuditRepository appends audit entries. Rows are timestamped by the database
// and never updated or deleted through this service.
type AuditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository returns an AuditRepository that uses the given pool.
func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

// Insert appends one audit entry.
func (r *AuditRepository) Insert(ctx context.Context, e audit.Entry) error {
	id := e.ID
	if id == "" {
		id = uuid.New().String()
	}
	_, err := r.pool.Exec(ctx, insertAuditSQL,
		id, e.UserID, e.UserName, string(e.Action), e.EntityType, e.EntityID, e.Details,
	)
	if err != nil {
		return errors.Wrap(err, "insert audit entry")
	}
	return nil
}
