package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/asliddin-dev/edu-crm-api/internal/models"
)

// AuditRepository persists the trail of administrative overrides.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs the repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create stores an audit entry.
func (r *AuditRepository) Create(ctx context.Context, entry *models.TransitionAudit) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO transition_audit (id, registration_id, actor, action, old_status, new_status, reason, created_at)
        VALUES (:id, :registration_id, :actor, :action, :old_status, :new_status, :reason, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("create audit entry: %w", err)
	}
	return nil
}

// ListByRegistration returns the audit trail for one registration,
// newest first.
func (r *AuditRepository) ListByRegistration(ctx context.Context, registrationID int64) ([]models.TransitionAudit, error) {
	const query = `SELECT id, registration_id, actor, action, old_status, new_status, reason, created_at
        FROM transition_audit WHERE registration_id = $1 ORDER BY created_at DESC`
	var entries []models.TransitionAudit
	if err := r.db.SelectContext(ctx, &entries, query, registrationID); err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return entries, nil
}
