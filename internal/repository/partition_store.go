package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/asliddin-dev/edu-crm-api/internal/models"
)

// PartitionStore maintains one narrow table per status as a rebuildable
// secondary index over the canonical registrations table. The canonical
// table is always the source of truth; partition rows are disposable and
// can be reconstructed with Resync at any time. When disabled every
// method is a no-op and status listings fall back to a status-column
// filter.
type PartitionStore struct {
	enabled bool
}

// NewPartitionStore constructs the store.
func NewPartitionStore(enabled bool) *PartitionStore {
	return &PartitionStore{enabled: enabled}
}

// Enabled reports whether the partition index is maintained.
func (p *PartitionStore) Enabled() bool {
	return p.enabled
}

const partitionColumns = `id, owner_id, full_name, phone, course, training_type, schedule, price, trial_lesson_time, lesson_time, created_at`

// partitionTable maps a status to its table name. Table names are built
// only from the fixed status enumeration, never from caller input.
func partitionTable(status models.Status) (string, error) {
	if !status.Valid() {
		return "", fmt.Errorf("no partition table for status %q", status)
	}
	return "registrations_" + string(status), nil
}

// Insert adds the registration snapshot to the partition for its current
// status, ignoring duplicates.
func (p *PartitionStore) Insert(ctx context.Context, tx sqlx.ExtContext, reg *models.Registration) error {
	if !p.enabled {
		return nil
	}
	table, err := partitionTable(reg.Status)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`INSERT INTO %s (%s)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        ON CONFLICT (id) DO NOTHING`, table, partitionColumns)
	if _, err := tx.ExecContext(ctx, query,
		reg.ID, reg.OwnerID, reg.FullName, reg.Phone, reg.Course,
		reg.TrainingType, reg.Schedule, reg.Price,
		reg.TrialLessonTime, reg.LessonTime, reg.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert partition row %s: %w", table, err)
	}
	return nil
}

// Remove deletes the registration from the given status partition. Absent
// rows are a no-op.
func (p *PartitionStore) Remove(ctx context.Context, tx sqlx.ExtContext, status models.Status, id int64) error {
	if !p.enabled {
		return nil
	}
	table, err := partitionTable(status)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, table), id); err != nil {
		return fmt.Errorf("delete partition row %s: %w", table, err)
	}
	return nil
}

// MoveTo relocates the registration between status partitions. Invoking
// it with oldStatus == newStatus only re-inserts the snapshot, matching
// the repair-friendly behaviour of the canonical table being authoritative.
func (p *PartitionStore) MoveTo(ctx context.Context, tx sqlx.ExtContext, reg *models.Registration, oldStatus, newStatus models.Status) error {
	if !p.enabled {
		return nil
	}
	if oldStatus != newStatus {
		if err := p.Remove(ctx, tx, oldStatus, reg.ID); err != nil {
			return err
		}
	}
	snapshot := *reg
	snapshot.Status = newStatus
	return p.Insert(ctx, tx, &snapshot)
}

// RemoveAll deletes the registration from every status partition.
func (p *PartitionStore) RemoveAll(ctx context.Context, tx sqlx.ExtContext, id int64) error {
	if !p.enabled {
		return nil
	}
	for _, status := range models.AllStatuses {
		if err := p.Remove(ctx, tx, status, id); err != nil {
			return err
		}
	}
	return nil
}

// Resync rebuilds every partition table from the canonical table: rows
// whose registration no longer exists or has a different status are
// dropped, and missing rows are re-inserted. Returns removed and added
// row counts.
func (p *PartitionStore) Resync(ctx context.Context, db *sqlx.DB) (int64, int64, error) {
	if !p.enabled {
		return 0, 0, nil
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin resync: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var removed, added int64
	for _, status := range models.AllStatuses {
		table, err := partitionTable(status)
		if err != nil {
			return 0, 0, err
		}

		res, err := tx.ExecContext(ctx, fmt.Sprintf(
			`DELETE FROM %s p WHERE NOT EXISTS (
                SELECT 1 FROM registrations r WHERE r.id = p.id AND r.status = $1
            )`, table), status)
		if err != nil {
			return 0, 0, fmt.Errorf("resync delete %s: %w", table, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			removed += n
		}

		res, err = tx.ExecContext(ctx, fmt.Sprintf(
			`INSERT INTO %s (%s)
            SELECT %s FROM registrations r WHERE r.status = $1
            ON CONFLICT (id) DO NOTHING`, table, partitionColumns, partitionColumns), status)
		if err != nil {
			return 0, 0, fmt.Errorf("resync insert %s: %w", table, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			added += n
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit resync: %w", err)
	}
	return removed, added, nil
}
