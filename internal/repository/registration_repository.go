package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/asliddin-dev/edu-crm-api/internal/models"
)

const registrationColumns = `id, owner_id, full_name, phone, course, training_type, schedule, price, status, progress, attendance, grade, consultation_time, trial_lesson_time, lesson_time, notified, reminder_sent, created_at, updated_at`

// RegistrationRepository handles persistence of the canonical
// registration records. Every multi-step mutation runs in one
// transaction that starts by locking the canonical row, so concurrent
// writers on the same identifier serialize at the storage engine and the
// canonical table never disagrees with the partition index.
type RegistrationRepository struct {
	db         *sqlx.DB
	partitions *PartitionStore
}

// NewRegistrationRepository constructs the repository.
func NewRegistrationRepository(db *sqlx.DB, partitions *PartitionStore) *RegistrationRepository {
	if partitions == nil {
		partitions = NewPartitionStore(false)
	}
	return &RegistrationRepository{db: db, partitions: partitions}
}

// Create persists a new registration and its partition snapshot.
func (r *RegistrationRepository) Create(ctx context.Context, reg *models.Registration) error {
	if reg.Status == "" {
		reg.Status = models.StatusInitial
	}
	now := time.Now().UTC()
	if reg.CreatedAt.IsZero() {
		reg.CreatedAt = now
	}
	reg.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create registration: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const query = `INSERT INTO registrations
        (owner_id, full_name, phone, course, training_type, schedule, price, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING id`
	if err := tx.QueryRowxContext(ctx, query,
		reg.OwnerID, reg.FullName, reg.Phone, reg.Course, reg.TrainingType,
		reg.Schedule, reg.Price, reg.Status, reg.CreatedAt, reg.UpdatedAt,
	).Scan(&reg.ID); err != nil {
		return fmt.Errorf("create registration: %w", err)
	}

	if err := r.partitions.Insert(ctx, tx, reg); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create registration: %w", err)
	}
	return nil
}

// FindByID returns a registration by its identifier.
func (r *RegistrationRepository) FindByID(ctx context.Context, id int64) (*models.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations WHERE id = $1`
	var reg models.Registration
	if err := r.db.GetContext(ctx, &reg, query, id); err != nil {
		return nil, err
	}
	return &reg, nil
}

// List returns registrations filtered by the provided criteria.
func (r *RegistrationRepository) List(ctx context.Context, filter models.RegistrationFilter) ([]models.Registration, int, error) {
	var conditions []string
	var args []interface{}

	if filter.OwnerID != 0 {
		conditions = append(conditions, fmt.Sprintf("owner_id = $%d", len(args)+1))
		args = append(args, filter.OwnerID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Phone != "" {
		conditions = append(conditions, fmt.Sprintf("phone LIKE $%d", len(args)+1))
		args = append(args, "%"+filter.Phone+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"created_at": "created_at",
		"full_name":  "full_name",
		"status":     "status",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM registrations%s ORDER BY %s %s LIMIT %d OFFSET %d`,
		registrationColumns, clause, orderBy, order, size, offset)

	var regs []models.Registration
	if err := r.db.SelectContext(ctx, &regs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list registrations: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM registrations" + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count registrations: %w", err)
	}
	return regs, total, nil
}

// ListByStatus returns every registration currently in the given status.
func (r *RegistrationRepository) ListByStatus(ctx context.Context, status models.Status) ([]models.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations WHERE status = $1 ORDER BY created_at DESC`
	var regs []models.Registration
	if err := r.db.SelectContext(ctx, &regs, query, status); err != nil {
		return nil, fmt.Errorf("list registrations by status: %w", err)
	}
	return regs, nil
}

// ListByOwner returns every registration belonging to the given owner.
func (r *RegistrationRepository) ListByOwner(ctx context.Context, ownerID int64) ([]models.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations WHERE owner_id = $1 ORDER BY created_at DESC`
	var regs []models.Registration
	if err := r.db.SelectContext(ctx, &regs, query, ownerID); err != nil {
		return nil, fmt.Errorf("list registrations by owner: %w", err)
	}
	return regs, nil
}

// UpdateStatus runs an atomic read-modify-write transition. The decide
// callback receives the current status read under a row lock and returns
// the target status; returning the current status commits without any
// write, preserving no-op idempotence. On any error the canonical record
// and the partition index are left untouched.
func (r *RegistrationRepository) UpdateStatus(ctx context.Context, id int64, decide func(models.Status) (models.Status, error)) (*models.Registration, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update status: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	reg, err := lockRegistration(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	next, err := decide(reg.Status)
	if err != nil {
		return nil, err
	}
	if next == reg.Status {
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit update status: %w", err)
		}
		return reg, nil
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE registrations SET status = $2, updated_at = $3 WHERE id = $1`,
		id, next, now); err != nil {
		return nil, fmt.Errorf("update registration status: %w", err)
	}

	if err := r.partitions.MoveTo(ctx, tx, reg, reg.Status, next); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update status: %w", err)
	}

	reg.Status = next
	reg.UpdatedAt = now
	return reg, nil
}

// ScheduleTrial sets the trial lesson time and forces the status to
// trial in one transaction.
func (r *RegistrationRepository) ScheduleTrial(ctx context.Context, id int64, when time.Time) (*models.Registration, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin schedule trial: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	reg, err := lockRegistration(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE registrations SET trial_lesson_time = $2, status = $3, updated_at = $4 WHERE id = $1`,
		id, when, models.StatusTrial, now); err != nil {
		return nil, fmt.Errorf("schedule trial: %w", err)
	}

	oldStatus := reg.Status
	reg.TrialLessonTime = &when
	if err := r.partitions.MoveTo(ctx, tx, reg, oldStatus, models.StatusTrial); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit schedule trial: %w", err)
	}

	reg.Status = models.StatusTrial
	reg.UpdatedAt = now
	return reg, nil
}

// ScheduleLesson sets the study start time and forces the status to
// studying. The registration is removed from the active and trial
// partitions as well as its current one; a row may have lingered in
// either depending on prior history.
func (r *RegistrationRepository) ScheduleLesson(ctx context.Context, id int64, when time.Time) (*models.Registration, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin schedule lesson: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	reg, err := lockRegistration(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE registrations SET lesson_time = $2, status = $3, updated_at = $4 WHERE id = $1`,
		id, when, models.StatusStudying, now); err != nil {
		return nil, fmt.Errorf("schedule lesson: %w", err)
	}

	cleanup := map[models.Status]struct{}{
		reg.Status:          {},
		models.StatusActive: {},
		models.StatusTrial:  {},
	}
	delete(cleanup, models.StatusStudying)
	for status := range cleanup {
		if err := r.partitions.Remove(ctx, tx, status, id); err != nil {
			return nil, err
		}
	}

	reg.LessonTime = &when
	reg.Status = models.StatusStudying
	if err := r.partitions.Insert(ctx, tx, reg); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit schedule lesson: %w", err)
	}

	reg.UpdatedAt = now
	return reg, nil
}

// ScheduleConsultation stamps the consultation time to now without
// touching the status.
func (r *RegistrationRepository) ScheduleConsultation(ctx context.Context, id int64) error {
	return r.execOnRow(ctx,
		`UPDATE registrations SET consultation_time = now(), updated_at = now() WHERE id = $1`, id)
}

// MarkNotified flips the notified flag. The flag is one-way; repeated
// calls keep it true.
func (r *RegistrationRepository) MarkNotified(ctx context.Context, id int64) error {
	return r.execOnRow(ctx,
		`UPDATE registrations SET notified = TRUE, updated_at = now() WHERE id = $1`, id)
}

// MarkReminderSent flips the reminder_sent flag.
func (r *RegistrationRepository) MarkReminderSent(ctx context.Context, id int64) error {
	return r.execOnRow(ctx,
		`UPDATE registrations SET reminder_sent = TRUE, updated_at = now() WHERE id = $1`, id)
}

// UpdateProgress stores the progress indicator.
func (r *RegistrationRepository) UpdateProgress(ctx context.Context, id int64, progress float64) error {
	return r.execOnRow(ctx,
		`UPDATE registrations SET progress = $2, updated_at = now() WHERE id = $1`, id, progress)
}

// UpdateAttendance stores the attendance counter.
func (r *RegistrationRepository) UpdateAttendance(ctx context.Context, id int64, attendance int) error {
	return r.execOnRow(ctx,
		`UPDATE registrations SET attendance = $2, updated_at = now() WHERE id = $1`, id, attendance)
}

// UpdateGrade stores the grade.
func (r *RegistrationRepository) UpdateGrade(ctx context.Context, id int64, grade string) error {
	return r.execOnRow(ctx,
		`UPDATE registrations SET grade = $2, updated_at = now() WHERE id = $1`, id, grade)
}

// CountByStatus returns the number of registrations per status.
func (r *RegistrationRepository) CountByStatus(ctx context.Context) ([]models.StatusCount, error) {
	const query = `SELECT status, COUNT(*) AS count FROM registrations GROUP BY status`
	var counts []models.StatusCount
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("count registrations by status: %w", err)
	}
	return counts, nil
}

// WeeklyStats summarises the trailing seven days of lifecycle movement.
func (r *RegistrationRepository) WeeklyStats(ctx context.Context) (*models.WeeklyStats, error) {
	const query = `SELECT
        COUNT(*) FILTER (WHERE created_at >= now() - interval '7 days') AS new_registrations,
        COUNT(*) FILTER (WHERE lesson_time >= now() - interval '7 days') AS started_studying,
        COUNT(*) FILTER (WHERE status = 'completed' AND updated_at >= now() - interval '7 days') AS completed,
        COUNT(*) FILTER (WHERE status = 'frozen' AND updated_at >= now() - interval '7 days') AS frozen
        FROM registrations`
	var stats models.WeeklyStats
	if err := r.db.GetContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("weekly stats: %w", err)
	}
	return &stats, nil
}

// ListUpcomingTrials returns registrations with a trial lesson inside the
// lookahead window that have not been reminded yet.
func (r *RegistrationRepository) ListUpcomingTrials(ctx context.Context, days int) ([]models.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations
        WHERE trial_lesson_time IS NOT NULL
          AND trial_lesson_time BETWEEN now() AND now() + $1 * interval '1 day'
          AND reminder_sent = FALSE
        ORDER BY trial_lesson_time`
	var regs []models.Registration
	if err := r.db.SelectContext(ctx, &regs, query, days); err != nil {
		return nil, fmt.Errorf("list upcoming trials: %w", err)
	}
	return regs, nil
}

// Delete removes the canonical record and every partition row. Reserved
// for explicit administrative deletion; lifecycle operations never call
// it.
func (r *RegistrationRepository) Delete(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete registration: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM registrations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete registration: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete registration: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	if err := r.partitions.RemoveAll(ctx, tx, id); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete registration: %w", err)
	}
	return nil
}

// ResyncPartitions rebuilds the partition index from the canonical table.
func (r *RegistrationRepository) ResyncPartitions(ctx context.Context) (int64, int64, error) {
	return r.partitions.Resync(ctx, r.db)
}

// execOnRow runs a single-row UPDATE and translates a zero row count
// into sql.ErrNoRows.
func (r *RegistrationRepository) execOnRow(ctx context.Context, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update registration: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update registration: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// lockRegistration reads the canonical row under FOR UPDATE inside the
// given transaction.
func lockRegistration(ctx context.Context, tx *sqlx.Tx, id int64) (*models.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations WHERE id = $1 FOR UPDATE`
	var reg models.Registration
	if err := tx.GetContext(ctx, &reg, query, id); err != nil {
		return nil, err
	}
	return &reg, nil
}
