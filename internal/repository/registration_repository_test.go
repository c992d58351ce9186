package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asliddin-dev/edu-crm-api/internal/models"
)

func newRegistrationRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func registrationRows(id int64, status models.Status) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "owner_id", "full_name", "phone", "course", "training_type",
		"schedule", "price", "status", "progress", "attendance", "grade",
		"consultation_time", "trial_lesson_time", "lesson_time",
		"notified", "reminder_sent", "created_at", "updated_at",
	}).AddRow(id, int64(700), "Aziza Karimova", "+998901234567", "English B1", "group",
		"Mon/Wed/Fri 18:00", "450000", status, 0.0, 0, nil,
		nil, nil, nil, false, false, now, now)
}

func TestRegistrationRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db, NewPartitionStore(false))

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO registrations")).
		WithArgs(int64(700), "Aziza Karimova", "+998901234567", "English B1", "group",
			"Mon/Wed/Fri 18:00", "450000", models.StatusActive, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))
	mock.ExpectCommit()

	reg := &models.Registration{
		OwnerID:      700,
		FullName:     "Aziza Karimova",
		Phone:        "+998901234567",
		Course:       "English B1",
		TrainingType: "group",
		Schedule:     "Mon/Wed/Fri 18:00",
		Price:        "450000",
	}
	err := repo.Create(context.Background(), reg)
	require.NoError(t, err)
	assert.Equal(t, int64(42), reg.ID)
	assert.Equal(t, models.StatusActive, reg.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryCreateWithPartitions(t *testing.T) {
	db, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db, NewPartitionStore(true))

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO registrations")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO registrations_active")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	reg := &models.Registration{OwnerID: 1, FullName: "A", Phone: "p", Course: "c", TrainingType: "t", Schedule: "s", Price: "0"}
	require.NoError(t, repo.Create(context.Background(), reg))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db, nil)

	mock.ExpectQuery("SELECT .+ FROM registrations WHERE id = ").
		WithArgs(int64(99)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), 99)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryUpdateStatusNoOp(t *testing.T) {
	db, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db, NewPartitionStore(true))

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM registrations WHERE id = .+ FOR UPDATE").
		WithArgs(int64(5)).
		WillReturnRows(registrationRows(5, models.StatusStudying))
	mock.ExpectCommit()

	reg, err := repo.UpdateStatus(context.Background(), 5, func(current models.Status) (models.Status, error) {
		return current, nil
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusStudying, reg.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryUpdateStatusMove(t *testing.T) {
	db, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db, NewPartitionStore(true))

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM registrations WHERE id = .+ FOR UPDATE").
		WithArgs(int64(5)).
		WillReturnRows(registrationRows(5, models.StatusStudying))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE registrations SET status = ")).
		WithArgs(int64(5), models.StatusFrozen, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM registrations_studying WHERE id = ")).
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO registrations_frozen")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	reg, err := repo.UpdateStatus(context.Background(), 5, func(current models.Status) (models.Status, error) {
		return models.StatusFrozen, nil
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusFrozen, reg.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryUpdateStatusDecideError(t *testing.T) {
	db, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db, NewPartitionStore(true))

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM registrations WHERE id = .+ FOR UPDATE").
		WithArgs(int64(5)).
		WillReturnRows(registrationRows(5, models.StatusCompleted))
	mock.ExpectRollback()

	_, err := repo.UpdateStatus(context.Background(), 5, func(current models.Status) (models.Status, error) {
		return "", sql.ErrTxDone
	})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryScheduleTrial(t *testing.T) {
	db, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db, NewPartitionStore(true))

	when := time.Now().Add(48 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM registrations WHERE id = .+ FOR UPDATE").
		WithArgs(int64(3)).
		WillReturnRows(registrationRows(3, models.StatusActive))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE registrations SET trial_lesson_time = ")).
		WithArgs(int64(3), when, models.StatusTrial, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM registrations_active WHERE id = ")).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO registrations_trial")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	reg, err := repo.ScheduleTrial(context.Background(), 3, when)
	require.NoError(t, err)
	assert.Equal(t, models.StatusTrial, reg.Status)
	require.NotNil(t, reg.TrialLessonTime)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryScheduleLesson(t *testing.T) {
	db, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db, NewPartitionStore(true))

	when := time.Now().Add(72 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM registrations WHERE id = .+ FOR UPDATE").
		WithArgs(int64(9)).
		WillReturnRows(registrationRows(9, models.StatusTrial))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE registrations SET lesson_time = ")).
		WithArgs(int64(9), when, models.StatusStudying, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM registrations_(active|trial) WHERE id = ").
		WithArgs(int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM registrations_(active|trial) WHERE id = ").
		WithArgs(int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO registrations_studying")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	reg, err := repo.ScheduleLesson(context.Background(), 9, when)
	require.NoError(t, err)
	assert.Equal(t, models.StatusStudying, reg.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryMarkNotifiedMissingRow(t *testing.T) {
	db, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db, nil)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE registrations SET notified = TRUE")).
		WithArgs(int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkNotified(context.Background(), 11)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db, NewPartitionStore(true))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM registrations WHERE id = ")).
		WithArgs(int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	for range models.AllStatuses {
		mock.ExpectExec("DELETE FROM registrations_.+ WHERE id = ").
			WithArgs(int64(4)).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	require.NoError(t, repo.Delete(context.Background(), 4))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryDeleteMissing(t *testing.T) {
	db, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db, nil)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM registrations WHERE id = ")).
		WithArgs(int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Delete(context.Background(), 4)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryCountByStatus(t *testing.T) {
	db, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db, nil)

	rows := sqlmock.NewRows([]string{"status", "count"}).
		AddRow("active", 3).
		AddRow("studying", 12)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status, COUNT(*) AS count FROM registrations GROUP BY status")).
		WillReturnRows(rows)

	counts, err := repo.CountByStatus(context.Background())
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, models.StatusStudying, counts[1].Status)
	assert.Equal(t, 12, counts[1].Count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryListUpcomingTrials(t *testing.T) {
	db, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db, nil)

	mock.ExpectQuery("SELECT .+ FROM registrations").
		WithArgs(2).
		WillReturnRows(registrationRows(8, models.StatusTrial))

	regs, err := repo.ListUpcomingTrials(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, regs, 1)
	assert.Equal(t, int64(8), regs[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
