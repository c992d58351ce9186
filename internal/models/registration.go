package models

import "time"

// Registration is the canonical record for one student's enrollment
// attempt. Descriptive fields (course, training type, schedule, price)
// are snapshotted at creation time and never re-derived from catalog
// data, so later price changes do not rewrite what the student agreed to.
type Registration struct {
	ID           int64  `db:"id" json:"id"`
	OwnerID      int64  `db:"owner_id" json:"owner_id"`
	FullName     string `db:"full_name" json:"full_name"`
	Phone        string `db:"phone" json:"phone"`
	Course       string `db:"course" json:"course"`
	TrainingType string `db:"training_type" json:"training_type"`
	Schedule     string `db:"schedule" json:"schedule"`
	Price        string `db:"price" json:"price"`

	Status Status `db:"status" json:"status"`

	Progress   float64 `db:"progress" json:"progress"`
	Attendance int     `db:"attendance" json:"attendance"`
	Grade      *string `db:"grade" json:"grade,omitempty"`

	ConsultationTime *time.Time `db:"consultation_time" json:"consultation_time,omitempty"`
	TrialLessonTime  *time.Time `db:"trial_lesson_time" json:"trial_lesson_time,omitempty"`
	LessonTime       *time.Time `db:"lesson_time" json:"lesson_time,omitempty"`

	// One-way flags: once true they are never reset.
	Notified     bool `db:"notified" json:"notified"`
	ReminderSent bool `db:"reminder_sent" json:"reminder_sent"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// StatusLabel exposes the human label alongside the raw status value.
func (r *Registration) StatusLabel() string {
	return r.Status.Label()
}

// RegistrationFilter encapsulates allowed search parameters for listing
// registrations.
type RegistrationFilter struct {
	OwnerID   int64
	Status    Status
	Phone     string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// StatusCount pairs a status with the number of registrations in it.
type StatusCount struct {
	Status Status `db:"status" json:"status"`
	Label  string `json:"label"`
	Count  int    `db:"count" json:"count"`
}

// WeeklyStats summarises lifecycle movement over the trailing seven days.
type WeeklyStats struct {
	NewRegistrations int `db:"new_registrations" json:"new_registrations"`
	StartedStudying  int `db:"started_studying" json:"started_studying"`
	Completed        int `db:"completed" json:"completed"`
	Frozen           int `db:"frozen" json:"frozen"`
}

// Pagination carries list metadata in the response envelope.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
