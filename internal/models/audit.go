package models

import "time"

// AuditAction constants represent audited administrative operations.
const (
	AuditActionForceTransition = "FORCE_TRANSITION"
	AuditActionDelete          = "REGISTRATION_DELETE"
	AuditActionPartitionResync = "PARTITION_RESYNC"
)

// TransitionAudit records an administrative override or deletion on a
// registration, including the status pair it moved between.
type TransitionAudit struct {
	ID             string    `db:"id" json:"id"`
	RegistrationID int64     `db:"registration_id" json:"registration_id"`
	Actor          string    `db:"actor" json:"actor"`
	Action         string    `db:"action" json:"action"`
	OldStatus      *Status   `db:"old_status" json:"old_status,omitempty"`
	NewStatus      *Status   `db:"new_status" json:"new_status,omitempty"`
	Reason         string    `db:"reason" json:"reason"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// AdminClaims are the JWT claims attached to authenticated admin requests.
type AdminClaims struct {
	Username string `json:"username"`
}
