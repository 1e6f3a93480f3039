package entity

import (
	"time"

	"github.com/google/uuid"
)

// AuditEntry records one back-office action.
type AuditEntry struct {
	ID         uuid.UUID
	ActorID    string
	Action     string
	TargetType string
	TargetID   string
	Details    map[string]interface{}
	CreatedAt  time.Time
}
