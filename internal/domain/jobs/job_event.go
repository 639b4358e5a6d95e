package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// JobEvent is the append-only audit ledger for job transitions and pruning
// decisions. Rows are never updated or deleted by the daemon.
type JobEvent struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	JobKey    string         `gorm:"column:job_key;size:100;not null;index" json:"job_key"`
	Kind      string         `gorm:"column:kind;not null;index" json:"kind"`
	Payload   datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload,omitempty"`
	MachineID *int64         `gorm:"column:machine_id" json:"machine_id,omitempty"`
	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
}

func (JobEvent) TableName() string { return "job_events" }
