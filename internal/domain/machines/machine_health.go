package machines

import (
	"time"

	"gorm.io/datatypes"
)

type HealthSeverity string

const (
	HealthInfo     HealthSeverity = "info"
	HealthWarning  HealthSeverity = "warning"
	HealthCritical HealthSeverity = "critical"
)

// Health codes the daemon raises. A row is present iff the condition is
// currently live; clearing a condition deletes the row.
const (
	HealthCodeNoPartsCSV  = "NO_PARTS_CSV"
	HealthCodeCopyFailure = "COPY_FAILURE"
	HealthCodeTelemetry   = "TELEMETRY_DOWN"
)

// MachineHealth is one live health condition, scoped to a machine or global
// when MachineID is nil. (machine_id, code) is unique; the upsert path goes
// through the machines repository.
type MachineHealth struct {
	ID        int64          `gorm:"primaryKey" json:"id"`
	MachineID *int64         `gorm:"column:machine_id;index" json:"machine_id,omitempty"`
	Code      string         `gorm:"column:code;not null;index" json:"code"`
	Severity  HealthSeverity `gorm:"column:severity;not null" json:"severity"`
	Message   string         `gorm:"column:message" json:"message,omitempty"`
	Context   datatypes.JSON `gorm:"column:context;type:jsonb" json:"context,omitempty"`
	SetAt     time.Time      `gorm:"column:set_at;not null;default:now()" json:"set_at"`
}

func (MachineHealth) TableName() string { return "machine_health" }
