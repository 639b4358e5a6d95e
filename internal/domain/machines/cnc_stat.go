package machines

import (
	"time"
)

// CncStat is one telemetry sample streamed from a machine PC. Key is the
// source-supplied timestamp string (or the payload's own key field when
// present), which makes re-ingestion after a reconnect idempotent.
type CncStat struct {
	Key             string    `gorm:"primaryKey;size:64" json:"key"`
	MachineIP       string    `gorm:"column:machine_ip;index" json:"machine_ip"`
	CurrentProgram  string    `gorm:"column:current_program" json:"current_program,omitempty"`
	Mode            string    `gorm:"column:mode" json:"mode,omitempty"`
	Status          string    `gorm:"column:status" json:"status,omitempty"`
	Alarm           string    `gorm:"column:alarm" json:"alarm,omitempty"`
	EmergencyStop   bool      `gorm:"column:emergency_stop;not null;default:false" json:"emergency_stop"`
	PowerOnSeconds  int64     `gorm:"column:power_on_seconds;not null;default:0" json:"power_on_seconds"`
	CuttingSeconds  int64     `gorm:"column:cutting_seconds;not null;default:0" json:"cutting_seconds"`
	VacuumSeconds   int64     `gorm:"column:vacuum_seconds;not null;default:0" json:"vacuum_seconds"`
	DrillSeconds    int64     `gorm:"column:drill_head_seconds;not null;default:0" json:"drill_head_seconds"`
	SpindleSeconds  int64     `gorm:"column:spindle_seconds;not null;default:0" json:"spindle_seconds"`
	ConveyorSeconds int64     `gorm:"column:conveyor_seconds;not null;default:0" json:"conveyor_seconds"`
	GreaseSeconds   int64     `gorm:"column:grease_seconds;not null;default:0" json:"grease_seconds"`
	AlarmHistory    string    `gorm:"column:alarm_history;type:text" json:"alarm_history,omitempty"`
	RecordedAt      time.Time `gorm:"column:recorded_at;not null;default:now();index" json:"recorded_at"`
}

func (CncStat) TableName() string { return "cnc_stats" }
