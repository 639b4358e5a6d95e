package machines

import (
	"time"
)

// Machine is one CNC router known to the daemon. Rows mirror the machine
// section of the runtime config; the app re-seeds them on startup so the UI
// and the repositories share one view.
type Machine struct {
	ID              int64     `gorm:"primaryKey;autoIncrement:false" json:"machine_id"`
	Name            string    `gorm:"column:name;not null" json:"name"`
	PcIP            string    `gorm:"column:pc_ip" json:"pc_ip,omitempty"`
	PcPort          int       `gorm:"column:pc_port;not null;default:0" json:"pc_port"`
	APJobfolder     string    `gorm:"column:ap_jobfolder" json:"ap_jobfolder,omitempty"`
	NestpickFolder  string    `gorm:"column:nestpick_folder" json:"nestpick_folder,omitempty"`
	NestpickEnabled bool      `gorm:"column:nestpick_enabled;not null;default:false" json:"nestpick_enabled"`
	UpdatedAt       time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Machine) TableName() string { return "machines" }
