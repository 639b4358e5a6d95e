package jobs

import (
	"time"
)

// Status is the lifecycle state of a cutting job. The persisted value is
// always one of the constants below; the lifecycle engine is the only writer.
type Status string

const (
	StatusPending             Status = "PENDING"
	StatusStaged              Status = "STAGED"
	StatusLoadFinish          Status = "LOAD_FINISH"
	StatusLabelFinish         Status = "LABEL_FINISH"
	StatusCncFinish           Status = "CNC_FINISH"
	StatusForwardedToNestpick Status = "FORWARDED_TO_NESTPICK"
	StatusNestpickComplete    Status = "NESTPICK_COMPLETE"
)

// Terminal reports whether no further transitions are expected from s.
func (s Status) Terminal() bool { return s == StatusNestpickComplete }

// Valid reports whether s is one of the enumerated lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusStaged, StatusLoadFinish, StatusLabelFinish,
		StatusCncFinish, StatusForwardedToNestpick, StatusNestpickComplete:
		return true
	}
	return false
}

// Job is one nest-ready NC program under the processed-jobs root. Key is
// "<last folder segment>/<nc base name>" truncated to 100 characters,
// case preserved.
type Job struct {
	Key                 string     `gorm:"primaryKey;size:100" json:"key"`
	Folder              string     `gorm:"column:folder;not null" json:"folder"`
	NcFile              string     `gorm:"column:ncfile;not null;index" json:"ncfile"`
	Material            string     `gorm:"column:material;index" json:"material,omitempty"`
	Parts               int        `gorm:"column:parts;not null;default:0" json:"parts"`
	Size                string     `gorm:"column:size" json:"size,omitempty"`
	Thickness           float64    `gorm:"column:thickness;not null;default:0" json:"thickness"`
	DateAdded           time.Time  `gorm:"column:dateadded;not null;default:now()" json:"dateadded"`
	PreReserved         bool       `gorm:"column:pre_reserved;not null;default:false" json:"pre_reserved"`
	Locked              bool       `gorm:"column:locked;not null;default:false" json:"locked"`
	MachineID           *int64     `gorm:"column:machine_id;index" json:"machine_id,omitempty"`
	StagedAt            *time.Time `gorm:"column:staged_at" json:"staged_at,omitempty"`
	CutAt               *time.Time `gorm:"column:cut_at" json:"cut_at,omitempty"`
	NestpickCompletedAt *time.Time `gorm:"column:nestpick_completed_at" json:"nestpick_completed_at,omitempty"`
	Pallet              *string    `gorm:"column:pallet" json:"pallet,omitempty"`
	LastError           string     `gorm:"column:last_error" json:"last_error,omitempty"`
	Status              Status     `gorm:"column:status;not null;index" json:"status"`
	UpdatedAt           time.Time  `gorm:"not null;default:now()" json:"updated_at"`
}

func (Job) TableName() string { return "jobs" }
