package domain

import (
	"github.com/nestlogic/floorwatch/internal/domain/grundner"
	"github.com/nestlogic/floorwatch/internal/domain/jobs"
	"github.com/nestlogic/floorwatch/internal/domain/machines"
	"github.com/nestlogic/floorwatch/internal/domain/messages"
)

const (
	StatusPending             = jobs.StatusPending
	StatusStaged              = jobs.StatusStaged
	StatusLoadFinish          = jobs.StatusLoadFinish
	StatusLabelFinish         = jobs.StatusLabelFinish
	StatusCncFinish           = jobs.StatusCncFinish
	StatusForwardedToNestpick = jobs.StatusForwardedToNestpick
	StatusNestpickComplete    = jobs.StatusNestpickComplete

	HealthInfo     = machines.HealthInfo
	HealthWarning  = machines.HealthWarning
	HealthCritical = machines.HealthCritical

	HealthCodeNoPartsCSV  = machines.HealthCodeNoPartsCSV
	HealthCodeCopyFailure = machines.HealthCodeCopyFailure
	HealthCodeTelemetry   = machines.HealthCodeTelemetry

	ToneSuccess = messages.ToneSuccess
	ToneInfo    = messages.ToneInfo
	ToneWarning = messages.ToneWarning
	ToneError   = messages.ToneError
)

type JobStatus = jobs.Status

type Job = jobs.Job
type JobEvent = jobs.JobEvent

type Machine = machines.Machine
type MachineHealth = machines.MachineHealth
type HealthSeverity = machines.HealthSeverity
type CncStat = machines.CncStat

type StockItem = grundner.StockItem

type AppMessage = messages.AppMessage
