package repos

import (
	"github.com/nestlogic/floorwatch/internal/data/repos/grundner"
	"github.com/nestlogic/floorwatch/internal/data/repos/jobs"
	"github.com/nestlogic/floorwatch/internal/data/repos/machines"
	"github.com/nestlogic/floorwatch/internal/data/repos/messages"
)

type JobRepo = jobs.JobRepo
type JobEventRepo = jobs.JobEventRepo

type MachineRepo = machines.MachineRepo
type MachineHealthRepo = machines.MachineHealthRepo
type CncStatRepo = machines.CncStatRepo

type StockRepo = grundner.StockRepo
type StockChange = grundner.StockChange
type AllocationConflict = grundner.AllocationConflict

type MessageRepo = messages.MessageRepo
