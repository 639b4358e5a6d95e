package autopac

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/nestlogic/floorwatch/internal/csvx"
	"github.com/nestlogic/floorwatch/internal/fsx"
	"github.com/nestlogic/floorwatch/internal/platform/logger"
)

// ProductionListPublisher announces NC files the scheduler should drop from
// its production list. The channel is a CSV drop into the AutoPAC share,
// published atomically so the scheduler never reads a partial list.
type ProductionListPublisher interface {
	PublishDelete(ctx context.Context, machineID *int64, ncNames []string) error
}

type csvProductionList struct {
	dir string
	log *logger.Logger
}

// NewProductionListPublisher writes delete lists under dir. An empty dir
// yields a publisher that logs and drops, for installations without the
// AutoPAC share mounted.
func NewProductionListPublisher(dir string, baseLog *logger.Logger) ProductionListPublisher {
	return &csvProductionList{
		dir: dir,
		log: baseLog.With("component", "ProductionListPublisher"),
	}
}

func (p *csvProductionList) PublishDelete(ctx context.Context, machineID *int64, ncNames []string) error {
	if len(ncNames) == 0 {
		return nil
	}
	if p.dir == "" {
		p.log.Warn("production list delete dropped, no AutoPAC share configured", "count", len(ncNames))
		return nil
	}

	scope := "all"
	if machineID != nil {
		scope = strconv.FormatInt(*machineID, 10)
	}
	name := fmt.Sprintf("production_list_delete_%s_%d.csv", scope, time.Now().UnixMilli())

	rows := make([][]string, 0, len(ncNames))
	for _, nc := range ncNames {
		rows = append(rows, []string{nc})
	}
	path := filepath.Join(p.dir, name)
	if err := fsx.WriteFileAtomic(path, csvx.Write(rows), 0o644); err != nil {
		return fmt.Errorf("publish production list delete: %w", err)
	}
	p.log.Info("production list delete published", "file", name, "machine", scope, "count", len(ncNames))
	return nil
}
