package db

import (
	"fmt"

	types "github.com/nestlogic/floorwatch/internal/domain"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(

		// =========================
		// Machines + health
		// =========================
		&types.Machine{},
		&types.MachineHealth{},

		// =========================
		// Jobs + event log
		// =========================
		&types.Job{},
		&types.JobEvent{},

		// =========================
		// Storage system inventory
		// =========================
		&types.StockItem{},

		// =========================
		// Telemetry samples
		// =========================
		&types.CncStat{},

		// =========================
		// Operator message feed
		// =========================
		&types.AppMessage{},
	)
}

func EnsureJobIndexes(db *gorm.DB) error {
	// uuid-ossp is already enabled in NewPostgresService, but safe to re-run
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		return fmt.Errorf("enable uuid-ossp: %w", err)
	}
	// NC base lookups are case-insensitive, with and without the extension.
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_jobs_ncfile_lower ON jobs (LOWER(ncfile));`).Error; err != nil {
		return fmt.Errorf("create idx_jobs_ncfile_lower: %w", err)
	}
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs (status);`).Error; err != nil {
		return fmt.Errorf("create idx_jobs_status: %w", err)
	}
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_jobs_machine_status ON jobs (machine_id, status);`).Error; err != nil {
		return fmt.Errorf("create idx_jobs_machine_status: %w", err)
	}
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_job_events_job_key_created_at ON job_events (job_key, created_at);`).Error; err != nil {
		return fmt.Errorf("create idx_job_events_job_key_created_at: %w", err)
	}
	return nil
}

func EnsureMachineHealthIndexes(db *gorm.DB) error {
	// One live row per (scope, code). machine_id IS NULL means the global
	// scope, which unique indexes cannot express directly, so key on the
	// coalesced id instead (0 is never a real machine id).
	if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS ux_machine_health_scope_code ON machine_health (COALESCE(machine_id, 0), code);`).Error; err != nil {
		return fmt.Errorf("create ux_machine_health_scope_code: %w", err)
	}
	return nil
}

func EnsureNotifyTriggers(db *gorm.DB) error {
	// Row changes on inventory and on job reservation flags fan out to the
	// LISTEN relay; the UI refreshes whichever view the channel names.
	if err := db.Exec(`
CREATE OR REPLACE FUNCTION notify_grundner_changed() RETURNS trigger AS $$
BEGIN
  PERFORM pg_notify('grundner_changed', '');
  RETURN NULL;
END;
$$ LANGUAGE plpgsql;`).Error; err != nil {
		return fmt.Errorf("create notify_grundner_changed fn: %w", err)
	}
	if err := db.Exec(`
DROP TRIGGER IF EXISTS trg_grundner_stock_notify ON grundner_stock;
CREATE TRIGGER trg_grundner_stock_notify
AFTER INSERT OR UPDATE OR DELETE ON grundner_stock
FOR EACH STATEMENT EXECUTE FUNCTION notify_grundner_changed();`).Error; err != nil {
		return fmt.Errorf("create trg_grundner_stock_notify: %w", err)
	}

	if err := db.Exec(`
CREATE OR REPLACE FUNCTION notify_allocated_material_changed() RETURNS trigger AS $$
BEGIN
  IF TG_OP = 'DELETE' THEN
    PERFORM pg_notify('allocated_material_changed', '');
    RETURN NULL;
  END IF;
  IF TG_OP = 'INSERT'
     OR NEW.pre_reserved IS DISTINCT FROM OLD.pre_reserved
     OR NEW.locked IS DISTINCT FROM OLD.locked THEN
    PERFORM pg_notify('allocated_material_changed', '');
  END IF;
  RETURN NULL;
END;
$$ LANGUAGE plpgsql;`).Error; err != nil {
		return fmt.Errorf("create notify_allocated_material_changed fn: %w", err)
	}
	if err := db.Exec(`
DROP TRIGGER IF EXISTS trg_jobs_allocation_notify ON jobs;
CREATE TRIGGER trg_jobs_allocation_notify
AFTER INSERT OR UPDATE OR DELETE ON jobs
FOR EACH ROW EXECUTE FUNCTION notify_allocated_material_changed();`).Error; err != nil {
		return fmt.Errorf("create trg_jobs_allocation_notify: %w", err)
	}
	return nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	if err := AutoMigrateAll(s.db); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	if err := EnsureJobIndexes(s.db); err != nil {
		s.log.Error("Job index migration failed", "error", err)
		return err
	}
	if err := EnsureMachineHealthIndexes(s.db); err != nil {
		s.log.Error("Machine health index migration failed", "error", err)
		return err
	}
	if err := EnsureNotifyTriggers(s.db); err != nil {
		s.log.Error("Notify trigger migration failed", "error", err)
		return err
	}

	return nil
}
