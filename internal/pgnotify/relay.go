// Package pgnotify bridges Postgres LISTEN/NOTIFY into the UI message bus.
// Triggers on the stock and jobs tables fire on every statement, so the
// relay debounces each channel before telling clients to reload.
package pgnotify

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/nestlogic/floorwatch/internal/platform/logger"
	"github.com/nestlogic/floorwatch/internal/realtime"
	"github.com/nestlogic/floorwatch/internal/watcher"
)

const (
	debounceWindow = 250 * time.Millisecond
	reconnectDelay = time.Second
)

// channelKeys maps the database channels (declared in the trigger
// migrations) to the refresh keys UI clients subscribe to.
var channelKeys = map[string]string{
	"grundner_changed":           "grundner",
	"allocated_material_changed": "allocated-material",
}

// Relay holds one dedicated wire connection in LISTEN mode. gorm's pool is
// unsuitable for this: a LISTEN session must pin its connection.
type Relay struct {
	dsn      string
	registry *watcher.Registry
	log      *logger.Logger
	coalesce *realtime.Coalescer
}

func NewRelay(dsn string, notify realtime.Notifier, registry *watcher.Registry, baseLog *logger.Logger) *Relay {
	return &Relay{
		dsn:      dsn,
		registry: registry,
		log:      baseLog.With("component", "PgNotifyRelay"),
		coalesce: realtime.NewCoalescer(debounceWindow, notify.DBNotify),
	}
}

// Run listens until ctx is canceled, reconnecting after a second whenever
// the session drops.
func (r *Relay) Run(ctx context.Context) error {
	r.registry.Register("pgnotify", "Database change relay")
	defer r.coalesce.Stop()

	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := r.listen(ctx); err != nil && ctx.Err() == nil {
			r.registry.Error("pgnotify", err, nil)
			r.log.Warn("LISTEN session dropped", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reconnectDelay):
		}
	}
}

func (r *Relay) listen(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, r.dsn)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		conn.Close(closeCtx)
	}()

	for channel := range channelKeys {
		if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
			return err
		}
	}
	r.registry.Ready("pgnotify")
	r.log.Info("listening for database changes", "channels", len(channelKeys))

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		r.dispatch(notification.Channel)
	}
}

// dispatch debounces the channel and forwards unknown ones verbatim, so a
// new trigger reaches clients without a relay change.
func (r *Relay) dispatch(channel string) {
	key, ok := channelKeys[channel]
	if !ok {
		key = channel
	}
	r.coalesce.Kick(key)
}
