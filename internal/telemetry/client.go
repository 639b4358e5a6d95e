package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"time"

	types "github.com/nestlogic/floorwatch/internal/domain"
	"github.com/nestlogic/floorwatch/internal/pkg/dbctx"
	"github.com/nestlogic/floorwatch/internal/platform/logger"
	"github.com/nestlogic/floorwatch/internal/realtime"
	"github.com/nestlogic/floorwatch/internal/watcher"
)

const (
	dialTimeout = 5 * time.Second
	maxBackoff  = 30 * time.Second
	// maxLineBytes bounds the un-newlined tail of the stream. A peer that
	// never sends a newline gets its buffer dropped, not the process OOMed.
	maxLineBytes = 64 << 10
	// downAfterFailures is how many consecutive connect failures raise
	// TELEMETRY_DOWN. One flaky dial does not alarm the floor.
	downAfterFailures = 5
)

// SampleSink receives normalized samples. The cnc stat repository
// implements it.
type SampleSink interface {
	Upsert(dbc dbctx.Context, sample *types.CncStat) error
}

// HealthStore is the slice of the machine repositories the client needs to
// raise and clear TELEMETRY_DOWN.
type HealthStore interface {
	Set(dbc dbctx.Context, machineID *int64, code string, severity types.HealthSeverity, message string, context map[string]any) error
	Clear(dbc dbctx.Context, machineID *int64, code string) error
}

// Client maintains one TCP session to a machine PC, reading newline-framed
// JSON status payloads for the life of the process. Dial failures back off
// exponentially and reset on a successful connect.
type Client struct {
	machine  *types.Machine
	sink     SampleSink
	health   HealthStore
	notify   realtime.Notifier
	registry *watcher.Registry
	log      *logger.Logger

	name          string
	lastSignature string
}

func NewClient(machine *types.Machine, sink SampleSink, health HealthStore, notify realtime.Notifier, registry *watcher.Registry, baseLog *logger.Logger) *Client {
	return &Client{
		machine:  machine,
		sink:     sink,
		health:   health,
		notify:   notify,
		registry: registry,
		name:     "telemetry:" + strconv.FormatInt(machine.ID, 10),
		log:      baseLog.With("component", "TelemetryClient", "machine_id", machine.ID),
	}
}

// Run dials and reads until ctx is canceled. It never returns an error:
// telemetry loss is a health condition, not a process failure.
func (c *Client) Run(ctx context.Context) error {
	c.registry.Register(c.name, fmt.Sprintf("Telemetry %s", c.machine.Name))
	addr := net.JoinHostPort(c.machine.PcIP, strconv.Itoa(c.machine.PcPort))

	attempt := 0
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		dialer := net.Dialer{Timeout: dialTimeout}
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			failures++
			if failures == downAfterFailures {
				c.markDown(ctx, err)
			}
			c.log.Warn("telemetry dial failed", "addr", addr, "attempt", attempt, "error", err)
		} else {
			attempt = 0
			failures = 0
			c.lastSignature = ""
			c.markUp(ctx)
			c.registry.Ready(c.name)
			err = c.stream(ctx, conn)
			conn.Close()
			if ctx.Err() != nil {
				return nil
			}
			c.log.Warn("telemetry stream ended", "addr", addr, "error", err)
			failures++
		}

		delay := backoffDelay(attempt)
		attempt++
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// backoffDelay is min(30s, 2^min(attempt,5) seconds), so the schedule is
// deterministic: 1s, 2s, 4s, 8s, 16s, 30s, 30s, ...
func backoffDelay(attempt int) time.Duration {
	if attempt > 5 {
		attempt = 5
	}
	d := time.Second << attempt
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

func (c *Client) markDown(ctx context.Context, cause error) {
	id := c.machine.ID
	dbc := dbctx.Context{Ctx: ctx}
	msg := fmt.Sprintf("no telemetry connection to %s", c.machine.Name)
	detail := map[string]any{"pc_ip": c.machine.PcIP, "pc_port": c.machine.PcPort, "error": cause.Error()}
	if err := c.health.Set(dbc, &id, types.HealthCodeTelemetry, types.HealthWarning, msg, detail); err != nil {
		c.log.Warn("telemetry health not recorded", "error", err)
	}
	c.notify.MachineHealthSet(&id, types.HealthCodeTelemetry, types.HealthWarning, msg, detail)
	c.registry.Error(c.name, cause, nil)
}

func (c *Client) markUp(ctx context.Context) {
	id := c.machine.ID
	if err := c.health.Clear(dbctx.Context{Ctx: ctx}, &id, types.HealthCodeTelemetry); err != nil {
		c.log.Warn("telemetry health not cleared", "error", err)
	}
	c.notify.MachineHealthClear(&id, types.HealthCodeTelemetry)
}

// stream reads the connection until it fails or ctx cancels. Cancellation
// closes the socket so the blocked Read returns.
func (c *Client) stream(ctx context.Context, conn net.Conn) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			buf = c.consume(ctx, buf)
			if len(buf) > maxLineBytes {
				c.log.Warn("telemetry frame overran buffer, dropping", "bytes", len(buf))
				buf = buf[:0]
			}
		}
		if err != nil {
			return err
		}
	}
}

// consume processes every complete line in buf and returns the unread tail.
func (c *Client) consume(ctx context.Context, buf []byte) []byte {
	for {
		idx := bytes.IndexByte(buf, '\n')
		if idx < 0 {
			return buf
		}
		line := bytes.TrimSpace(buf[:idx])
		buf = buf[idx+1:]
		if len(line) == 0 {
			continue
		}
		c.handleLine(ctx, line)
	}
}

func (c *Client) handleLine(ctx context.Context, line []byte) {
	var payload map[string]any
	if err := json.Unmarshal(line, &payload); err != nil {
		c.log.Warn("telemetry payload not JSON, skipping", "error", err)
		return
	}

	sample := Normalize(payload, c.machine.PcIP)
	sig := Signature(sample)
	if sig == c.lastSignature {
		return
	}
	if err := c.sink.Upsert(dbctx.Context{Ctx: ctx}, sample); err != nil {
		c.log.Error("telemetry sample not stored", "key", sample.Key, "error", err)
		c.notify.WorkerError("telemetry", err, map[string]any{"machine_id": c.machine.ID, "key": sample.Key})
		return
	}
	c.lastSignature = sig
}
