// Package telemetry streams machine-PC status over TCP: one JSON object
// per newline, normalized into samples and upserted keyed by the source
// timestamp so re-ingestion after a reconnect is idempotent.
package telemetry

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	types "github.com/nestlogic/floorwatch/internal/domain"
)

// Field synonyms seen across machine-PC firmware versions. Lookup tries the
// top level first, then searches nested objects, both case-insensitively.
var sampleFields = []struct {
	names []string
	set   func(*types.CncStat, any)
}{
	{[]string{"currentProgram", "Program", "MainProgram"}, func(s *types.CncStat, v any) { s.CurrentProgram = asString(v) }},
	{[]string{"mode", "opMode", "operationMode"}, func(s *types.CncStat, v any) { s.Mode = asString(v) }},
	{[]string{"status", "state", "machineStatus"}, func(s *types.CncStat, v any) { s.Status = asString(v) }},
	{[]string{"alarm", "alarmMessage", "currentAlarm"}, func(s *types.CncStat, v any) { s.Alarm = asString(v) }},
	{[]string{"emergency", "emergencyStop", "emg"}, func(s *types.CncStat, v any) { s.EmergencyStop = asBool(v) }},
	{[]string{"powerOnSeconds", "powerOnTime", "power_on_seconds"}, func(s *types.CncStat, v any) { s.PowerOnSeconds = asInt64(v) }},
	{[]string{"cuttingSeconds", "cuttingTime", "cutting_seconds"}, func(s *types.CncStat, v any) { s.CuttingSeconds = asInt64(v) }},
	{[]string{"vacuumSeconds", "vacuumTime", "vacuum_seconds"}, func(s *types.CncStat, v any) { s.VacuumSeconds = asInt64(v) }},
	{[]string{"drillSeconds", "drillHeadSeconds", "drill_head_seconds"}, func(s *types.CncStat, v any) { s.DrillSeconds = asInt64(v) }},
	{[]string{"spindleSeconds", "spindleTime", "spindle_seconds"}, func(s *types.CncStat, v any) { s.SpindleSeconds = asInt64(v) }},
	{[]string{"conveyorSeconds", "conveyorTime", "conveyor_seconds"}, func(s *types.CncStat, v any) { s.ConveyorSeconds = asInt64(v) }},
	{[]string{"greaseSeconds", "greaseTime", "grease_seconds"}, func(s *types.CncStat, v any) { s.GreaseSeconds = asInt64(v) }},
	{[]string{"alarmHistory", "alarm_history"}, func(s *types.CncStat, v any) { s.AlarmHistory = asHistory(v) }},
}

// Normalize maps one decoded payload into a sample. The key is the
// payload's own key field when present, else the source timestamp, else
// the receive time.
func Normalize(payload map[string]any, machineIP string) *types.CncStat {
	sample := &types.CncStat{
		MachineIP:  machineIP,
		RecordedAt: time.Now().UTC(),
	}
	for _, field := range sampleFields {
		if v, ok := lookup(payload, field.names); ok {
			field.set(sample, v)
		}
	}

	if v, ok := lookup(payload, []string{"key"}); ok {
		sample.Key = asString(v)
	}
	if sample.Key == "" {
		if v, ok := lookup(payload, []string{"timestamp", "time", "ts", "datetime"}); ok {
			sample.Key = asString(v)
		}
	}
	if sample.Key == "" {
		sample.Key = sample.RecordedAt.Format(time.RFC3339Nano)
	}
	return sample
}

// Signature returns the canonical form used for deduplication: every
// normalized field except the receive time.
func Signature(s *types.CncStat) string {
	clone := *s
	clone.RecordedAt = time.Time{}
	raw, err := json.Marshal(clone)
	if err != nil {
		return ""
	}
	return string(raw)
}

// lookup finds the first matching name at the top level, then retries one
// level of nested objects.
func lookup(payload map[string]any, names []string) (any, bool) {
	for key, v := range payload {
		for _, name := range names {
			if strings.EqualFold(key, name) {
				return v, true
			}
		}
	}
	for _, v := range payload {
		if nested, ok := v.(map[string]any); ok {
			if found, ok := lookup(nested, names); ok {
				return found, true
			}
		}
	}
	return nil, false
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		raw, _ := json.Marshal(t)
		return string(raw)
	}
}

func asBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		s := strings.ToLower(strings.TrimSpace(t))
		return s == "1" || s == "true" || s == "on" || s == "yes"
	default:
		return false
	}
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// asHistory keeps string histories verbatim and serializes structured ones.
func asHistory(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(raw)
}
