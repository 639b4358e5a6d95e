// Package realtime defines the one-way message vocabulary pushed from the
// core to the UI process. The core never waits for an acknowledgment; when
// the transport is down messages are dropped after a logged warning.
package realtime

import (
	"context"
	"time"
)

type Event string

const (
	EventRegisterWatcher    Event = "registerWatcher"
	EventWatcherReady       Event = "watcherReady"
	EventWatcherEvent       Event = "watcherEvent"
	EventWatcherError       Event = "watcherError"
	EventWorkerError        Event = "workerError"
	EventMachineHealthSet   Event = "machineHealthSet"
	EventMachineHealthClear Event = "machineHealthClear"
	EventDBNotify           Event = "dbNotify"
	EventUserAlert          Event = "userAlert"
	EventAppAlert           Event = "appAlert"
	EventAppMessage         Event = "appMessage"
)

type Message struct {
	Event Event `json:"event"`
	Data  any   `json:"data,omitempty"`
}

// Publisher is the transport the notifier writes to. bus.Bus satisfies it.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

type RegisterWatcherData struct {
	Name  string `json:"name"`
	Label string `json:"label"`
}

type WatcherReadyData struct {
	Name string `json:"name"`
}

type WatcherEventData struct {
	Name    string         `json:"name"`
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
}

type WatcherErrorData struct {
	Name    string         `json:"name"`
	Error   string         `json:"error"`
	Context map[string]any `json:"context,omitempty"`
}

type WorkerErrorData struct {
	Source  string         `json:"source"`
	Error   string         `json:"error"`
	Context map[string]any `json:"context,omitempty"`
}

// MachineHealthSetData carries a nil Scope for conditions that are not tied
// to a single machine.
type MachineHealthSetData struct {
	Scope    *int64         `json:"scope"`
	Code     string         `json:"code"`
	Severity string         `json:"severity"`
	Message  string         `json:"message"`
	Context  map[string]any `json:"context,omitempty"`
}

type MachineHealthClearData struct {
	Scope *int64 `json:"scope"`
	Code  string `json:"code"`
}

type DBNotifyData struct {
	Channel string `json:"channel"`
}

type UserAlertData struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

type AppAlertData struct {
	Category string         `json:"category"`
	Summary  string         `json:"summary"`
	Details  map[string]any `json:"details,omitempty"`
}

type AppMessageData struct {
	Event     string         `json:"event"`
	Params    map[string]any `json:"params,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Source    string         `json:"source,omitempty"`
}
