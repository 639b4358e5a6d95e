package realtime

import (
	"context"
	"encoding/json"
	"time"

	types "github.com/nestlogic/floorwatch/internal/domain"
	"github.com/nestlogic/floorwatch/internal/platform/logger"
)

// FeedStore persists operator-facing notices so the UI can replay the feed
// after a reconnect. The messages repo implements it with pruning.
type FeedStore interface {
	Record(ctx context.Context, tone, title, body, source string) error
}

// Notifier is the typed surface components emit UI messages through. Every
// method is fire-and-forget: transport or store failures are logged, never
// returned.
type Notifier interface {
	RegisterWatcher(name, label string)
	WatcherReady(name string)
	WatcherEvent(name, message string, context map[string]any)
	WatcherError(name string, err error, context map[string]any)
	WorkerError(source string, err error, context map[string]any)
	MachineHealthSet(scope *int64, code string, severity types.HealthSeverity, message string, context map[string]any)
	MachineHealthClear(scope *int64, code string)
	DBNotify(channel string)
	UserAlert(title, message string)
	AppAlert(category, summary string, details map[string]any)
	AppMessage(event string, params map[string]any, source string)
}

type busNotifier struct {
	pub   Publisher
	store FeedStore
	log   *logger.Logger
}

func NewNotifier(pub Publisher, store FeedStore, log *logger.Logger) Notifier {
	return &busNotifier{pub: pub, store: store, log: log.With("component", "UINotifier")}
}

// NewNopNotifier returns a notifier that discards everything. Tests use it
// where message traffic is irrelevant.
func NewNopNotifier() Notifier {
	return &busNotifier{log: logger.NewNop()}
}

func (n *busNotifier) publish(event Event, data any) {
	if n == nil || n.pub == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := n.pub.Publish(ctx, Message{Event: event, Data: data}); err != nil {
		n.log.Warn("UI message dropped", "event", event, "error", err)
	}
}

func (n *busNotifier) record(tone, title, body, source string) {
	if n == nil || n.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := n.store.Record(ctx, tone, title, body, source); err != nil {
		n.log.Warn("feed message not persisted", "title", title, "error", err)
	}
}

func (n *busNotifier) RegisterWatcher(name, label string) {
	n.publish(EventRegisterWatcher, RegisterWatcherData{Name: name, Label: label})
}

func (n *busNotifier) WatcherReady(name string) {
	n.publish(EventWatcherReady, WatcherReadyData{Name: name})
}

func (n *busNotifier) WatcherEvent(name, message string, context map[string]any) {
	n.publish(EventWatcherEvent, WatcherEventData{Name: name, Message: message, Context: context})
}

func (n *busNotifier) WatcherError(name string, err error, context map[string]any) {
	n.publish(EventWatcherError, WatcherErrorData{Name: name, Error: errString(err), Context: context})
}

func (n *busNotifier) WorkerError(source string, err error, context map[string]any) {
	n.publish(EventWorkerError, WorkerErrorData{Source: source, Error: errString(err), Context: context})
}

func (n *busNotifier) MachineHealthSet(scope *int64, code string, severity types.HealthSeverity, message string, context map[string]any) {
	n.publish(EventMachineHealthSet, MachineHealthSetData{
		Scope:    scope,
		Code:     code,
		Severity: string(severity),
		Message:  message,
		Context:  context,
	})
}

func (n *busNotifier) MachineHealthClear(scope *int64, code string) {
	n.publish(EventMachineHealthClear, MachineHealthClearData{Scope: scope, Code: code})
}

func (n *busNotifier) DBNotify(channel string) {
	n.publish(EventDBNotify, DBNotifyData{Channel: channel})
}

func (n *busNotifier) UserAlert(title, message string) {
	n.publish(EventUserAlert, UserAlertData{Title: title, Message: message})
	n.record(types.ToneWarning, title, message, "userAlert")
}

func (n *busNotifier) AppAlert(category, summary string, details map[string]any) {
	n.publish(EventAppAlert, AppAlertData{Category: category, Summary: summary, Details: details})
	n.record(toneFor(category), summary, compactJSON(details), "appAlert")
}

func (n *busNotifier) AppMessage(event string, params map[string]any, source string) {
	n.publish(EventAppMessage, AppMessageData{
		Event:     event,
		Params:    params,
		Timestamp: time.Now().UTC(),
		Source:    source,
	})
	n.record(types.ToneInfo, event, compactJSON(params), source)
}

func toneFor(category string) string {
	switch category {
	case types.ToneSuccess, types.ToneInfo, types.ToneWarning, types.ToneError:
		return category
	default:
		return types.ToneInfo
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func compactJSON(m map[string]any) string {
	if len(m) == 0 {
		return ""
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(raw)
}
