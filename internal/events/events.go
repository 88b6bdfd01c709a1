// Package events provides the in-process event bus connecting the scanner,
// scheduler and updater to the UI surfaces (main window, tray, notifications).
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// EventType defines the types of events that can be emitted.
type EventType string

const (
	EventScanStarted        EventType = "scan_started"
	EventScanProgress       EventType = "scan_progress"
	EventThreatFound        EventType = "threat_found"
	EventScanCompleted      EventType = "scan_completed"
	EventDefinitionsUpdated EventType = "definitions_updated"
	EventQuarantineChanged  EventType = "quarantine_changed"
	EventSettingsChanged    EventType = "settings_changed"
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common event fields.
type BaseEvent struct {
	EventType EventType
	Time      time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// ScanStartedEvent fires when a scan begins.
type ScanStartedEvent struct {
	BaseEvent
	ProfileID string
	Paths     []string
}

// ScanProgressEvent reports scan progress.
type ScanProgressEvent struct {
	BaseEvent
	ProfileID    string
	Percentage   int
	FilesScanned int
	CurrentPath  string
}

// ThreatFoundEvent fires for each infected file the scanner reports.
type ThreatFoundEvent struct {
	BaseEvent
	Path      string
	Signature string
}

// ScanCompletedEvent fires when a scan finishes, successfully or not.
type ScanCompletedEvent struct {
	BaseEvent
	ProfileID    string
	FilesScanned int
	ThreatsFound int
	Duration     time.Duration
	Err          error
}

// DefinitionsUpdatedEvent fires after a definitions download attempt.
type DefinitionsUpdatedEvent struct {
	BaseEvent
	Version string
	Err     error
}

// QuarantineChangedEvent fires when entries are added to or removed from the
// quarantine.
type QuarantineChangedEvent struct {
	BaseEvent
	Count int
}

// SettingsChangedEvent fires when the settings file is reloaded.
type SettingsChangedEvent struct {
	BaseEvent
	Source string // "save" or "watcher"
}

// Bus manages event subscriptions and publishing. Publishing never blocks:
// a subscriber that falls behind loses events, counted for diagnostics.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]chan Event
	all         []chan Event
	bufferSize  int
	closed      bool
	dropped     atomic.Int64
}

const defaultBufferSize = 256

// NewBus creates an event bus. bufferSize <= 0 selects the default.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Bus{
		subscribers: make(map[EventType][]chan Event),
		bufferSize:  bufferSize,
	}
}

// Subscribe creates a subscription to a specific event type. On a closed bus
// the returned channel is already closed.
func (b *Bus) Subscribe(eventType EventType) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, b.bufferSize)
	b.subscribers[eventType] = append(b.subscribers[eventType], ch)
	return ch
}

// SubscribeAll creates a subscription to every event type.
func (b *Bus) SubscribeAll() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, b.bufferSize)
	b.all = append(b.all, ch)
	return ch
}

// Publish sends an event to all matching subscribers without blocking.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, ch := range b.subscribers[event.Type()] {
		select {
		case ch <- event:
		default:
			b.dropped.Add(1)
		}
	}
	for _, ch := range b.all {
		select {
		case ch <- event:
		default:
			b.dropped.Add(1)
		}
	}
}

// Unsubscribe removes a subscription created with Subscribe.
func (b *Bus) Unsubscribe(eventType EventType, ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	subs := b.subscribers[eventType]
	for i, sub := range subs {
		if sub == ch {
			subs[i] = subs[len(subs)-1]
			b.subscribers[eventType] = subs[:len(subs)-1]
			return
		}
	}
}

// Close shuts down the bus and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, channels := range b.subscribers {
		for _, ch := range channels {
			close(ch)
		}
	}
	for _, ch := range b.all {
		close(ch)
	}
}

// Dropped returns the number of events lost to full subscriber buffers.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// PublishProgress is a convenience wrapper for scan progress events.
func (b *Bus) PublishProgress(profileID string, percentage, filesScanned int, currentPath string) {
	b.Publish(&ScanProgressEvent{
		BaseEvent:    BaseEvent{EventType: EventScanProgress, Time: time.Now()},
		ProfileID:    profileID,
		Percentage:   percentage,
		FilesScanned: filesScanned,
		CurrentPath:  currentPath,
	})
}

// PublishThreat is a convenience wrapper for threat events.
func (b *Bus) PublishThreat(path, signature string) {
	b.Publish(&ThreatFoundEvent{
		BaseEvent: BaseEvent{EventType: EventThreatFound, Time: time.Now()},
		Path:      path,
		Signature: signature,
	})
}
