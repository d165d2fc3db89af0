package service

import "sync"

// Event resources.
const (
	ResourceTasks   = "tasks"
	ResourcePoints  = "points"
	ResourceSources = "sources"
)

// Event actions.
const (
	ActionLoaded    = "loaded"
	ActionFailed    = "failed"
	ActionPosition  = "position"
	ActionCompleted = "completed"
	ActionUploaded  = "uploaded"
)

// Event is a change to a task, one of its points, or the source library.
type Event struct {
	Resource string
	Action   string
	TaskID   string // empty for source events
	ID       string // point id or file name
}

// EventBus is a simple fan-out pub/sub for change events.
type EventBus struct {
	mu   sync.RWMutex
	subs map[chan Event]string
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[chan Event]string)}
}

// Publish sends an event to all interested subscribers (non-blocking).
func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch, taskID := range b.subs {
		if taskID != "" && taskID != e.TaskID {
			continue
		}
		select {
		case ch <- e:
		default:
			// subscriber too slow, skip
		}
	}
}

// Subscribe returns a buffered channel that receives every event.
func (b *EventBus) Subscribe() chan Event {
	return b.SubscribeTask("")
}

// SubscribeTask returns a buffered channel that receives the events of one
// task. An empty id receives everything.
func (b *EventBus) SubscribeTask(taskID string) chan Event {
	ch := make(chan Event, 16)
	b.mu.Lock()
	b.subs[ch] = taskID
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *EventBus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
	close(ch)
}

// DefaultBus is the package-level event bus.
var DefaultBus = NewEventBus()
