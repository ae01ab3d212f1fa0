package server

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const (
	RealtimeEventDefinitionChanged = "definition-change"
	realtimeEventHeartbeat         = "heartbeat"
	realtimeSourceBackend          = "bpmnstore-backend"

	RevisionActionPersisted = "persisted"
	RevisionActionDeleted   = "deleted"

	revisionStreamBuffer = 16
)

// RevisionMessage announces a change to the revisions stored under one definition name.
type RevisionMessage struct {
	Name      string
	EventType string
	Action    string
	Result    string
	Hash      string
	Timestamp time.Time
}

// RevisionDispatcher fans revision messages out to the streams watching a definition name.
type RevisionDispatcher struct {
	sequence atomic.Int64

	mu     sync.RWMutex
	topics map[string]map[int64]chan RevisionMessage
}

func NewRevisionDispatcher() *RevisionDispatcher {
	return &RevisionDispatcher{topics: make(map[string]map[int64]chan RevisionMessage)}
}

// Subscribe opens a stream for name. It is removed when ctx ends or cleanup runs, whichever is first.
func (d *RevisionDispatcher) Subscribe(ctx context.Context, name string) (<-chan RevisionMessage, func()) {
	if name == "" {
		closed := make(chan RevisionMessage)
		close(closed)
		return closed, func() {}
	}

	id := d.sequence.Add(1)
	stream := make(chan RevisionMessage, revisionStreamBuffer)

	d.mu.Lock()
	topic, ok := d.topics[name]
	if !ok {
		topic = make(map[int64]chan RevisionMessage)
		d.topics[name] = topic
	}
	topic[id] = stream
	d.mu.Unlock()

	var once sync.Once
	cleanup := func() {
		once.Do(func() { d.remove(name, id) })
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return stream, cleanup
}

// Publish delivers message to every stream watching its name and reports how many streams were
// full and missed it.
func (d *RevisionDispatcher) Publish(message RevisionMessage) (dropped int) {
	if message.Name == "" || message.EventType == "" {
		return 0
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, stream := range d.topics[message.Name] {
		select {
		case stream <- message:
		default:
			dropped++
		}
	}
	return dropped
}

func (d *RevisionDispatcher) subscriberCount(name string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.topics[name])
}

func (d *RevisionDispatcher) remove(name string, id int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	topic := d.topics[name]
	delete(topic, id)
	if len(topic) == 0 {
		delete(d.topics, name)
	}
}
