package service

import (
	"sync"

	"github.com/raphaelgruber/inkwell-go/internal/models"
)

// Broker fans task state snapshots out to watchers. Slow subscribers miss
// intermediate snapshots rather than blocking the pipeline; every terminal
// state is re-readable from the store regardless.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan models.TaskState]struct{}
}

// NewBroker creates an event broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[chan models.TaskState]struct{})}
}

// Subscribe registers a watcher for one task. The returned cancel func must
// be called when done; it closes the channel.
func (b *Broker) Subscribe(taskID string) (<-chan models.TaskState, func()) {
	ch := make(chan models.TaskState, 8)

	b.mu.Lock()
	if b.subs[taskID] == nil {
		b.subs[taskID] = make(map[chan models.TaskState]struct{})
	}
	b.subs[taskID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[taskID], ch)
			if len(b.subs[taskID]) == 0 {
				delete(b.subs, taskID)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers a snapshot to every watcher of its task. Never blocks;
// a full subscriber channel drops the snapshot.
func (b *Broker) Publish(state models.TaskState) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs[state.TaskID] {
		select {
		case ch <- state:
		default:
		}
	}
}
