// Package mediagroups coalesces the separate Telegram messages that make up
// one media-group post. Each group buffers arrivals in order and flushes after
// a quiet period; parts arriving after the flush start a fresh group.
package mediagroups

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/mymmrac/telego"
)

// DefaultFlushDelay is the idle window after the last arrival before a group
// is considered complete. It is a heuristic, not a guarantee.
const DefaultFlushDelay = 1 * time.Second

// ProcessFunc handles a flushed group: the group ID and its messages in
// arrival order.
type ProcessFunc func(ctx context.Context, groupID string, messages []telego.Message) error

type groupState struct {
	mu       sync.Mutex
	messages []telego.Message
	timer    *time.Timer
	flushed  bool
}

// Manager owns the per-group buffers and their flush timers.
type Manager struct {
	groups sync.Map // map[string]*groupState
	delay  time.Duration
}

// NewManager creates a manager flushing groups after delay of inactivity.
// A non-positive delay falls back to DefaultFlushDelay.
func NewManager(delay time.Duration) *Manager {
	if delay <= 0 {
		delay = DefaultFlushDelay
	}
	return &Manager{delay: delay}
}

// HandleMessage appends a message to its group's buffer and (re)arms the idle
// timer. The first arrival opens the buffer; every arrival pushes the flush
// back by the configured delay. The append and the timer reset happen under
// the group's lock.
func (m *Manager) HandleMessage(message telego.Message, handler ProcessFunc) {
	groupID := message.MediaGroupID
	if groupID == "" {
		return
	}

	for {
		val, _ := m.groups.LoadOrStore(groupID, &groupState{})
		state := val.(*groupState)

		state.mu.Lock()
		if state.flushed {
			// Lost a race with the flush; this part belongs to a new
			// buffer under the same group ID.
			state.mu.Unlock()
			m.groups.CompareAndDelete(groupID, val)
			continue
		}

		duplicate := false
		for _, msg := range state.messages {
			if msg.MessageID == message.MessageID {
				duplicate = true
				break
			}
		}
		if !duplicate {
			state.messages = append(state.messages, message)
			log.Printf("[MediaGroups Group:%s] Buffered message %d (total %d)", groupID, message.MessageID, len(state.messages))
		}

		if state.timer != nil {
			state.timer.Stop()
		}
		state.timer = time.AfterFunc(m.delay, func() {
			m.flush(groupID, state, handler)
		})
		state.mu.Unlock()
		return
	}
}

func (m *Manager) flush(groupID string, state *groupState, handler ProcessFunc) {
	state.mu.Lock()
	if state.flushed {
		state.mu.Unlock()
		return
	}
	state.flushed = true
	messages := make([]telego.Message, len(state.messages))
	copy(messages, state.messages)
	state.mu.Unlock()

	m.groups.Delete(groupID)

	if len(messages) == 0 {
		return
	}

	log.Printf("[MediaGroups Group:%s] Flushing %d message(s)", groupID, len(messages))
	if err := handler(context.Background(), groupID, messages); err != nil {
		log.Printf("[MediaGroups Group:%s] Error processing group: %v", groupID, err)
	}
}

// Shutdown stops all pending flush timers. Buffered groups are dropped.
func (m *Manager) Shutdown() {
	stopped := 0
	m.groups.Range(func(key, value interface{}) bool {
		state := value.(*groupState)
		state.mu.Lock()
		if state.timer != nil && state.timer.Stop() {
			stopped++
		}
		state.flushed = true
		state.mu.Unlock()
		m.groups.Delete(key)
		return true
	})
	log.Printf("[MediaGroups] Shutdown complete, stopped %d timer(s)", stopped)
}
