// Package ws is the subscription broadcaster: it tracks which live
// connections care about which tasks and fans status events out to exactly
// those connections. There is no buffering. A client that subscribes after
// an event was emitted never sees it and falls back to REST polling.
package ws

import (
	"log/slog"
	"sync"

	"github.com/veilproof/riskscope/internal/core/domain"
)

// Metrics counts broadcast outcomes. Implementations must be safe for
// concurrent use; nil disables recording.
type Metrics interface {
	RecordEvent(deliveries int)
	RecordEviction()
}

// Hub holds the many-to-many task<->connection mapping. Both directions are
// kept so broadcast and cleanup are O(subscribers) and O(subscriptions).
type Hub struct {
	mu      sync.RWMutex
	byTask  map[string]map[*client]struct{}
	clients map[*client]struct{}

	metrics Metrics
}

func NewHub(m Metrics) *Hub {
	return &Hub{
		byTask:  make(map[string]map[*client]struct{}),
		clients: make(map[*client]struct{}),
		metrics: m,
	}
}

// OnStatusUpdate implements ports.StatusListener. A slow or dead connection
// is evicted instead of blocking delivery to the others.
func (h *Hub) OnStatusUpdate(update domain.StatusUpdate) {
	env := serverMessage{
		Type:   msgStatusUpdate,
		TaskID: update.TaskID,
		Data: &statusPayload{
			Status:   update.Status,
			Progress: update.Progress,
			Message:  update.Message,
		},
	}

	h.mu.RLock()
	subscribers := make([]*client, 0, len(h.byTask[update.TaskID]))
	for c := range h.byTask[update.TaskID] {
		subscribers = append(subscribers, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range subscribers {
		if !c.trySend(env) {
			slog.Info("ws_client_evicted", "task_id", update.TaskID)
			h.drop(c)
			if h.metrics != nil {
				h.metrics.RecordEviction()
			}
			continue
		}
		delivered++
	}
	if h.metrics != nil {
		h.metrics.RecordEvent(delivered)
	}
}

// SubscriberCount reports how many connections watch the given task.
func (h *Hub) SubscriberCount(taskID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byTask[taskID])
}

// ClientCount reports the number of live connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *Hub) subscribe(c *client, taskID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	set, ok := h.byTask[taskID]
	if !ok {
		set = make(map[*client]struct{})
		h.byTask[taskID] = set
	}
	set[c] = struct{}{}
	c.tasks[taskID] = struct{}{}
}

func (h *Hub) unsubscribe(c *client, taskID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeSubscription(c, taskID)
}

// drop removes the connection from every subscriber set it belongs to and
// closes its outbound channel. Idempotent.
func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	for taskID := range c.tasks {
		h.removeSubscription(c, taskID)
	}
	delete(h.clients, c)
	c.closeSend()
}

// removeSubscription prunes empty task entries so the map never grows with
// finished tasks. Callers hold h.mu.
func (h *Hub) removeSubscription(c *client, taskID string) {
	delete(c.tasks, taskID)
	if set, ok := h.byTask[taskID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.byTask, taskID)
		}
	}
}
