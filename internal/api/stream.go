package api

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// OptimizationEvent describes websocket payloads emitted while a job runs.
type OptimizationEvent struct {
	Type      string           `json:"type"`
	JobID     string           `json:"job_id"`
	BatchID   uint             `json:"batch_id"`
	Total     int              `json:"total,omitempty"`
	Processed int              `json:"processed,omitempty"`
	Candidate *CandidateDTO    `json:"candidate,omitempty"`
	Report    *OptimizationDTO `json:"report,omitempty"`
	Message   string           `json:"message,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// wsClient wraps a websocket connection with write locking.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// OptimizationNotifier keeps track of active websocket clients and broadcasts job events.
type OptimizationNotifier struct {
	mu         sync.Mutex
	clients    map[*wsClient]struct{}
	lastStatus *OptimizationEvent
}

// NewOptimizationNotifier constructs a notifier instance.
func NewOptimizationNotifier() *OptimizationNotifier {
	return &OptimizationNotifier{clients: make(map[*wsClient]struct{})}
}

// Register attaches a websocket connection and returns a client handle.
func (n *OptimizationNotifier) Register(conn *websocket.Conn) *wsClient {
	client := &wsClient{conn: conn}
	n.mu.Lock()
	n.clients[client] = struct{}{}
	status := n.lastStatus
	n.mu.Unlock()

	if status != nil {
		_ = client.writeJSON(*status)
	}
	return client
}

// Unregister removes the websocket client from the notifier and closes the socket.
func (n *OptimizationNotifier) Unregister(client *wsClient) {
	if client == nil {
		return
	}
	n.mu.Lock()
	delete(n.clients, client)
	n.mu.Unlock()
	_ = client.conn.Close()
}

// Broadcast sends the supplied event to all registered websocket clients.
// Progress-style events are kept as the status snapshot served to late
// joiners; the full report payload is dropped from the snapshot.
func (n *OptimizationNotifier) Broadcast(event OptimizationEvent) {
	event.Timestamp = time.Now().UTC()

	n.mu.Lock()
	if event.Type == "progress" || event.Type == "candidate" || event.Type == "started" {
		snapshot := event
		snapshot.Report = nil
		n.lastStatus = &snapshot
	}

	for client := range n.clients {
		if err := client.writeJSON(event); err != nil {
			delete(n.clients, client)
			_ = client.conn.Close()
		}
	}
	n.mu.Unlock()
}

func (c *wsClient) writeJSON(payload interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(payload)
}

func (n *OptimizationNotifier) LastStatus() *OptimizationEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.lastStatus == nil {
		return nil
	}
	copy := *n.lastStatus
	return &copy
}
