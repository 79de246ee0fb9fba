package hub

import (
	"encoding/json"
	"log"
	"sync"
)

// Hub fans queue events out to connected display clients. Clients
// subscribe per clinic location; an empty subscription receives
// everything.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

type Client struct {
	ID         string
	Send       chan []byte
	LocationID string
}

type SubscribeMessage struct {
	Action     string `json:"action"`
	LocationID string `json:"location_id"`
}

func New() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, client.ID)
	close(client.Send)
}

func (h *Hub) UpdateSubscription(client *Client, locationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.LocationID = locationID
}

func (h *Hub) Broadcast(payload []byte, locationID string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if client.LocationID != "" && client.LocationID != locationID {
			continue
		}
		select {
		case client.Send <- payload:
		default:
			log.Printf("drop message for client %s", client.ID)
		}
	}
}

func ParseSubscribe(data []byte) (SubscribeMessage, bool) {
	var msg SubscribeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return SubscribeMessage{}, false
	}
	if msg.Action != "subscribe" && msg.Action != "unsubscribe" {
		return SubscribeMessage{}, false
	}
	return msg, true
}
