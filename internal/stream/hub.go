package stream

import (
	"context"
	"log"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"sleepystop/internal/event"
)

// AllTopic receives every envelope regardless of trip.
const AllTopic = "all"

// Hub fans envelopes out to websocket clients grouped by topic. With redis
// configured, delivery goes through pub/sub so every instance sees it.
type Hub struct {
	redis   *redis.Client
	pubsub  *redis.PubSub
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
}

type Client struct {
	Topic string
	Send  chan []byte
}

func NewHub(ctx context.Context, redisClient *redis.Client) *Hub {
	h := &Hub{
		redis:   redisClient,
		clients: map[string]map[*Client]struct{}{},
	}
	if redisClient == nil {
		return h
	}
	pubsub := redisClient.PSubscribe(ctx, redisChannel("*"))
	if _, err := pubsub.Receive(ctx); err != nil {
		log.Printf("redis subscribe error, falling back to local delivery: %v", err)
		_ = pubsub.Close()
		h.redis = nil
		return h
	}
	h.pubsub = pubsub
	go h.subscribeRedis()
	return h
}

func (h *Hub) Close() error {
	if h.pubsub != nil {
		return h.pubsub.Close()
	}
	return nil
}

func (h *Hub) Register(topic string) *Client {
	client := &Client{
		Topic: topic,
		Send:  make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[topic] == nil {
		h.clients[topic] = map[*Client]struct{}{}
	}
	h.clients[topic][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	topicClients, ok := h.clients[client.Topic]
	if !ok {
		return
	}
	if _, ok := topicClients[client]; !ok {
		return
	}
	delete(topicClients, client)
	if len(topicClients) == 0 {
		delete(h.clients, client.Topic)
	}
	close(client.Send)
}

// Clients reports how many clients are registered on topic.
func (h *Hub) Clients(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

func (h *Hub) Broadcast(ctx context.Context, topic string, payload []byte) {
	if h.redis != nil {
		err := h.redis.Publish(ctx, redisChannel(topic), payload).Err()
		if err == nil {
			return
		}
		log.Printf("redis publish error: %v", err)
	}
	h.deliver(topic, payload)
}

// Publish sends ev to its trip topic and to AllTopic.
func (h *Hub) Publish(ctx context.Context, ev event.Envelope) error {
	b, err := ev.Marshal()
	if err != nil {
		return err
	}
	if ev.TripID != "" {
		h.Broadcast(ctx, ev.TripID, b)
	}
	h.Broadcast(ctx, AllTopic, b)
	return nil
}

func (h *Hub) deliver(topic string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[topic] {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

func (h *Hub) subscribeRedis() {
	for msg := range h.pubsub.Channel() {
		topic := topicFromChannel(msg.Channel)
		if topic == "" {
			continue
		}
		h.deliver(topic, []byte(msg.Payload))
	}
}

func redisChannel(topic string) string {
	return "sleepystop:" + topic + ":broadcast"
}

func topicFromChannel(ch string) string {
	// sleepystop:{topic}:broadcast
	const prefix = "sleepystop:"
	const suffix = ":broadcast"
	if len(ch) <= len(prefix)+len(suffix) || !strings.HasPrefix(ch, prefix) || !strings.HasSuffix(ch, suffix) {
		return ""
	}
	return ch[len(prefix) : len(ch)-len(suffix)]
}
