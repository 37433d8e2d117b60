package activity

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "activity:post:"

// Hub fans post events out to websocket clients. With a Redis client every
// instance publishes to Redis and delivers what its pattern subscription
// receives; without one, events are delivered in-process.
type Hub struct {
	redis   *redis.Client
	pubsub  *redis.PubSub
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
	logger  *slog.Logger
}

type Client struct {
	PostID string
	Send   chan []byte
}

func NewHub(redisClient *redis.Client) *Hub {
	h := &Hub{
		clients: map[string]map[*Client]struct{}{},
		logger:  slog.Default(),
	}

	if redisClient != nil {
		ctx := context.Background()
		pubsub := redisClient.PSubscribe(ctx, channelPrefix+"*")
		if _, err := pubsub.Receive(ctx); err != nil {
			h.logger.Warn("activity: redis subscribe failed, delivering locally", "err", err)
			_ = pubsub.Close()
			return h
		}
		h.redis = redisClient
		h.pubsub = pubsub
		go h.forward(pubsub.Channel())
	}
	return h
}

func (h *Hub) Register(postID string) *Client {
	client := &Client{
		PostID: postID,
		Send:   make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[postID] == nil {
		h.clients[postID] = map[*Client]struct{}{}
	}
	h.clients[postID][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	postClients, ok := h.clients[client.PostID]
	if !ok {
		return
	}
	if _, ok := postClients[client]; !ok {
		return
	}
	delete(postClients, client)
	if len(postClients) == 0 {
		delete(h.clients, client.PostID)
	}
	close(client.Send)
}

// Publish sends ev to everyone watching ev.PostID.
func (h *Hub) Publish(ctx context.Context, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("activity: encode event", "err", err)
		return
	}

	if h.redis == nil {
		h.deliver(ev.PostID, payload)
		return
	}
	if err := h.redis.Publish(ctx, channelFor(ev.PostID), payload).Err(); err != nil {
		h.logger.Warn("activity: redis publish failed", "post_id", ev.PostID, "err", err)
		h.deliver(ev.PostID, payload)
	}
}

func (h *Hub) Close() error {
	if h.pubsub == nil {
		return nil
	}
	return h.pubsub.Close()
}

func (h *Hub) forward(msgs <-chan *redis.Message) {
	for msg := range msgs {
		postID, ok := postIDFromChannel(msg.Channel)
		if !ok {
			continue
		}
		h.deliver(postID, []byte(msg.Payload))
	}
}

// deliver drops the payload for clients whose buffer is full.
func (h *Hub) deliver(postID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[postID] {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

func channelFor(postID string) string {
	return channelPrefix + postID
}

func postIDFromChannel(ch string) (string, bool) {
	id, ok := strings.CutPrefix(ch, channelPrefix)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}
