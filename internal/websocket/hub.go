// internal/websocket/hub.go
package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"soko-service/internal/pkg/jwt"

	"go.uber.org/zap"
)

// Envelope is the wire shape of every pushed event.
type Envelope struct {
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Hub fans subscription alerts out to connected providers. Push only: it
// keeps connections per account and delivers alert envelopes; inbound frames
// beyond ping/pong are ignored.
type Hub struct {
	clients map[int64]map[*Client]bool
	mu      sync.RWMutex

	register   chan *Client
	unregister chan *Client

	jwtVerifier *jwt.Verifier
	logger      *zap.Logger
}

func NewHub(jwtVerifier *jwt.Verifier, logger *zap.Logger) *Hub {
	return &Hub{
		clients:     make(map[int64]map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		jwtVerifier: jwtVerifier,
		logger:      logger,
	}
}

// Authenticate validates the bearer token a connecting client presented.
func (h *Hub) Authenticate(token string) (*jwt.Claims, error) {
	return h.jwtVerifier.VerifyAccessToken(token)
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		}
	}
}

// PushToAccount delivers one event to every connection the account holds.
// Accounts with no connection just miss the push; the alert row remains.
func (h *Hub) PushToAccount(accountID int64, event string, payload any) {
	data, err := json.Marshal(Envelope{
		Type:      event,
		Data:      payload,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		h.logger.Error("failed to encode push event", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[accountID] {
		client.trySend(data)
	}
}

// ConnectedAccounts reports the number of accounts with at least one
// connection.
func (h *Hub) ConnectedAccounts() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.accountID] == nil {
		h.clients[client.accountID] = make(map[*Client]bool)
	}
	h.clients[client.accountID][client] = true

	h.logger.Info("websocket client connected",
		zap.Int64("account_id", client.accountID),
		zap.Int("connections", len(h.clients[client.accountID])),
	)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[client.accountID]
	if !ok {
		return
	}
	if _, exists := clients[client]; !exists {
		return
	}

	delete(clients, client)
	client.close()
	if len(clients) == 0 {
		delete(h.clients, client.accountID)
	}

	h.logger.Info("websocket client disconnected", zap.Int64("account_id", client.accountID))
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.clients {
		for client := range clients {
			client.close()
		}
	}
	h.clients = make(map[int64]map[*Client]bool)
}
