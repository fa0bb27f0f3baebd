package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	redisClient "github.com/aaronwang/community-auction/broadcast-service/internal/redis"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow all origins for development (use proper CORS in production)
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// SnapshotSource returns the mirrored price of an item
type SnapshotSource interface {
	GetSnapshot(ctx context.Context, itemID string) (*redisClient.Snapshot, bool, error)
}

// Handler handles WebSocket connections
type Handler struct {
	manager   *Manager
	snapshots SnapshotSource
}

// NewHandler creates a new WebSocket handler
func NewHandler(manager *Manager, snapshots SnapshotSource) *Handler {
	return &Handler{
		manager:   manager,
		snapshots: snapshots,
	}
}

// SetupRoutes configures WebSocket routes
func (h *Handler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()

	// WebSocket endpoint: /ws/items/{id}
	router.HandleFunc("/ws/items/{id}", h.HandleWebSocket)

	// Health check
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")

	// Stats endpoint
	router.HandleFunc("/stats/items/{id}", h.GetStats).Methods("GET")

	return router
}

// HandleWebSocket upgrades HTTP connection to WebSocket
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	itemID := strings.ToUpper(strings.TrimSpace(mux.Vars(r)["id"]))

	if itemID == "" {
		http.Error(w, "Item ID is required", http.StatusBadRequest)
		return
	}

	// Upgrade connection to WebSocket
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		fmt.Printf("Failed to upgrade connection: %v\n", err)
		return
	}

	// Create client
	client := &Client{
		ID:     uuid.New().String(),
		ItemID: itemID,
		Conn:   conn,
		Send:   make(chan []byte, 256), // Buffered channel for non-blocking sends
	}

	// Queue the greeting and the price snapshot before the client becomes
	// visible to broadcasts
	client.Send <- welcomeMessage(itemID, client.ID)
	if snapshot := h.snapshot(r.Context(), itemID); snapshot != nil {
		client.Send <- snapshot
	}

	// Register client with manager
	h.manager.RegisterClient(client)

	// Start reading from client (handles disconnects)
	client.StartReadPump(h.manager)
}

func (h *Handler) snapshot(ctx context.Context, itemID string) []byte {
	if h.snapshots == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	snapshot, ok, err := h.snapshots.GetSnapshot(ctx, itemID)
	if err != nil {
		fmt.Printf("Warning: failed to load snapshot for %s: %v\n", itemID, err)
		return nil
	}
	if !ok {
		return nil
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil
	}
	return data
}

func welcomeMessage(itemID, clientID string) []byte {
	data, _ := json.Marshal(map[string]string{
		"type":      "connected",
		"item_id":   itemID,
		"client_id": clientID,
	})
	return data
}

// HealthCheck returns service health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","service":"broadcast-service"}`)
}

// GetStats returns statistics for an item
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	itemID := strings.ToUpper(mux.Vars(r)["id"])

	count := h.manager.GetSubscriberCount(itemID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"item_id":     itemID,
		"subscribers": count,
	})
}
