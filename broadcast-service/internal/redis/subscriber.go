package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/aaronwang/community-auction/shared/models"
)

// Subscriber wraps Redis Pub/Sub functionality
type Subscriber struct {
	client *redis.Client
	pubsub *redis.PubSub
}

// NewSubscriber creates a new Redis Pub/Sub subscriber
func NewSubscriber(addr, password string, db int) (*Subscriber, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Subscriber{
		client: rdb,
	}, nil
}

// SubscribeToPattern subscribes to all auction events using pattern matching
// Pattern: "auction_events:*" covers every item and the phase channel
func (s *Subscriber) SubscribeToPattern(ctx context.Context, pattern string) error {
	s.pubsub = s.client.PSubscribe(ctx, pattern)

	// Wait for the subscription to be confirmed
	if _, err := s.pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", pattern, err)
	}
	return nil
}

// Listen starts listening for messages and sends them to the provided channel
// This is a blocking operation - run in a goroutine
func (s *Subscriber) Listen(ctx context.Context, messageChan chan<- *Message) error {
	if s.pubsub == nil {
		return fmt.Errorf("not subscribed to any channel")
	}

	// Channel returns raw Redis messages
	ch := s.pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			message, err := parseMessage(msg.Channel, msg.Payload)
			if err != nil {
				fmt.Printf("Warning: failed to parse message on %s: %v\n", msg.Channel, err)
				continue
			}

			// Send to WebSocket handler
			select {
			case messageChan <- message:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// Message represents a parsed Pub/Sub message
type Message struct {
	ItemID  string
	Payload string               // Raw JSON payload
	Event   *models.AuctionEvent // Parsed event data
	// All is set for phase changes, which every client receives
	All bool
}

func parseMessage(channel, payload string) (*Message, error) {
	event := &models.AuctionEvent{}
	if err := json.Unmarshal([]byte(payload), event); err != nil {
		return nil, err
	}

	if channel == models.PhaseChannel {
		return &Message{Payload: payload, Event: event, All: true}, nil
	}

	itemID := extractItemIDFromChannel(channel)
	if itemID == "" {
		return nil, fmt.Errorf("no item id in channel %q", channel)
	}
	return &Message{ItemID: itemID, Payload: payload, Event: event}, nil
}

// extractItemIDFromChannel extracts item ID from channel name
// Example: "auction_events:A1234" -> "A1234"
func extractItemIDFromChannel(channel string) string {
	if !strings.HasPrefix(channel, models.EventChannelPrefix) {
		return ""
	}
	return channel[len(models.EventChannelPrefix):]
}

// Snapshot is the mirrored price of an item
type Snapshot struct {
	Type       string `json:"type"`
	ItemID     string `json:"item_id"`
	Price      int64  `json:"price"`
	MinimumBid int64  `json:"minimum_bid"`
	Bidder     string `json:"bidder,omitempty"`
}

// GetSnapshot reads the mirrored price of an item; ok is false when the
// item has no mirror yet
func (s *Subscriber) GetSnapshot(ctx context.Context, itemID string) (*Snapshot, bool, error) {
	fields, err := s.client.HGetAll(ctx, models.QuoteKey(itemID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read quote: %w", err)
	}
	if len(fields) == 0 {
		return nil, false, nil
	}
	snapshot, err := snapshotFromHash(itemID, fields)
	if err != nil {
		return nil, false, err
	}
	return snapshot, true, nil
}

func snapshotFromHash(itemID string, fields map[string]string) (*Snapshot, error) {
	price, err := strconv.ParseInt(fields["price"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid mirrored price %q: %w", fields["price"], err)
	}
	minimum, err := strconv.ParseInt(fields["minimum_bid"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid mirrored minimum %q: %w", fields["minimum_bid"], err)
	}
	return &Snapshot{
		Type:       "snapshot",
		ItemID:     itemID,
		Price:      price,
		MinimumBid: minimum,
		Bidder:     fields["bidder"],
	}, nil
}

// Close closes the subscriber
func (s *Subscriber) Close() error {
	if s.pubsub != nil {
		s.pubsub.Close()
	}
	return s.client.Close()
}
