package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aaronwang/community-auction/shared/models"
)

const cleanupKeyPrefix = "cleanup:confirm:"

// Client wraps the Redis client with the live-feed side of the auction:
// Pub/Sub events, the mirrored price per item and cleanup confirmation tokens
type Client struct {
	client *redis.Client
	// Lua script that only ever raises the mirrored price
	mirrorScript *redis.Script
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	// Events are published from goroutines after commit and may arrive out
	// of order; the script keeps the mirror from moving backwards.
	mirrorScript := redis.NewScript(`
		-- KEYS[1]: item:{itemID}:quote
		-- ARGV[1]: price
		-- ARGV[2]: minimum next bid
		-- ARGV[3]: highest bidder display name

		local current = redis.call('HGET', KEYS[1], 'price')
		local new_price = tonumber(ARGV[1])

		if current and tonumber(current) >= new_price then
			return {0, tonumber(current)}
		end

		redis.call('HSET', KEYS[1], 'price', ARGV[1], 'minimum_bid', ARGV[2], 'bidder', ARGV[3])
		if current then
			return {1, tonumber(current)}
		end
		return {1, 0}
	`)

	return &Client{
		client:       rdb,
		mirrorScript: mirrorScript,
	}, nil
}

// MirrorResult reports what the mirror script did
type MirrorResult struct {
	Updated       bool
	PreviousPrice int64
}

// MirrorPrice raises the mirrored price of an item
func (c *Client) MirrorPrice(ctx context.Context, itemID string, price, minimum int64, bidder string) (*MirrorResult, error) {
	keys := []string{models.QuoteKey(itemID)}

	result, err := c.mirrorScript.Run(ctx, c.client, keys, price, minimum, bidder).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to execute mirror script: %w", err)
	}

	// Result is [updated_flag, previous_price]
	resultArray, ok := result.([]interface{})
	if !ok || len(resultArray) != 2 {
		return nil, fmt.Errorf("unexpected script result format")
	}
	flag, ok1 := resultArray[0].(int64)
	prev, ok2 := resultArray[1].(int64)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("unexpected script result types")
	}

	return &MirrorResult{Updated: flag == 1, PreviousPrice: prev}, nil
}

// PublishEvent publishes an event to Redis Pub/Sub.
// The broadcast service forwards it to websocket clients.
func (c *Client) PublishEvent(ctx context.Context, channel string, event interface{}) error {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return c.client.Publish(ctx, channel, eventJSON).Err()
}

// Notify feeds public events to the live feed. Events addressed to a single
// user are left to the durable event bus.
func (c *Client) Notify(ctx context.Context, event *models.AuctionEvent) error {
	if !event.Public() {
		return nil
	}

	switch event.Type {
	case models.EventPhaseChanged:
		return c.PublishEvent(ctx, models.PhaseChannel, event)
	case models.EventItemsCleaned:
		keys := cleanedQuoteKeys(event)
		if len(keys) == 0 {
			return nil
		}
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("failed to drop quotes of cleaned items: %w", err)
		}
		fmt.Printf("[REDIS] Dropped %d quotes of cleaned items\n", len(keys))
		return nil
	case models.EventBidPlaced, models.EventItemApproved:
		bidder := ""
		if event.Type == models.EventBidPlaced {
			bidder = event.ActorName
		}
		mirrored, err := c.MirrorPrice(ctx, event.ItemID, event.Amount, event.MinimumBid, bidder)
		if err != nil {
			fmt.Printf("Warning: failed to mirror price for %s: %v\n", event.ItemID, err)
		} else if !mirrored.Updated {
			fmt.Printf("[REDIS] Kept mirrored price %d for %s over %d\n", mirrored.PreviousPrice, event.ItemID, event.Amount)
		}
	}

	if event.ItemID == "" {
		return nil
	}
	if err := c.PublishEvent(ctx, models.EventChannel(event.ItemID), event); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.Type, err)
	}
	fmt.Printf("[REDIS] Published %s event for item %s\n", event.Type, event.ItemID)
	return nil
}

// cleanedQuoteKeys lists the quote keys of the items an items_cleaned event removed
func cleanedQuoteKeys(event *models.AuctionEvent) []string {
	if event.Type != models.EventItemsCleaned {
		return nil
	}
	keys := make([]string, 0, len(event.ItemIDs))
	for _, id := range event.ItemIDs {
		if id != "" {
			keys = append(keys, models.QuoteKey(id))
		}
	}
	return keys
}

// Put stores a cleanup confirmation token with a TTL
func (c *Client) Put(ctx context.Context, token string, ttl time.Duration) error {
	ok, err := c.client.SetNX(ctx, cleanupKeyPrefix+token, 1, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to store confirmation token: %w", err)
	}
	if !ok {
		return fmt.Errorf("confirmation token %s already exists", token)
	}
	return nil
}

// Take consumes a cleanup confirmation token
func (c *Client) Take(ctx context.Context, token string) (bool, error) {
	_, err := c.client.GetDel(ctx, cleanupKeyPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to take confirmation token: %w", err)
	}
	return true, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.client.Close()
}
