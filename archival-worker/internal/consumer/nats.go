package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/aaronwang/community-auction/shared/models"
)

// ConsumerName is the durable JetStream consumer shared by every worker replica
const ConsumerName = "archival-worker"

// Archive stores events; inserted is false for an event already archived
type Archive interface {
	InsertEvent(ctx context.Context, event *models.AuctionEvent) (inserted bool, err error)
}

// Deliverer hands user-addressed events to the chat transport
type Deliverer interface {
	Deliver(ctx context.Context, event *models.AuctionEvent) error
}

// outcome is what to tell JetStream about a message
type outcome int

const (
	outcomeAck outcome = iota
	outcomeNak
	outcomeTerm
)

// NATSConsumer consumes auction events from JetStream, archives them and
// delivers the user-addressed ones
type NATSConsumer struct {
	conn     *nats.Conn
	js       jetstream.JetStream
	archive  Archive
	delivery Deliverer
	timeout  time.Duration
}

// NewNATSConsumer creates a new NATS consumer
func NewNATSConsumer(natsURL string, archive Archive, delivery Deliverer) (*NATSConsumer, error) {
	conn, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &NATSConsumer{
		conn:     conn,
		js:       js,
		archive:  archive,
		delivery: delivery,
		timeout:  10 * time.Second,
	}, nil
}

// Start binds the durable consumer on auction.events.> and processes
// messages until ctx is cancelled
func (c *NATSConsumer) Start(ctx context.Context) error {
	cons, err := c.js.CreateOrUpdateConsumer(ctx, models.EventStream, jetstream.ConsumerConfig{
		Durable:       ConsumerName,
		FilterSubject: models.EventSubjectAll,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    10,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer on stream %s: %w", models.EventStream, err)
	}

	consumeCtx, err := cons.Consume(func(msg jetstream.Msg) {
		c.handleMessage(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	defer consumeCtx.Stop()

	fmt.Printf("Consuming %s as durable '%s'\n", models.EventSubjectAll, ConsumerName)

	// Keep consumer running until context is cancelled
	<-ctx.Done()
	return nil
}

// handleMessage processes a single event message
func (c *NATSConsumer) handleMessage(ctx context.Context, msg jetstream.Msg) {
	var err error
	switch c.process(ctx, msg.Data()) {
	case outcomeAck:
		err = msg.Ack()
	case outcomeNak:
		err = msg.NakWithDelay(5 * time.Second)
	case outcomeTerm:
		err = msg.Term()
	}
	if err != nil {
		fmt.Printf("Warning: failed to acknowledge message on %s: %v\n", msg.Subject(), err)
	}
}

// process archives then delivers one event. An archive failure asks for
// redelivery; a delivery failure does not.
func (c *NATSConsumer) process(ctx context.Context, data []byte) outcome {
	var event models.AuctionEvent
	if err := json.Unmarshal(data, &event); err != nil {
		fmt.Printf("Failed to unmarshal event: %v\n", err)
		return outcomeTerm
	}

	// Create a timeout context for database operations
	dbCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	inserted, err := c.archive.InsertEvent(dbCtx, &event)
	if err != nil {
		fmt.Printf("Failed to archive event %s: %v\n", event.EventID, err)
		return outcomeNak
	}
	if !inserted {
		fmt.Printf("Event %s already archived, skipping\n", event.EventID)
		return outcomeAck
	}

	fmt.Printf("Archived %s event %s (item: %s, recipient: %d)\n",
		event.Type, event.EventID, event.ItemID, event.RecipientID)

	if event.Public() || c.delivery == nil {
		return outcomeAck
	}

	deliverCtx, cancelDeliver := context.WithTimeout(ctx, c.timeout)
	defer cancelDeliver()

	if err := c.delivery.Deliver(deliverCtx, &event); err != nil {
		fmt.Printf("Warning: failed to deliver %s to user %d: %v\n", event.Type, event.RecipientID, err)
	}
	return outcomeAck
}

// Close closes the NATS connection
func (c *NATSConsumer) Close() error {
	c.conn.Close()
	return nil
}
