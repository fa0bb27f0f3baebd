package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/aaronwang/community-auction/shared/models"
)

// Publisher sends auction events to NATS JetStream for archival and delivery
type Publisher struct {
	js jetstream.JetStream
}

// NewPublisher creates the JetStream context and ensures the stream exists
func NewPublisher(natsConn *nats.Conn) (*Publisher, error) {
	js, err := jetstream.New(natsConn)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        models.EventStream,
		Description: "Auction events for archival and user delivery",
		Subjects:    []string{models.EventSubjectAll},
		Storage:     jetstream.FileStorage,     // Persistent storage
		Retention:   jetstream.WorkQueuePolicy, // Each message consumed once
		MaxAge:      7 * 24 * time.Hour,        // Undelivered events expire after a week
		Duplicates:  2 * time.Minute,           // Dedupe window for Nats-Msg-Id
		Replicas:    1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create/update stream: %w", err)
	}
	fmt.Printf("[JETSTREAM] Stream '%s' ready\n", models.EventStream)

	return &Publisher{js: js}, nil
}

// Notify publishes the event and waits for the server acknowledgement
func (p *Publisher) Notify(ctx context.Context, event *models.AuctionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	subject := models.EventSubject(event.Type)
	ack, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(event.EventID))
	if err != nil {
		return fmt.Errorf("failed to publish to JetStream: %w", err)
	}

	fmt.Printf("[JETSTREAM] Published %s to %s, seq=%d\n", event.EventID, subject, ack.Sequence)
	return nil
}
