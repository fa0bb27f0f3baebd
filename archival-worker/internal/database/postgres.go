package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/aaronwang/community-auction/shared/models"
)

// PostgresClient wraps the PostgreSQL database connection
type PostgresClient struct {
	db *sql.DB
}

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(connStr string) (*PostgresClient, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresClient{db: db}, nil
}

// InitSchema creates the event archive table
func (c *PostgresClient) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS auction_events (
		event_id VARCHAR(64) PRIMARY KEY,
		event_type VARCHAR(32) NOT NULL,
		item_id VARCHAR(16),
		recipient_id BIGINT,
		actor_id BIGINT,
		amount BIGINT,
		payload JSONB NOT NULL,
		occurred_at TIMESTAMPTZ NOT NULL,
		archived_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_auction_events_item_id ON auction_events(item_id);
	CREATE INDEX IF NOT EXISTS idx_auction_events_recipient_id ON auction_events(recipient_id);
	CREATE INDEX IF NOT EXISTS idx_auction_events_occurred_at ON auction_events(occurred_at);
	`

	_, err := c.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// InsertEvent archives an event. Redelivered events are ignored; inserted
// reports whether this call stored the row.
func (c *PostgresClient) InsertEvent(ctx context.Context, event *models.AuctionEvent) (bool, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return false, fmt.Errorf("failed to marshal event: %w", err)
	}

	query := `
		INSERT INTO auction_events (event_id, event_type, item_id, recipient_id, actor_id, amount, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event_id) DO NOTHING
	`

	result, err := c.db.ExecContext(
		ctx,
		query,
		event.EventID,
		string(event.Type),
		nullString(event.ItemID),
		nullInt(event.RecipientID),
		nullInt(event.ActorID),
		nullInt(event.Amount),
		payload,
		event.Timestamp,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert event: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// Close closes the database connection
func (c *PostgresClient) Close() error {
	return c.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: n != 0}
}
