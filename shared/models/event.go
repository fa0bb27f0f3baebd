package models

import "time"

// EventType names an auction event
type EventType string

// EventType constants
const (
	EventItemSubmitted EventType = "item_submitted"
	EventItemApproved  EventType = "item_approved"
	EventItemRejected  EventType = "item_rejected"
	EventBidPlaced     EventType = "bid_placed"
	EventOutbid        EventType = "outbid"
	EventItemWon       EventType = "item_won"
	EventItemSold      EventType = "item_sold"
	EventPhaseChanged  EventType = "phase_changed"
	EventItemsCleaned  EventType = "items_cleaned"
)

// AuctionEvent is published after a committed state change.
// It is sent to:
// 1. Redis Pub/Sub (for the live websocket feed)
// 2. NATS JetStream (for archival and delivery to users)
type AuctionEvent struct {
	EventID     string        `json:"event_id"`
	Type        EventType     `json:"type"`
	ItemID      string        `json:"item_id,omitempty"`
	DisplayName string        `json:"display_name,omitempty"`
	RecipientID int64         `json:"recipient_id,omitempty"` // 0 = public
	ActorID     int64         `json:"actor_id,omitempty"`
	ActorName   string        `json:"actor_name,omitempty"`
	Amount      int64         `json:"amount,omitempty"`
	MinimumBid  int64         `json:"minimum_bid,omitempty"`
	Phase       *AuctionPhase `json:"phase,omitempty"`
	ItemIDs     []string      `json:"item_ids,omitempty"` // items_cleaned only
	Timestamp   time.Time     `json:"timestamp"`
}

// Public reports whether the event is meant for everyone watching the item
func (e *AuctionEvent) Public() bool {
	return e.RecipientID == 0
}

// JetStream stream carrying every auction event
const (
	EventStream        = "AUCTION_EVENTS"
	EventSubjectPrefix = "auction.events."
	EventSubjectAll    = EventSubjectPrefix + ">"
)

// EventSubject is the JetStream subject for an event type
func EventSubject(t EventType) string {
	return EventSubjectPrefix + string(t)
}

// Redis Pub/Sub channels for the live feed
const (
	EventChannelPrefix  = "auction_events:"
	EventChannelPattern = EventChannelPrefix + "*"
	PhaseChannel        = EventChannelPrefix + "phase"
)

// EventChannel is the Pub/Sub channel for an item's live events
func EventChannel(itemID string) string {
	return EventChannelPrefix + itemID
}

// QuoteKey is the Redis hash mirroring an item's live price
func QuoteKey(itemID string) string {
	return "item:" + itemID + ":quote"
}
