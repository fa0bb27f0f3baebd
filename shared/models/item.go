package models

import (
	"encoding/json"
	"time"
)

// ItemKind is the kind of collectible being auctioned
type ItemKind string

// ItemKind constants
const (
	ItemKindPokemon ItemKind = "pokemon"
	ItemKindTM      ItemKind = "tm"
)

// Valid reports whether k is a known item kind
func (k ItemKind) Valid() bool {
	return k == ItemKindPokemon || k == ItemKindTM
}

// ItemStatus is the lifecycle state of an item
type ItemStatus string

// ItemStatus constants
const (
	ItemStatusPending   ItemStatus = "pending"
	ItemStatusApproved  ItemStatus = "approved"
	ItemStatusRejected  ItemStatus = "rejected"
	ItemStatusSold      ItemStatus = "sold"
	ItemStatusEnded     ItemStatus = "ended"
	ItemStatusCancelled ItemStatus = "cancelled"
)

// TerminalStatuses lists every status removed by cleanup
var TerminalStatuses = []ItemStatus{
	ItemStatusSold,
	ItemStatusEnded,
	ItemStatusRejected,
	ItemStatusCancelled,
}

// MessageRefs holds the transport's message ids for later edits
type MessageRefs struct {
	AdminMessageID   *int64 `json:"admin_message_id,omitempty"`
	ChannelMessageID *int64 `json:"channel_message_id,omitempty"`
	BiddingMessageID *int64 `json:"bidding_message_id,omitempty"`
}

// Item represents a submitted collectible and its auction state
type Item struct {
	ID                string          `json:"id"`
	OwnerID           int64           `json:"owner_id"`
	OwnerUsername     string          `json:"owner_username,omitempty"`
	OwnerName         string          `json:"owner_name"`
	Kind              ItemKind        `json:"kind"`
	DisplayName       string          `json:"display_name"`
	Payload           json.RawMessage `json:"payload,omitempty"` // opaque kind-specific details
	BasePrice         int64           `json:"base_price"`
	Status            ItemStatus      `json:"status"`
	SubmissionTime    time.Time       `json:"submission_time"`
	ApprovalTime      *time.Time      `json:"approval_time,omitempty"`
	HighestBid        *int64          `json:"highest_bid,omitempty"`
	HighestBidderID   *int64          `json:"highest_bidder_id,omitempty"`
	HighestBidderName string          `json:"highest_bidder_name,omitempty"`
	Messages          MessageRefs     `json:"messages"`
}

// CurrentPrice is the highest bid when one exists, otherwise the base price
func (i *Item) CurrentPrice() int64 {
	if i.HighestBid != nil {
		return *i.HighestBid
	}
	return i.BasePrice
}

// HasBid reports whether anyone has bid on the item
func (i *Item) HasBid() bool {
	return i.HighestBidderID != nil
}

// ItemDraft is a finished submission handed over by the transport's wizard
type ItemDraft struct {
	OwnerID       int64           `json:"owner_id"`
	OwnerUsername string          `json:"owner_username,omitempty"`
	OwnerName     string          `json:"owner_name"`
	Kind          ItemKind        `json:"kind"`
	DisplayName   string          `json:"display_name"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	BasePrice     int64           `json:"base_price"`
}

// ItemFilter narrows item listings
type ItemFilter struct {
	Statuses        []ItemStatus
	OwnerID         *int64
	HighestBidderID *int64
}
