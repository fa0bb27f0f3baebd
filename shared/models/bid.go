package models

import "time"

// Bid is an immutable record of an accepted bid on an item
type Bid struct {
	ID             string    `json:"id"`
	ItemID         string    `json:"item_id"`
	BidderID       int64     `json:"bidder_id"`
	BidderUsername string    `json:"bidder_username,omitempty"`
	BidderName     string    `json:"bidder_name"`
	Amount         int64     `json:"amount"`
	Timestamp      time.Time `json:"timestamp"`
}

// BidOrder selects the ordering of a bid history listing
type BidOrder string

// BidOrder constants
const (
	BidOrderAmount BidOrder = "amount" // highest first
	BidOrderTime   BidOrder = "time"   // oldest first
)

// BidRequest represents the incoming bid request from API
type BidRequest struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username,omitempty"`
	Name     string `json:"name"`
	Amount   int64  `json:"amount"`
}

// BidResponse represents the API response after placing a bid
type BidResponse struct {
	Success      bool   `json:"success"`
	Code         string `json:"code,omitempty"`
	Message      string `json:"message"`
	ItemID       string `json:"item_id"`
	CurrentPrice int64  `json:"current_price"`
	MinimumBid   int64  `json:"minimum_bid"`
	YourBid      int64  `json:"your_bid"`
	IsHighest    bool   `json:"is_highest"`
}

// Quote is the bidding state shown before a bid is placed
type Quote struct {
	ItemID       string `json:"item_id"`
	CurrentPrice int64  `json:"current_price"`
	Increment    int64  `json:"increment"`
	MinimumBid   int64  `json:"minimum_bid"`
	HasBid       bool   `json:"has_bid"`
	BidderName   string `json:"bidder_name,omitempty"`
}
