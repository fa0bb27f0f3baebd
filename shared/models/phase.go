package models

import "time"

// AuctionPhase is the singleton record gating submissions and bidding
type AuctionPhase struct {
	SubmissionsOpen bool      `json:"submissions_open"`
	BiddingOpen     bool      `json:"bidding_open"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ClosedItem pairs the winner and seller of an item sold at bidding close
type ClosedItem struct {
	ItemID        string `json:"item_id"`
	DisplayName   string `json:"display_name"`
	WinnerID      int64  `json:"winner_id"`
	WinnerName    string `json:"winner_name"`
	SellerID      int64  `json:"seller_id"`
	SellerName    string `json:"seller_name"`
	WinningAmount int64  `json:"winning_amount"`
}
