package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/aaronwang/community-auction/api-gateway/internal/store"
	"github.com/aaronwang/community-auction/shared/models"
)

// BiddingEngine validates bids and applies them atomically
type BiddingEngine struct {
	*core
}

// BidResult describes an accepted bid
type BidResult struct {
	ItemID      string `json:"item_id"`
	DisplayName string `json:"display_name"`
	BidID       string `json:"bid_id"`
	Amount      int64  `json:"amount"`
	// MinimumNextBid is what the next bidder has to offer
	MinimumNextBid int64  `json:"minimum_next_bid"`
	PreviousBid    *int64 `json:"previous_bid,omitempty"`
	// OutbidUserID is set when a different user held the item before
	OutbidUserID *int64 `json:"outbid_user_id,omitempty"`
	OwnerID      int64  `json:"owner_id"`
}

// PlaceBid handles the complete bid placement workflow:
// 1. Check the phase, the bidder's ban flag, the item, ownership and the
//    price tier, in that order
// 2. Update the item, append the bid and bump the bidder's counter in one
//    unit of work
// 3. After commit, hand outbid / new-bid events to the notifier
func (b *BiddingEngine) PlaceBid(ctx context.Context, phase models.AuctionPhase, itemID string, req *models.BidRequest) (*BidResult, error) {
	if !phase.BiddingOpen {
		return nil, ErrBiddingClosed
	}
	if req == nil || req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	itemID = NormalizeItemID(itemID)

	var result *BidResult
	err := withRetry(ctx, maxTxAttempts, func() error {
		return b.store.WithinTx(ctx, func(tx store.Tx) error {
			r, err := b.apply(ctx, tx, itemID, req)
			result = r
			return err
		})
	})
	if err != nil {
		if isBidRejection(err) {
			return nil, err
		}
		fmt.Printf("[BID] Failed to process bid on %s by %d: %v\n", itemID, req.UserID, err)
		return nil, fmt.Errorf("%w: %v", ErrBidProcessingFailed, err)
	}

	fmt.Printf("[BID] Accepted %d on %s by %d (next minimum %d)\n",
		result.Amount, result.ItemID, req.UserID, result.MinimumNextBid)

	b.events.dispatch(b.bidEvents(result, req)...)
	return result, nil
}

func (b *BiddingEngine) apply(ctx context.Context, tx store.Tx, itemID string, req *models.BidRequest) (*BidResult, error) {
	// The phase row is share-locked so a concurrent close waits for this bid
	phase, err := tx.GetPhase(ctx, store.LockShare)
	if err != nil {
		return nil, err
	}
	if !phase.BiddingOpen {
		return nil, ErrBiddingClosed
	}

	user, err := tx.GetUser(ctx, req.UserID)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return nil, err
	case user.Banned:
		return nil, ErrBidderBanned
	}

	item, err := tx.GetItem(ctx, itemID, store.LockUpdate)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrItemNotBiddable
	}
	if err != nil {
		return nil, err
	}
	if item.Status != models.ItemStatusApproved {
		return nil, ErrItemNotBiddable
	}
	if item.OwnerID == req.UserID {
		return nil, ErrSelfBid
	}

	current := item.CurrentPrice()
	increment := RequiredIncrement(current)
	if req.Amount < current+increment {
		return nil, &BidTooLowError{
			CurrentPrice: current,
			Increment:    increment,
			Minimum:      current + increment,
		}
	}

	who := models.Identity{ID: req.UserID, Username: req.Username, Name: bidderName(req)}
	now := b.clock()

	if err := tx.UpdateItemBid(ctx, item.ID, item.HighestBid, req.Amount, who.ID, who.Name); err != nil {
		return nil, err
	}

	bidID, err := b.newBidID(now)
	if err != nil {
		return nil, err
	}
	bid := &models.Bid{
		ID:             bidID,
		ItemID:         item.ID,
		BidderID:       who.ID,
		BidderUsername: who.Username,
		BidderName:     who.Name,
		Amount:         req.Amount,
		Timestamp:      now,
	}
	if err := tx.InsertBid(ctx, bid); err != nil {
		return nil, err
	}

	if err := tx.TouchUser(ctx, who, now); err != nil {
		return nil, err
	}
	if err := tx.IncrementCounter(ctx, who.ID, models.CounterBids); err != nil {
		return nil, err
	}

	result := &BidResult{
		ItemID:         item.ID,
		DisplayName:    item.DisplayName,
		BidID:          bid.ID,
		Amount:         req.Amount,
		MinimumNextBid: MinimumBid(req.Amount),
		PreviousBid:    item.HighestBid,
		OwnerID:        item.OwnerID,
	}
	if item.HighestBidderID != nil && *item.HighestBidderID != who.ID {
		prev := *item.HighestBidderID
		result.OutbidUserID = &prev
	}
	return result, nil
}

func (b *BiddingEngine) bidEvents(result *BidResult, req *models.BidRequest) []*models.AuctionEvent {
	now := b.clock()
	name := bidderName(req)

	live := newEvent(models.EventBidPlaced, result.ItemID, now)
	live.DisplayName = result.DisplayName
	live.ActorID = req.UserID
	live.ActorName = name
	live.Amount = result.Amount
	live.MinimumBid = result.MinimumNextBid

	seller := *live
	seller.EventID = newEvent(models.EventBidPlaced, result.ItemID, now).EventID
	seller.RecipientID = result.OwnerID

	events := []*models.AuctionEvent{live, &seller}

	if result.OutbidUserID != nil {
		outbid := newEvent(models.EventOutbid, result.ItemID, now)
		outbid.DisplayName = result.DisplayName
		outbid.RecipientID = *result.OutbidUserID
		outbid.Amount = result.Amount
		outbid.MinimumBid = result.MinimumNextBid
		events = append(events, outbid)
	}
	return events
}

// Quote returns the current price and the minimum next bid for an approved item
func (b *BiddingEngine) Quote(ctx context.Context, itemID string) (*models.Quote, error) {
	item, err := b.store.GetItem(ctx, NormalizeItemID(itemID), store.LockNone)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrItemNotBiddable
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	if item.Status != models.ItemStatusApproved {
		return nil, ErrItemNotBiddable
	}
	return quoteFor(item), nil
}

// History lists an item's bids, highest first or oldest first
func (b *BiddingEngine) History(ctx context.Context, itemID string, order models.BidOrder) ([]*models.Bid, error) {
	itemID = NormalizeItemID(itemID)
	if _, err := b.store.GetItem(ctx, itemID, store.LockNone); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return b.store.ListBids(ctx, itemID, order)
}

func quoteFor(item *models.Item) *models.Quote {
	current := item.CurrentPrice()
	return &models.Quote{
		ItemID:       item.ID,
		CurrentPrice: current,
		Increment:    RequiredIncrement(current),
		MinimumBid:   MinimumBid(current),
		HasBid:       item.HasBid(),
		BidderName:   item.HighestBidderName,
	}
}

func bidderName(req *models.BidRequest) string {
	if req.Name != "" {
		return req.Name
	}
	return req.Username
}

// isBidRejection reports whether err is one of the bid precondition failures
func isBidRejection(err error) bool {
	for _, target := range []error{
		ErrBiddingClosed,
		ErrBidderBanned,
		ErrItemNotBiddable,
		ErrSelfBid,
		ErrBidTooLow,
		ErrInvalidAmount,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
