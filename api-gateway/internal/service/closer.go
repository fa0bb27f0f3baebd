package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/aaronwang/community-auction/api-gateway/internal/store"
	"github.com/aaronwang/community-auction/shared/models"
)

// Closer settles approved items that hold a bid when bidding closes.
// Each item is its own unit of work; a failing item is logged and skipped.
// Approved items without a bid are left untouched.
type Closer struct {
	*core
	workers int
}

// Close marks every approved item with a bidder as sold and returns the
// winner/seller pairs in submission order
func (c *Closer) Close(ctx context.Context) ([]models.ClosedItem, error) {
	approved, err := c.store.ListItems(ctx, models.ItemFilter{
		Statuses: []models.ItemStatus{models.ItemStatusApproved},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list approved items: %v", ErrProcessingFailed, err)
	}

	var candidates []*models.Item
	for _, item := range approved {
		if item.HasBid() {
			candidates = append(candidates, item)
		}
	}
	fmt.Printf("[CLOSER] Settling %d of %d approved items\n", len(candidates), len(approved))

	results := make([]*models.ClosedItem, len(candidates))
	jobs := make(chan int)

	workers := c.workers
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				closed, err := c.settle(ctx, candidates[i].ID)
				if err != nil {
					fmt.Printf("[CLOSER] Failed to settle item %s: %v\n", candidates[i].ID, err)
					continue
				}
				results[i] = closed
			}
		}()
	}

	for i := range candidates {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	out := make([]models.ClosedItem, 0, len(results))
	for _, closed := range results {
		if closed == nil {
			continue
		}
		out = append(out, *closed)
		c.events.dispatch(c.closeEvents(closed)...)
	}
	return out, nil
}

// settle moves one item to sold, re-reading it under lock so the winning
// amount is the last committed bid
func (c *Closer) settle(ctx context.Context, itemID string) (*models.ClosedItem, error) {
	var closed *models.ClosedItem
	err := withRetry(ctx, maxTxAttempts, func() error {
		closed = nil
		return c.store.WithinTx(ctx, func(tx store.Tx) error {
			item, err := tx.GetItem(ctx, itemID, store.LockUpdate)
			if err != nil {
				return err
			}
			if item.Status != models.ItemStatusApproved || !item.HasBid() || item.HighestBid == nil {
				return nil
			}

			if err := tx.TransitionItem(ctx, item.ID, models.ItemStatusApproved, models.ItemStatusSold, nil); err != nil {
				return err
			}

			winner := models.Identity{ID: *item.HighestBidderID, Name: item.HighestBidderName}
			if err := c.bump(ctx, tx, winner, models.CounterWins); err != nil {
				return err
			}

			closed = &models.ClosedItem{
				ItemID:        item.ID,
				DisplayName:   item.DisplayName,
				WinnerID:      winner.ID,
				WinnerName:    winner.Name,
				SellerID:      item.OwnerID,
				SellerName:    item.OwnerName,
				WinningAmount: *item.HighestBid,
			}
			return nil
		})
	})
	return closed, err
}

func (c *Closer) closeEvents(closed *models.ClosedItem) []*models.AuctionEvent {
	now := c.clock()

	won := newEvent(models.EventItemWon, closed.ItemID, now)
	won.DisplayName = closed.DisplayName
	won.RecipientID = closed.WinnerID
	won.ActorID = closed.SellerID
	won.ActorName = closed.SellerName
	won.Amount = closed.WinningAmount

	sold := newEvent(models.EventItemSold, closed.ItemID, now)
	sold.DisplayName = closed.DisplayName
	sold.RecipientID = closed.SellerID
	sold.ActorID = closed.WinnerID
	sold.ActorName = closed.WinnerName
	sold.Amount = closed.WinningAmount

	return []*models.AuctionEvent{won, sold}
}
