package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aaronwang/community-auction/api-gateway/internal/store"
	"github.com/aaronwang/community-auction/shared/models"
)

func TestCloseBiddingRoundTrip(t *testing.T) {
	a, s, rec := setupAuction(t)
	ctx := context.Background()
	itemID := approvedItem(t, a, 10000)

	quote, _ := a.Bidding.Quote(ctx, itemID)
	if quote.MinimumBid != 11000 {
		t.Fatalf("first minimum = %d, want 11000", quote.MinimumBid)
	}
	if _, err := a.PlaceBid(ctx, itemID, bid(7, 11000)); err != nil {
		t.Fatalf("bid 11000: %v", err)
	}
	result, err := a.PlaceBid(ctx, itemID, &models.BidRequest{UserID: 8, Name: "Brock", Amount: 12000})
	if err != nil {
		t.Fatalf("bid 12000: %v", err)
	}
	if result.MinimumNextBid != 13000 {
		t.Errorf("next minimum = %d, want 13000", result.MinimumNextBid)
	}

	closed, err := a.Phases.CloseBidding(ctx)
	if err != nil {
		t.Fatalf("CloseBidding: %v", err)
	}
	if len(closed) != 1 {
		t.Fatalf("closed = %d items, want 1", len(closed))
	}
	want := models.ClosedItem{
		ItemID:        itemID,
		DisplayName:   "Charizard",
		WinnerID:      8,
		WinnerName:    "Brock",
		SellerID:      sellerID,
		SellerName:    "Ash",
		WinningAmount: 12000,
	}
	if closed[0] != want {
		t.Errorf("closed = %+v, want %+v", closed[0], want)
	}

	item, _ := s.GetItem(ctx, itemID, store.LockNone)
	if item.Status != models.ItemStatusSold {
		t.Errorf("status = %s, want sold", item.Status)
	}
	winner, _ := s.GetUser(ctx, 8)
	if winner.Wins != 1 {
		t.Errorf("winner wins = %d, want 1", winner.Wins)
	}

	open, _ := a.Phases.IsBiddingOpen(ctx)
	if open {
		t.Error("bidding still open after close")
	}
	if _, err := a.PlaceBid(ctx, itemID, bid(9, 20000)); !errors.Is(err, ErrBiddingClosed) {
		t.Errorf("bid after close error = %v, want ErrBiddingClosed", err)
	}

	again, err := a.Phases.CloseBidding(ctx)
	if err != nil {
		t.Fatalf("second CloseBidding: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("second close settled %d items, want 0", len(again))
	}

	a.Wait()
	if got := rec.ofType(models.EventItemWon); len(got) != 1 || got[0].RecipientID != 8 || got[0].Amount != 12000 {
		t.Errorf("item_won events = %+v, want one to user 8 for 12000", got)
	}
	if got := rec.ofType(models.EventItemSold); len(got) != 1 || got[0].RecipientID != sellerID {
		t.Errorf("item_sold events = %+v, want one to the seller", got)
	}
}

func TestCloseBiddingLeavesUnbidItemsApproved(t *testing.T) {
	a, s, _ := setupAuction(t)
	ctx := context.Background()
	itemID := approvedItem(t, a, 10000)

	for i := 0; i < 3; i++ {
		closed, err := a.Phases.CloseBidding(ctx)
		if err != nil {
			t.Fatalf("CloseBidding #%d: %v", i, err)
		}
		if len(closed) != 0 {
			t.Errorf("CloseBidding #%d settled %d items, want 0", i, len(closed))
		}
		if _, err := a.Phases.OpenSubmissionsAndBidding(ctx); err != nil {
			t.Fatalf("reopen: %v", err)
		}
	}

	item, _ := s.GetItem(ctx, itemID, store.LockNone)
	if item.Status != models.ItemStatusApproved {
		t.Errorf("status = %s, want approved", item.Status)
	}
}

func TestCloseBiddingManyItemsInSubmissionOrder(t *testing.T) {
	ids := []string{"A0001", "B0002", "C0003", "D0004", "E0005", "F0006", "G0007"}
	a, _, _ := setupAuction(t, WithIDGenerator(sequenceIDs(ids...)), WithCloserWorkers(3))
	ctx := context.Background()
	openAuction(t, a)

	for i := range ids {
		item, err := a.Submit(ctx, draft(1000))
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		a.Items.Decide(ctx, item.ID, DecisionApprove, admin)
		// Leave the last item without bids
		if i < len(ids)-1 {
			if _, err := a.PlaceBid(ctx, item.ID, bid(int64(500+i), 2000)); err != nil {
				t.Fatalf("bid on %s: %v", item.ID, err)
			}
		}
	}

	closed, err := a.Phases.CloseBidding(ctx)
	if err != nil {
		t.Fatalf("CloseBidding: %v", err)
	}
	if len(closed) != len(ids)-1 {
		t.Fatalf("closed %d items, want %d", len(closed), len(ids)-1)
	}
	for i, c := range closed {
		if c.ItemID != ids[i] || c.WinnerID != int64(500+i) {
			t.Errorf("closed[%d] = %s won by %d, want %s won by %d", i, c.ItemID, c.WinnerID, ids[i], 500+i)
		}
	}
}

// sellFaultStore fails the sold transition of one item inside units of work
type sellFaultStore struct {
	store.Store
	itemID string
}

func (f *sellFaultStore) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return f.Store.WithinTx(ctx, func(tx store.Tx) error {
		return fn(&sellFaultTx{Tx: tx, itemID: f.itemID})
	})
}

type sellFaultTx struct {
	store.Tx
	itemID string
}

func (f *sellFaultTx) TransitionItem(ctx context.Context, id string, from, to models.ItemStatus, approvalTime *time.Time) error {
	if id == f.itemID && to == models.ItemStatusSold {
		return errDiskFull
	}
	return f.Tx.TransitionItem(ctx, id, from, to, approvalTime)
}

func TestCloseBiddingSkipsFailingItem(t *testing.T) {
	s := openStore(t)
	ids := []string{"A0001", "B0002", "C0003"}
	a := NewAuction(&sellFaultStore{Store: s, itemID: "B0002"}, &recorder{}, nil,
		WithIDGenerator(sequenceIDs(ids...)), WithCloserWorkers(2))
	t.Cleanup(a.Wait)
	ctx := context.Background()
	openAuction(t, a)

	for i := range ids {
		item, err := a.Submit(ctx, draft(1000))
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		if _, err := a.Items.Decide(ctx, item.ID, DecisionApprove, admin); err != nil {
			t.Fatalf("approve %s: %v", item.ID, err)
		}
		if _, err := a.PlaceBid(ctx, item.ID, bid(int64(500+i), 2000)); err != nil {
			t.Fatalf("bid on %s: %v", item.ID, err)
		}
	}

	closed, err := a.Phases.CloseBidding(ctx)
	if err != nil {
		t.Fatalf("CloseBidding error = %v, want nil", err)
	}
	if len(closed) != 2 || closed[0].ItemID != "A0001" || closed[1].ItemID != "C0003" {
		t.Fatalf("closed = %+v, want A0001 then C0003", closed)
	}
	if closed[0].WinnerID != 500 || closed[1].WinnerID != 502 {
		t.Errorf("winners = %d, %d, want 500, 502", closed[0].WinnerID, closed[1].WinnerID)
	}

	failed, _ := s.GetItem(ctx, "B0002", store.LockNone)
	if failed.Status != models.ItemStatusApproved {
		t.Errorf("B0002 status = %s, want approved", failed.Status)
	}
	if winner, err := s.GetUser(ctx, 501); err != nil || winner.Wins != 0 {
		t.Errorf("B0002 bidder wins = %+v (%v), want 0", winner, err)
	}
	for _, id := range []string{"A0001", "C0003"} {
		item, _ := s.GetItem(ctx, id, store.LockNone)
		if item.Status != models.ItemStatusSold {
			t.Errorf("%s status = %s, want sold", id, item.Status)
		}
	}
}
