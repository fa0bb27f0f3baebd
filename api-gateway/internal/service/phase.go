package service

import (
	"context"
	"fmt"

	"github.com/aaronwang/community-auction/api-gateway/internal/store"
	"github.com/aaronwang/community-auction/shared/models"
)

// PhaseController flips the two auction-wide gates. Every setter is
// idempotent: setting a flag that is already set succeeds without change.
type PhaseController struct {
	*core
	closer *Closer
}

// Current reads the phase record
func (p *PhaseController) Current(ctx context.Context) (models.AuctionPhase, error) {
	phase, err := p.store.GetPhase(ctx, store.LockNone)
	if err != nil {
		return models.AuctionPhase{}, fmt.Errorf("failed to read auction phase: %w", err)
	}
	return phase, nil
}

// IsSubmissionOpen reports whether new items may be submitted
func (p *PhaseController) IsSubmissionOpen(ctx context.Context) (bool, error) {
	phase, err := p.Current(ctx)
	return phase.SubmissionsOpen, err
}

// IsBiddingOpen reports whether bids are accepted
func (p *PhaseController) IsBiddingOpen(ctx context.Context) (bool, error) {
	phase, err := p.Current(ctx)
	return phase.BiddingOpen, err
}

// OpenSubmissionsAndBidding starts the auction
func (p *PhaseController) OpenSubmissionsAndBidding(ctx context.Context) (models.AuctionPhase, error) {
	open := true
	return p.set(ctx, &open, &open)
}

// CloseSubmissions stops new submissions; bidding is left as is
func (p *PhaseController) CloseSubmissions(ctx context.Context) (models.AuctionPhase, error) {
	closed := false
	return p.set(ctx, &closed, nil)
}

// CloseBidding stops bidding and settles every approved item holding a bid.
// The returned notices are in item submission order.
func (p *PhaseController) CloseBidding(ctx context.Context) ([]models.ClosedItem, error) {
	closed := false
	if _, err := p.set(ctx, nil, &closed); err != nil {
		return nil, err
	}
	return p.closer.Close(ctx)
}

func (p *PhaseController) set(ctx context.Context, submissionsOpen, biddingOpen *bool) (models.AuctionPhase, error) {
	var before, after models.AuctionPhase
	err := p.store.WithinTx(ctx, func(tx store.Tx) error {
		// The exclusive lock waits for in-flight bids and submissions
		current, err := tx.GetPhase(ctx, store.LockUpdate)
		if err != nil {
			return err
		}
		before = current

		updated, err := tx.UpdatePhase(ctx, submissionsOpen, biddingOpen, p.clock())
		after = updated
		return err
	})
	if err != nil {
		return models.AuctionPhase{}, fmt.Errorf("%w: %v", ErrProcessingFailed, err)
	}

	if before.SubmissionsOpen != after.SubmissionsOpen || before.BiddingOpen != after.BiddingOpen {
		fmt.Printf("[PHASE] submissions_open=%t bidding_open=%t\n", after.SubmissionsOpen, after.BiddingOpen)

		event := newEvent(models.EventPhaseChanged, "", after.UpdatedAt)
		phase := after
		event.Phase = &phase
		p.events.dispatch(event)
	}
	return after, nil
}
