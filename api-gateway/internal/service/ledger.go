package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/aaronwang/community-auction/api-gateway/internal/store"
	"github.com/aaronwang/community-auction/shared/models"
)

// Ledger exposes per-user stats, the admin-owned ban flag and per-user views
type Ledger struct {
	*core
}

// Get returns a user's counters
func (l *Ledger) Get(ctx context.Context, userID int64) (*models.User, error) {
	user, err := l.store.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

// Ban blocks a user from bidding
func (l *Ledger) Ban(ctx context.Context, userID int64, reason string) error {
	if reason == "" {
		reason = "No reason provided"
	}
	if err := l.store.SetBan(ctx, userID, true, reason); err != nil {
		return fmt.Errorf("%w: %v", ErrProcessingFailed, err)
	}
	fmt.Printf("[LEDGER] Banned user %d: %s\n", userID, reason)
	return nil
}

// Unban clears the ban flag
func (l *Ledger) Unban(ctx context.Context, userID int64) error {
	if err := l.store.SetBan(ctx, userID, false, ""); err != nil {
		return fmt.Errorf("%w: %v", ErrProcessingFailed, err)
	}
	fmt.Printf("[LEDGER] Unbanned user %d\n", userID)
	return nil
}

// Items lists the user's pending and approved items
func (l *Ledger) Items(ctx context.Context, userID int64) ([]*models.Item, error) {
	return l.store.ListItems(ctx, models.ItemFilter{
		Statuses: []models.ItemStatus{models.ItemStatusPending, models.ItemStatusApproved},
		OwnerID:  &userID,
	})
}

// Winning lists approved items on which the user holds the highest bid
func (l *Ledger) Winning(ctx context.Context, userID int64) ([]*models.Item, error) {
	return l.store.ListItems(ctx, models.ItemFilter{
		Statuses:        []models.ItemStatus{models.ItemStatusApproved},
		HighestBidderID: &userID,
	})
}
