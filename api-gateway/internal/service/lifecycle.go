package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aaronwang/community-auction/api-gateway/internal/store"
	"github.com/aaronwang/community-auction/shared/models"
)

// Decision is an admin verdict on a pending item
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// Lifecycle governs item state transitions:
// pending -> approved | rejected | cancelled, approved -> sold | ended.
type Lifecycle struct {
	*core
	newID         IDGenerator
	confirmations ConfirmationStore
	cleanupTTL    time.Duration
}

// Listing is what the transport publishes when an item is approved
type Listing struct {
	ItemID        string          `json:"item_id"`
	Kind          models.ItemKind `json:"kind"`
	DisplayName   string          `json:"display_name"`
	OwnerName     string          `json:"owner_name"`
	OwnerUsername string          `json:"owner_username,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	StartingPrice int64           `json:"starting_price"`
	Increment     int64           `json:"increment"`
	MinimumBid    int64           `json:"minimum_bid"`
}

// DecisionResult is returned by Decide
type DecisionResult struct {
	Item    *models.Item `json:"item"`
	Listing *Listing     `json:"listing,omitempty"` // set when approved
}

// Submit creates a pending item from a finished draft
func (l *Lifecycle) Submit(ctx context.Context, phase models.AuctionPhase, draft models.ItemDraft) (*models.Item, error) {
	if !phase.SubmissionsOpen {
		return nil, ErrSubmissionsClosed
	}
	if err := validateDraft(draft); err != nil {
		return nil, err
	}

	var item *models.Item
	err := withRetry(ctx, maxTxAttempts, func() error {
		return l.store.WithinTx(ctx, func(tx store.Tx) error {
			current, err := tx.GetPhase(ctx, store.LockShare)
			if err != nil {
				return err
			}
			if !current.SubmissionsOpen {
				return ErrSubmissionsClosed
			}

			id, err := l.allocateID(ctx, tx)
			if err != nil {
				return err
			}

			now := l.clock()
			item = &models.Item{
				ID:             id,
				OwnerID:        draft.OwnerID,
				OwnerUsername:  draft.OwnerUsername,
				OwnerName:      draft.OwnerName,
				Kind:           draft.Kind,
				DisplayName:    draft.DisplayName,
				Payload:        draft.Payload,
				BasePrice:      draft.BasePrice,
				Status:         models.ItemStatusPending,
				SubmissionTime: now,
			}
			if err := tx.InsertItem(ctx, item); err != nil {
				if errors.Is(err, store.ErrDuplicateID) {
					// Lost a race for the id; retry the unit with a fresh one
					return fmt.Errorf("%w: %v", store.ErrConflict, err)
				}
				return err
			}

			owner := models.Identity{ID: draft.OwnerID, Username: draft.OwnerUsername, Name: draft.OwnerName}
			if err := tx.TouchUser(ctx, owner, now); err != nil {
				return err
			}
			return tx.IncrementCounter(ctx, owner.ID, models.CounterSubmissions)
		})
	})
	if err != nil {
		if errors.Is(err, ErrSubmissionsClosed) || errors.Is(err, ErrIDSpaceExhausted) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrProcessingFailed, err)
	}

	fmt.Printf("[ITEM] Submitted %s (%s) by %d\n", item.ID, item.DisplayName, item.OwnerID)

	event := newEvent(models.EventItemSubmitted, item.ID, item.SubmissionTime)
	event.DisplayName = item.DisplayName
	event.ActorID = item.OwnerID
	event.ActorName = item.OwnerName
	event.Amount = item.BasePrice
	l.events.dispatch(event)

	return item, nil
}

// allocateID draws ids until one is free among live items
func (l *Lifecycle) allocateID(ctx context.Context, tx store.Tx) (string, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id := l.newID()
		taken, err := tx.ItemExists(ctx, id)
		if err != nil {
			return "", err
		}
		if !taken {
			return id, nil
		}
	}
	return "", ErrIDSpaceExhausted
}

func validateDraft(draft models.ItemDraft) error {
	switch {
	case draft.OwnerID == 0:
		return fmt.Errorf("%w: owner is required", ErrInvalidDraft)
	case !draft.Kind.Valid():
		return fmt.Errorf("%w: unknown item kind %q", ErrInvalidDraft, draft.Kind)
	case strings.TrimSpace(draft.DisplayName) == "":
		return fmt.Errorf("%w: display name is required", ErrInvalidDraft)
	case draft.BasePrice <= 0:
		return fmt.Errorf("%w: base price must be positive", ErrInvalidDraft)
	case len(draft.Payload) > 0 && !json.Valid(draft.Payload):
		return fmt.Errorf("%w: payload is not valid JSON", ErrInvalidDraft)
	}
	return nil
}

// Decide approves or rejects a pending item
func (l *Lifecycle) Decide(ctx context.Context, itemID string, decision Decision, admin models.Identity) (*DecisionResult, error) {
	var target models.ItemStatus
	var counter models.UserCounter
	switch decision {
	case DecisionApprove:
		target, counter = models.ItemStatusApproved, models.CounterApprovals
	case DecisionReject:
		target, counter = models.ItemStatusRejected, models.CounterRejections
	default:
		return nil, fmt.Errorf("%w: unknown decision %q", ErrInvalidTransition, decision)
	}
	itemID = NormalizeItemID(itemID)

	var item *models.Item
	err := withRetry(ctx, maxTxAttempts, func() error {
		return l.store.WithinTx(ctx, func(tx store.Tx) error {
			current, err := tx.GetItem(ctx, itemID, store.LockUpdate)
			if errors.Is(err, store.ErrNotFound) {
				return ErrItemNotFound
			}
			if err != nil {
				return err
			}
			if current.Status != models.ItemStatusPending {
				return &AlreadyDecidedError{ItemID: itemID, Status: string(current.Status)}
			}

			var approvalTime *time.Time
			if target == models.ItemStatusApproved {
				now := l.clock()
				approvalTime = &now
			}
			if err := tx.TransitionItem(ctx, itemID, models.ItemStatusPending, target, approvalTime); err != nil {
				return err
			}

			owner := models.Identity{ID: current.OwnerID, Username: current.OwnerUsername, Name: current.OwnerName}
			if err := l.bump(ctx, tx, owner, counter); err != nil {
				return err
			}

			current.Status = target
			current.ApprovalTime = approvalTime
			item = current
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, ErrItemNotFound) || errors.Is(err, ErrAlreadyDecided) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrProcessingFailed, err)
	}

	fmt.Printf("[ITEM] %s %s by admin %d\n", item.ID, item.Status, admin.ID)

	result := &DecisionResult{Item: item}
	now := l.clock()

	notice := newEvent(models.EventItemRejected, item.ID, now)
	notice.DisplayName = item.DisplayName
	notice.RecipientID = item.OwnerID
	notice.ActorID = admin.ID
	notice.ActorName = admin.Name

	if target == models.ItemStatusApproved {
		result.Listing = listingFor(item)
		notice.Type = models.EventItemApproved

		public := newEvent(models.EventItemApproved, item.ID, now)
		public.DisplayName = item.DisplayName
		public.Amount = item.BasePrice
		public.MinimumBid = result.Listing.MinimumBid
		l.events.dispatch(notice, public)
	} else {
		l.events.dispatch(notice)
	}
	return result, nil
}

func listingFor(item *models.Item) *Listing {
	return &Listing{
		ItemID:        item.ID,
		Kind:          item.Kind,
		DisplayName:   item.DisplayName,
		OwnerName:     item.OwnerName,
		OwnerUsername: item.OwnerUsername,
		Payload:       item.Payload,
		StartingPrice: item.BasePrice,
		Increment:     RequiredIncrement(item.BasePrice),
		MinimumBid:    MinimumBid(item.BasePrice),
	}
}

// Withdraw lets the owner cancel an item that is still pending
func (l *Lifecycle) Withdraw(ctx context.Context, itemID string, ownerID int64) (*models.Item, error) {
	return l.transition(ctx, itemID, func(item *models.Item) error {
		if item.OwnerID != ownerID {
			return ErrNotOwner
		}
		if item.Status != models.ItemStatusPending {
			return fmt.Errorf("%w: cannot withdraw a %s item", ErrInvalidTransition, item.Status)
		}
		return nil
	}, models.ItemStatusCancelled)
}

// End closes an approved item that never received a bid
func (l *Lifecycle) End(ctx context.Context, itemID string) (*models.Item, error) {
	return l.transition(ctx, itemID, func(item *models.Item) error {
		if item.Status != models.ItemStatusApproved {
			return fmt.Errorf("%w: cannot end a %s item", ErrInvalidTransition, item.Status)
		}
		if item.HasBid() {
			return fmt.Errorf("%w: item has bids", ErrInvalidTransition)
		}
		return nil
	}, models.ItemStatusEnded)
}

func (l *Lifecycle) transition(ctx context.Context, itemID string, check func(*models.Item) error, to models.ItemStatus) (*models.Item, error) {
	itemID = NormalizeItemID(itemID)

	var item *models.Item
	err := withRetry(ctx, maxTxAttempts, func() error {
		return l.store.WithinTx(ctx, func(tx store.Tx) error {
			current, err := tx.GetItem(ctx, itemID, store.LockUpdate)
			if errors.Is(err, store.ErrNotFound) {
				return ErrItemNotFound
			}
			if err != nil {
				return err
			}
			if err := check(current); err != nil {
				return err
			}
			if err := tx.TransitionItem(ctx, itemID, current.Status, to, nil); err != nil {
				return err
			}
			current.Status = to
			item = current
			return nil
		})
	})
	if err != nil {
		for _, target := range []error{ErrItemNotFound, ErrNotOwner, ErrInvalidTransition} {
			if errors.Is(err, target) {
				return nil, err
			}
		}
		return nil, fmt.Errorf("%w: %v", ErrProcessingFailed, err)
	}

	fmt.Printf("[ITEM] %s -> %s\n", item.ID, to)
	return item, nil
}

// SetMessageRefs records the transport's message ids for later edits
func (l *Lifecycle) SetMessageRefs(ctx context.Context, itemID string, refs models.MessageRefs) error {
	err := l.store.SetMessageRefs(ctx, NormalizeItemID(itemID), refs)
	if errors.Is(err, store.ErrNotFound) {
		return ErrItemNotFound
	}
	return err
}

// Get loads one item
func (l *Lifecycle) Get(ctx context.Context, itemID string) (*models.Item, error) {
	item, err := l.store.GetItem(ctx, NormalizeItemID(itemID), store.LockNone)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrItemNotFound
	}
	return item, err
}

// List returns items in the given statuses (all when empty) by submission time
func (l *Lifecycle) List(ctx context.Context, statuses ...models.ItemStatus) ([]*models.Item, error) {
	return l.store.ListItems(ctx, models.ItemFilter{Statuses: statuses})
}

// Cleanup deletes every sold, ended, rejected and cancelled item together
// with its bid history in one transaction
func (l *Lifecycle) Cleanup(ctx context.Context) (store.CleanupResult, error) {
	var result store.CleanupResult
	err := l.store.WithinTx(ctx, func(tx store.Tx) error {
		r, err := tx.DeleteTerminal(ctx)
		result = r
		return err
	})
	if err != nil {
		return store.CleanupResult{}, fmt.Errorf("%w: %v", ErrProcessingFailed, err)
	}

	fmt.Printf("[CLEANUP] Removed %d items and %d bids\n", result.Items, result.Bids)
	if len(result.ItemIDs) > 0 {
		// Freed ids may be handed out again, so their live quotes must go
		event := newEvent(models.EventItemsCleaned, "", l.clock())
		event.ItemIDs = result.ItemIDs
		l.events.dispatch(event)
	}
	return result, nil
}

// StageCleanup issues a confirmation token for a later ConfirmCleanup
func (l *Lifecycle) StageCleanup(ctx context.Context) (string, time.Time, error) {
	token := uuid.New().String()
	if err := l.confirmations.Put(ctx, token, l.cleanupTTL); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to stage cleanup: %w", err)
	}
	return token, l.clock().Add(l.cleanupTTL), nil
}

// ConfirmCleanup runs the cleanup staged under token
func (l *Lifecycle) ConfirmCleanup(ctx context.Context, token string) (store.CleanupResult, error) {
	ok, err := l.confirmations.Take(ctx, token)
	if err != nil {
		return store.CleanupResult{}, fmt.Errorf("failed to read cleanup confirmation: %w", err)
	}
	if !ok {
		return store.CleanupResult{}, ErrCleanupNotStaged
	}
	return l.Cleanup(ctx)
}

// CancelCleanup discards a staged cleanup
func (l *Lifecycle) CancelCleanup(ctx context.Context, token string) error {
	ok, err := l.confirmations.Take(ctx, token)
	if err != nil {
		return fmt.Errorf("failed to read cleanup confirmation: %w", err)
	}
	if !ok {
		return ErrCleanupNotStaged
	}
	return nil
}
