package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/aaronwang/community-auction/api-gateway/internal/store"
	"github.com/aaronwang/community-auction/shared/models"
)

// maxTxAttempts bounds transparent retries of a unit of work that lost a
// concurrent update
const maxTxAttempts = 3

// core carries the dependencies shared by every engine component
type core struct {
	store  store.Store
	events *dispatcher
	now    func() time.Time
}

func (c *core) clock() time.Time {
	return c.now().UTC()
}

// newBidID returns a time-ordered id for a bid row
func (c *core) newBidID(at time.Time) (string, error) {
	id, err := ulid.New(ulid.Timestamp(at), ulid.DefaultEntropy())
	if err != nil {
		return "", fmt.Errorf("failed to generate bid id: %w", err)
	}
	return id.String(), nil
}

// bump increments a counter, creating the user row first if it is missing
func (c *core) bump(ctx context.Context, tx store.Tx, who models.Identity, counter models.UserCounter) error {
	err := tx.IncrementCounter(ctx, who.ID, counter)
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if err := tx.TouchUser(ctx, who, c.clock()); err != nil {
		return err
	}
	return tx.IncrementCounter(ctx, who.ID, counter)
}

// withRetry reruns fn while it reports a store conflict
func withRetry(ctx context.Context, attempts int, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); !errors.Is(err, store.ErrConflict) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		fmt.Printf("[RETRY] Conflict on attempt %d/%d: %v\n", i+1, attempts, err)
	}
	return err
}

// Option configures an Auction
type Option func(*options)

type options struct {
	newID         IDGenerator
	now           func() time.Time
	closerWorkers int
	notifyTimeout time.Duration
	cleanupTTL    time.Duration
}

// WithIDGenerator replaces the random item id generator
func WithIDGenerator(gen IDGenerator) Option {
	return func(o *options) { o.newID = gen }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithCloserWorkers sets how many items the closer settles in parallel
func WithCloserWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.closerWorkers = n
		}
	}
}

// WithNotifyTimeout bounds a single notification hand-off
func WithNotifyTimeout(d time.Duration) Option {
	return func(o *options) { o.notifyTimeout = d }
}

// WithCleanupTTL sets how long a staged cleanup waits for confirmation
func WithCleanupTTL(d time.Duration) Option {
	return func(o *options) { o.cleanupTTL = d }
}

// Auction wires the phase controller, item lifecycle, bidding engine,
// closer and user ledger over one store
type Auction struct {
	Phases  *PhaseController
	Items   *Lifecycle
	Bidding *BiddingEngine
	Users   *Ledger

	core *core
}

// NewAuction builds the engine. confirmations may be nil, in which case
// staged cleanups are kept in process memory.
func NewAuction(st store.Store, notifier Notifier, confirmations ConfirmationStore, opts ...Option) *Auction {
	o := options{
		newID:         RandomItemID,
		now:           time.Now,
		closerWorkers: 4,
		notifyTimeout: 5 * time.Second,
		cleanupTTL:    2 * time.Minute,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if confirmations == nil {
		confirmations = NewMemoryConfirmations()
	}

	c := &core{
		store:  st,
		events: newDispatcher(notifier, o.notifyTimeout),
		now:    o.now,
	}

	closer := &Closer{core: c, workers: o.closerWorkers}
	return &Auction{
		Phases:  &PhaseController{core: c, closer: closer},
		Items:   &Lifecycle{core: c, newID: o.newID, confirmations: confirmations, cleanupTTL: o.cleanupTTL},
		Bidding: &BiddingEngine{core: c},
		Users:   &Ledger{core: c},
		core:    c,
	}
}

// Submit gates on the current phase and creates a pending item
func (a *Auction) Submit(ctx context.Context, draft models.ItemDraft) (*models.Item, error) {
	phase, err := a.Phases.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProcessingFailed, err)
	}
	return a.Items.Submit(ctx, phase, draft)
}

// PlaceBid gates on the current phase and runs the bidding engine
func (a *Auction) PlaceBid(ctx context.Context, itemID string, req *models.BidRequest) (*BidResult, error) {
	phase, err := a.Phases.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBidProcessingFailed, err)
	}
	return a.Bidding.PlaceBid(ctx, phase, itemID, req)
}

// Wait blocks until all in-flight notifications were handed off
func (a *Auction) Wait() {
	a.core.events.wait()
}
