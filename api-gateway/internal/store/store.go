package store

import (
	"context"
	"errors"
	"time"

	"github.com/aaronwang/community-auction/shared/models"
)

var (
	// ErrNotFound is returned when a row does not exist
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when a concurrent writer changed the row first.
	// Callers may retry the whole unit of work.
	ErrConflict = errors.New("store: concurrent update conflict")
	// ErrDuplicateID is returned when an item id is already taken
	ErrDuplicateID = errors.New("store: duplicate item id")
)

// LockMode selects row locking for reads inside a unit of work
type LockMode int

const (
	LockNone LockMode = iota
	LockShare
	LockUpdate
)

// CleanupResult reports what a cleanup pass removed
type CleanupResult struct {
	Items   int64    `json:"items_deleted"`
	Bids    int64    `json:"bids_deleted"`
	ItemIDs []string `json:"-"`
}

// Tx is the set of operations available inside (and outside) a unit of work
type Tx interface {
	GetItem(ctx context.Context, id string, lock LockMode) (*models.Item, error)
	ItemExists(ctx context.Context, id string) (bool, error)
	InsertItem(ctx context.Context, item *models.Item) error
	// UpdateItemBid replaces the highest bid only if it still equals previous
	// (nil = no bid yet) and the item is approved; otherwise ErrConflict.
	UpdateItemBid(ctx context.Context, id string, previous *int64, amount, bidderID int64, bidderName string) error
	// TransitionItem moves an item from one status to another; ErrConflict
	// when the item is no longer in the from status.
	TransitionItem(ctx context.Context, id string, from, to models.ItemStatus, approvalTime *time.Time) error
	SetMessageRefs(ctx context.Context, id string, refs models.MessageRefs) error
	ListItems(ctx context.Context, filter models.ItemFilter) ([]*models.Item, error)

	InsertBid(ctx context.Context, bid *models.Bid) error
	ListBids(ctx context.Context, itemID string, order models.BidOrder) ([]*models.Bid, error)

	GetUser(ctx context.Context, id int64) (*models.User, error)
	TouchUser(ctx context.Context, who models.Identity, seen time.Time) error
	IncrementCounter(ctx context.Context, userID int64, counter models.UserCounter) error
	SetBan(ctx context.Context, userID int64, banned bool, reason string) error

	GetPhase(ctx context.Context, lock LockMode) (models.AuctionPhase, error)
	UpdatePhase(ctx context.Context, submissionsOpen, biddingOpen *bool, at time.Time) (models.AuctionPhase, error)

	DeleteTerminal(ctx context.Context) (CleanupResult, error)
}

// Store is the durable item store, user ledger and phase record
type Store interface {
	Tx
	// WithinTx runs fn in one transaction: everything fn wrote is committed
	// when it returns nil and rolled back otherwise.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}
