package service

import (
	"errors"
	"fmt"
)

// Precondition failures. All of them are recoverable by the caller.
var (
	ErrSubmissionsClosed = errors.New("submissions are closed")
	ErrBiddingClosed     = errors.New("bidding is closed")
	ErrBidderBanned      = errors.New("bidder is banned")
	ErrItemNotBiddable   = errors.New("item not found or not approved for bidding")
	ErrSelfBid           = errors.New("cannot bid on your own item")
	ErrBidTooLow         = errors.New("bid too low")
	ErrItemNotFound      = errors.New("item not found")
	ErrAlreadyDecided    = errors.New("item already decided")
	ErrInvalidTransition = errors.New("invalid item status transition")
	ErrNotOwner          = errors.New("only the owner can withdraw an item")
	ErrInvalidDraft      = errors.New("invalid item draft")
	ErrInvalidAmount     = errors.New("bid amount must be positive")
	ErrUserNotFound      = errors.New("user not found")
	ErrCleanupNotStaged  = errors.New("no cleanup staged under this token")
)

// Processing failures. The unit of work was rolled back in full.
var (
	ErrBidProcessingFailed = errors.New("bid processing failed")
	ErrProcessingFailed    = errors.New("processing failed")
	ErrIDSpaceExhausted    = errors.New("could not allocate a free item id")
)

// BidTooLowError carries the numbers the caller needs to retry
type BidTooLowError struct {
	CurrentPrice int64
	Increment    int64
	Minimum      int64
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("bid too low: current price %d, minimum increment %d, minimum bid %d",
		e.CurrentPrice, e.Increment, e.Minimum)
}

// Unwrap lets errors.Is(err, ErrBidTooLow) match
func (e *BidTooLowError) Unwrap() error {
	return ErrBidTooLow
}

// AlreadyDecidedError reports the status an item was already moved to
type AlreadyDecidedError struct {
	ItemID string
	Status string
}

func (e *AlreadyDecidedError) Error() string {
	return fmt.Sprintf("item %s already %s", e.ItemID, e.Status)
}

func (e *AlreadyDecidedError) Unwrap() error {
	return ErrAlreadyDecided
}
