package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aaronwang/community-auction/api-gateway/internal/store"
	"github.com/aaronwang/community-auction/shared/models"
)

const (
	sellerID = int64(100)
	adminID  = int64(1)
)

var admin = models.Identity{ID: adminID, Name: "Oak"}

// recorder keeps every dispatched event
type recorder struct {
	mu     sync.Mutex
	events []*models.AuctionEvent
	err    error
}

func (r *recorder) Notify(_ context.Context, event *models.AuctionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

func (r *recorder) ofType(t models.EventType) []*models.AuctionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.AuctionEvent
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func openStore(t *testing.T) *store.SQLStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "auction.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := s.InitSchema(context.Background()); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func setupAuction(t *testing.T, opts ...Option) (*Auction, *store.SQLStore, *recorder) {
	t.Helper()
	s := openStore(t)
	rec := &recorder{}
	a := NewAuction(s, rec, nil, opts...)
	t.Cleanup(a.Wait)
	return a, s, rec
}

func openAuction(t *testing.T, a *Auction) {
	t.Helper()
	if _, err := a.Phases.OpenSubmissionsAndBidding(context.Background()); err != nil {
		t.Fatalf("open auction: %v", err)
	}
}

func draft(base int64) models.ItemDraft {
	return models.ItemDraft{
		OwnerID:       sellerID,
		OwnerUsername: "ash",
		OwnerName:     "Ash",
		Kind:          models.ItemKindPokemon,
		DisplayName:   "Charizard",
		Payload:       []byte(`{"nature":"Adamant"}`),
		BasePrice:     base,
	}
}

// approvedItem submits and approves an item, opening the auction first
func approvedItem(t *testing.T, a *Auction, base int64) string {
	t.Helper()
	ctx := context.Background()
	openAuction(t, a)

	item, err := a.Submit(ctx, draft(base))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := a.Items.Decide(ctx, item.ID, DecisionApprove, admin); err != nil {
		t.Fatalf("approve: %v", err)
	}
	return item.ID
}

func bid(userID, amount int64) *models.BidRequest {
	return &models.BidRequest{UserID: userID, Name: "bidder", Amount: amount}
}

// sequenceIDs hands out ids in order and repeats the last one
func sequenceIDs(ids ...string) IDGenerator {
	var mu sync.Mutex
	i := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		id := ids[i]
		if i < len(ids)-1 {
			i++
		}
		return id
	}
}

var errDiskFull = errors.New("disk full")

// faultyStore fails InsertBid inside units of work
type faultyStore struct {
	store.Store
}

func (f *faultyStore) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return f.Store.WithinTx(ctx, func(tx store.Tx) error {
		return fn(&faultyTx{Tx: tx})
	})
}

type faultyTx struct {
	store.Tx
}

func (f *faultyTx) InsertBid(context.Context, *models.Bid) error {
	return errDiskFull
}
