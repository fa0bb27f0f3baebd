package redis

import (
	"slices"
	"testing"

	"github.com/aaronwang/community-auction/shared/models"
)

func TestCleanedQuoteKeys(t *testing.T) {
	event := &models.AuctionEvent{
		Type:    models.EventItemsCleaned,
		ItemIDs: []string{"A0001", "", "B0002"},
	}
	want := []string{"item:A0001:quote", "item:B0002:quote"}
	if got := cleanedQuoteKeys(event); !slices.Equal(got, want) {
		t.Errorf("cleanedQuoteKeys = %v, want %v", got, want)
	}
}

func TestCleanedQuoteKeysIgnoresOtherEvents(t *testing.T) {
	// Approval must never reset a quote an early bid already raised
	for _, eventType := range []models.EventType{models.EventItemApproved, models.EventBidPlaced} {
		event := &models.AuctionEvent{Type: eventType, ItemID: "A0001", ItemIDs: []string{"A0001"}}
		if got := cleanedQuoteKeys(event); len(got) != 0 {
			t.Errorf("%s dropped quotes %v, want none", eventType, got)
		}
	}
}
