package redis

import (
	"testing"

	"github.com/aaronwang/community-auction/shared/models"
)

func TestExtractItemIDFromChannel(t *testing.T) {
	tests := []struct {
		channel string
		want    string
	}{
		{"auction_events:A1234", "A1234"},
		{"auction_events:", ""},
		{"bid.events.A1234", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := extractItemIDFromChannel(tt.channel); got != tt.want {
			t.Errorf("extractItemIDFromChannel(%q) = %q, want %q", tt.channel, got, tt.want)
		}
	}
}

func TestParseMessage(t *testing.T) {
	payload := `{"event_id":"e1","type":"bid_placed","item_id":"A1234","amount":27000}`

	msg, err := parseMessage(models.EventChannel("A1234"), payload)
	if err != nil {
		t.Fatalf("parseMessage: %v", err)
	}
	if msg.ItemID != "A1234" || msg.All || msg.Payload != payload {
		t.Errorf("message = %+v, want item A1234 with raw payload", msg)
	}
	if msg.Event.Type != models.EventBidPlaced || msg.Event.Amount != 27000 {
		t.Errorf("event = %+v, want bid_placed for 27000", msg.Event)
	}
}

func TestParseMessagePhaseGoesToEveryone(t *testing.T) {
	msg, err := parseMessage(models.PhaseChannel, `{"type":"phase_changed"}`)
	if err != nil {
		t.Fatalf("parseMessage: %v", err)
	}
	if !msg.All || msg.ItemID != "" {
		t.Errorf("message = %+v, want a broadcast to all", msg)
	}
}

func TestParseMessageRejectsBadInput(t *testing.T) {
	if _, err := parseMessage(models.EventChannel("A1234"), "not json"); err == nil {
		t.Error("expected an error for invalid JSON")
	}
	if _, err := parseMessage("other:A1234", `{"type":"bid_placed"}`); err == nil {
		t.Error("expected an error for a foreign channel")
	}
}

func TestSnapshotFromHash(t *testing.T) {
	snapshot, err := snapshotFromHash("A1234", map[string]string{
		"price":       "27000",
		"minimum_bid": "29000",
		"bidder":      "Misty",
	})
	if err != nil {
		t.Fatalf("snapshotFromHash: %v", err)
	}
	want := Snapshot{Type: "snapshot", ItemID: "A1234", Price: 27000, MinimumBid: 29000, Bidder: "Misty"}
	if *snapshot != want {
		t.Errorf("snapshot = %+v, want %+v", *snapshot, want)
	}

	if _, err := snapshotFromHash("A1234", map[string]string{"price": "x", "minimum_bid": "1"}); err == nil {
		t.Error("expected an error for a non-numeric price")
	}
	if _, err := snapshotFromHash("A1234", map[string]string{"price": "1"}); err == nil {
		t.Error("expected an error for a missing minimum")
	}
}
