package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aaronwang/community-auction/shared/models"
)

func TestDeliverPostsEvent(t *testing.T) {
	var got models.AuctionEvent
	var eventID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		eventID = r.Header.Get("X-Event-ID")
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	hook := NewWebhook(srv.URL, time.Second)
	event := &models.AuctionEvent{EventID: "e1", Type: models.EventOutbid, ItemID: "A1234", RecipientID: 7, Amount: 27000}
	if err := hook.Deliver(context.Background(), event); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	if eventID != "e1" {
		t.Errorf("X-Event-ID = %q, want e1", eventID)
	}
	if got.RecipientID != 7 || got.Amount != 27000 || got.Type != models.EventOutbid {
		t.Errorf("posted event = %+v", got)
	}
}

func TestDeliverRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	hook := NewWebhook(srv.URL, time.Second)
	if err := hook.Deliver(context.Background(), &models.AuctionEvent{EventID: "e1"}); err == nil {
		t.Error("expected an error for a 503 answer")
	}
}

func TestDisabledWebhookIsNoop(t *testing.T) {
	hook := NewWebhook("", time.Second)
	if hook.Enabled() {
		t.Error("webhook without url reports enabled")
	}
	if err := hook.Deliver(context.Background(), &models.AuctionEvent{EventID: "e1"}); err != nil {
		t.Errorf("Deliver: %v", err)
	}
}
