package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aaronwang/community-auction/shared/models"
)

// Notifier delivers auction events to downstream collaborators
type Notifier interface {
	Notify(ctx context.Context, event *models.AuctionEvent) error
}

// Notifiers fans one event out to several notifiers
type Notifiers []Notifier

// Notify sends to every notifier and joins their errors
func (n Notifiers) Notify(ctx context.Context, event *models.AuctionEvent) error {
	var errs []error
	for _, notifier := range n {
		if err := notifier.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NopNotifier drops every event
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, *models.AuctionEvent) error { return nil }

// dispatcher sends events after commit, fire-and-forget.
// Failures are logged and never reach the caller.
type dispatcher struct {
	notifier Notifier
	timeout  time.Duration
	wg       sync.WaitGroup
}

func newDispatcher(notifier Notifier, timeout time.Duration) *dispatcher {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &dispatcher{notifier: notifier, timeout: timeout}
}

func (d *dispatcher) dispatch(events ...*models.AuctionEvent) {
	for _, event := range events {
		if event == nil {
			continue
		}
		d.wg.Add(1)
		go func(event *models.AuctionEvent) {
			defer d.wg.Done()

			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			defer cancel()

			if err := d.notifier.Notify(ctx, event); err != nil {
				fmt.Printf("Warning: failed to deliver %s event (item %s, recipient %d): %v\n",
					event.Type, event.ItemID, event.RecipientID, err)
			}
		}(event)
	}
}

// wait blocks until every dispatched event was handed off
func (d *dispatcher) wait() {
	d.wg.Wait()
}

func newEvent(eventType models.EventType, itemID string, at time.Time) *models.AuctionEvent {
	return &models.AuctionEvent{
		EventID:   uuid.New().String(),
		Type:      eventType,
		ItemID:    itemID,
		Timestamp: at.UTC(),
	}
}
