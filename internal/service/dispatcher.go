package service

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sunilkarki98/staysewa-sub001/internal/entity"
)

const dispatchTimeout = 30 * time.Second

type notice struct {
	userID string
	title  string
	body   string
}

// Dispatcher fans out side effects of a committed booking change. Failures
// are logged and never reach the caller.
type Dispatcher struct {
	notifier Notifier
	events   EventPublisher
	wg       sync.WaitGroup
}

// NewDispatcher accepts nil collaborators; the matching side effect is skipped.
func NewDispatcher(notifier Notifier, events EventPublisher) *Dispatcher {
	return &Dispatcher{notifier: notifier, events: events}
}

func (d *Dispatcher) bookingChanged(b *entity.Booking, at time.Time, notices ...notice) {
	if d == nil {
		return
	}
	snapshot := *b

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()

		if d.events != nil {
			if err := d.events.PublishBookingEvent(ctx, entity.NewBookingEvent(&snapshot, at)); err != nil {
				logrus.WithError(err).WithField("booking_id", snapshot.ID).Warn("Failed to publish booking event")
			}
		}

		if d.notifier == nil {
			return
		}
		metadata := map[string]string{
			"booking_id":     snapshot.ID,
			"booking_number": snapshot.BookingNumber,
			"status":         string(snapshot.Status),
		}
		for _, n := range notices {
			if n.userID == "" {
				continue
			}
			if !d.notifier.Notify(ctx, n.userID, n.title, n.body, metadata) {
				logrus.WithFields(logrus.Fields{
					"booking_id": snapshot.ID,
					"user_id":    n.userID,
				}).Warn("Notification was not delivered")
			}
		}
	}()
}

// Wait blocks until every dispatched side effect has finished.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}
