package worker

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sunilkarki98/staysewa-sub001/internal/entity"
	"github.com/sunilkarki98/staysewa-sub001/internal/service"
	"github.com/sunilkarki98/staysewa-sub001/pkg/scheduler"
)

// SweepResult counts what one sweep did.
type SweepResult struct {
	Expired int
	Skipped int
	Failed  int
}

// ExpiryReaper expires reserved bookings whose hold window has passed.
type ExpiryReaper struct {
	bookingService service.BookingService
	interval       time.Duration
	batchSize      int
	now            service.Clock
}

func NewExpiryReaper(bookingService service.BookingService, interval time.Duration, batchSize int, clock service.Clock) *ExpiryReaper {
	if clock == nil {
		clock = time.Now
	}
	if batchSize < 1 {
		batchSize = 100
	}
	return &ExpiryReaper{
		bookingService: bookingService,
		interval:       interval,
		batchSize:      batchSize,
		now:            clock,
	}
}

// Start sweeps every interval until ctx is cancelled.
func (w *ExpiryReaper) Start(ctx context.Context) {
	scheduler.NewScheduler("expiry-reaper", w.interval, func(ctx context.Context) {
		w.Sweep(ctx)
	}).Start(ctx)
}

// Sweep expires due bookings batch by batch. Each booking is handled in its
// own transaction, so one failure does not stop the rest.
func (w *ExpiryReaper) Sweep(ctx context.Context) SweepResult {
	var result SweepResult

	for {
		due, err := w.bookingService.GetExpiredBookings(ctx, w.now(), w.batchSize)
		if err != nil {
			logrus.WithError(err).Error("Failed to get expired bookings")
			return result
		}
		if len(due) == 0 {
			break
		}

		batchFailures := 0
		for _, expired := range due {
			if ctx.Err() != nil {
				logrus.Info("Expiry sweep interrupted by context cancellation")
				return result
			}

			err := w.bookingService.ExpireBooking(ctx, expired.BookingID)
			switch {
			case err == nil:
				result.Expired++
			case errors.Is(err, entity.ErrInvalidTransition):
				// Confirmed or cancelled since it was listed.
				result.Skipped++
				logrus.WithField("booking_id", expired.BookingID).WithError(err).Debug("Booking no longer expirable")
			default:
				result.Failed++
				batchFailures++
				logrus.WithFields(logrus.Fields{
					"booking_id": expired.BookingID,
					"retryable":  service.IsRetryable(err),
				}).WithError(err).Error("Failed to expire booking")
			}
		}

		// A short batch drained the backlog. Failed rows would be listed
		// again, so they wait for the next tick.
		if len(due) < w.batchSize || batchFailures > 0 || result.Skipped > 0 {
			break
		}
	}

	if result.Expired+result.Failed > 0 {
		logrus.WithFields(logrus.Fields{
			"expired": result.Expired,
			"skipped": result.Skipped,
			"failed":  result.Failed,
		}).Info("Expiry sweep finished")
	}
	return result
}
