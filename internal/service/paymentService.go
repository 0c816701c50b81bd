package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sunilkarki98/staysewa-sub001/config"
	repository "github.com/sunilkarki98/staysewa-sub001/internal/database/postgres"
	"github.com/sunilkarki98/staysewa-sub001/internal/entity"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("staysewa/payment")

type paymentService struct {
	store      repository.Store
	gateway    PaymentGateway
	cache      AvailabilityCache
	dispatcher *Dispatcher
	booking    config.BookingConfig
	gatewayCfg config.GatewayConfig
	now        Clock
}

func NewPaymentService(
	store repository.Store,
	gateway PaymentGateway,
	cache AvailabilityCache,
	dispatcher *Dispatcher,
	booking config.BookingConfig,
	gatewayCfg config.GatewayConfig,
	clock Clock,
) PaymentService {
	return &paymentService{
		store:      store,
		gateway:    gateway,
		cache:      orNoopCache(cache),
		dispatcher: dispatcher,
		booking:    booking,
		gatewayCfg: gatewayCfg,
		now:        orSystemClock(clock),
	}
}

// Initiate opens a gateway charge for a reserved booking and records it.
func (s *paymentService) Initiate(ctx context.Context, bookingID string, amount int64, actor entity.Actor) (*entity.GatewayIntent, error) {
	ctx, span := tracer.Start(ctx, "PaymentService.Initiate", trace.WithAttributes(attribute.String("booking.id", bookingID)))
	defer span.End()

	intent, err := s.initiate(ctx, bookingID, amount, actor)
	recordSpanError(span, err)
	return intent, err
}

func (s *paymentService) initiate(ctx context.Context, bookingID string, amount int64, actor entity.Actor) (*entity.GatewayIntent, error) {
	b, err := s.store.Bookings().GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && b.UserID != actor.ID {
		return nil, fmt.Errorf("%w: booking belongs to another user", entity.ErrForbidden)
	}
	if b.Status != entity.BookingStatusReserved {
		return nil, fmt.Errorf("%w: booking is %s", entity.ErrInvalidTransition, b.Status)
	}
	if b.HoldExpired(s.now()) {
		return nil, fmt.Errorf("%w: hold has expired", entity.ErrInvalidTransition)
	}
	if amount != b.TotalAmount {
		return nil, fmt.Errorf("%w: amount %d does not match booking total %d", entity.ErrValidation, amount, b.TotalAmount)
	}

	intent, err := s.gateway.CreateIntent(ctx, entity.IntentRequest{
		Amount:     b.TotalAmount,
		ReturnURL:  s.gatewayCfg.ReturnURL,
		WebsiteURL: s.gatewayCfg.WebsiteURL,
		OrderID:    b.ID,
		OrderName:  b.BookingNumber,
		Customer:   b.Guest,
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	payment := &entity.Payment{
		ID:           uuid.NewString(),
		BookingID:    b.ID,
		UserID:       b.UserID,
		Amount:       b.TotalAmount,
		Currency:     b.Currency,
		Method:       entity.PaymentMethodKhalti,
		GatewayTxnID: intent.Pidx,
		Status:       entity.TransactionStatusInitiated,
		PaymentURL:   intent.PaymentURL,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Payments().Create(ctx, payment); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"booking_id": b.ID,
		"pidx":       intent.Pidx,
		"amount":     b.TotalAmount,
	}).Info("Payment initiated")
	return intent, nil
}

// Verify asks the gateway for the authoritative status of pidx. Nothing is
// written unless the gateway reports the charge completed.
func (s *paymentService) Verify(ctx context.Context, pidx string) (*entity.PaymentOutcome, error) {
	ctx, span := tracer.Start(ctx, "PaymentService.Verify", trace.WithAttributes(attribute.String("payment.pidx", pidx)))
	defer span.End()

	outcome, err := s.verify(ctx, pidx)
	recordSpanError(span, err)
	return outcome, err
}

func (s *paymentService) verify(ctx context.Context, pidx string) (*entity.PaymentOutcome, error) {
	if pidx == "" {
		return nil, fmt.Errorf("%w: pidx is required", entity.ErrValidation)
	}
	payment, err := s.store.Payments().GetByGatewayTxnID(ctx, pidx)
	if err != nil {
		return nil, err
	}
	if payment.Status == entity.TransactionStatusCompleted {
		return &entity.PaymentOutcome{
			Status:        entity.OutcomeAlreadyConfirmed,
			Pidx:          pidx,
			BookingID:     payment.BookingID,
			GatewayStatus: entity.GatewayStatusCompleted,
		}, nil
	}

	lookup, err := s.gateway.Lookup(ctx, pidx)
	if err != nil {
		return nil, err
	}
	if lookup.Status == entity.GatewayStatusCompleted {
		return s.Finalize(ctx, pidx, payment.BookingID, lookup)
	}

	outcome := &entity.PaymentOutcome{
		Status:        entity.OutcomePending,
		Pidx:          pidx,
		BookingID:     payment.BookingID,
		GatewayStatus: lookup.Status,
	}
	switch lookup.Status {
	case entity.GatewayStatusExpired, entity.GatewayStatusCanceled,
		entity.GatewayStatusRefunded, entity.GatewayStatusPartiallyRefunded:
		outcome.Status = entity.OutcomeFailed
		outcome.Message = fmt.Sprintf("payment %s", lookup.Status)
	}
	return outcome, nil
}

// HandleWebhook treats the callback as a hint and re-verifies with the
// gateway. Repeated deliveries are harmless.
func (s *paymentService) HandleWebhook(ctx context.Context, payload entity.WebhookPayload) *entity.PaymentOutcome {
	ctx, span := tracer.Start(ctx, "PaymentService.HandleWebhook", trace.WithAttributes(
		attribute.String("payment.pidx", payload.Pidx),
		attribute.String("webhook.status", payload.Status),
	))
	defer span.End()

	log := logrus.WithFields(logrus.Fields{
		"pidx":              payload.Pidx,
		"claimed_status":    payload.Status,
		"purchase_order_id": payload.PurchaseOrderID,
	})

	if payload.Pidx == "" {
		log.Warn("Webhook without pidx rejected")
		return &entity.PaymentOutcome{Status: entity.OutcomeRejected, Message: "missing pidx"}
	}

	outcome, err := s.Verify(ctx, payload.Pidx)
	if err != nil {
		recordSpanError(span, err)
		log.WithError(err).Warn("Webhook could not be verified")
		status := entity.OutcomeFailed
		if errors.Is(err, entity.ErrNotFound) || errors.Is(err, entity.ErrValidation) {
			status = entity.OutcomeRejected
		}
		return &entity.PaymentOutcome{Status: status, Pidx: payload.Pidx, Message: err.Error()}
	}

	if payload.Status == string(entity.GatewayStatusCompleted) && !outcome.Success() {
		log.WithField("gateway_status", outcome.GatewayStatus).Warn("Webhook claimed completion the gateway does not confirm")
	}
	if payload.PurchaseOrderID != "" && outcome.BookingID != "" && payload.PurchaseOrderID != outcome.BookingID {
		log.WithField("booking_id", outcome.BookingID).Warn("Webhook order id does not match the payment's booking")
	}
	return outcome
}

// Finalize applies a completed gateway lookup. It is idempotent per pidx:
// only the first call confirms the booking and fires notifications.
func (s *paymentService) Finalize(ctx context.Context, pidx, bookingID string, lookup *entity.GatewayLookup) (*entity.PaymentOutcome, error) {
	ctx, span := tracer.Start(ctx, "PaymentService.Finalize", trace.WithAttributes(
		attribute.String("payment.pidx", pidx),
		attribute.String("booking.id", bookingID),
	))
	defer span.End()

	outcome, err := s.finalize(ctx, pidx, bookingID, lookup)
	recordSpanError(span, err)
	return outcome, err
}

func (s *paymentService) finalize(ctx context.Context, pidx, bookingID string, lookup *entity.GatewayLookup) (*entity.PaymentOutcome, error) {
	if lookup == nil || lookup.Status != entity.GatewayStatusCompleted {
		return nil, fmt.Errorf("%w: gateway has not completed %s", entity.ErrValidation, pidx)
	}

	now := s.now()
	outcome := &entity.PaymentOutcome{Pidx: pidx, BookingID: bookingID, GatewayStatus: lookup.Status}
	var confirmed *entity.Booking

	err := s.store.WithTx(ctx, func(repos repository.Repositories) error {
		payment, err := repos.Payments().GetByGatewayTxnIDWithLock(ctx, pidx)
		if err != nil {
			return err
		}
		if bookingID != "" && payment.BookingID != bookingID {
			return fmt.Errorf("%w: payment %s belongs to another booking", entity.ErrValidation, pidx)
		}
		outcome.BookingID = payment.BookingID

		switch payment.Status {
		case entity.TransactionStatusCompleted:
			outcome.Status = entity.OutcomeAlreadyConfirmed
			return nil
		case entity.TransactionStatusFailed, entity.TransactionStatusRefunded:
			return fmt.Errorf("%w: payment is already %s", entity.ErrInvalidTransition, payment.Status)
		}

		if lookup.TotalAmount != payment.Amount {
			payment.Status = entity.TransactionStatusFailed
			payment.FailureReason = fmt.Sprintf("%v: paid %d, expected %d", entity.ErrAmountMismatch, lookup.TotalAmount, payment.Amount)
			payment.GatewayResponse = lookup.Raw
			payment.FailedAt = &now
			payment.UpdatedAt = now
			if err := repos.Payments().Update(ctx, payment); err != nil {
				return fmt.Errorf("failed to update payment: %w", err)
			}
			outcome.Status = entity.OutcomeFailed
			outcome.Message = payment.FailureReason
			return nil
		}

		b, err := repos.Bookings().GetWithLock(ctx, payment.BookingID)
		if err != nil {
			return err
		}
		if err := b.ApplyTransition(entity.BookingStatusConfirmed, entity.PaymentStatusSuccess, now); err != nil {
			return err
		}
		b.CommissionAmount = applyRate(b.TotalAmount, s.booking.CommissionRate)
		b.PayoutAmount = b.TotalAmount - b.CommissionAmount

		if err := commitHold(ctx, repos, b.HoldID); err != nil {
			return err
		}

		payment.Status = entity.TransactionStatusCompleted
		payment.GatewayResponse = lookup.Raw
		payment.ProcessedAt = &now
		payment.UpdatedAt = now
		if err := repos.Payments().Update(ctx, payment); err != nil {
			return fmt.Errorf("failed to update payment: %w", err)
		}
		if err := repos.Bookings().Update(ctx, b); err != nil {
			return fmt.Errorf("failed to update booking: %w", err)
		}

		confirmed = b
		outcome.Status = entity.OutcomeConfirmed
		return nil
	})
	if err != nil {
		if errors.Is(err, entity.ErrInvalidTransition) {
			logrus.WithFields(logrus.Fields{
				"pidx":       pidx,
				"booking_id": outcome.BookingID,
				"amount":     lookup.TotalAmount,
			}).WithError(err).Error("Captured payment cannot confirm its booking, manual refund required")
		}
		return nil, err
	}

	if outcome.Status == entity.OutcomeFailed {
		logrus.WithFields(logrus.Fields{
			"pidx":       pidx,
			"booking_id": outcome.BookingID,
		}).Warn(outcome.Message)
	}

	if confirmed != nil {
		logrus.WithFields(logrus.Fields{
			"pidx":       pidx,
			"booking_id": confirmed.ID,
			"commission": confirmed.CommissionAmount,
		}).Info("Payment finalized, booking confirmed")
		invalidateAvailability(ctx, s.cache, confirmed.UnitID)
		s.dispatcher.bookingChanged(confirmed, now, transitionNotices(confirmed)...)
	}
	return outcome, nil
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
