package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	auditdomain "github.com/smallbiznis/settlr/internal/audit/domain"
	"github.com/smallbiznis/settlr/internal/audit/masking"
	catalogdomain "github.com/smallbiznis/settlr/internal/catalog/domain"
	"github.com/smallbiznis/settlr/internal/gateway"
	notificationdomain "github.com/smallbiznis/settlr/internal/notification/domain"
	paymentdomain "github.com/smallbiznis/settlr/internal/payment/domain"
	"github.com/smallbiznis/settlr/internal/pricing"
	settlementdomain "github.com/smallbiznis/settlr/internal/settlement/domain"
	"github.com/smallbiznis/settlr/internal/signature"
	subscriptiondomain "github.com/smallbiznis/settlr/internal/subscription/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ledgerConflict carries a ledger rejection out of the transaction so it
// rolls back without being reported as an infrastructure failure.
type ledgerConflict struct {
	err error
}

func (e *ledgerConflict) Error() string { return e.err.Error() }
func (e *ledgerConflict) Unwrap() error { return e.err }

func (s *Service) ApplyCallback(ctx context.Context, raw url.Values) (settlementdomain.Result, error) {
	log := s.log.With(zap.String("reference", raw.Get(gateway.ParamReference)))

	if !s.signer.Verify(raw) {
		log.Warn("callback signature rejected", zap.Any("params", maskedParams(raw)))
		return s.finish(ctx, raw, settlementdomain.Result{
			Outcome: settlementdomain.OutcomeRejectedInvalidSignature,
			Reason:  "invalid_signature",
		}), nil
	}

	cb, err := gateway.ParseCallback(raw)
	if err != nil {
		log.Warn("callback malformed", zap.Error(err), zap.Any("params", maskedParams(raw)))
		return s.finish(ctx, raw, settlementdomain.Result{
			Outcome: settlementdomain.OutcomeRejectedMalformed,
			Reason:  err.Error(),
		}), nil
	}

	token, locked, err := s.guard.LockReference(ctx, cb.Reference)
	switch {
	case err != nil:
		// The row lock and status CAS below still serialize this reference.
		log.Warn("callback lock unavailable", zap.Error(err))
	case !locked:
		return settlementdomain.Result{}, settlementdomain.ErrCallbackInProgress
	default:
		defer func() {
			if err := s.guard.ReleaseReference(context.WithoutCancel(ctx), cb.Reference, token); err != nil {
				log.Warn("callback lock release failed", zap.Error(err))
			}
		}()
	}

	var result settlementdomain.Result
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := s.applyLocked(ctx, tx, cb)
		if err != nil {
			return err
		}
		result = r
		return nil
	})

	var conflict *ledgerConflict
	switch {
	case errors.As(err, &conflict):
		log.Warn("paid callback could not be applied to the ledger", zap.Error(conflict.err))
		payment, lookupErr := s.payments.FindByReference(ctx, cb.Reference)
		if lookupErr != nil {
			log.Warn("payment lookup after ledger conflict failed", zap.Error(lookupErr))
		}
		return s.finish(ctx, raw, settlementdomain.Result{
			Outcome:      settlementdomain.OutcomeRejectedStateConflict,
			Payment:      payment,
			ResponseCode: cb.OutcomeCode(),
			Reason:       conflict.err.Error(),
		}), nil
	case err != nil:
		log.Error("callback transaction failed", zap.Error(err))
		if s.obsMetrics != nil {
			s.obsMetrics.RecordCallback(ctx, "error")
		}
		return settlementdomain.Result{}, fmt.Errorf("apply callback: %w", err)
	}

	return s.finish(ctx, raw, result), nil
}

// applyLocked runs inside the settlement transaction with the payment row locked.
func (s *Service) applyLocked(ctx context.Context, tx *gorm.DB, cb gateway.Callback) (settlementdomain.Result, error) {
	payment, err := s.payments.FindByReferenceForUpdate(ctx, tx, cb.Reference)
	if errors.Is(err, paymentdomain.ErrPaymentNotFound) {
		return settlementdomain.Result{
			Outcome: settlementdomain.OutcomeRejectedUnknownReference,
			Reason:  "unknown_reference",
		}, nil
	}
	if err != nil {
		return settlementdomain.Result{}, err
	}

	if payment.Status.Terminal() {
		return compareTerminal(payment, cb), nil
	}

	if cb.Amount != payment.Amount {
		return settlementdomain.Result{
			Outcome:      settlementdomain.OutcomeRejectedAmountMismatch,
			Payment:      payment,
			ResponseCode: cb.OutcomeCode(),
			Reason:       fmt.Sprintf("expected %d got %d", payment.Amount, cb.Amount),
		}, nil
	}

	patch := paymentdomain.GatewayData{
		ResponseCode:      cb.ResponseCode,
		TransactionStatus: cb.TransactionStatus,
		TransactionNo:     cb.TransactionNo,
		BankCode:          cb.BankCode,
		PayDate:           cb.PayDate,
	}
	now := s.clock.Now()

	if !cb.Succeeded() {
		swapped, err := s.payments.MarkTerminal(ctx, tx, payment, paymentdomain.PaymentStatusFailed, nil, patch)
		if err != nil {
			return settlementdomain.Result{}, err
		}
		if !swapped {
			return s.replayAfterLostSwap(ctx, tx, cb)
		}
		return settlementdomain.Result{
			Outcome:      settlementdomain.OutcomeAppliedFailure,
			Payment:      payment,
			ResponseCode: cb.OutcomeCode(),
			Reason:       gateway.LookupCode(cb.OutcomeCode()).Reason,
		}, nil
	}

	swapped, err := s.payments.MarkTerminal(ctx, tx, payment, paymentdomain.PaymentStatusCompleted, &now, patch)
	if err != nil {
		return settlementdomain.Result{}, err
	}
	if !swapped {
		return s.replayAfterLostSwap(ctx, tx, cb)
	}

	sub, eventType, err := s.applyLedger(ctx, tx, payment, now)
	if err != nil {
		return settlementdomain.Result{}, err
	}
	if err := s.payments.LinkSubscription(ctx, tx, payment, sub.ID); err != nil {
		return settlementdomain.Result{}, err
	}

	data, _ := payment.GatewayData()
	if _, err := s.outbox.Emit(ctx, tx, notificationdomain.Event{
		OwnerID:   payment.OwnerID,
		Type:      eventType,
		DedupeKey: notificationdomain.PaymentDedupeKey(payment.Reference),
		CreatedAt: now,
		Payload: map[string]any{
			"owner_id":        payment.OwnerID.String(),
			"subscription_id": sub.ID.String(),
			"package_id":      sub.PackageID.String(),
			"payment_ref":     payment.Reference,
			"kind":            data.Kind,
			"amount":          payment.Amount,
			"currency":        payment.Currency,
			"expires_at":      sub.ExpiresAt,
		},
	}); err != nil {
		return settlementdomain.Result{}, err
	}

	return settlementdomain.Result{
		Outcome:      settlementdomain.OutcomeAppliedSuccess,
		Payment:      payment,
		Subscription: sub,
		ResponseCode: cb.ResponseCode,
		Reason:       gateway.LookupCode(cb.ResponseCode).Reason,
	}, nil
}

// applyLedger performs the transition recorded at initiation time, using
// the package terms frozen on the payment.
func (s *Service) applyLedger(ctx context.Context, tx *gorm.DB, payment *paymentdomain.Payment, now time.Time) (*subscriptiondomain.Subscription, string, error) {
	data, err := payment.GatewayData()
	if err != nil {
		return nil, "", err
	}
	if data.PackageSnapshot == nil {
		return nil, "", &ledgerConflict{err: errMissingSnapshot}
	}
	pkg := packageFromSnapshot(*data.PackageSnapshot)

	var (
		sub       *subscriptiondomain.Subscription
		eventType string
	)
	switch pricing.Kind(data.Kind) {
	case pricing.KindNew:
		sub, err = s.ledger.Activate(ctx, tx, payment.OwnerID, pkg, now)
		eventType = notificationdomain.EventSubscriptionActivated
	case pricing.KindRenew:
		if data.PriorSubscriptionID == nil {
			return nil, "", &ledgerConflict{err: subscriptiondomain.ErrSubscriptionNotFound}
		}
		sub, err = s.ledger.Renew(ctx, tx, *data.PriorSubscriptionID, pkg, now)
		eventType = notificationdomain.EventSubscriptionRenewed
	case pricing.KindUpgrade:
		if data.PriorSubscriptionID == nil {
			return nil, "", &ledgerConflict{err: subscriptiondomain.ErrSubscriptionNotFound}
		}
		sub, err = s.ledger.Upgrade(ctx, tx, *data.PriorSubscriptionID, pkg, now)
		eventType = notificationdomain.EventSubscriptionUpgraded
	default:
		return nil, "", &ledgerConflict{err: pricing.ErrInvalidKind}
	}
	if err != nil {
		if subscriptiondomain.IsRuleViolation(err) {
			return nil, "", &ledgerConflict{err: err}
		}
		return nil, "", err
	}
	return sub, eventType, nil
}

// replayAfterLostSwap handles a concurrent winner on dialects without row locks.
func (s *Service) replayAfterLostSwap(ctx context.Context, tx *gorm.DB, cb gateway.Callback) (settlementdomain.Result, error) {
	payment, err := s.payments.FindByReferenceForUpdate(ctx, tx, cb.Reference)
	if err != nil {
		return settlementdomain.Result{}, err
	}
	return compareTerminal(payment, cb), nil
}

// compareTerminal decides between an idempotent replay and a contradictory
// callback for a payment that already settled. Nothing is mutated.
func compareTerminal(payment *paymentdomain.Payment, cb gateway.Callback) settlementdomain.Result {
	result := settlementdomain.Result{
		Payment:      payment,
		ResponseCode: cb.OutcomeCode(),
	}
	switch {
	case cb.Succeeded() && payment.Status == paymentdomain.PaymentStatusCompleted,
		!cb.Succeeded() && payment.Status == paymentdomain.PaymentStatusFailed:
		result.Outcome = settlementdomain.OutcomeReplayed
		result.Reason = "already_" + string(payment.Status)
	default:
		result.Outcome = settlementdomain.OutcomeRejectedStateConflict
		result.Reason = fmt.Sprintf("payment is %s, callback code %s", payment.Status, cb.OutcomeCode())
	}
	return result
}

// finish records metrics, logs and the audit trail for every outcome.
func (s *Service) finish(ctx context.Context, raw url.Values, result settlementdomain.Result) settlementdomain.Result {
	reference := raw.Get(gateway.ParamReference)
	fields := []zap.Field{
		zap.String("reference", reference),
		zap.String("outcome", string(result.Outcome)),
		zap.String("response_code", result.ResponseCode),
		zap.String("reason", result.Reason),
	}
	switch result.Outcome {
	case settlementdomain.OutcomeAppliedSuccess, settlementdomain.OutcomeAppliedFailure, settlementdomain.OutcomeReplayed:
		s.log.Info("callback processed", fields...)
	default:
		s.log.Warn("callback rejected", fields...)
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordCallback(ctx, string(result.Outcome))
		if result.Outcome == settlementdomain.OutcomeAppliedSuccess && result.Payment != nil {
			data, _ := result.Payment.GatewayData()
			s.obsMetrics.RecordSettledAmount(ctx, data.Kind, result.Payment.Currency, result.Payment.Amount)
		}
	}

	metadata := map[string]any{
		"outcome":       string(result.Outcome),
		"reason":        result.Reason,
		"response_code": result.ResponseCode,
		"params":        maskedParams(raw),
	}
	if result.Subscription != nil {
		metadata["subscription_id"] = result.Subscription.ID.String()
	}
	s.audit(ctx, auditdomain.Entry{
		ActorType:  auditdomain.ActorTypeGateway,
		Action:     "settlement.callback." + string(result.Outcome),
		TargetType: "payment",
		TargetID:   reference,
		Metadata:   metadata,
	})
	return result
}

var errMissingSnapshot = errors.New("payment_package_snapshot_missing")

func packageFromSnapshot(snap catalogdomain.Snapshot) catalogdomain.PackageDefinition {
	return catalogdomain.PackageDefinition{
		ID:           snap.ID,
		Code:         snap.Code,
		Name:         snap.Name,
		Price:        snap.Price,
		Currency:     snap.Currency,
		DurationDays: snap.DurationDays,
		Active:       true,
	}
}

func maskedParams(raw url.Values) map[string]any {
	flat := make(map[string]any, len(raw))
	for key := range raw {
		flat[key] = raw.Get(key)
	}
	return masking.MaskFields(flat, signature.FieldSecureHash)
}
