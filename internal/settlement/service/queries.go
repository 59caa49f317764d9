package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/settlr/internal/audit/domain"
	notificationdomain "github.com/smallbiznis/settlr/internal/notification/domain"
	paymentdomain "github.com/smallbiznis/settlr/internal/payment/domain"
	settlementdomain "github.com/smallbiznis/settlr/internal/settlement/domain"
	subscriptiondomain "github.com/smallbiznis/settlr/internal/subscription/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CancelSubscription stops an owner's subscription. expires_at is left as is.
func (s *Service) CancelSubscription(ctx context.Context, ownerID, subscriptionID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	if ownerID == 0 {
		return nil, settlementdomain.ErrInvalidOwner
	}
	existing, err := s.ledger.FindByID(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	// Other owners' subscriptions are indistinguishable from missing ones.
	if existing.OwnerID != ownerID {
		return nil, subscriptiondomain.ErrSubscriptionNotFound
	}
	now := s.clock.Now()
	wasActive := existing.IsEntitled(now)

	var sub *subscriptiondomain.Subscription
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cancelled, err := s.ledger.Cancel(ctx, tx, subscriptionID, now)
		if err != nil {
			return err
		}
		sub = cancelled
		if !wasActive {
			return nil
		}
		_, err = s.outbox.Emit(ctx, tx, notificationdomain.Event{
			OwnerID:   ownerID,
			Type:      notificationdomain.EventSubscriptionCancelled,
			DedupeKey: fmt.Sprintf("subscription:%s:cancelled", subscriptionID),
			CreatedAt: now,
			Payload: map[string]any{
				"owner_id":        ownerID.String(),
				"subscription_id": subscriptionID.String(),
				"package_id":      cancelled.PackageID.String(),
				"expires_at":      cancelled.ExpiresAt,
			},
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	if wasActive {
		s.log.Info("subscription cancelled",
			zap.String("owner_id", ownerID.String()),
			zap.String("subscription_id", subscriptionID.String()),
		)
		s.audit(ctx, auditdomain.Entry{
			ActorType:  auditdomain.ActorTypeOwner,
			ActorID:    ownerID.String(),
			Action:     "subscription.cancelled",
			TargetType: "subscription",
			TargetID:   subscriptionID.String(),
		})
	}
	return sub, nil
}

func (s *Service) PaymentStatus(ctx context.Context, reference string) (paymentdomain.StatusView, error) {
	payment, err := s.payments.FindByReference(ctx, reference)
	if err != nil {
		return paymentdomain.StatusView{}, err
	}
	return paymentdomain.Describe(*payment, s.clock.Now(), s.gateway.PendingAfter), nil
}

func (s *Service) Entitlement(ctx context.Context, ownerID snowflake.ID) (settlementdomain.Entitlement, error) {
	if ownerID == 0 {
		return settlementdomain.Entitlement{}, settlementdomain.ErrInvalidOwner
	}
	now := s.clock.Now()
	view := settlementdomain.Entitlement{OwnerID: ownerID, CheckedAt: now}

	sub, err := s.ledger.FindCurrent(ctx, ownerID, now)
	if err != nil {
		return view, err
	}
	if sub == nil {
		return view, nil
	}
	view.Subscription = sub
	view.Entitled = s.ledger.IsEntitled(sub, now)

	pkg, err := s.catalog.Find(ctx, sub.PackageID)
	if err != nil {
		s.log.Warn("entitled package lookup failed", zap.String("package_id", sub.PackageID.String()), zap.Error(err))
		return view, nil
	}
	view.Package = pkg
	return view, nil
}
