package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"
	auditdomain "github.com/smallbiznis/settlr/internal/audit/domain"
	catalogdomain "github.com/smallbiznis/settlr/internal/catalog/domain"
	"github.com/smallbiznis/settlr/internal/gateway"
	paymentdomain "github.com/smallbiznis/settlr/internal/payment/domain"
	"github.com/smallbiznis/settlr/internal/pricing"
	settlementdomain "github.com/smallbiznis/settlr/internal/settlement/domain"
	subscriptiondomain "github.com/smallbiznis/settlr/internal/subscription/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func (s *Service) Initiate(ctx context.Context, req settlementdomain.InitiateRequest) (*settlementdomain.InitiateResult, error) {
	kind := pricing.Kind(strings.ToLower(strings.TrimSpace(req.Kind)))
	if !kind.Valid() {
		return nil, settlementdomain.ErrInvalidKind
	}
	if req.OwnerID == 0 {
		return nil, settlementdomain.ErrInvalidOwner
	}
	ownerID := req.OwnerID.String()

	if err := s.allowInitiate(ctx, ownerID); err != nil {
		return nil, err
	}

	payable, err := s.accounts.HasPayableAccount(ctx, req.OwnerID)
	if err != nil {
		return nil, err
	}
	if !payable {
		return nil, settlementdomain.ErrNoPayableAccount
	}

	target, err := s.catalog.GetActive(ctx, req.PackageID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	current, err := s.ledger.FindCurrent(ctx, req.OwnerID, now)
	if err != nil {
		return nil, err
	}

	var currentPkg *catalogdomain.PackageDefinition
	switch kind {
	case pricing.KindNew:
		if current != nil {
			return nil, subscriptiondomain.ErrAlreadyActive
		}
	case pricing.KindRenew:
		if current == nil {
			return nil, settlementdomain.ErrNoActiveSubscription
		}
		if current.PackageID != target.ID {
			return nil, subscriptiondomain.ErrPackageMismatch
		}
	case pricing.KindUpgrade:
		if current == nil {
			return nil, settlementdomain.ErrNoActiveSubscription
		}
		currentPkg, err = s.catalog.Find(ctx, current.PackageID)
		if err != nil {
			return nil, err
		}
	}

	amount, err := pricing.Quote(kind, *target, current, currentPkg, now)
	if err != nil {
		return nil, err
	}

	reference := ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
	snapshot := target.Snapshot()
	data := paymentdomain.GatewayData{
		Kind:            string(kind),
		PackageSnapshot: &snapshot,
		ClientIP:        strings.TrimSpace(req.ClientIP),
		Locale:          gateway.NormalizeLocale(req.Locale),
	}
	if current != nil && kind != pricing.KindNew {
		prior := current.ID
		data.PriorSubscriptionID = &prior
	}

	paymentURL, params, err := gateway.BuildPaymentURL(s.gateway, s.signer, gateway.PaymentRequest{
		Reference:   reference,
		Amount:      amount,
		Description: target.Name,
		ClientIP:    req.ClientIP,
		Locale:      req.Locale,
		CreatedAt:   now,
	})
	if err != nil {
		return nil, fmt.Errorf("build payment url: %w", err)
	}

	var payment *paymentdomain.Payment
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		created, err := s.payments.CreatePending(ctx, tx, paymentdomain.CreatePendingInput{
			OwnerID:   req.OwnerID,
			PackageID: target.ID,
			Reference: reference,
			Amount:    amount,
			Currency:  target.Currency,
			Gateway:   data,
			CreatedAt: now,
		})
		if err != nil {
			return err
		}
		payment = created
		return nil
	})
	if err != nil {
		if errors.Is(err, paymentdomain.ErrDuplicateReference) {
			s.log.Error("payment reference collision", zap.String("reference", reference))
		}
		return nil, err
	}

	s.log.Info("payment initiated",
		zap.String("reference", reference),
		zap.String("owner_id", ownerID),
		zap.String("kind", string(kind)),
		zap.String("package", target.Code),
		zap.Int64("amount", amount),
	)
	if s.obsMetrics != nil {
		s.obsMetrics.RecordInitiation(ctx, string(kind))
	}
	s.audit(ctx, auditdomain.Entry{
		ActorType:  auditdomain.ActorTypeOwner,
		ActorID:    ownerID,
		Action:     "payment.initiated",
		TargetType: "payment",
		TargetID:   reference,
		IPAddress:  req.ClientIP,
		Metadata: map[string]any{
			"kind":         string(kind),
			"package_code": target.Code,
			"amount":       amount,
			"currency":     target.Currency,
		},
	})

	return &settlementdomain.InitiateResult{
		Payment:    payment,
		Params:     params,
		PaymentURL: paymentURL,
	}, nil
}

// allowInitiate fails open when Redis is unreachable; the database checks
// still prevent double purchases.
func (s *Service) allowInitiate(ctx context.Context, ownerID string) error {
	if !s.guard.Enabled() {
		return nil
	}
	res, err := s.guard.AllowInitiate(ctx, ownerID)
	if err != nil {
		s.log.Warn("initiate rate limit unavailable", zap.String("owner_id", ownerID), zap.Error(err))
		return nil
	}
	if !res.Allowed {
		return settlementdomain.ErrTooManyRequests
	}
	return nil
}
