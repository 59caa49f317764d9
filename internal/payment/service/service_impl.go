package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/settlr/internal/clock"
	"github.com/smallbiznis/settlr/internal/payment/domain"
	dbutil "github.com/smallbiznis/settlr/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
	Clock clock.Clock `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
	clock clock.Clock
}

func NewService(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("payment.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: clk,
	}
}

func (s *Service) CreatePending(ctx context.Context, tx *gorm.DB, input domain.CreatePendingInput) (*domain.Payment, error) {
	reference := strings.TrimSpace(input.Reference)
	if reference == "" {
		return nil, domain.ErrInvalidReference
	}
	if input.Amount < 0 {
		return nil, domain.ErrInvalidAmount
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		return nil, domain.ErrInvalidCurrency
	}
	if strings.TrimSpace(input.Gateway.Kind) == "" {
		return nil, domain.ErrInvalidGatewayFields
	}
	blob, err := domain.EncodeGatewayData(input.Gateway)
	if err != nil {
		return nil, err
	}

	now := input.CreatedAt
	if now.IsZero() {
		now = s.clock.Now()
	}
	payment := &domain.Payment{
		ID:        s.genID.Generate(),
		OwnerID:   input.OwnerID,
		PackageID: input.PackageID,
		Reference: reference,
		Method:    domain.MethodGateway,
		Amount:    input.Amount,
		Currency:  currency,
		Status:    domain.PaymentStatusPending,
		Gateway:   blob,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, s.conn(tx), payment); err != nil {
		if dbutil.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateReference
		}
		return nil, err
	}
	return payment, nil
}

func (s *Service) FindByReference(ctx context.Context, reference string) (*domain.Payment, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, domain.ErrInvalidReference
	}
	payment, err := s.repo.FindByReference(ctx, s.db, reference)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, domain.ErrPaymentNotFound
	}
	return payment, nil
}

// FindByReferenceForUpdate takes the row lock that serializes callbacks for one reference.
func (s *Service) FindByReferenceForUpdate(ctx context.Context, tx *gorm.DB, reference string) (*domain.Payment, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, domain.ErrInvalidReference
	}
	payment, err := s.repo.FindByReferenceForUpdate(ctx, s.conn(tx), reference)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, domain.ErrPaymentNotFound
	}
	return payment, nil
}

func (s *Service) MarkTerminal(ctx context.Context, tx *gorm.DB, payment *domain.Payment, status domain.PaymentStatus, paidAt *time.Time, patch domain.GatewayData) (bool, error) {
	if payment == nil {
		return false, domain.ErrPaymentNotFound
	}
	if !status.Terminal() {
		return false, domain.ErrInvalidStatus
	}

	data, err := payment.GatewayData()
	if err != nil {
		return false, err
	}
	blob, err := domain.EncodeGatewayData(data.Merge(patch))
	if err != nil {
		return false, err
	}

	now := s.clock.Now()
	if paidAt != nil {
		now = *paidAt
	}
	swapped, err := s.repo.CompareAndSetStatus(ctx, s.conn(tx), payment.ID, status, paidAt, blob, now)
	if err != nil {
		return false, err
	}
	if !swapped {
		s.log.Warn("payment left pending state concurrently",
			zap.String("reference", payment.Reference),
			zap.String("requested_status", string(status)),
		)
		return false, nil
	}

	payment.Status = status
	payment.PaidAt = paidAt
	payment.Gateway = blob
	payment.UpdatedAt = now
	return true, nil
}

func (s *Service) LinkSubscription(ctx context.Context, tx *gorm.DB, payment *domain.Payment, subscriptionID snowflake.ID) error {
	if payment == nil {
		return domain.ErrPaymentNotFound
	}
	now := payment.UpdatedAt
	if now.IsZero() {
		now = s.clock.Now()
	}
	if err := s.repo.SetSubscription(ctx, s.conn(tx), payment.ID, subscriptionID, now); err != nil {
		return err
	}
	payment.SubscriptionID = &subscriptionID
	return nil
}

func (s *Service) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]domain.Payment, error) {
	return s.repo.ListPendingBefore(ctx, s.db, olderThan, limit)
}

func (s *Service) CountStalePending(ctx context.Context, olderThan time.Time) (int64, error) {
	return s.repo.CountPendingBefore(ctx, s.db, olderThan)
}

func (s *Service) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}
