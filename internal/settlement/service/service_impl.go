package service

import (
	"context"

	"github.com/smallbiznis/settlr/internal/account"
	auditdomain "github.com/smallbiznis/settlr/internal/audit/domain"
	catalogdomain "github.com/smallbiznis/settlr/internal/catalog/domain"
	"github.com/smallbiznis/settlr/internal/clock"
	"github.com/smallbiznis/settlr/internal/config"
	"github.com/smallbiznis/settlr/internal/notification"
	obsmetrics "github.com/smallbiznis/settlr/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/settlr/internal/payment/domain"
	"github.com/smallbiznis/settlr/internal/ratelimit"
	settlementdomain "github.com/smallbiznis/settlr/internal/settlement/domain"
	"github.com/smallbiznis/settlr/internal/signature"
	subscriptiondomain "github.com/smallbiznis/settlr/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Gateway    config.GatewayConfig
	Signer     *signature.Signer
	Catalog    catalogdomain.Service
	Ledger     subscriptiondomain.Ledger
	Payments   paymentdomain.Service
	Accounts   account.Checker
	Outbox     *notification.Outbox
	AuditSvc   auditdomain.Service
	Guard      *ratelimit.SettlementGuard `optional:"true"`
	ObsMetrics *obsmetrics.Metrics        `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	gateway    config.GatewayConfig
	signer     *signature.Signer
	catalog    catalogdomain.Service
	ledger     subscriptiondomain.Ledger
	payments   paymentdomain.Service
	accounts   account.Checker
	outbox     *notification.Outbox
	auditSvc   auditdomain.Service
	guard      *ratelimit.SettlementGuard
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) settlementdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("settlement.service"),
		clock:      p.Clock,
		gateway:    p.Gateway,
		signer:     p.Signer,
		catalog:    p.Catalog,
		ledger:     p.Ledger,
		payments:   p.Payments,
		accounts:   p.Accounts,
		outbox:     p.Outbox,
		auditSvc:   p.AuditSvc,
		guard:      p.Guard,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) audit(ctx context.Context, entry auditdomain.Entry) {
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.AuditLog(ctx, entry); err != nil {
		s.log.Warn("audit write failed", zap.String("action", entry.Action), zap.Error(err))
	}
}
