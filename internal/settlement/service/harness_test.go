package service

import (
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/settlr/internal/account"
	auditrepository "github.com/smallbiznis/settlr/internal/audit/repository"
	auditservice "github.com/smallbiznis/settlr/internal/audit/service"
	catalogrepository "github.com/smallbiznis/settlr/internal/catalog/repository"
	catalogservice "github.com/smallbiznis/settlr/internal/catalog/service"
	"github.com/smallbiznis/settlr/internal/clock"
	"github.com/smallbiznis/settlr/internal/config"
	"github.com/smallbiznis/settlr/internal/gateway"
	"github.com/smallbiznis/settlr/internal/notification"
	paymentdomain "github.com/smallbiznis/settlr/internal/payment/domain"
	paymentrepository "github.com/smallbiznis/settlr/internal/payment/repository"
	paymentservice "github.com/smallbiznis/settlr/internal/payment/service"
	"github.com/smallbiznis/settlr/internal/ratelimit"
	settlementdomain "github.com/smallbiznis/settlr/internal/settlement/domain"
	"github.com/smallbiznis/settlr/internal/signature"
	subscriptiondomain "github.com/smallbiznis/settlr/internal/subscription/domain"
	subscriptionrepository "github.com/smallbiznis/settlr/internal/subscription/repository"
	subscriptionservice "github.com/smallbiznis/settlr/internal/subscription/service"
	"github.com/smallbiznis/settlr/internal/testutil"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	testSecret = "settlr-test-secret"
	ownerA     = snowflake.ID(7001)
	ownerB     = snowflake.ID(7002)
	basicID    = snowflake.ID(11)
	proID      = snowflake.ID(12)
	retiredID  = snowflake.ID(13)
)

type harness struct {
	svc    settlementdomain.Service
	db     *gorm.DB
	clock  *clock.FakeClock
	signer *signature.Signer
	ledger subscriptiondomain.Ledger
}

func testGatewayConfig() config.GatewayConfig {
	return config.GatewayConfig{
		Version:      "2.1.0",
		Command:      "pay",
		MerchantCode: "SETTLR01",
		HashSecret:   testSecret,
		PayURL:       "https://pay.example.test/paymentv2/vpcpay.html",
		ReturnURL:    "https://shop.example.test/payment/return",
		Currency:     "VND",
		Locale:       "vn",
		OrderType:    "other",
		TimeZone:     "UTC",
		ExpireAfter:  15 * time.Minute,
		PendingAfter: 15 * time.Minute,
	}
}

func newHarness(t *testing.T, guard *ratelimit.SettlementGuard) *harness {
	t.Helper()
	db := testutil.OpenDB(t)
	testutil.InsertPackage(t, db, basicID, "basic", 100000, 30)
	testutil.InsertPackage(t, db, proID, "pro", 400000, 30)
	testutil.InsertPackage(t, db, retiredID, "legacy", 50000, 30)
	if err := db.Exec(`UPDATE packages SET active = ? WHERE id = ?`, false, retiredID).Error; err != nil {
		t.Fatalf("retire package: %v", err)
	}
	testutil.LinkAccount(t, db, 1, ownerA)
	testutil.LinkAccount(t, db, 2, ownerB)

	log := zap.NewNop()
	node := testutil.NewNode(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	signer, err := signature.NewSigner(testSecret)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	ledger := subscriptionservice.NewLedger(subscriptionservice.Params{
		DB: db, Log: log, GenID: node, Repo: subscriptionrepository.Provide(),
	})

	svc := NewService(Params{
		DB:      db,
		Log:     log,
		Clock:   clk,
		Gateway: testGatewayConfig(),
		Signer:  signer,
		Catalog: catalogservice.New(catalogservice.Params{DB: db, Log: log, Repo: catalogrepository.Provide()}),
		Ledger:  ledger,
		Payments: paymentservice.NewService(paymentservice.Params{
			DB: db, Log: log, GenID: node, Repo: paymentrepository.Provide(), Clock: clk,
		}),
		Accounts: account.NewChecker(account.Params{DB: db, Log: log}),
		Outbox:   notification.NewOutbox(notification.OutboxParams{DB: db, Log: log, GenID: node}),
		AuditSvc: auditservice.NewService(auditservice.Params{
			DB: db, Log: log, GenID: node, Repo: auditrepository.Provide(), Clock: clk,
		}),
		Guard: guard,
	})

	return &harness{svc: svc, db: db, clock: clk, signer: signer, ledger: ledger}
}

// callback builds a signed gateway callback for payment.
func (h *harness) callback(payment *paymentdomain.Payment, responseCode string) url.Values {
	return h.callbackFor(payment.Reference, payment.Amount, responseCode)
}

func (h *harness) callbackFor(reference string, amount int64, responseCode string) url.Values {
	params := url.Values{}
	params.Set(gateway.ParamMerchantCode, "SETTLR01")
	params.Set(gateway.ParamReference, reference)
	params.Set(gateway.ParamAmount, strconv.FormatInt(amount*100, 10))
	params.Set(gateway.ParamResponseCode, responseCode)
	params.Set(gateway.ParamTransactionStatus, responseCode)
	params.Set(gateway.ParamTransactionNo, "14226112")
	params.Set(gateway.ParamBankCode, "NCB")
	params.Set(gateway.ParamPayDate, h.clock.Now().Format(gateway.DateLayout))
	params.Set(gateway.ParamOrderInfo, "basic plan "+reference)
	return h.signer.Seal(params)
}

func (h *harness) countEvents(t *testing.T) int64 {
	t.Helper()
	return testutil.Count(t, h.db, `SELECT COUNT(1) FROM settlement_events`)
}

func (h *harness) countActive(t *testing.T, ownerID snowflake.ID) int64 {
	t.Helper()
	return testutil.Count(t, h.db, `SELECT COUNT(1) FROM subscriptions WHERE owner_id = ? AND status = 'active'`, ownerID)
}
