package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	catalogdomain "github.com/smallbiznis/settlr/internal/catalog/domain"
	"github.com/smallbiznis/settlr/internal/config"
	"github.com/smallbiznis/settlr/internal/gateway"
	paymentdomain "github.com/smallbiznis/settlr/internal/payment/domain"
	"github.com/smallbiznis/settlr/internal/pricing"
	settlementdomain "github.com/smallbiznis/settlr/internal/settlement/domain"
	subscriptiondomain "github.com/smallbiznis/settlr/internal/subscription/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSettlementService struct {
	initiateReq    settlementdomain.InitiateRequest
	initiateResult *settlementdomain.InitiateResult
	initiateErr    error

	callbackParams url.Values
	callbackResult settlementdomain.Result
	callbackErr    error

	status    paymentdomain.StatusView
	statusErr error

	cancelled *subscriptiondomain.Subscription
	cancelErr error

	entitlement settlementdomain.Entitlement
}

func (f *fakeSettlementService) Initiate(ctx context.Context, req settlementdomain.InitiateRequest) (*settlementdomain.InitiateResult, error) {
	f.initiateReq = req
	return f.initiateResult, f.initiateErr
}

func (f *fakeSettlementService) ApplyCallback(ctx context.Context, raw url.Values) (settlementdomain.Result, error) {
	f.callbackParams = raw
	return f.callbackResult, f.callbackErr
}

func (f *fakeSettlementService) CancelSubscription(ctx context.Context, ownerID, subscriptionID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	return f.cancelled, f.cancelErr
}

func (f *fakeSettlementService) PaymentStatus(ctx context.Context, reference string) (paymentdomain.StatusView, error) {
	return f.status, f.statusErr
}

func (f *fakeSettlementService) Entitlement(ctx context.Context, ownerID snowflake.ID) (settlementdomain.Entitlement, error) {
	ent := f.entitlement
	ent.OwnerID = ownerID
	return ent, nil
}

type fakeCatalogService struct {
	packages []catalogdomain.PackageDefinition
}

func (f *fakeCatalogService) GetActive(ctx context.Context, id snowflake.ID) (*catalogdomain.PackageDefinition, error) {
	return nil, catalogdomain.ErrPackageNotFound
}

func (f *fakeCatalogService) Find(ctx context.Context, id snowflake.ID) (*catalogdomain.PackageDefinition, error) {
	return nil, catalogdomain.ErrPackageNotFound
}

func (f *fakeCatalogService) ListActive(ctx context.Context) ([]catalogdomain.PackageDefinition, error) {
	return f.packages, nil
}

func newTestRouter(settlement *fakeSettlementService) *gin.Engine {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	NewServer(ServerParams{
		Gin:           router,
		Gateway:       config.GatewayConfig{Locale: gateway.LocaleVietnamese},
		Log:           zap.NewNop(),
		SettlementSvc: settlement,
		CatalogSvc: &fakeCatalogService{packages: []catalogdomain.PackageDefinition{
			{ID: 11, Code: "basic", Name: "Basic", Price: 100000, Currency: "VND", DurationDays: 30, Active: true},
		}},
		Messages: gateway.NewMessageCatalog(nil),
	})
	return router
}

func doRequest(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	return body.Error
}

func postCheckout(router *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/checkout", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return doRequest(router, req)
}

func TestListPackages(t *testing.T) {
	router := newTestRouter(&fakeSettlementService{})

	resp := doRequest(router, httptest.NewRequest(http.MethodGet, "/v1/packages", nil))
	require.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		Data []catalogdomain.PackageDefinition `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "basic", body.Data[0].Code)
}

func TestCheckoutCreatesPayment(t *testing.T) {
	fake := &fakeSettlementService{
		initiateResult: &settlementdomain.InitiateResult{
			Payment: &paymentdomain.Payment{
				Reference: "01HZX3J8Q4",
				Amount:    133333,
				Currency:  "VND",
			},
			PaymentURL: "https://pay.example.test/paymentv2/vpcpay.html?vnp_TxnRef=01HZX3J8Q4",
		},
	}
	router := newTestRouter(fake)

	resp := postCheckout(router, `{"owner_id":"7001","package_id":"12","kind":"Upgrade","locale":"en"}`)
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	var body checkoutResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "01HZX3J8Q4", body.Reference)
	assert.Equal(t, int64(133333), body.Amount)
	assert.Equal(t, "upgrade", body.Kind)
	assert.Contains(t, body.PaymentURL, "vnp_TxnRef=01HZX3J8Q4")

	assert.Equal(t, snowflake.ID(7001), fake.initiateReq.OwnerID)
	assert.Equal(t, snowflake.ID(12), fake.initiateReq.PackageID)
	assert.Equal(t, "en", fake.initiateReq.Locale)
}

func TestCheckoutRejectsMalformedBody(t *testing.T) {
	router := newTestRouter(&fakeSettlementService{})

	resp := postCheckout(router, `{"owner_id":7001`)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	payload := decodeError(t, resp)
	assert.Equal(t, "validation_error", payload.Type)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "invalid_request", payload.Errors[0].Code)

	resp = postCheckout(router, `{"owner_id":"7001","kind":"new"}`)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	payload = decodeError(t, resp)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "package_id", payload.Errors[0].Field)
}

func TestCheckoutRejectionsAreLocalized(t *testing.T) {
	fake := &fakeSettlementService{initiateErr: settlementdomain.ErrNoPayableAccount}
	router := newTestRouter(fake)

	resp := postCheckout(router, `{"owner_id":"7001","package_id":"11","kind":"new","locale":"en"}`)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	payload := decodeError(t, resp)
	assert.Equal(t, "no_payable_account", payload.Code)
	assert.Equal(t, "Link a payment account before purchasing.", payload.Message)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "owner_id", payload.Errors[0].Field)

	resp = postCheckout(router, `{"owner_id":"7001","package_id":"11","kind":"new","locale":"vn"}`)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	payload = decodeError(t, resp)
	assert.Equal(t, "no_payable_account", payload.Code)
	assert.Equal(t, "Vui lòng liên kết tài khoản thanh toán trước khi mua gói.", payload.Message)
}

func TestCheckoutErrorStatuses(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"already active", subscriptiondomain.ErrAlreadyActive, http.StatusConflict, "subscription_already_active"},
		{"no active subscription", settlementdomain.ErrNoActiveSubscription, http.StatusConflict, "no_active_subscription"},
		{"downgrade", fmt.Errorf("quote upgrade: %w", pricing.ErrInvalidUpgrade), http.StatusConflict, "invalid_upgrade"},
		{"package gone", fmt.Errorf("load package: %w", catalogdomain.ErrPackageNotFound), http.StatusNotFound, "package_not_found"},
		{"rate limited", settlementdomain.ErrTooManyRequests, http.StatusTooManyRequests, "too_many_requests"},
		{"invalid kind", settlementdomain.ErrInvalidKind, http.StatusBadRequest, "invalid_kind"},
		{"database down", errors.New("dial tcp: connection refused"), http.StatusInternalServerError, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newTestRouter(&fakeSettlementService{initiateErr: tc.err})

			resp := postCheckout(router, `{"owner_id":"7001","package_id":"11","kind":"new"}`)
			require.Equal(t, tc.status, resp.Code, resp.Body.String())
			assert.Equal(t, tc.code, decodeError(t, resp).Code)
		})
	}
}

func TestGetPaymentStatus(t *testing.T) {
	fake := &fakeSettlementService{status: paymentdomain.StatusView{
		Reference: "01HZX3J8Q4",
		State:     paymentdomain.ViewStatePendingOverdue,
		Amount:    100000,
		Currency:  "VND",
	}}
	router := newTestRouter(fake)

	resp := doRequest(router, httptest.NewRequest(http.MethodGet, "/v1/payments/01HZX3J8Q4", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	var view paymentdomain.StatusView
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &view))
	assert.Equal(t, paymentdomain.ViewStatePendingOverdue, view.State)

	fake.statusErr = paymentdomain.ErrPaymentNotFound
	resp = doRequest(router, httptest.NewRequest(http.MethodGet, "/v1/payments/unknown", nil))
	require.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "payment_not_found", decodeError(t, resp).Code)
}

func TestOwnerRoutes(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	fake := &fakeSettlementService{
		entitlement: settlementdomain.Entitlement{Entitled: true, CheckedAt: now},
		cancelled:   &subscriptiondomain.Subscription{ID: 55, OwnerID: 7001, Status: subscriptiondomain.SubscriptionStatusCancelled},
	}
	router := newTestRouter(fake)

	resp := doRequest(router, httptest.NewRequest(http.MethodGet, "/v1/owners/7001/entitlement", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	var ent settlementdomain.Entitlement
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &ent))
	assert.True(t, ent.Entitled)
	assert.Equal(t, snowflake.ID(7001), ent.OwnerID)

	resp = doRequest(router, httptest.NewRequest(http.MethodGet, "/v1/owners/abc/entitlement", nil))
	require.Equal(t, http.StatusBadRequest, resp.Code)
	payload := decodeError(t, resp)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "owner_id", payload.Errors[0].Field)

	resp = doRequest(router, httptest.NewRequest(http.MethodPost, "/v1/owners/7001/subscriptions/55/cancel", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	var sub subscriptiondomain.Subscription
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &sub))
	assert.Equal(t, subscriptiondomain.SubscriptionStatusCancelled, sub.Status)

	fake.cancelErr = subscriptiondomain.ErrSubscriptionNotFound
	resp = doRequest(router, httptest.NewRequest(http.MethodPost, "/v1/owners/7002/subscriptions/55/cancel", nil))
	require.Equal(t, http.StatusNotFound, resp.Code)

	fake.cancelErr = subscriptiondomain.ErrSubscriptionNotActive
	resp = doRequest(router, httptest.NewRequest(http.MethodPost, "/v1/owners/7001/subscriptions/55/cancel", nil))
	require.Equal(t, http.StatusConflict, resp.Code)
}

func gatewayQuery(extra map[string]string) string {
	params := url.Values{}
	params.Set(gateway.ParamReference, "01HZX3J8Q4")
	params.Set(gateway.ParamAmount, "10000000")
	params.Set(gateway.ParamResponseCode, "00")
	params.Set("vnp_SecureHash", "abcdef")
	for k, v := range extra {
		params.Set(k, v)
	}
	return params.Encode()
}

func TestGatewayIPNAcknowledgements(t *testing.T) {
	cases := []struct {
		name   string
		result settlementdomain.Result
		err    error
		want   gateway.Ack
	}{
		{"applied", settlementdomain.Result{Outcome: settlementdomain.OutcomeAppliedSuccess}, nil, gateway.AckConfirmed},
		{"applied failure", settlementdomain.Result{Outcome: settlementdomain.OutcomeAppliedFailure}, nil, gateway.AckConfirmed},
		{"replayed", settlementdomain.Result{Outcome: settlementdomain.OutcomeReplayed}, nil, gateway.AckAlreadyConfirmed},
		{"bad signature", settlementdomain.Result{Outcome: settlementdomain.OutcomeRejectedInvalidSignature}, nil, gateway.AckRejected},
		{"amount mismatch", settlementdomain.Result{Outcome: settlementdomain.OutcomeRejectedAmountMismatch}, nil, gateway.AckRejected},
		{"transient", settlementdomain.Result{}, errors.New("db unavailable"), gateway.AckRejected},
		{"in progress", settlementdomain.Result{}, settlementdomain.ErrCallbackInProgress, gateway.AckRejected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fake := &fakeSettlementService{callbackResult: tc.result, callbackErr: tc.err}
			router := newTestRouter(fake)

			resp := doRequest(router, httptest.NewRequest(http.MethodGet, "/v1/gateway/ipn?"+gatewayQuery(nil), nil))
			require.Equal(t, http.StatusOK, resp.Code)
			var ack gateway.Ack
			require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &ack))
			assert.Equal(t, tc.want, ack)
		})
	}
}

func TestGatewayIPNForwardsOnlyGatewayParams(t *testing.T) {
	fake := &fakeSettlementService{callbackResult: settlementdomain.Result{Outcome: settlementdomain.OutcomeAppliedSuccess}}
	router := newTestRouter(fake)

	resp := doRequest(router, httptest.NewRequest(http.MethodGet, "/v1/gateway/ipn?"+gatewayQuery(map[string]string{"utm_source": "mail"}), nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "01HZX3J8Q4", fake.callbackParams.Get(gateway.ParamReference))
	assert.Equal(t, "abcdef", fake.callbackParams.Get("vnp_SecureHash"))
	_, leaked := fake.callbackParams["utm_source"]
	assert.False(t, leaked)
}

func TestGatewayReturnExplainsOutcome(t *testing.T) {
	fake := &fakeSettlementService{
		callbackResult: settlementdomain.Result{Outcome: settlementdomain.OutcomeAppliedSuccess, ResponseCode: "00"},
		status:         paymentdomain.StatusView{Reference: "01HZX3J8Q4", State: paymentdomain.ViewStateCompleted},
	}
	router := newTestRouter(fake)

	req := httptest.NewRequest(http.MethodGet, "/v1/gateway/return?"+gatewayQuery(nil), nil)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	resp := doRequest(router, req)
	require.Equal(t, http.StatusOK, resp.Code)

	var body gatewayReturnResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, paymentdomain.ViewStateCompleted, body.State)
	assert.Equal(t, "Payment completed successfully.", body.Message)

	fake.callbackResult = settlementdomain.Result{Outcome: settlementdomain.OutcomeReplayed, ResponseCode: "24"}
	fake.status = paymentdomain.StatusView{Reference: "01HZX3J8Q4", State: paymentdomain.ViewStateFailed}
	resp = doRequest(router, httptest.NewRequest(http.MethodGet, "/v1/gateway/return?locale=vn&"+gatewayQuery(nil), nil))
	require.Equal(t, http.StatusOK, resp.Code)
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "24", body.ResponseCode)
	assert.Equal(t, "Khách hàng hủy giao dịch.", body.Message)
	_, leaked := fake.callbackParams["locale"]
	assert.False(t, leaked)
}

func TestGatewayReturnRejectionsAreGeneric(t *testing.T) {
	fake := &fakeSettlementService{
		callbackResult: settlementdomain.Result{Outcome: settlementdomain.OutcomeRejectedInvalidSignature, Reason: "invalid_signature"},
	}
	router := newTestRouter(fake)

	req := httptest.NewRequest(http.MethodGet, "/v1/gateway/return?"+gatewayQuery(nil), nil)
	req.Header.Set("Accept-Language", "en")
	resp := doRequest(router, req)
	require.Equal(t, http.StatusBadRequest, resp.Code)

	var body gatewayReturnResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Empty(t, body.Reference)
	assert.NotContains(t, resp.Body.String(), "invalid_signature")
	assert.Equal(t, "We could not verify the payment result. Please check your payment history.", body.Message)

	fake.callbackErr = settlementdomain.ErrCallbackInProgress
	resp = doRequest(router, req)
	require.Equal(t, http.StatusAccepted, resp.Code)
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, paymentdomain.ViewStateProcessing, body.State)
}

func TestClassifyErrorForLog(t *testing.T) {
	errType, code := classifyErrorForLog(fmt.Errorf("initiate: %w", subscriptiondomain.ErrPackageMismatch))
	assert.Equal(t, "conflict", errType)
	assert.Equal(t, "subscription_package_mismatch", code)

	errType, code = classifyErrorForLog(invalidRequestError())
	assert.Equal(t, "validation_error", errType)
	assert.Equal(t, "invalid_request", code)
}
