package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/smallbiznis/settlr/internal/gateway"
	paymentdomain "github.com/smallbiznis/settlr/internal/payment/domain"
	"github.com/smallbiznis/settlr/internal/pricing"
	subscriptiondomain "github.com/smallbiznis/settlr/internal/subscription/domain"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorClass
	}{
		{nil, ErrorClassNone},
		{ErrInvalidKind, ErrorClassCaller},
		{fmt.Errorf("quote: %w", pricing.ErrInvalidUpgrade), ErrorClassCaller},
		{subscriptiondomain.ErrAlreadyActive, ErrorClassCaller},
		{paymentdomain.ErrPaymentNotFound, ErrorClassAuth},
		{ErrSettlementConflict, ErrorClassStateConflict},
		{ErrCallbackInProgress, ErrorClassTransient},
		{errors.New("connection reset"), ErrorClassTransient},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.err), "%v", tc.err)
	}
}

func TestResultAck(t *testing.T) {
	assert.Equal(t, gateway.AckConfirmed, Result{Outcome: OutcomeAppliedSuccess}.Ack())
	assert.Equal(t, gateway.AckConfirmed, Result{Outcome: OutcomeAppliedFailure}.Ack())
	assert.Equal(t, gateway.AckAlreadyConfirmed, Result{Outcome: OutcomeReplayed}.Ack())
	settled := &paymentdomain.Payment{Status: paymentdomain.PaymentStatusCompleted}
	pending := &paymentdomain.Payment{Status: paymentdomain.PaymentStatusPending}
	assert.Equal(t, gateway.AckAlreadyConfirmed, Result{Outcome: OutcomeRejectedStateConflict, Payment: settled}.Ack())
	assert.Equal(t, gateway.AckRejected, Result{Outcome: OutcomeRejectedStateConflict, Payment: pending}.Ack())
	assert.Equal(t, gateway.AckRejected, Result{Outcome: OutcomeRejectedStateConflict}.Ack())
	assert.Equal(t, gateway.AckRejected, Result{Outcome: OutcomeRejectedInvalidSignature}.Ack())
	assert.Equal(t, gateway.AckRejected, Result{Outcome: OutcomeRejectedAmountMismatch}.Ack())

	assert.True(t, OutcomeAppliedFailure.Applied())
	assert.False(t, OutcomeReplayed.Applied())
	assert.Equal(t, ErrorClassNone, ClassifyOutcome(OutcomeAppliedSuccess))
	assert.Equal(t, ErrorClassAuth, ClassifyOutcome(OutcomeRejectedUnknownReference))
}
