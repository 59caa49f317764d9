package domain

import (
	"net/url"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/settlr/internal/catalog/domain"
	"github.com/smallbiznis/settlr/internal/gateway"
	paymentdomain "github.com/smallbiznis/settlr/internal/payment/domain"
	subscriptiondomain "github.com/smallbiznis/settlr/internal/subscription/domain"
)

type InitiateRequest struct {
	OwnerID   snowflake.ID
	PackageID snowflake.ID
	Kind      string
	ClientIP  string
	Locale    string
}

type InitiateResult struct {
	Payment    *paymentdomain.Payment
	Params     url.Values
	PaymentURL string
}

type Outcome string

const (
	OutcomeAppliedSuccess           Outcome = "applied_success"
	OutcomeAppliedFailure           Outcome = "applied_failure"
	OutcomeReplayed                 Outcome = "replayed"
	OutcomeRejectedInvalidSignature Outcome = "rejected_invalid_signature"
	OutcomeRejectedUnknownReference Outcome = "rejected_unknown_reference"
	OutcomeRejectedStateConflict    Outcome = "rejected_state_conflict"
	OutcomeRejectedMalformed        Outcome = "rejected_malformed"
	OutcomeRejectedAmountMismatch   Outcome = "rejected_amount_mismatch"
)

func (o Outcome) Applied() bool {
	return o == OutcomeAppliedSuccess || o == OutcomeAppliedFailure
}

// Result describes what one callback did.
type Result struct {
	Outcome      Outcome
	Payment      *paymentdomain.Payment
	Subscription *subscriptiondomain.Subscription
	ResponseCode string
	Reason       string
}

// Ack maps an outcome to the gateway acknowledgement. Authentication
// failures share the generic rejection. A conflict is only "already
// confirmed" when the payment really settled; a rolled back ledger
// conflict leaves it pending and must stay retryable.
func (r Result) Ack() gateway.Ack {
	switch r.Outcome {
	case OutcomeAppliedSuccess, OutcomeAppliedFailure:
		return gateway.AckConfirmed
	case OutcomeReplayed:
		return gateway.AckAlreadyConfirmed
	case OutcomeRejectedStateConflict:
		if r.Payment != nil && r.Payment.Status.Terminal() {
			return gateway.AckAlreadyConfirmed
		}
		return gateway.AckRejected
	default:
		return gateway.AckRejected
	}
}

// Entitlement is the owner's current access state.
type Entitlement struct {
	OwnerID      snowflake.ID                     `json:"owner_id"`
	Entitled     bool                             `json:"entitled"`
	Subscription *subscriptiondomain.Subscription `json:"subscription,omitempty"`
	Package      *catalogdomain.PackageDefinition `json:"package,omitempty"`
	CheckedAt    time.Time                        `json:"checked_at"`
}
