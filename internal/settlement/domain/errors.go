package domain

import (
	"errors"

	catalogdomain "github.com/smallbiznis/settlr/internal/catalog/domain"
	paymentdomain "github.com/smallbiznis/settlr/internal/payment/domain"
	"github.com/smallbiznis/settlr/internal/pricing"
	subscriptiondomain "github.com/smallbiznis/settlr/internal/subscription/domain"
)

var (
	ErrInvalidKind          = errors.New("invalid_kind")
	ErrInvalidOwner         = errors.New("invalid_owner")
	ErrNoPayableAccount     = errors.New("no_payable_account")
	ErrNoActiveSubscription = errors.New("no_active_subscription")
	ErrTooManyRequests      = errors.New("too_many_requests")
	ErrCallbackInProgress   = errors.New("callback_in_progress")
	ErrSettlementConflict   = errors.New("settlement_conflict")
)

type ErrorClass string

const (
	ErrorClassNone          ErrorClass = ""
	ErrorClassCaller        ErrorClass = "caller"
	ErrorClassAuth          ErrorClass = "auth"
	ErrorClassStateConflict ErrorClass = "state_conflict"
	ErrorClassTransient     ErrorClass = "transient"
)

// Classify buckets an error by how the caller should react. Anything
// unrecognised is treated as transient and safe to retry.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ErrorClassNone
	case errors.Is(err, ErrInvalidKind),
		errors.Is(err, ErrInvalidOwner),
		errors.Is(err, ErrNoPayableAccount),
		errors.Is(err, ErrNoActiveSubscription),
		errors.Is(err, ErrTooManyRequests),
		errors.Is(err, catalogdomain.ErrPackageNotFound),
		errors.Is(err, catalogdomain.ErrInvalidPackage),
		errors.Is(err, pricing.ErrInvalidUpgrade),
		errors.Is(err, pricing.ErrInvalidDuration),
		errors.Is(err, pricing.ErrInvalidKind),
		errors.Is(err, subscriptiondomain.ErrAlreadyActive),
		errors.Is(err, subscriptiondomain.ErrPackageMismatch),
		errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound),
		errors.Is(err, subscriptiondomain.ErrSubscriptionNotActive),
		errors.Is(err, subscriptiondomain.ErrInvalidDuration),
		errors.Is(err, paymentdomain.ErrInvalidReference):
		return ErrorClassCaller
	case errors.Is(err, paymentdomain.ErrPaymentNotFound):
		return ErrorClassAuth
	case errors.Is(err, ErrSettlementConflict),
		errors.Is(err, paymentdomain.ErrPaymentNotPending):
		return ErrorClassStateConflict
	default:
		return ErrorClassTransient
	}
}

// ClassifyOutcome buckets a callback outcome the same way.
func ClassifyOutcome(outcome Outcome) ErrorClass {
	switch outcome {
	case OutcomeRejectedInvalidSignature, OutcomeRejectedUnknownReference,
		OutcomeRejectedMalformed, OutcomeRejectedAmountMismatch:
		return ErrorClassAuth
	case OutcomeRejectedStateConflict, OutcomeReplayed:
		return ErrorClassStateConflict
	default:
		return ErrorClassNone
	}
}
