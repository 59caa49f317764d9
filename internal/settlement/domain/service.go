package domain

import (
	"context"
	"net/url"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/smallbiznis/settlr/internal/payment/domain"
	subscriptiondomain "github.com/smallbiznis/settlr/internal/subscription/domain"
)

type Service interface {
	Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error)
	// ApplyCallback returns a Result for every authenticated or rejected
	// callback. A non-nil error means nothing was applied and the gateway
	// should retry.
	ApplyCallback(ctx context.Context, raw url.Values) (Result, error)
	CancelSubscription(ctx context.Context, ownerID, subscriptionID snowflake.ID) (*subscriptiondomain.Subscription, error)
	PaymentStatus(ctx context.Context, reference string) (paymentdomain.StatusView, error)
	Entitlement(ctx context.Context, ownerID snowflake.ID) (Entitlement, error)
}
