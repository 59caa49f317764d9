// Package pricing computes charges for subscription transitions.
//
// All amounts are integer minor currency units. Division rounds half up so
// identical inputs always produce identical amounts.
package pricing

import (
	"errors"
	"time"

	catalogdomain "github.com/smallbiznis/settlr/internal/catalog/domain"
	subscriptiondomain "github.com/smallbiznis/settlr/internal/subscription/domain"
)

type Kind string

const (
	KindNew     Kind = "new"
	KindRenew   Kind = "renew"
	KindUpgrade Kind = "upgrade"
)

func (k Kind) Valid() bool {
	switch k {
	case KindNew, KindRenew, KindUpgrade:
		return true
	}
	return false
}

const day = 24 * time.Hour

var (
	ErrInvalidUpgrade  = errors.New("invalid_upgrade")
	ErrInvalidDuration = errors.New("invalid_package_duration")
	ErrInvalidKind     = errors.New("invalid_kind")
	ErrMissingCurrent  = errors.New("current_subscription_required")
)

// QuoteNewOrRenewal charges the package's full price.
func QuoteNewOrRenewal(pkg catalogdomain.PackageDefinition) int64 {
	return pkg.Price
}

// QuoteUpgrade charges the target's daily rate for every whole day left on
// the current subscription. The result keeps the original expiry, so the
// buyer pays only for the remaining window at the new tier.
func QuoteUpgrade(current subscriptiondomain.Subscription, currentPkg, targetPkg catalogdomain.PackageDefinition, now time.Time) (int64, error) {
	if targetPkg.Price <= currentPkg.Price {
		return 0, ErrInvalidUpgrade
	}
	if targetPkg.DurationDays <= 0 {
		return 0, ErrInvalidDuration
	}
	remaining := RemainingDays(now, current.ExpiresAt)
	return divRoundHalfUp(remaining*targetPkg.Price, int64(targetPkg.DurationDays)), nil
}

// RemainingDays counts whole days between now and expiresAt, never negative.
func RemainingDays(now, expiresAt time.Time) int64 {
	if !expiresAt.After(now) {
		return 0
	}
	return int64(expiresAt.Sub(now) / day)
}

// DailyRate is the per-day price, rounded half up. Display only.
func DailyRate(pkg catalogdomain.PackageDefinition) int64 {
	if pkg.DurationDays <= 0 {
		return 0
	}
	return divRoundHalfUp(pkg.Price, int64(pkg.DurationDays))
}

// Quote dispatches on kind. current and currentPkg are required for upgrades.
func Quote(kind Kind, target catalogdomain.PackageDefinition, current *subscriptiondomain.Subscription, currentPkg *catalogdomain.PackageDefinition, now time.Time) (int64, error) {
	switch kind {
	case KindNew, KindRenew:
		return QuoteNewOrRenewal(target), nil
	case KindUpgrade:
		if current == nil || currentPkg == nil {
			return 0, ErrMissingCurrent
		}
		return QuoteUpgrade(*current, *currentPkg, target, now)
	default:
		return 0, ErrInvalidKind
	}
}

func divRoundHalfUp(num, den int64) int64 {
	if den <= 0 {
		return 0
	}
	if num < 0 {
		return -divRoundHalfUp(-num, den)
	}
	q, r := num/den, num%den
	if 2*r >= den {
		q++
	}
	return q
}
