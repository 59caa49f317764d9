package domain

import "time"

type ViewState string

const (
	ViewStateProcessing     ViewState = "processing"
	ViewStatePendingOverdue ViewState = "pending_overdue"
	ViewStateCompleted      ViewState = "completed"
	ViewStateFailed         ViewState = "failed"
	ViewStateRefunded       ViewState = "refunded"
)

// StatusView is what a buyer sees when polling a payment.
type StatusView struct {
	Reference    string     `json:"reference"`
	State        ViewState  `json:"state"`
	Amount       int64      `json:"amount"`
	Currency     string     `json:"currency"`
	Kind         string     `json:"kind,omitempty"`
	ResponseCode string     `json:"response_code,omitempty"`
	PaidAt       *time.Time `json:"paid_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	Explanation  string     `json:"explanation,omitempty"`
}

// Describe distinguishes a payment still in flight from one whose callback
// has not arrived within pendingAfter.
func Describe(p Payment, now time.Time, pendingAfter time.Duration) StatusView {
	view := StatusView{
		Reference: p.Reference,
		Amount:    p.Amount,
		Currency:  p.Currency,
		PaidAt:    p.PaidAt,
		CreatedAt: p.CreatedAt,
	}
	if data, err := p.GatewayData(); err == nil {
		view.Kind = data.Kind
		view.ResponseCode = data.ResponseCode
	}

	switch p.Status {
	case PaymentStatusCompleted:
		view.State = ViewStateCompleted
	case PaymentStatusFailed:
		view.State = ViewStateFailed
	case PaymentStatusRefunded:
		view.State = ViewStateRefunded
	default:
		view.State = ViewStateProcessing
		if pendingAfter > 0 && now.Sub(p.CreatedAt) >= pendingAfter {
			view.State = ViewStatePendingOverdue
			view.Explanation = "the gateway has not confirmed this payment yet; it will be settled when the confirmation arrives"
		}
	}
	return view
}
