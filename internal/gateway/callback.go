package gateway

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
)

var ErrMalformedCallback = errors.New("malformed_callback")

// Callback is the parsed, already authenticated gateway result.
type Callback struct {
	Reference         string
	Amount            int64
	ResponseCode      string
	TransactionStatus string
	TransactionNo     string
	BankCode          string
	PayDate           string
}

// ParseCallback extracts the fields settlement relies on. It does not verify
// the signature.
func ParseCallback(params url.Values) (Callback, error) {
	cb := Callback{
		Reference:         strings.TrimSpace(params.Get(ParamReference)),
		ResponseCode:      strings.TrimSpace(params.Get(ParamResponseCode)),
		TransactionStatus: strings.TrimSpace(params.Get(ParamTransactionStatus)),
		TransactionNo:     strings.TrimSpace(params.Get(ParamTransactionNo)),
		BankCode:          strings.TrimSpace(params.Get(ParamBankCode)),
		PayDate:           strings.TrimSpace(params.Get(ParamPayDate)),
	}
	if cb.Reference == "" || cb.ResponseCode == "" {
		return Callback{}, ErrMalformedCallback
	}

	raw := strings.TrimSpace(params.Get(ParamAmount))
	scaled, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || scaled < 0 || scaled%amountScale != 0 {
		return Callback{}, ErrMalformedCallback
	}
	cb.Amount = scaled / amountScale
	return cb, nil
}

// Succeeded reports whether the gateway says the buyer was charged.
func (c Callback) Succeeded() bool {
	if c.ResponseCode != CodeSuccess {
		return false
	}
	return c.TransactionStatus == "" || c.TransactionStatus == CodeSuccess
}

// OutcomeCode is the code used to explain the result to the buyer.
func (c Callback) OutcomeCode() string {
	if c.ResponseCode == CodeSuccess && c.TransactionStatus != "" && c.TransactionStatus != CodeSuccess {
		return c.TransactionStatus
	}
	return c.ResponseCode
}
