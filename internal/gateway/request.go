package gateway

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/smallbiznis/settlr/internal/config"
	"github.com/smallbiznis/settlr/internal/signature"
)

var ErrInvalidRequest = errors.New("invalid_gateway_request")

const maxOrderInfoLen = 255

// PaymentRequest is everything needed to send a buyer to the hosted page.
type PaymentRequest struct {
	Reference   string
	Amount      int64
	Description string
	ClientIP    string
	Locale      string
	BankCode    string
	CreatedAt   time.Time
}

// BuildPaymentURL signs the redirect parameters and returns the full URL
// together with the sealed parameter set.
func BuildPaymentURL(cfg config.GatewayConfig, signer *signature.Signer, req PaymentRequest) (string, url.Values, error) {
	if signer == nil || strings.TrimSpace(req.Reference) == "" || req.Amount < 0 || req.CreatedAt.IsZero() {
		return "", nil, ErrInvalidRequest
	}
	base, err := url.Parse(cfg.PayURL)
	if err != nil {
		return "", nil, err
	}

	loc := cfg.Location()
	params := url.Values{}
	params.Set(ParamVersion, defaultString(cfg.Version, "2.1.0"))
	params.Set(ParamCommand, defaultString(cfg.Command, "pay"))
	params.Set(ParamMerchantCode, cfg.MerchantCode)
	params.Set(ParamAmount, strconv.FormatInt(req.Amount*amountScale, 10))
	params.Set(ParamCurrency, defaultString(cfg.Currency, "VND"))
	params.Set(ParamReference, req.Reference)
	params.Set(ParamOrderInfo, OrderInfo(req.Description, req.Reference))
	params.Set(ParamOrderType, defaultString(cfg.OrderType, "other"))
	params.Set(ParamLocale, NormalizeLocale(defaultString(req.Locale, cfg.Locale)))
	params.Set(ParamReturnURL, cfg.ReturnURL)
	params.Set(ParamClientIP, defaultString(req.ClientIP, "127.0.0.1"))
	params.Set(ParamCreateDate, req.CreatedAt.In(loc).Format(DateLayout))
	if cfg.ExpireAfter > 0 {
		params.Set(ParamExpireDate, req.CreatedAt.Add(cfg.ExpireAfter).In(loc).Format(DateLayout))
	}
	if code := strings.TrimSpace(req.BankCode); code != "" {
		params.Set(ParamBankCode, code)
	}

	sealed := signer.Seal(params)
	base.RawQuery = sealed.Encode()
	return base.String(), sealed, nil
}

// OrderInfo renders an ASCII description; the gateway rejects diacritics.
func OrderInfo(description, reference string) string {
	text := slug.Make(description)
	text = strings.ReplaceAll(text, "-", " ")
	if text == "" {
		text = "payment"
	}
	text = text + " " + reference
	if len(text) > maxOrderInfoLen {
		text = text[:maxOrderInfoLen]
	}
	return text
}

func NormalizeLocale(locale string) string {
	switch strings.ToLower(strings.TrimSpace(locale)) {
	case LocaleEnglish:
		return LocaleEnglish
	default:
		return LocaleVietnamese
	}
}

func defaultString(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
