package config

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

var (
	ErrGatewayMerchantRequired = errors.New("gateway_merchant_code_required")
	ErrGatewaySecretRequired   = errors.New("gateway_hash_secret_required")
	ErrGatewayPayURLInvalid    = errors.New("gateway_pay_url_invalid")
	ErrGatewayReturnURLInvalid = errors.New("gateway_return_url_invalid")
)

// GatewayConfig carries the payment gateway credentials and contract settings.
// It is passed by value into the signer and the settlement service and never
// read from process-wide state afterwards.
type GatewayConfig struct {
	Version      string
	Command      string
	MerchantCode string
	HashSecret   string
	PayURL       string
	ReturnURL    string
	Currency     string
	Locale       string
	OrderType    string
	TimeZone     string
	ExpireAfter  time.Duration
	PendingAfter time.Duration
}

func (g GatewayConfig) Validate() error {
	if strings.TrimSpace(g.MerchantCode) == "" {
		return ErrGatewayMerchantRequired
	}
	if strings.TrimSpace(g.HashSecret) == "" {
		return ErrGatewaySecretRequired
	}
	if !validAbsoluteURL(g.PayURL) {
		return ErrGatewayPayURLInvalid
	}
	if !validAbsoluteURL(g.ReturnURL) {
		return ErrGatewayReturnURLInvalid
	}
	return nil
}

// Location resolves the gateway timezone used for create/expire timestamps.
func (g GatewayConfig) Location() *time.Location {
	name := strings.TrimSpace(g.TimeZone)
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		// tzdata may be missing in slim images; the gateway runs on UTC+7.
		return time.FixedZone("ICT", 7*60*60)
	}
	return loc
}

func ProvideGateway(cfg Config) (GatewayConfig, error) {
	gw := cfg.Gateway
	if err := gw.Validate(); err != nil {
		return GatewayConfig{}, err
	}
	return gw, nil
}

func validAbsoluteURL(raw string) bool {
	parsed, err := url.ParseRequestURI(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return parsed.Scheme != "" && parsed.Host != ""
}
