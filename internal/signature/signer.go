package signature

import (
	"errors"
	"net/url"

	"github.com/smallbiznis/settlr/internal/config"
)

var ErrMissingSecret = errors.New("signature_secret_required")

// Signer binds the shared secret once so callers never handle it.
type Signer struct {
	secret    string
	tagField  string
	tagFields []string
}

func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	return &Signer{
		secret:    secret,
		tagField:  FieldSecureHash,
		tagFields: DefaultTagFields,
	}, nil
}

// ProvideSigner builds the signer from the immutable gateway configuration.
func ProvideSigner(cfg config.GatewayConfig) (*Signer, error) {
	return NewSigner(cfg.HashSecret)
}

func (s *Signer) Sign(params url.Values) string {
	return Sign(params, s.secret, s.tagFields...)
}

// Verify checks the tag carried inside params.
func (s *Signer) Verify(params url.Values) bool {
	return Verify(params, params.Get(s.tagField), s.secret, s.tagFields...)
}

// Seal returns a copy of params with the tag field appended.
func (s *Signer) Seal(params url.Values) url.Values {
	out := make(url.Values, len(params)+1)
	for key, values := range params {
		out[key] = append([]string(nil), values...)
	}
	out.Del(FieldSecureHashType)
	out.Set(s.tagField, s.Sign(params))
	return out
}
