// Package signature implements the keyed-hash tag exchanged with the
// payment gateway on both the redirect and the callback.
package signature

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

const (
	FieldSecureHash     = "vnp_SecureHash"
	FieldSecureHashType = "vnp_SecureHashType"
)

// DefaultTagFields are excluded from the canonical string.
var DefaultTagFields = []string{FieldSecureHash, FieldSecureHashType}

// Canonical renders params as sorted, url-encoded key=value pairs joined by '&'.
// Tag fields and empty values do not participate.
func Canonical(params url.Values, tagFields ...string) string {
	if len(tagFields) == 0 {
		tagFields = DefaultTagFields
	}
	skip := make(map[string]struct{}, len(tagFields))
	for _, f := range tagFields {
		skip[f] = struct{}{}
	}

	keys := make([]string, 0, len(params))
	for key := range params {
		if _, ok := skip[key]; ok {
			continue
		}
		if params.Get(key) == "" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, key := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params.Get(key)))
	}
	return b.String()
}

// Sign returns the lowercase hex HMAC-SHA512 of the canonical form.
func Sign(params url.Values, secret string, tagFields ...string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(Canonical(params, tagFields...)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether tag authenticates params under secret.
func Verify(params url.Values, tag string, secret string, tagFields ...string) bool {
	tag = strings.TrimSpace(tag)
	if tag == "" || secret == "" {
		return false
	}
	given, err := hex.DecodeString(strings.ToLower(tag))
	if err != nil {
		return false
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(Canonical(params, tagFields...)))
	return hmac.Equal(given, mac.Sum(nil))
}
