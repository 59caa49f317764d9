package gateway

import (
	"github.com/smallbiznis/settlr/internal/config"
)

// MessageCatalog resolves buyer-facing messages, preferring operator overrides.
type MessageCatalog struct {
	holder *config.MessagesHolder
}

func NewMessageCatalog(holder *config.MessagesHolder) *MessageCatalog {
	return &MessageCatalog{holder: holder}
}

func (c *MessageCatalog) Message(locale, code string) string {
	locale = NormalizeLocale(locale)
	rc := LookupCode(code)
	if c != nil && c.holder != nil {
		if msg, ok := c.holder.Lookup(locale, rc.Code); ok {
			return msg
		}
	}
	return rc.Message(locale)
}
