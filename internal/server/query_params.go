package server

import (
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/settlr/internal/gateway"
)

func parseOptionalSnowflakeID(value string) (*snowflake.ID, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := snowflake.ParseString(trimmed)
	if err != nil || parsed == 0 {
		return nil, errors.New("invalid_snowflake_id")
	}
	return &parsed, nil
}

// pathSnowflakeID reads a required id path parameter.
func pathSnowflakeID(c *gin.Context, name string) (snowflake.ID, error) {
	id, err := parseOptionalSnowflakeID(c.Param(name))
	if err != nil || id == nil {
		return 0, newValidationError(name, "invalid_"+name, "invalid "+name)
	}
	return *id, nil
}

// requestLocale picks the buyer locale from the query or Accept-Language,
// falling back to the configured default.
func requestLocale(c *gin.Context, fallback string) string {
	if locale := strings.TrimSpace(c.Query("locale")); locale != "" {
		return gateway.NormalizeLocale(locale)
	}
	accept := strings.ToLower(strings.TrimSpace(c.GetHeader("Accept-Language")))
	switch {
	case strings.HasPrefix(accept, "en"):
		return gateway.LocaleEnglish
	case strings.HasPrefix(accept, "vi"):
		return gateway.LocaleVietnamese
	}
	return gateway.NormalizeLocale(fallback)
}
