package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// MessagesConfig overrides buyer-facing gateway messages, keyed by locale then response code.
type MessagesConfig struct {
	Messages map[string]map[string]string `mapstructure:"messages"`
}

type MessagesHolder struct {
	current atomic.Value // holds MessagesConfig
}

// NewMessagesHolder loads settlement.yml when present and keeps it reloaded.
func NewMessagesHolder() (*MessagesHolder, error) {
	v := viper.New()

	v.SetConfigName("settlement")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/settlr/config")
	v.AddConfigPath("/etc/settlr")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SETTLR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	holder := &MessagesHolder{}
	holder.current.Store(MessagesConfig{})

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		return holder, nil
	}

	var cfg MessagesConfig
	if err := v.UnmarshalKey("gateway", &cfg); err != nil {
		return nil, err
	}
	if err := validateMessages(cfg); err != nil {
		return nil, err
	}
	holder.current.Store(normalizeMessages(cfg))

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated MessagesConfig
		if err := v.UnmarshalKey("gateway", &updated); err != nil {
			log.Printf("[settlement-config] reload failed: %v", err)
			return
		}
		if err := validateMessages(updated); err != nil {
			log.Printf("[settlement-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(normalizeMessages(updated))
		log.Printf("[settlement-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticMessagesHolder wraps a fixed message set.
func NewStaticMessagesHolder(cfg MessagesConfig) *MessagesHolder {
	holder := &MessagesHolder{}
	holder.current.Store(normalizeMessages(cfg))
	return holder
}

func (h *MessagesHolder) Get() MessagesConfig {
	if h == nil {
		return MessagesConfig{}
	}
	return h.current.Load().(MessagesConfig)
}

// Lookup returns the override message for locale and code.
func (h *MessagesHolder) Lookup(locale, code string) (string, bool) {
	byCode, ok := h.Get().Messages[strings.ToLower(strings.TrimSpace(locale))]
	if !ok {
		return "", false
	}
	msg, ok := byCode[strings.TrimSpace(code)]
	if !ok || strings.TrimSpace(msg) == "" {
		return "", false
	}
	return msg, true
}

func validateMessages(cfg MessagesConfig) error {
	for locale, byCode := range cfg.Messages {
		if strings.TrimSpace(locale) == "" {
			return errors.New("gateway.messages locale cannot be empty")
		}
		for code := range byCode {
			if len(strings.TrimSpace(code)) != 2 {
				return errors.New("gateway.messages codes must be two characters")
			}
		}
	}
	return nil
}

func normalizeMessages(cfg MessagesConfig) MessagesConfig {
	out := MessagesConfig{Messages: make(map[string]map[string]string, len(cfg.Messages))}
	for locale, byCode := range cfg.Messages {
		key := strings.ToLower(strings.TrimSpace(locale))
		if out.Messages[key] == nil {
			out.Messages[key] = make(map[string]string, len(byCode))
		}
		for code, msg := range byCode {
			out.Messages[key][strings.TrimSpace(code)] = msg
		}
	}
	return out
}
