package config

import (
	"fmt"
	"strings"
)

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	level := strings.ToLower(strings.TrimSpace(cfg.App.LogLevel))
	if !validLogLevels[level] {
		return fmt.Errorf("app.log_level %q is not one of debug/info/warn/error", cfg.App.LogLevel)
	}
	if strings.TrimSpace(cfg.Bot.Definition) == "" {
		return fmt.Errorf("bot.definition is required")
	}
	if cfg.Notify.Telegram.Enabled {
		if strings.TrimSpace(cfg.Notify.Telegram.BotToken) == "" ||
			strings.TrimSpace(cfg.Notify.Telegram.ChatID) == "" {
			return fmt.Errorf("notify.telegram requires bot_token and chat_id when enabled")
		}
	}
	if cfg.Bus.QueueSize < 0 {
		return fmt.Errorf("bus.queue_size cannot be negative")
	}
	return nil
}
