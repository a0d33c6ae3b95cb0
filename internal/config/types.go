package config

import "strings"

// Config is the process-level configuration. Bot definitions live in
// their own file referenced by Bot.Definition.
type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Bot    BotConfig    `mapstructure:"bot"`
	Bus    BusConfig    `mapstructure:"bus"`
	Notify NotifyConfig `mapstructure:"notify"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
	HTTPAddr string `mapstructure:"http_addr"`
	LogPath  string `mapstructure:"log_path"`
	DataDir  string `mapstructure:"data_dir"`
}

// BotConfig locates and tunes the bot runtime.
type BotConfig struct {
	Definition       string `mapstructure:"definition"`
	WatchDefinition  bool   `mapstructure:"watch_definition"`
	StopGraceSeconds int    `mapstructure:"stop_grace_seconds"`
}

type BusConfig struct {
	QueueSize int `mapstructure:"queue_size"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

// keySet tracks which field paths the config files explicitly set, so
// defaults never overwrite a deliberate zero value.
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault is one default rule: applied when the key was not set and
// the target still needs a value.
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
