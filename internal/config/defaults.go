package config

import "strings"

const (
	defaultAppEnv           = "dev"
	defaultAppLogLevel      = "info"
	defaultAppHTTPAddr      = ":9991"
	defaultAppLogPath       = "data/logs/botkit.log"
	defaultAppDataDir       = "data/state"
	defaultBotDefinition    = "configs/bots/demo-bot.json"
	defaultStopGraceSeconds = 5
	defaultBusQueueSize     = 256
)

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Bot.applyDefaults(keys)
	c.Bus.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
		stringFieldDefault("app.data_dir", &a.DataDir, defaultAppDataDir),
	)
}

func (b *BotConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("bot.definition", &b.Definition, defaultBotDefinition),
		fieldDefault{
			key:   "bot.stop_grace_seconds",
			need:  func() bool { return b.StopGraceSeconds <= 0 },
			apply: func() { b.StopGraceSeconds = defaultStopGraceSeconds },
		},
	)
}

func (b *BusConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "bus.queue_size",
			need:  func() bool { return b.QueueSize <= 0 },
			apply: func() { b.QueueSize = defaultBusQueueSize },
		},
	)
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
