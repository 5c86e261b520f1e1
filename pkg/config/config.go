// Package config provides configuration management for the bot.
// The bot configuration lives in a TOML file that is rewritten atomically when it changes;
// process bootstrap settings come from the environment.
package config

import (
	"maps"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

var (
	Version   = "dev-local"
	BuildTime = "today"
)

// Transport names accepted in bot.transport
const (
	TransportTelegram = "telegram"
	TransportDiscord  = "discord"
)

// Config holds the persisted bot configuration
type Config struct {
	Bot      BotConfig      `toml:"bot"`
	Telegram TelegramConfig `toml:"telegram"`
	Discord  DiscordConfig  `toml:"discord"`
	Database DatabaseConfig `toml:"database"`
	MQTT     MQTTConfig     `toml:"mqtt"`
	Web      WebConfig      `toml:"web"`
	Logging  LoggingConfig  `toml:"logging"`
	Stats    StatsConfig    `toml:"stats"`
}

// BotConfig holds the core bot options
type BotConfig struct {
	Prefix          string `toml:"prefix"`
	Transport       string `toml:"transport"`
	OwnerID         string `toml:"owner_id"`
	ModulesManifest string `toml:"modules_manifest"`
}

// TelegramConfig holds the Telegram credentials
type TelegramConfig struct {
	APIID   int64  `toml:"api_id"`
	APIHash string `toml:"api_hash"`
	BotKey  string `toml:"bot_key"`
}

// DiscordConfig holds the Discord credentials
type DiscordConfig struct {
	Token string `toml:"token"`
}

// DatabaseConfig holds the MongoDB connection settings
type DatabaseConfig struct {
	MongoDBURL string `toml:"mongodb_url"`
	Name       string `toml:"name"`
}

// MQTTConfig holds the audit broker settings. An empty host disables MQTT.
type MQTTConfig struct {
	Host     string `toml:"host"`
	Port     string `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Topic    string `toml:"topic"`
}

// WebConfig holds the status API settings. An empty port disables the server.
type WebConfig struct {
	Port string `toml:"port"`
}

// LoggingConfig holds the webhook targets for log fan-out
type LoggingConfig struct {
	ErrorWebhook string `toml:"error_webhook"`
	LogsWebhook  string `toml:"logs_webhook"`
}

// StatsConfig holds counters that modules update at runtime
type StatsConfig struct {
	Processed int64            `toml:"processed"`
	Commands  map[string]int64 `toml:"commands"`
}

// Default returns a configuration with every optional value filled in
func Default() *Config {
	return &Config{
		Bot: BotConfig{
			Prefix:    "/",
			Transport: TransportTelegram,
		},
		Database: DatabaseConfig{
			MongoDBURL: "mongodb://localhost:27017",
			Name:       "complaintbot",
		},
		MQTT: MQTTConfig{
			Port:  "1883",
			Topic: "complaintbot/commands",
		},
		Stats: StatsConfig{
			Commands: map[string]int64{},
		},
	}
}

// Clone returns a deep copy of c
func (c *Config) Clone() *Config {
	out := *c
	out.Stats.Commands = maps.Clone(c.Stats.Commands)
	return &out
}

// Secrets returns every non-empty credential, for redaction of outgoing text
func (c *Config) Secrets() []string {
	var secrets []string
	if c.Telegram.APIID != 0 {
		secrets = append(secrets, strconv.FormatInt(c.Telegram.APIID, 10))
	}
	for _, s := range []string{c.Telegram.APIHash, c.Telegram.BotKey, c.Discord.Token} {
		if s != "" {
			secrets = append(secrets, s)
		}
	}
	return secrets
}

// Marshal serializes the configuration as TOML
func Marshal(c *Config) ([]byte, error) {
	return toml.Marshal(c)
}

// Unmarshal parses TOML on top of the defaults
func Unmarshal(data []byte) (*Config, error) {
	c := Default()
	if err := toml.Unmarshal(data, c); err != nil {
		return nil, err
	}
	if c.Stats.Commands == nil {
		c.Stats.Commands = map[string]int64{}
	}
	return c, nil
}
