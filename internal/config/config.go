// Package config loads settings from struct defaults, an optional YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Calendar backends.
const (
	BackendGoogle = "google"
	BackendCalDAV = "caldav"
	BackendMemory = "memory"
)

// Chat transports.
const (
	TransportTelegram = "telegram"
	TransportDiscord  = "discord"
	TransportSlack    = "slack"
	TransportConsole  = "console"
)

// Config holds every setting. Keys match the environment variable names, lower-cased.
type Config struct {
	OllamaModelName string   `koanf:"ollama_model_name"`
	OllamaURL       string   `koanf:"ollama_url"`
	Temperature     *float64 `koanf:"temperature"`

	Transport        string `koanf:"transport"`
	TelegramToken    string `koanf:"telegram_token"`
	TelegramChatID   int64  `koanf:"telegram_chat_id"`
	DiscordToken     string `koanf:"discord_token"`
	DiscordChannelID string `koanf:"discord_channel_id"`
	SlackBotToken    string `koanf:"slack_bot_token"`
	SlackAppToken    string `koanf:"slack_app_token"`
	SlackChannelID   string `koanf:"slack_channel_id"`

	CalendarBackend               string `koanf:"calendar_backend"`
	GoogleCalendarCredentialsPath string `koanf:"google_calendar_credentials_path"`
	GoogleCalendarTokenPath       string `koanf:"google_calendar_token_path"`
	GoogleCalendarID              string `koanf:"google_calendar_id"`
	GoogleClientID                string `koanf:"google_client_id"`
	GoogleClientSecret            string `koanf:"google_client_secret"`
	ICloudUsername                string `koanf:"icloud_username"`
	ICloudAppSpecificPassword     string `koanf:"icloud_app_specific_password"`
	ICloudCalendarName            string `koanf:"icloud_calendar_name"`
	CalDAVURL                     string `koanf:"caldav_url"`

	Timezone    string `koanf:"timezone"`
	LogLevel    string `koanf:"log_level"`
	MetricsAddr string `koanf:"metrics_addr"`
}

// Defaults returns the settings used when nothing else is configured.
func Defaults() Config {
	return Config{
		Transport:        TransportTelegram,
		CalendarBackend:  BackendGoogle,
		GoogleCalendarID: "primary",
		CalDAVURL:        "https://caldav.icloud.com/",
		Timezone:         "UTC",
		LogLevel:         "info",
	}
}

// Load reads .env, then layers defaults, the YAML file at path (if any) and the environment.
func Load(path string) (Config, error) {
	// A missing .env file is fine.
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("error loading config defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("error loading config from %s: %w", path, err)
			}
		}
	}

	err := k.Load(env.Provider(".", env.Opt{
		TransformFunc: func(k, v string) (string, any) {
			if v == "" {
				return "", nil
			}
			return strings.ToLower(k), v
		},
	}), nil)
	if err != nil {
		return Config{}, fmt.Errorf("error loading config from environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("error decoding config: %w", err)
	}
	return cfg, nil
}

// Requirements selects which groups of settings a command needs.
type Requirements struct {
	Model     bool
	Calendar  bool
	Transport string // empty when no chat transport runs
}

// Validate reports every missing or invalid setting for req.
func (c Config) Validate(req Requirements) error {
	var missing []string
	require := func(value, key string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, key)
		}
	}
	var problems []error

	if _, err := c.Location(); err != nil {
		problems = append(problems, err)
	}

	if req.Model {
		require(c.OllamaModelName, "OLLAMA_MODEL_NAME")
		require(c.OllamaURL, "OLLAMA_URL")
		if c.Temperature == nil {
			missing = append(missing, "TEMPERATURE")
		} else if *c.Temperature < 0 || *c.Temperature > 2 {
			problems = append(problems, fmt.Errorf("TEMPERATURE must be between 0 and 2, got %v", *c.Temperature))
		}
	}

	if req.Calendar {
		switch c.CalendarBackend {
		case BackendGoogle:
			require(c.GoogleCalendarTokenPath, "GOOGLE_CALENDAR_TOKEN_PATH")
			if c.GoogleCalendarCredentialsPath == "" && (c.GoogleClientID == "" || c.GoogleClientSecret == "") {
				missing = append(missing, "GOOGLE_CALENDAR_CREDENTIALS_PATH")
			}
		case BackendCalDAV:
			require(c.ICloudUsername, "ICLOUD_USERNAME")
			require(c.ICloudAppSpecificPassword, "ICLOUD_APP_SPECIFIC_PASSWORD")
			require(c.ICloudCalendarName, "ICLOUD_CALENDAR_NAME")
		case BackendMemory:
		default:
			problems = append(problems, fmt.Errorf("unknown CALENDAR_BACKEND %q (want google, caldav or memory)", c.CalendarBackend))
		}
	}

	switch req.Transport {
	case "", TransportConsole:
	case TransportTelegram:
		require(c.TelegramToken, "TELEGRAM_TOKEN")
	case TransportDiscord:
		require(c.DiscordToken, "DISCORD_TOKEN")
	case TransportSlack:
		require(c.SlackBotToken, "SLACK_BOT_TOKEN")
		require(c.SlackAppToken, "SLACK_APP_TOKEN")
	default:
		problems = append(problems, fmt.Errorf("unknown TRANSPORT %q (want telegram, discord, slack or console)", req.Transport))
	}

	if len(missing) > 0 {
		problems = append([]error{fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))}, problems...)
	}
	return errors.Join(problems...)
}

// Location loads the configured timezone.
func (c Config) Location() (*time.Location, error) {
	if strings.TrimSpace(c.Timezone) == "" {
		return nil, errors.New("TIMEZONE must not be empty")
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// TemperatureValue returns the configured temperature, or 0 when unset.
func (c Config) TemperatureValue() float64 {
	if c.Temperature == nil {
		return 0
	}
	return *c.Temperature
}
