package config

import (
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/90.0.4430.212 Safari/537.36"

type ServerConfig struct {
	Address     string `mapstructure:"address"`
	Environment string `mapstructure:"environment"`
	Enabled     bool   `mapstructure:"enabled"`
}

type APIConfig struct {
	SessionURL      string   `mapstructure:"session_url"`
	PingURLs        []string `mapstructure:"ping_urls"`
	UserAgent       string   `mapstructure:"user_agent"`
	AcceptLanguage  string   `mapstructure:"accept_language"`
	Referer         string   `mapstructure:"referer"`
	ProtocolVersion string   `mapstructure:"protocol_version"`
}

type RequestConfig struct {
	Timeout     string  `mapstructure:"timeout"`
	MaxAttempts int     `mapstructure:"max_attempts"`
	BackoffBase float64 `mapstructure:"backoff_base"`
	BackoffUnit string  `mapstructure:"backoff_unit"`
}

type HeartbeatConfig struct {
	Interval         string `mapstructure:"interval"`
	FailureThreshold int    `mapstructure:"failure_threshold"`
}

type WorkersConfig struct {
	MaxConcurrent int    `mapstructure:"max_concurrent"`
	ReauthDelay   string `mapstructure:"reauth_delay"`
}

type AccountsConfig struct {
	ProxiesFile string `mapstructure:"proxies_file"`
	TokensFile  string `mapstructure:"tokens_file"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	API       APIConfig       `mapstructure:"api"`
	Request   RequestConfig   `mapstructure:"request"`
	Heartbeat HeartbeatConfig `mapstructure:"heartbeat"`
	Workers   WorkersConfig   `mapstructure:"workers"`
	Accounts  AccountsConfig  `mapstructure:"accounts"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.environment", EnvDev)
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.enabled", true)
	v.SetDefault("api.session_url", "")
	v.SetDefault("api.ping_urls", []string{})
	v.SetDefault("api.user_agent", DefaultUserAgent)
	v.SetDefault("api.accept_language", "en-US,en;q=0.5")
	v.SetDefault("api.referer", "")
	v.SetDefault("api.protocol_version", "2.2.7")
	v.SetDefault("request.timeout", "15s")
	v.SetDefault("request.max_attempts", 5)
	v.SetDefault("request.backoff_base", 2.0)
	v.SetDefault("request.backoff_unit", "1s")
	v.SetDefault("heartbeat.interval", "60s")
	v.SetDefault("heartbeat.failure_threshold", 2)
	v.SetDefault("workers.max_concurrent", 100)
	v.SetDefault("workers.reauth_delay", "0s")
	v.SetDefault("accounts.proxies_file", "proxies.txt")
	v.SetDefault("accounts.tokens_file", "tokens.txt")
	v.SetDefault("storage.driver", StorageMemory)
	v.SetDefault("storage.dsn", "sessions.db")
	v.SetDefault("logging.level", LogLevelInfo)
}

func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Warn("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

// RequestTimeout is the per-attempt timeout. Validate guarantees the
// duration strings parse, so the accessors below never see an error.
func (c *Config) RequestTimeout() time.Duration {
	return parseDuration(c.Request.Timeout)
}

func (c *Config) BackoffUnit() time.Duration {
	return parseDuration(c.Request.BackoffUnit)
}

func (c *Config) HeartbeatInterval() time.Duration {
	return parseDuration(c.Heartbeat.Interval)
}

func (c *Config) ReauthDelay() time.Duration {
	return parseDuration(c.Workers.ReauthDelay)
}

func parseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Environment,
						validation.Required,
						validation.In(EnvDev, EnvStaging, EnvProd),
					),
					validation.Field(&sc.Address,
						validation.Required,
						validation.By(validateHostPort),
					),
				)
			}),
		),
		validation.Field(&c.Logging,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
				)
			}),
		),
		validation.Field(&c.API,
			validation.Required,
			validation.By(func(value interface{}) error {
				ac, ok := value.(APIConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be an APIConfig")
				}
				return validation.ValidateStruct(&ac,
					validation.Field(&ac.SessionURL,
						validation.Required,
						validation.By(validateEndpointURL),
					),
					validation.Field(&ac.PingURLs,
						validation.Required,
						validation.Length(1, 0),
						validation.Each(validation.By(validateEndpointURL)),
					),
					validation.Field(&ac.UserAgent, validation.Required),
					validation.Field(&ac.ProtocolVersion, validation.Required),
				)
			}),
		),
		validation.Field(&c.Request,
			validation.Required,
			validation.By(func(value interface{}) error {
				rc, ok := value.(RequestConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a RequestConfig")
				}
				return validation.ValidateStruct(&rc,
					validation.Field(&rc.Timeout,
						validation.Required,
						validation.By(validatePositiveDuration),
					),
					validation.Field(&rc.MaxAttempts,
						validation.Required,
						validation.Min(1),
					),
					validation.Field(&rc.BackoffBase,
						validation.Required,
						validation.Min(1.0),
					),
					validation.Field(&rc.BackoffUnit,
						validation.Required,
						validation.By(validateDuration),
					),
				)
			}),
		),
		validation.Field(&c.Heartbeat,
			validation.Required,
			validation.By(func(value interface{}) error {
				hc, ok := value.(HeartbeatConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a HeartbeatConfig")
				}
				return validation.ValidateStruct(&hc,
					validation.Field(&hc.Interval,
						validation.Required,
						validation.By(validatePositiveDuration),
					),
					validation.Field(&hc.FailureThreshold,
						validation.Min(0),
					),
				)
			}),
		),
		validation.Field(&c.Workers,
			validation.Required,
			validation.By(func(value interface{}) error {
				wc, ok := value.(WorkersConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a WorkersConfig")
				}
				return validation.ValidateStruct(&wc,
					validation.Field(&wc.MaxConcurrent,
						validation.Required,
						validation.Min(1),
					),
					validation.Field(&wc.ReauthDelay,
						validation.Required,
						validation.By(validateDuration),
					),
				)
			}),
		),
		validation.Field(&c.Accounts,
			validation.Required,
			validation.By(func(value interface{}) error {
				ac, ok := value.(AccountsConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be an AccountsConfig")
				}
				return validation.ValidateStruct(&ac,
					validation.Field(&ac.TokensFile, validation.Required),
				)
			}),
		),
		validation.Field(&c.Storage,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(StorageConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a StorageConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Driver,
						validation.Required,
						validation.In(StorageMemory, StorageSQLite, StoragePostgres),
					),
					validation.Field(&sc.DSN,
						validation.When(sc.Driver != StorageMemory, validation.Required),
					),
				)
			}),
		),
	)
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

func validateDuration(value interface{}) error {
	durationStr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	d, err := time.ParseDuration(durationStr)
	if err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 2s, 5m, 1h)")
	}

	if d < 0 {
		return validation.NewError("validation_negative_duration", "must not be negative")
	}

	return nil
}

func validatePositiveDuration(value interface{}) error {
	if err := validateDuration(value); err != nil {
		return err
	}

	if d, _ := time.ParseDuration(value.(string)); d == 0 {
		return validation.NewError("validation_zero_duration", "must be greater than zero")
	}

	return nil
}

func validateEndpointURL(value interface{}) error {
	endpoint, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if endpoint == "" {
		return validation.NewError("validation_empty_url", "endpoint URL cannot be empty")
	}

	parsedURL, err := url.Parse(endpoint)
	if err != nil {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return validation.NewError("validation_invalid_scheme", "URL must use http or https scheme")
	}

	if parsedURL.Host == "" {
		return validation.NewError("validation_missing_host", "URL must have a host")
	}

	return nil
}
