package app

import (
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/agentstation/sheetsync/internal/mirror"
	"github.com/agentstation/sheetsync/pkg/constants"
	"github.com/agentstation/sheetsync/pkg/errors"
)

// Config holds the application configuration loaded from config files,
// environment variables and .env files. Each field's env tag names the
// variable it is read from and the name reported when it is missing.
type Config struct {
	// Global flags
	Verbose bool
	Quiet   bool
	NoColor bool
	Format  string

	// Config file
	ConfigFile string

	// Source
	SheetsID        string `env:"SHEETS_ID" validate:"required_without=XLSXPath"`
	CredentialsPath string `env:"GOOGLE_CREDENTIALS_PATH"`
	Worksheet       string `env:"SHEETS_WORKSHEET"`
	XLSXPath        string `env:"XLSX_PATH"`

	// Catalog
	ShopURL     string `env:"SHOPIFY_SHOP_URL" validate:"required"`
	AccessToken string `env:"SHOPIFY_ACCESS_TOKEN" validate:"required"`
	APIVersion  string `env:"SHOPIFY_API_VERSION"`
	Vendor      string `env:"SHOPIFY_VENDOR"`

	// Pacing
	SyncInterval time.Duration `env:"SYNC_INTERVAL" validate:"gt=0"`
	RecordDelay  time.Duration `env:"RECORD_DELAY" validate:"gte=0"`

	// Persistence
	MirrorDSN string `env:"MIRROR_DSN"`
	StateDSN  string `env:"STATE_DSN"`
	RedisURL  string `env:"REDIS_URL"`

	// Status server
	StatusAddr  string `env:"STATUS_ADDR"`
	StatusToken string `env:"STATUS_TOKEN"`

	Environment string `env:"ENVIRONMENT"`

	// Logging configuration
	LogLevel     string `env:"LOG_LEVEL"`
	LogLevelFlag string
	LogFormat    string `env:"LOG_FORMAT"`
	LogOutput    string
	Debug        bool `env:"DEBUG"`
}

// LoadConfig loads configuration from all sources in order of precedence:
// 1. Command-line flags (handled by cobra)
// 2. Environment variables
// 3. .env files
// 4. Config file (~/.sheetsync.yaml or ./.sheetsync.yaml)
// 5. Defaults
//
// LoadConfig does not validate; call Validate once flags are applied.
func LoadConfig(configFile string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.NewConfigError("config", "cannot read "+configFile, err)
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(".sheetsync")
		// Read config file (ignore error if not found)
		_ = v.ReadInConfig()
	}

	v.SetDefault("google_credentials_path", constants.DefaultCredentialsPath)
	v.SetDefault("sheets_worksheet", constants.DefaultWorksheet)
	v.SetDefault("shopify_api_version", constants.DefaultAPIVersion)
	v.SetDefault("shopify_vendor", constants.DefaultVendor)
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "auto")
	v.SetDefault("log_output", "stderr")

	interval, err := parseInterval(v.GetString("sync_interval"), constants.DefaultSyncInterval)
	if err != nil {
		return nil, errors.NewConfigError("SYNC_INTERVAL", err.Error(), err)
	}
	delay, err := parseInterval(v.GetString("record_delay"), constants.DefaultRecordDelay)
	if err != nil {
		return nil, errors.NewConfigError("RECORD_DELAY", err.Error(), err)
	}

	config := &Config{
		Verbose:    v.GetBool("verbose"),
		Quiet:      v.GetBool("quiet"),
		NoColor:    v.GetBool("no_color"),
		Format:     v.GetString("format"),
		ConfigFile: v.ConfigFileUsed(),

		SheetsID:        v.GetString("sheets_id"),
		CredentialsPath: v.GetString("google_credentials_path"),
		Worksheet:       v.GetString("sheets_worksheet"),
		XLSXPath:        v.GetString("xlsx_path"),

		ShopURL:     v.GetString("shopify_shop_url"),
		AccessToken: v.GetString("shopify_access_token"),
		APIVersion:  v.GetString("shopify_api_version"),
		Vendor:      v.GetString("shopify_vendor"),

		SyncInterval: interval,
		RecordDelay:  delay,

		MirrorDSN: v.GetString("mirror_dsn"),
		StateDSN:  v.GetString("state_dsn"),
		RedisURL:  v.GetString("redis_url"),

		StatusAddr:  v.GetString("status_addr"),
		StatusToken: v.GetString("status_token"),

		Environment: v.GetString("environment"),

		LogLevel:  v.GetString("log_level"),
		LogFormat: v.GetString("log_format"),
		LogOutput: v.GetString("log_output"),
		Debug:     v.GetBool("debug"),
	}

	// DB_* is the legacy way to point at the postgres mirror.
	if config.MirrorDSN == "" && v.GetString("db_host") != "" {
		config.MirrorDSN = mirror.PostgresDSN(
			v.GetString("db_host"),
			v.GetString("db_port"),
			v.GetString("db_name"),
			v.GetString("db_user"),
			v.GetString("db_password"),
			v.GetString("db_ssl_mode"),
		)
	}

	return config, nil
}

// UpdateFromFlags updates config values from parsed command flags.
// This should be called after cobra parses flags to ensure flag
// values take precedence over config file and env vars.
func (c *Config) UpdateFromFlags(verbose, quiet, noColor bool, format, logLevel string) {
	c.Verbose = verbose
	c.Quiet = quiet
	c.NoColor = noColor
	if format != "" {
		c.Format = format
	}
	c.LogLevelFlag = logLevel
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("env"); name != "" {
			return name
		}
		return f.Name
	})
	return v
}

// Validate checks the options needed to run a cycle. Every missing option is
// reported in one ConfigError; other rule failures are reported by env name.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return errors.NewConfigError("config", err.Error(), err)
	}

	var missing, invalid []string
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required", "required_without":
			missing = append(missing, fe.Field())
		default:
			invalid = append(invalid, fe.Field()+" must be "+fe.Tag()+" "+fe.Param())
		}
	}
	if len(missing) > 0 {
		return errors.NewMissingConfigError("config", missing)
	}
	return errors.NewConfigError("config", strings.Join(invalid, ", "), nil)
}

// loadEnvFiles loads environment variables from .env files.
// Variables already set in the environment win.
func loadEnvFiles() {
	for _, envFile := range []string{".env", ".env.local"} {
		_ = godotenv.Load(envFile)
	}
}

// parseInterval accepts whole seconds ("30") or a Go duration ("1m30s").
func parseInterval(raw string, def time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(n * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, errors.NewValidationError("interval", raw, "must be seconds or a duration such as 30s")
	}
	return d, nil
}
