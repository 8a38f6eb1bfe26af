package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides (QBSYNC_QBWC_USERNAME, ...)
const EnvPrefix = "QBSYNC"

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Server    ServerConfig
	QBWC      QBWCConfig
	Sync      SyncConfig
	Catalog   CatalogConfig
	Redis     RedisConfig
	Ledger    LedgerConfig
	Journal   JournalConfig
	Log       LogConfig
	Telemetry TelemetryConfig
	QWC       QWCConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string `validate:"oneof=development staging production test"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Host            string
	Port            int           `validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `validate:"min=0"`
	WriteTimeout    time.Duration `validate:"min=0"`
	IdleTimeout     time.Duration `validate:"min=0"`
	ShutdownTimeout time.Duration `validate:"min=0"`
	MaxBodySize     int64         `validate:"min=1"`
}

// Addr returns host:port for the listener
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// QBWCConfig holds the Web Connector handshake settings
type QBWCConfig struct {
	Username         string
	Password         string
	PasswordHash     string // bcrypt hash, used instead of Password when set
	CompanyFile      string
	ServerVersion    string
	MinClientVersion string
	QBXMLVersion     string        `validate:"required"`
	SessionTTL       time.Duration `validate:"min=0"`
}

// SyncConfig holds event delivery settings
type SyncConfig struct {
	AdjustmentAccount string `validate:"required"`
	BatchSize         int    `validate:"min=1,max=100"`
	AutoCreateItems   bool
	IncomeAccount     string
	COGSAccount       string
	AssetAccount      string
}

// CatalogConfig holds catalog cache settings
type CatalogConfig struct {
	Source           string `validate:"oneof=snapshot live"`
	Path             string
	RefreshInterval  time.Duration `validate:"min=0"`
	PageSize         int           `validate:"min=0,max=10000"`
	QueryMode        string        `validate:"oneof=inventory compat"`
	FallbackHResults []string
	MirrorPath       string
	S3               S3Config
}

// S3Config holds settings for s3:// catalog snapshots
type S3Config struct {
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// RedisConfig holds the catalog mirror's Redis settings; empty Addr disables it
type RedisConfig struct {
	Addr     string
	Password string
	DB       int `validate:"min=0"`
	Key      string
}

// LedgerConfig holds queue transport settings
type LedgerConfig struct {
	Transport string `validate:"oneof=cli http"`
	Command   string
	EnvFile   string
	Prod      bool
	Dir       string
	BaseURL   string `validate:"omitempty,url"`
	Token     string
	Timeout   time.Duration `validate:"min=0"`
}

// JournalConfig holds request journal settings
type JournalConfig struct {
	Enabled  bool
	Driver   string `validate:"oneof=sqlite postgres"`
	DSN      string
	LogLevel string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string `validate:"oneof=json console"`
	Output string // stdout, stderr, or file path
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string
	SamplingRatio     float64 `validate:"min=0,max=1"`
	ServiceName       string
	Insecure          bool
	MetricsInterval   time.Duration `validate:"min=0"`
}

// QWCConfig holds Web Connector descriptor settings
type QWCConfig struct {
	AppName         string
	AppURL          string `validate:"omitempty,url"`
	CertURL         string `validate:"omitempty,url"`
	AppDescription  string
	AppSupport      string
	OwnerID         string
	FileID          string
	RunEveryMinutes int `validate:"min=1"`
	ReadOnly        bool
	Output          string
}

// envAliases maps config keys to the unprefixed variables of existing deployments
var envAliases = map[string][]string{
	"server.host":             {"QBWC_BIND_HOST"},
	"server.port":             {"QBWC_BIND_PORT"},
	"qbwc.username":           {"QBWC_USERNAME"},
	"qbwc.password":           {"QBWC_PASSWORD"},
	"qbwc.company_file":       {"QB_COMPANY_FILE"},
	"qbwc.qbxml_version":      {"QBXML_VERSION"},
	"qbwc.server_version":     {"QBWC_SERVER_VERSION"},
	"qbwc.min_client_version": {"QBWC_MIN_CLIENT_VERSION"},
	"sync.adjustment_account": {"QB_ADJUSTMENT_ACCOUNT_DEFAULT"},
	"ledger.env_file":         {"CONVEX_ENV_FILE"},
	"ledger.prod":             {"CONVEX_RUN_PROD"},
	"catalog.path":            {"QB_ITEMS_CSV"},
	"qwc.app_name":            {"QBWC_APP_NAME"},
	"qwc.app_url":             {"QBWC_APP_URL"},
	"qwc.cert_url":            {"QBWC_CERT_URL"},
	"qwc.app_description":     {"QBWC_APP_DESCRIPTION"},
	"qwc.app_support":         {"QBWC_APP_SUPPORT_URL"},
	"qwc.owner_id":            {"QBWC_OWNER_ID"},
	"qwc.file_id":             {"QBWC_FILE_ID"},
	"qwc.run_every_minutes":   {"QBWC_RUN_EVERY_N_MINUTES"},
	"qwc.read_only":           {"QBWC_IS_READ_ONLY"},
	"qwc.output":              {"QBWC_QWC_OUTPUT"},
}

// Load loads configuration from an optional TOML file, .env and environment variables.
// Priority (highest to lowest):
// 1. Environment variables with QBSYNC_ prefix (e.g., QBSYNC_QBWC_PASSWORD)
// 2. Unprefixed deployment variables (QBWC_PASSWORD, QB_ITEMS_CSV, ...)
// 3. config.toml, or configFile when given
// 4. Built-in defaults
func Load(configFile string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/qbsync")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, aliases := range envAliases {
		names := append([]string{EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, aliases...)
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
		},
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			Port:            v.GetInt("server.port"),
			ReadTimeout:     v.GetDuration("server.read_timeout"),
			WriteTimeout:    v.GetDuration("server.write_timeout"),
			IdleTimeout:     v.GetDuration("server.idle_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
			MaxBodySize:     v.GetInt64("server.max_body_size"),
		},
		QBWC: QBWCConfig{
			Username:         trimmed(v, "qbwc.username"),
			Password:         trimmed(v, "qbwc.password"),
			PasswordHash:     trimmed(v, "qbwc.password_hash"),
			CompanyFile:      trimmed(v, "qbwc.company_file"),
			ServerVersion:    trimmed(v, "qbwc.server_version"),
			MinClientVersion: trimmed(v, "qbwc.min_client_version"),
			QBXMLVersion:     trimmed(v, "qbwc.qbxml_version"),
			SessionTTL:       v.GetDuration("qbwc.session_ttl"),
		},
		Sync: SyncConfig{
			AdjustmentAccount: trimmed(v, "sync.adjustment_account"),
			BatchSize:         v.GetInt("sync.batch_size"),
			AutoCreateItems:   parseFlag(v.GetString("sync.auto_create_items")),
			IncomeAccount:     trimmed(v, "sync.income_account"),
			COGSAccount:       trimmed(v, "sync.cogs_account"),
			AssetAccount:      trimmed(v, "sync.asset_account"),
		},
		Catalog: CatalogConfig{
			Source:           strings.ToLower(trimmed(v, "catalog.source")),
			Path:             trimmed(v, "catalog.path"),
			RefreshInterval:  v.GetDuration("catalog.refresh_interval"),
			PageSize:         v.GetInt("catalog.page_size"),
			QueryMode:        strings.ToLower(trimmed(v, "catalog.query_mode")),
			FallbackHResults: splitList(v.GetStringSlice("catalog.fallback_hresults")),
			MirrorPath:       trimmed(v, "catalog.mirror_path"),
			S3: S3Config{
				Region:       trimmed(v, "catalog.s3.region"),
				Endpoint:     trimmed(v, "catalog.s3.endpoint"),
				AccessKey:    trimmed(v, "catalog.s3.access_key"),
				SecretKey:    trimmed(v, "catalog.s3.secret_key"),
				UsePathStyle: v.GetBool("catalog.s3.use_path_style"),
			},
		},
		Redis: RedisConfig{
			Addr:     trimmed(v, "redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			Key:      trimmed(v, "redis.key"),
		},
		Ledger: LedgerConfig{
			Transport: strings.ToLower(trimmed(v, "ledger.transport")),
			Command:   trimmed(v, "ledger.command"),
			EnvFile:   trimmed(v, "ledger.env_file"),
			Prod:      parseFlag(v.GetString("ledger.prod")),
			Dir:       trimmed(v, "ledger.dir"),
			BaseURL:   trimmed(v, "ledger.base_url"),
			Token:     trimmed(v, "ledger.token"),
			Timeout:   v.GetDuration("ledger.timeout"),
		},
		Journal: JournalConfig{
			Enabled:  parseFlag(v.GetString("journal.enabled")),
			Driver:   strings.ToLower(trimmed(v, "journal.driver")),
			DSN:      trimmed(v, "journal.dsn"),
			LogLevel: trimmed(v, "journal.log_level"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           parseFlag(v.GetString("telemetry.enabled")),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
		},
		QWC: QWCConfig{
			AppName:         trimmed(v, "qwc.app_name"),
			AppURL:          trimmed(v, "qwc.app_url"),
			CertURL:         trimmed(v, "qwc.cert_url"),
			AppDescription:  trimmed(v, "qwc.app_description"),
			AppSupport:      trimmed(v, "qwc.app_support"),
			OwnerID:         trimmed(v, "qwc.owner_id"),
			FileID:          trimmed(v, "qwc.file_id"),
			RunEveryMinutes: v.GetInt("qwc.run_every_minutes"),
			ReadOnly:        parseFlag(v.GetString("qwc.read_only")),
			Output:          trimmed(v, "qwc.output"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func trimmed(v *viper.Viper, key string) string {
	return strings.TrimSpace(v.GetString(key))
}

// splitList flattens comma separated entries, as env values arrive as one string
func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// parseFlag accepts the truthy spellings existing deployments use
func parseFlag(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "qbsync"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8085
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 2 * time.Minute
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 2 * time.Minute
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}
	if cfg.Server.MaxBodySize == 0 {
		cfg.Server.MaxBodySize = 32 << 20 // catalog pages can be large
	}
	if cfg.QBWC.ServerVersion == "" {
		cfg.QBWC.ServerVersion = "190Group-QBWC-0.1.0"
	}
	if cfg.QBWC.QBXMLVersion == "" {
		cfg.QBWC.QBXMLVersion = "13.0"
	}
	if cfg.QBWC.SessionTTL == 0 {
		cfg.QBWC.SessionTTL = 30 * time.Minute
	}
	if cfg.Sync.AdjustmentAccount == "" {
		cfg.Sync.AdjustmentAccount = "Inventory Adjustments"
	}
	if cfg.Sync.BatchSize == 0 {
		cfg.Sync.BatchSize = 10
	}
	if cfg.Catalog.Source == "" {
		cfg.Catalog.Source = "snapshot"
	}
	if cfg.Catalog.Path == "" {
		cfg.Catalog.Path = ".tmp/qb_items_export.csv"
	}
	if cfg.Catalog.PageSize == 0 {
		cfg.Catalog.PageSize = 1000
	}
	if cfg.Catalog.QueryMode == "" {
		cfg.Catalog.QueryMode = "inventory"
	}
	if len(cfg.Catalog.FallbackHResults) == 0 {
		cfg.Catalog.FallbackHResults = []string{"0x80040400"}
	}
	if cfg.Catalog.MirrorPath == "" && cfg.Catalog.Source == "live" {
		cfg.Catalog.MirrorPath = ".tmp/qb_items_live_from_qbwc.csv"
	}
	if cfg.Ledger.Transport == "" {
		cfg.Ledger.Transport = "cli"
	}
	if cfg.Ledger.Command == "" {
		cfg.Ledger.Command = "npx"
	}
	if cfg.Ledger.Timeout == 0 {
		cfg.Ledger.Timeout = 30 * time.Second
	}
	if cfg.Journal.Driver == "" {
		cfg.Journal.Driver = "sqlite"
	}
	if cfg.Journal.DSN == "" && cfg.Journal.Driver == "sqlite" {
		cfg.Journal.DSN = ".tmp/qbsync_journal.db"
	}
	if cfg.Journal.LogLevel == "" {
		cfg.Journal.LogLevel = "warn"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "qbsync"
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 30 * time.Second
	}
	if cfg.QWC.AppName == "" {
		cfg.QWC.AppName = "190 Group QB Sync"
	}
	if cfg.QWC.AppDescription == "" {
		cfg.QWC.AppDescription = "Sync inventory events from Convex into QuickBooks Desktop Enterprise."
	}
	if cfg.QWC.OwnerID == "" {
		cfg.QWC.OwnerID = "{57F3B9B1-86F1-4fcc-B1EE-566DE1813D20}"
	}
	if cfg.QWC.RunEveryMinutes == 0 {
		cfg.QWC.RunEveryMinutes = 15
	}
	if cfg.QWC.Output == "" {
		cfg.QWC.Output = ".tmp/qb_inventory_sync.qwc"
	}
}

var structValidator = validator.New()

// validate performs validation on the configuration
func (c *Config) validate() error {
	if err := structValidator.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config %s: failed %q (%s)", fe.Namespace(), fe.Tag(), fe.Param())
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if (c.QBWC.Username == "") != (c.QBWC.Password == "" && c.QBWC.PasswordHash == "") {
		return fmt.Errorf("qbwc.username and qbwc.password must be set together")
	}
	if c.Catalog.Source == "live" && c.Catalog.PageSize < 1 {
		return fmt.Errorf("catalog.page_size must be positive for a live catalog")
	}
	if c.Ledger.Transport == "http" && c.Ledger.BaseURL == "" {
		return fmt.Errorf("ledger.base_url is required for the http transport")
	}
	if c.Journal.Enabled && c.Journal.DSN == "" {
		return fmt.Errorf("journal.dsn is required when the journal is enabled")
	}

	if c.App.Env == "production" {
		if c.QBWC.Username == "" {
			return fmt.Errorf("qbwc.username is required in production")
		}
		if c.Telemetry.Enabled && c.Telemetry.Insecure {
			return fmt.Errorf("telemetry.insecure must be false in production")
		}
	}

	return nil
}
