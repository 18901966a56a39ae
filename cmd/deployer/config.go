package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/artpar/deployer/internal/shell/tracing"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Network  NetworkConfig  `mapstructure:"network"`
	Deployer DeployerConfig `mapstructure:"deployer"`
	Log      LogConfig      `mapstructure:"log"`
	Journal  JournalConfig  `mapstructure:"journal"`
	Tracing  tracing.Config `mapstructure:"tracing"`
}

// NetworkConfig holds node connection settings.
type NetworkConfig struct {
	Endpoint            string        `mapstructure:"endpoint"`
	NetworkName         string        `mapstructure:"network_name"`
	From                string        `mapstructure:"from"`
	GasPrice            uint64        `mapstructure:"gas_price"`
	Timeout             time.Duration `mapstructure:"timeout"`
	PollInterval        time.Duration `mapstructure:"poll_interval"`
	ConfirmationTimeout time.Duration `mapstructure:"confirmation_timeout"`
}

// DeployerConfig holds the per-run options.
type DeployerConfig struct {
	ContractInputPath string `mapstructure:"contract_input_path"`
	AddressOutputPath string `mapstructure:"address_output_path"`
	BlockOutputPath   string `mapstructure:"block_output_path"`

	UseNormalTime         bool `mapstructure:"use_normal_time"`
	CreateGenesisUniverse bool `mapstructure:"create_genesis_universe"`
	IsProduction          bool `mapstructure:"is_production"`

	// ControllerAddress reuses an existing registry when set.
	ControllerAddress               string `mapstructure:"controller_address"`
	GenesisDenominationTokenAddress string `mapstructure:"genesis_denomination_token_address"`

	LibraryPrefix  string           `mapstructure:"library_prefix"`
	PolicyPath     string           `mapstructure:"policy_path"`
	MaxConcurrency int              `mapstructure:"max_concurrency"`
	Provenance     ProvenanceConfig `mapstructure:"provenance"`
}

// ProvenanceConfig controls where the source-revision marker comes from.
type ProvenanceConfig struct {
	Override string `mapstructure:"override"`
	Dir      string `mapstructure:"dir"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// JournalConfig holds deployment journal configuration.
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from defaults, the optional file, the
// environment and finally any flags bound by bind.
func LoadConfig(configPath string, bind func(v *viper.Viper) error) (*Config, error) {
	v := viper.New()

	v.SetDefault("network.endpoint", "http://localhost:8545")
	v.SetDefault("network.network_name", "environment")
	v.SetDefault("network.from", "")
	v.SetDefault("network.gas_price", 20_000_000_000)
	v.SetDefault("network.timeout", "30s")
	v.SetDefault("network.poll_interval", "1s")
	v.SetDefault("network.confirmation_timeout", "5m")

	v.SetDefault("deployer.contract_input_path", "./output/contracts/contracts.json")
	v.SetDefault("deployer.address_output_path", "./output/contracts/addresses.json")
	v.SetDefault("deployer.block_output_path", "./output/contracts/upload-block-numbers.json")
	v.SetDefault("deployer.use_normal_time", false)
	v.SetDefault("deployer.create_genesis_universe", true)
	v.SetDefault("deployer.is_production", false)
	v.SetDefault("deployer.controller_address", "")
	v.SetDefault("deployer.genesis_denomination_token_address", "")
	v.SetDefault("deployer.library_prefix", "libraries/")
	v.SetDefault("deployer.policy_path", "")
	v.SetDefault("deployer.max_concurrency", 8)
	v.SetDefault("deployer.provenance.override", "")
	v.SetDefault("deployer.provenance.dir", ".")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("journal.enabled", true)
	v.SetDefault("journal.dsn", "./data/deployer.db")

	tc := tracing.DefaultConfig()
	v.SetDefault("tracing.enabled", tc.Enabled)
	v.SetDefault("tracing.exporter", tc.Exporter)
	v.SetDefault("tracing.file_path", tc.FilePath)
	v.SetDefault("tracing.otlp_endpoint", tc.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", tc.SampleRate)
	v.SetDefault("tracing.service_name", tc.ServiceName)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			// A missing file leaves the defaults in place
		}
	}

	v.SetEnvPrefix("DEPLOYER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if bind != nil {
		if err := bind(v); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
func SetupLogger(cfg *Config, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler)
}
