// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/viper"
)

type Config struct {
	ProgramID        string   `mapstructure:"program_id"`
	PostgresURL      string   `mapstructure:"postgres_url"`
	Workers          int      `mapstructure:"workers"`
	Retries          int      `mapstructure:"retries"`
	RetryDelayMs     int      `mapstructure:"retry_delay_ms"`
	EmitterAllowList []string `mapstructure:"emitter_allow_list"`
	RetentionDays    int      `mapstructure:"retention_days"`
	EventBufferSize  int      `mapstructure:"event_buffer_size"`
	DebugLogging     bool     `mapstructure:"debug_logging"`
	LogFile          string   `mapstructure:"log_file"`
}

const (
	DefaultWorkers         = 4
	DefaultRetries         = 5
	DefaultRetryDelayMs    = 500
	DefaultRetentionDays   = 30
	DefaultEventBufferSize = 100
	DefaultLogFile         = "settler.log"
)

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	defaults := map[string]interface{}{
		"workers":           DefaultWorkers,
		"retries":           DefaultRetries,
		"retry_delay_ms":    DefaultRetryDelayMs,
		"retention_days":    DefaultRetentionDays,
		"event_buffer_size": DefaultEventBufferSize,
		"log_file":          DefaultLogFile,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := loadEnvironmentVariables(v, &cfg); err != nil {
		return nil, err
	}

	return &cfg, validateConfig(&cfg)
}

func validateConfig(cfg *Config) error {
	if cfg.ProgramID == "" {
		return errors.New("missing program_id in configuration")
	}
	if _, err := solana.PublicKeyFromBase58(cfg.ProgramID); err != nil {
		return errors.New("program_id is not a valid base58 public key")
	}
	for _, e := range cfg.EmitterAllowList {
		if !strings.Contains(e, "/") {
			return errors.New("emitter_allow_list entries must be chain/address")
		}
	}
	return validateNumericParams(cfg)
}

func validateNumericParams(cfg *Config) error {
	if cfg.Workers < 0 {
		return errors.New("invalid workers count")
	}
	if cfg.Retries < 0 {
		return errors.New("invalid retries count")
	}
	if cfg.RetryDelayMs <= 0 {
		return errors.New("invalid retry_delay_ms")
	}
	if cfg.RetentionDays < 0 {
		return errors.New("invalid retention_days")
	}
	if cfg.EventBufferSize <= 0 {
		return errors.New("invalid event_buffer_size")
	}
	return nil
}

func loadEnvironmentVariables(v *viper.Viper, cfg *Config) error {
	v.AutomaticEnv()
	v.SetEnvPrefix("POOLBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	envProgramID := v.GetString("PROGRAM_ID")
	if envProgramID != "" {
		cfg.ProgramID = envProgramID
	}

	envPostgres := v.GetString("POSTGRES_URL")
	if envPostgres != "" {
		cfg.PostgresURL = envPostgres
	}

	envEmitters := v.GetString("EMITTER_ALLOW_LIST")
	if envEmitters != "" {
		parts := strings.Split(envEmitters, ",")
		var clean []string
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				clean = append(clean, trimmed)
			}
		}
		if len(clean) > 0 {
			cfg.EmitterAllowList = clean
		}
	}
	return nil
}
