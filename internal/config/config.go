package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type ServerEnv = string

var (
	DevEnv     ServerEnv = "dev"
	StagingEnv ServerEnv = "staging"
	ProdEnv    ServerEnv = "prod"
)

const (
	GENERAL_CONFIG_KEY = "general-config"
	RPC_CONFIG_KEY     = "rpc-config"
	VENUE_CONFIG_KEY   = "venue-config"
	SWAP_CONFIG_KEY    = "swap-config"
	JOURNAL_CONFIG_KEY = "journal-config"

	EnvPrefix      = "SWAP_ENGINE"
	ConfigFileName = "swap-engine"
)

// Section is one independently loaded and validated part of the configuration.
type Section interface {
	Key() string
	Load(v *viper.Viper) error
	Validate() error
}

// Config is built once at start-up and passed by value to whatever needs it.
type Config struct {
	General GeneralConfig
	RPC     RPCConfig
	Venue   VenueConfig
	Swap    SwapConfig
	Journal JournalConfig
}

func (c *Config) sections() []Section {
	return []Section{&c.General, &c.RPC, &c.Venue, &c.Swap, &c.Journal}
}

// Load reads .env (if present), an optional swap-engine.yaml and SWAP_ENGINE_* variables.
// Environment variables win over the file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName(ConfigFileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return LoadFrom(v)
}

// LoadFrom fills every section from v.
func LoadFrom(v *viper.Viper) (Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	for _, s := range cfg.sections() {
		if err := s.Load(v); err != nil {
			return Config{}, fmt.Errorf("%s: %w", s.Key(), err)
		}
		if err := s.Validate(); err != nil {
			return Config{}, fmt.Errorf("%s: %w", s.Key(), err)
		}
	}
	return cfg, nil
}

type GeneralConfig struct {
	HTTPPort string
	HTTPHost string
	Env      string
	LogLevel string
	// LogFile enables a rotating log file next to console output.
	LogFile string
	// PrivateToken is the bearer token of the private routes. Empty disables them.
	PrivateToken string
}

func (gc *GeneralConfig) Key() string {
	return GENERAL_CONFIG_KEY
}

func (gc *GeneralConfig) Load(v *viper.Viper) error {
	v.SetDefault("http.port", "8080")
	v.SetDefault("http.host", "localhost")
	v.SetDefault("env", DevEnv)
	v.SetDefault("log.level", "INFO")

	gc.HTTPPort = v.GetString("http.port")
	gc.HTTPHost = v.GetString("http.host")
	gc.Env = v.GetString("env")
	gc.LogLevel = v.GetString("log.level")
	gc.LogFile = v.GetString("log.file")
	gc.PrivateToken = v.GetString("http.private_token")
	return nil
}

func (gc *GeneralConfig) Validate() error {
	if gc.HTTPPort == "" || gc.HTTPHost == "" || gc.Env == "" {
		return errors.New("invalid server config")
	}
	return nil
}

func (gc *GeneralConfig) Addr() string {
	return gc.HTTPHost + ":" + gc.HTTPPort
}
