package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

type RPCConfig struct {
	RPCUrl string
	// SignerKey is the hex private key used by the CLI and by server-side signing. Empty means
	// transactions are only prepared and must be signed by the client.
	SignerKey string

	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (r *RPCConfig) Key() string {
	return RPC_CONFIG_KEY
}

func (r *RPCConfig) Load(v *viper.Viper) error {
	v.SetDefault("rpc.url", "https://mainnet.base.org")
	v.SetDefault("rpc.max_retries", 3)
	v.SetDefault("rpc.initial_interval", 200*time.Millisecond)
	v.SetDefault("rpc.max_interval", 2*time.Second)

	r.RPCUrl = v.GetString("rpc.url")
	r.SignerKey = v.GetString("signer.key")
	r.MaxRetries = v.GetInt("rpc.max_retries")
	r.InitialInterval = v.GetDuration("rpc.initial_interval")
	r.MaxInterval = v.GetDuration("rpc.max_interval")
	return nil
}

func (r *RPCConfig) Validate() error {
	if r.RPCUrl == "" {
		return errors.New("invalid rpc config: url is required")
	}
	if r.MaxRetries < 0 {
		return errors.New("invalid rpc config: max_retries must not be negative")
	}
	return nil
}
