package config

import (
	"github.com/spf13/viper"

	"github.com/hxuan190/swap-engine/internal/domain"
)

type SwapConfig struct {
	DefaultSlippageBps     uint16
	DefaultDeadlineMinutes int
	// Urgency is the default fee urgency: low, medium, high or extreme.
	Urgency string
	// Simulate runs an eth_call pre-flight of every swap before it is signed.
	Simulate bool
	// AllowForeignRecipient lets the server key sign swaps paying out to another address.
	AllowForeignRecipient bool

	PairCacheSize int
	MaxSessions   int
}

func (c *SwapConfig) Key() string {
	return SWAP_CONFIG_KEY
}

func (c *SwapConfig) Load(v *viper.Viper) error {
	v.SetDefault("swap.slippage_bps", domain.DefaultSlippageBps)
	v.SetDefault("swap.deadline_minutes", domain.DefaultDeadlineMinutes)
	v.SetDefault("swap.urgency", "medium")
	v.SetDefault("swap.simulate", true)
	v.SetDefault("swap.pair_cache_size", 1024)
	v.SetDefault("swap.max_sessions", 10_000)

	c.DefaultSlippageBps = uint16(v.GetUint32("swap.slippage_bps"))
	c.DefaultDeadlineMinutes = v.GetInt("swap.deadline_minutes")
	c.Urgency = v.GetString("swap.urgency")
	c.Simulate = v.GetBool("swap.simulate")
	c.AllowForeignRecipient = v.GetBool("swap.allow_foreign_recipient")
	c.PairCacheSize = v.GetInt("swap.pair_cache_size")
	c.MaxSessions = v.GetInt("swap.max_sessions")
	return nil
}

func (c *SwapConfig) Validate() error {
	if err := domain.ValidateSlippageBps(c.DefaultSlippageBps); err != nil {
		return err
	}
	return domain.ValidateDeadlineMinutes(c.DefaultDeadlineMinutes)
}
