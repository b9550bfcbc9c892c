package config

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

// Base mainnet deployments
const (
	BaseChainID = 8453

	DefaultV2Factory = "0x8909Dc15e40173Ff4699343b6eB8132c65e18eC6"
	DefaultV2Router  = "0x4752ba5DBc23f44D87826276BF6Fd6b1C372aD24"
	DefaultBridge    = "0x4200000000000000000000000000000000000006" // WETH
)

// VenueConfig holds the contract addresses of both venues. The concentrated liquidity venue
// is optional; without a quoter only constant-product routes are considered.
type VenueConfig struct {
	ChainID uint64

	V2Factory common.Address
	V2Router  common.Address
	// V2Fee is in per mille of the input.
	V2Fee uint16

	V3Quoter common.Address
	V3Router common.Address
	// V3Fee is the pool fee tier in hundredths of a bip (3000 = 0.3%).
	V3Fee uint32

	Bridge common.Address
}

func (c *VenueConfig) Key() string {
	return VENUE_CONFIG_KEY
}

func (c *VenueConfig) Load(v *viper.Viper) error {
	v.SetDefault("chain_id", BaseChainID)
	v.SetDefault("v2.factory", DefaultV2Factory)
	v.SetDefault("v2.router", DefaultV2Router)
	v.SetDefault("v2.fee", 3)
	v.SetDefault("v3.fee", 3000)
	v.SetDefault("bridge", DefaultBridge)

	c.ChainID = v.GetUint64("chain_id")
	c.V2Fee = uint16(v.GetUint32("v2.fee"))
	c.V3Fee = v.GetUint32("v3.fee")

	var err error
	if c.V2Factory, err = parseAddress(v, "v2.factory"); err != nil {
		return err
	}
	if c.V2Router, err = parseAddress(v, "v2.router"); err != nil {
		return err
	}
	if c.V3Quoter, err = parseAddress(v, "v3.quoter"); err != nil {
		return err
	}
	if c.V3Router, err = parseAddress(v, "v3.router"); err != nil {
		return err
	}
	if c.Bridge, err = parseAddress(v, "bridge"); err != nil {
		return err
	}
	return nil
}

func (c *VenueConfig) Validate() error {
	if c.ChainID != BaseChainID {
		return fmt.Errorf("unsupported chain id %d, only Base (%d) is supported", c.ChainID, BaseChainID)
	}
	if c.V2Factory == (common.Address{}) || c.V2Router == (common.Address{}) {
		return errors.New("v2 factory and router are required")
	}
	if c.Bridge == (common.Address{}) {
		return errors.New("bridge token is required")
	}
	if c.V2Fee >= 1000 {
		return fmt.Errorf("v2 fee %d must be below 1000 per mille", c.V2Fee)
	}
	if c.HasV3() && c.V3Router == (common.Address{}) {
		return errors.New("v3 router is required when a v3 quoter is configured")
	}
	if c.HasV3() && (c.V3Fee == 0 || c.V3Fee >= 1_000_000) {
		return fmt.Errorf("invalid v3 fee tier %d", c.V3Fee)
	}
	return nil
}

// HasV3 reports whether the concentrated liquidity venue is configured.
func (c *VenueConfig) HasV3() bool {
	return c.V3Quoter != (common.Address{})
}

// parseAddress reads an optional address; empty yields the zero address.
func parseAddress(v *viper.Viper, key string) (common.Address, error) {
	raw := v.GetString(key)
	if raw == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", key, raw)
	}
	return common.HexToAddress(raw), nil
}
