package config

import (
	"fmt"
	"strconv"

	"github.com/spf13/pflag"
)

// QuoteConfig holds configuration for the quote command.
type QuoteConfig struct {
	StateFile string
	Pools     []uint16
	AmountIn  uint64
	Direction string
	LPAmount  uint64
	LogLevel  string
}

// LoadQuote merges config file, environment variables, and flags into QuoteConfig.
func LoadQuote(cfgFile string, flags *pflag.FlagSet) (QuoteConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"state-file": "./data/state.json",
		"direction":  "x-to-y",
		"log-level":  "warn",
	})
	if err != nil {
		return QuoteConfig{}, err
	}

	pools, err := parsePoolIDs(getStringSlice(v, "pool"))
	if err != nil {
		return QuoteConfig{}, err
	}

	cfg := QuoteConfig{
		StateFile: v.GetString("state-file"),
		Pools:     pools,
		AmountIn:  v.GetUint64("amount"),
		Direction: v.GetString("direction"),
		LPAmount:  v.GetUint64("lp"),
		LogLevel:  v.GetString("log-level"),
	}
	if _, err := cfg.IsXToY(); err != nil {
		return QuoteConfig{}, err
	}

	return cfg, nil
}

// IsXToY interprets Direction.
func (c QuoteConfig) IsXToY() (bool, error) {
	switch c.Direction {
	case "x-to-y", "xy", "":
		return true, nil
	case "y-to-x", "yx":
		return false, nil
	}
	return false, fmt.Errorf("invalid direction %q (want x-to-y or y-to-x)", c.Direction)
}

func parsePoolIDs(items []string) ([]uint16, error) {
	out := make([]uint16, 0, len(items))
	for _, item := range items {
		id, err := strconv.ParseUint(item, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid pool id %q: %w", item, err)
		}
		out = append(out, uint16(id))
	}
	return out, nil
}
