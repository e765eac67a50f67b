// Package deploy drives the two-contract deployment: construct the
// token ledger with its full pre-mint, construct the sale, and fund the
// sale's allotment with a ledger transfer. It also provides the
// scripted demo scenario and the bridge from world events into an
// event store.
package deploy

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/holiman/uint256"
)

// Config holds the deployment parameters. Amounts are decimal strings:
// token quantities in units, the price in currency per unit.
type Config struct {
	TokenName   string `json:"token_name"`
	TokenSymbol string `json:"token_symbol"`
	MaxSupply   string `json:"max_supply"`
	Price       string `json:"price"`
	Allotment   string `json:"allotment"`
}

// DefaultConfig returns the standard sale: one million tokens, all
// allotted, priced at 0.025 ether per token.
func DefaultConfig() Config {
	return Config{
		TokenName:   "Dapp University",
		TokenSymbol: "DAPP",
		MaxSupply:   "1000000",
		Price:       "25000000000000000", // 0.025 ether
		Allotment:   "1000000",
	}
}

// LoadConfig reads a JSON config file. Missing fields fall back to the
// defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func (c Config) parse() (maxSupply, price, allotment *uint256.Int, err error) {
	maxSupply, err = uint256.FromDecimal(c.MaxSupply)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("max_supply: %w", err)
	}
	price, err = uint256.FromDecimal(c.Price)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("price: %w", err)
	}
	allotment, err = uint256.FromDecimal(c.Allotment)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("allotment: %w", err)
	}
	if allotment.Gt(maxSupply) {
		return nil, nil, nil, fmt.Errorf("allotment %s exceeds max supply %s",
			allotment.Dec(), maxSupply.Dec())
	}
	return maxSupply, price, allotment, nil
}

// Ether converts a whole-ether count to its base-denomination value.
func Ether(n uint64) *uint256.Int {
	wei := new(uint256.Int).SetUint64(1_000_000_000_000_000_000)
	return wei.Mul(wei, uint256.NewInt(n))
}
