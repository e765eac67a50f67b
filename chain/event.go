package chain

import (
	"github.com/holiman/uint256"
)

// Event is a record emitted by a contract during a committed call.
// Argument values are strings: decimal for amounts, hex for addresses.
// This keeps events stable across JSON, CSV, and SQLite round trips.
type Event struct {
	Contract Address           `json:"contract"`
	Name     string            `json:"event"`
	Args     map[string]string `json:"args,omitempty"`
}

// Arg formats an amount for use as an event argument.
func Arg(amount *uint256.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.Dec()
}

// ArgAddr formats an address for use as an event argument.
func ArgAddr(addr Address) string {
	return addr.Hex()
}
