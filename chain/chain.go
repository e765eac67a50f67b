// Package chain provides the minimal execution environment the sale
// contracts run inside: account identities, native currency balances,
// and call-level atomicity. Every mutating entry point goes through
// World.Call, which checkpoints the world, runs the operation, and
// restores the checkpoint if the operation returns an error. Nested
// contract-to-contract calls share the enclosing call's atomic unit.
package chain

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

var (
	ErrInsufficientFunds  = errors.New("chain: insufficient funds")
	ErrUnknownContract    = errors.New("chain: contract not registered")
	ErrInvariantViolated  = errors.New("chain: contract invariant violated")
	ErrContractCollision  = errors.New("chain: address already registered")
	ErrNilValue           = errors.New("chain: nil value")
)

// Address identifies an account or a contract.
type Address = common.Address

// Account derives a stable externally-owned account address from a label.
// Used by the deploy driver and tests in place of real key management.
func Account(label string) Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("account:" + label))[12:])
}

// Contract is per-address state the world can checkpoint and restore.
type Contract interface {
	// ContractAddress returns the address the contract is registered under.
	ContractAddress() Address

	// Checkpoint returns a deep copy of the contract's state.
	Checkpoint() Contract

	// Restore replaces the contract's state with a checkpoint previously
	// returned by Checkpoint.
	Restore(Contract)
}

// InvariantChecker is implemented by contracts that carry internal
// invariants. When the world's invariant checking is enabled, a failed
// check reverts the call that caused it.
type InvariantChecker interface {
	CheckInvariants() error
}

// World holds native currency balances and registered contracts, and
// serializes all state-mutating calls.
type World struct {
	balances  map[Address]*uint256.Int
	contracts map[Address]Contract
	nonces    map[Address]uint64
	events    []Event

	// CheckInvariants controls whether contract invariants are verified
	// after every call (default: true).
	CheckInvariants bool
}

// NewWorld creates an empty world.
func NewWorld() *World {
	return &World{
		balances:        make(map[Address]*uint256.Int),
		contracts:       make(map[Address]Contract),
		nonces:          make(map[Address]uint64),
		CheckInvariants: true,
	}
}

// NewContractAddress derives the next contract address for a creator,
// using the creator's deployment nonce.
func (w *World) NewContractAddress(creator Address) Address {
	n := w.nonces[creator]
	w.nonces[creator] = n + 1
	return crypto.CreateAddress(creator, n)
}

// Register adds a contract to the world.
func (w *World) Register(c Contract) error {
	addr := c.ContractAddress()
	if _, exists := w.contracts[addr]; exists {
		return fmt.Errorf("%w: %s", ErrContractCollision, addr.Hex())
	}
	w.contracts[addr] = c
	return nil
}

// ContractAt returns the contract registered at addr, or nil.
func (w *World) ContractAt(addr Address) Contract {
	return w.contracts[addr]
}

// Balance returns a copy of an address's native currency balance.
func (w *World) Balance(addr Address) *uint256.Int {
	if b, ok := w.balances[addr]; ok {
		return new(uint256.Int).Set(b)
	}
	return uint256.NewInt(0)
}

// Fund credits native currency to an address. This is the faucet used by
// the deploy driver and tests; there is no corresponding burn.
func (w *World) Fund(addr Address, amount *uint256.Int) {
	if amount == nil {
		return
	}
	b := w.Balance(addr)
	w.balances[addr] = b.Add(b, amount)
}

// pay moves native currency between addresses. All-or-nothing: a failed
// transfer leaves both balances untouched.
func (w *World) pay(from, to Address, amount *uint256.Int) error {
	if amount == nil {
		return ErrNilValue
	}
	if amount.IsZero() {
		return nil
	}
	fromBal := w.Balance(from)
	if fromBal.Lt(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientFunds,
			from.Hex(), fromBal.Dec(), amount.Dec())
	}
	w.balances[from] = fromBal.Sub(fromBal, amount)
	toBal := w.Balance(to)
	w.balances[to] = toBal.Add(toBal, amount)
	return nil
}

// checkpoint captures everything a failed call must roll back.
type checkpoint struct {
	balances  map[Address]*uint256.Int
	contracts map[Address]Contract
	events    int
}

func (w *World) checkpoint() *checkpoint {
	cp := &checkpoint{
		balances:  make(map[Address]*uint256.Int, len(w.balances)),
		contracts: make(map[Address]Contract, len(w.contracts)),
		events:    len(w.events),
	}
	for addr, bal := range w.balances {
		cp.balances[addr] = new(uint256.Int).Set(bal)
	}
	for addr, c := range w.contracts {
		cp.contracts[addr] = c.Checkpoint()
	}
	return cp
}

func (w *World) restore(cp *checkpoint) {
	w.balances = cp.balances
	for addr, saved := range cp.contracts {
		w.contracts[addr].Restore(saved)
	}
	w.events = w.events[:cp.events]
}

// Call runs fn as one atomic state transition. The attached value moves
// from caller to the target contract before fn runs; if the transfer or
// fn fails, every state change and emitted event from this call is
// discarded and the error is returned unchanged.
func (w *World) Call(caller Address, value *uint256.Int, target Address, fn func(*Context) error) error {
	if _, ok := w.contracts[target]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownContract, target.Hex())
	}
	if value == nil {
		value = uint256.NewInt(0)
	}

	cp := w.checkpoint()

	if err := w.pay(caller, target, value); err != nil {
		return err
	}

	ctx := &Context{
		world:  w,
		caller: caller,
		value:  new(uint256.Int).Set(value),
		self:   target,
	}

	if err := fn(ctx); err != nil {
		w.restore(cp)
		return err
	}

	if w.CheckInvariants {
		for _, c := range w.contracts {
			if ic, ok := c.(InvariantChecker); ok {
				if err := ic.CheckInvariants(); err != nil {
					w.restore(cp)
					return fmt.Errorf("%w: %v", ErrInvariantViolated, err)
				}
			}
		}
	}

	return nil
}

// Events returns all events emitted by committed calls, in order.
func (w *World) Events() []Event {
	out := make([]Event, len(w.events))
	copy(out, w.events)
	return out
}

// DrainEvents returns committed events and clears the world's buffer.
// The deploy driver uses this to flush events into an event store.
func (w *World) DrainEvents() []Event {
	out := w.events
	w.events = nil
	return out
}
