// Package token implements the fungible token ledger sold by the
// crowdsale: a capped, fully pre-minted supply with transfer and
// allowance-based transfer. The sum of all balances always equals the
// total supply; there is no mint or burn path after construction.
package token

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/pflow-xyz/go-tokensale/chain"
)

var (
	ErrInsufficientBalance   = errors.New("token: insufficient balance")
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
	ErrConservation          = errors.New("token: sum of balances != total supply")
)

// Token is a fixed-supply fungible token ledger.
type Token struct {
	addr   chain.Address
	name   string
	symbol string

	maxSupply   *uint256.Int
	totalSupply *uint256.Int
	balances    map[chain.Address]*uint256.Int
	allowances  map[chain.Address]map[chain.Address]*uint256.Int
}

// New creates a ledger with the entire max supply pre-minted to creator.
func New(addr chain.Address, name, symbol string, maxSupply *uint256.Int, creator chain.Address) *Token {
	t := &Token{
		addr:        addr,
		name:        name,
		symbol:      symbol,
		maxSupply:   new(uint256.Int).Set(maxSupply),
		totalSupply: new(uint256.Int).Set(maxSupply),
		balances:    make(map[chain.Address]*uint256.Int),
		allowances:  make(map[chain.Address]map[chain.Address]*uint256.Int),
	}
	t.balances[creator] = new(uint256.Int).Set(maxSupply)
	return t
}

func (t *Token) ContractAddress() chain.Address { return t.addr }
func (t *Token) Name() string                   { return t.name }
func (t *Token) Symbol() string                 { return t.symbol }

// MaxSupply returns the immutable supply cap.
func (t *Token) MaxSupply() *uint256.Int {
	return new(uint256.Int).Set(t.maxSupply)
}

// TotalSupply returns the units in circulation. Equal to MaxSupply for
// the ledger's whole lifetime.
func (t *Token) TotalSupply() *uint256.Int {
	return new(uint256.Int).Set(t.totalSupply)
}

// BalanceOf returns a copy of an account's balance.
func (t *Token) BalanceOf(account chain.Address) *uint256.Int {
	if b, ok := t.balances[account]; ok {
		return new(uint256.Int).Set(b)
	}
	return uint256.NewInt(0)
}

// Allowance returns the remaining transfer ceiling approved by owner
// for spender.
func (t *Token) Allowance(owner, spender chain.Address) *uint256.Int {
	if byOwner, ok := t.allowances[owner]; ok {
		if a, ok := byOwner[spender]; ok {
			return new(uint256.Int).Set(a)
		}
	}
	return uint256.NewInt(0)
}

// Transfer moves amount from the caller to another account.
func (t *Token) Transfer(ctx *chain.Context, to chain.Address, amount *uint256.Int) error {
	from := ctx.Caller()
	if err := t.move(from, to, amount); err != nil {
		return err
	}
	ctx.Emit(chain.Event{
		Contract: t.addr,
		Name:     "Transfer",
		Args: map[string]string{
			"from":   chain.ArgAddr(from),
			"to":     chain.ArgAddr(to),
			"amount": chain.Arg(amount),
		},
	})
	return nil
}

// Approve sets the allowance for (caller, spender), overwriting any
// prior value.
func (t *Token) Approve(ctx *chain.Context, spender chain.Address, amount *uint256.Int) error {
	owner := ctx.Caller()
	byOwner, ok := t.allowances[owner]
	if !ok {
		byOwner = make(map[chain.Address]*uint256.Int)
		t.allowances[owner] = byOwner
	}
	byOwner[spender] = new(uint256.Int).Set(amount)
	ctx.Emit(chain.Event{
		Contract: t.addr,
		Name:     "Approval",
		Args: map[string]string{
			"owner":   chain.ArgAddr(owner),
			"spender": chain.ArgAddr(spender),
			"amount":  chain.Arg(amount),
		},
	})
	return nil
}

// TransferFrom spends the caller's allowance from another account.
// Both the allowance and the source balance are decremented.
func (t *Token) TransferFrom(ctx *chain.Context, from, to chain.Address, amount *uint256.Int) error {
	spender := ctx.Caller()
	allowed := t.Allowance(from, spender)
	if allowed.Lt(amount) {
		return fmt.Errorf("%w: %s allowed, %s requested", ErrInsufficientAllowance,
			allowed.Dec(), amount.Dec())
	}
	if err := t.move(from, to, amount); err != nil {
		return err
	}
	t.allowances[from][spender] = allowed.Sub(allowed, amount)
	ctx.Emit(chain.Event{
		Contract: t.addr,
		Name:     "Transfer",
		Args: map[string]string{
			"from":   chain.ArgAddr(from),
			"to":     chain.ArgAddr(to),
			"amount": chain.Arg(amount),
		},
	})
	return nil
}

// move is the single mutation path for balances.
func (t *Token) move(from, to chain.Address, amount *uint256.Int) error {
	fromBal := t.BalanceOf(from)
	if fromBal.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s, %s requested", ErrInsufficientBalance,
			from.Hex(), fromBal.Dec(), amount.Dec())
	}
	t.balances[from] = fromBal.Sub(fromBal, amount)
	toBal := t.BalanceOf(to)
	t.balances[to] = toBal.Add(toBal, amount)
	return nil
}

// CheckInvariants verifies conservation: sum(balances) == totalSupply.
func (t *Token) CheckInvariants() error {
	sum := uint256.NewInt(0)
	for _, b := range t.balances {
		sum.Add(sum, b)
	}
	if !sum.Eq(t.totalSupply) {
		return fmt.Errorf("%w: sum %s, supply %s", ErrConservation,
			sum.Dec(), t.totalSupply.Dec())
	}
	return nil
}

// Checkpoint implements chain.Contract.
func (t *Token) Checkpoint() chain.Contract {
	cp := &Token{
		addr:        t.addr,
		name:        t.name,
		symbol:      t.symbol,
		maxSupply:   new(uint256.Int).Set(t.maxSupply),
		totalSupply: new(uint256.Int).Set(t.totalSupply),
		balances:    make(map[chain.Address]*uint256.Int, len(t.balances)),
		allowances:  make(map[chain.Address]map[chain.Address]*uint256.Int, len(t.allowances)),
	}
	for addr, b := range t.balances {
		cp.balances[addr] = new(uint256.Int).Set(b)
	}
	for owner, byOwner := range t.allowances {
		m := make(map[chain.Address]*uint256.Int, len(byOwner))
		for spender, a := range byOwner {
			m[spender] = new(uint256.Int).Set(a)
		}
		cp.allowances[owner] = m
	}
	return cp
}

// Restore implements chain.Contract.
func (t *Token) Restore(saved chain.Contract) {
	*t = *saved.(*Token)
}
