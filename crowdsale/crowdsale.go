// Package crowdsale implements the sale controller: it holds an
// allotment of the ledger's tokens, sells them for native currency at
// an owner-set price to whitelisted buyers, and finalizes by sweeping
// remaining tokens and all proceeds to the owner.
//
// The controller is a two-state machine, Active -> Finalized. Every
// purchase, price, and whitelist operation requires Active; Finalize is
// the only transition and is terminal. Each operation either commits in
// full or leaves no trace: the enclosing chain.World call reverts the
// controller, the ledger, and currency balances together.
package crowdsale

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/pflow-xyz/go-tokensale/chain"
	"github.com/pflow-xyz/go-tokensale/token"
)

var (
	ErrUnauthorized          = errors.New("crowdsale: caller is not the owner")
	ErrNotWhitelisted        = errors.New("crowdsale: caller is not whitelisted")
	ErrIncorrectPayment      = errors.New("crowdsale: payment does not match amount at current price")
	ErrInsufficientInventory = errors.New("crowdsale: not enough tokens held for sale")
	ErrFinalized             = errors.New("crowdsale: sale already finalized")
	ErrInvalidPrice          = errors.New("crowdsale: price must be positive")
)

// Crowdsale sells tokens from its own ledger balance for native currency.
type Crowdsale struct {
	addr  chain.Address
	owner chain.Address
	token *token.Token

	price      *uint256.Int
	tokensSold *uint256.Int
	whitelist  map[chain.Address]bool
	finalized  bool
}

// New creates an active sale. The owner is fixed for the contract's
// lifetime. The token allotment is funded by a separate ledger transfer
// into the sale's address; until that happens every purchase fails on
// inventory.
func New(addr, owner chain.Address, tok *token.Token, price *uint256.Int) (*Crowdsale, error) {
	if price == nil || price.IsZero() {
		return nil, ErrInvalidPrice
	}
	return &Crowdsale{
		addr:       addr,
		owner:      owner,
		token:      tok,
		price:      new(uint256.Int).Set(price),
		tokensSold: uint256.NewInt(0),
		whitelist:  make(map[chain.Address]bool),
	}, nil
}

func (c *Crowdsale) ContractAddress() chain.Address { return c.addr }

// Owner returns the deployer identity, set once at creation.
func (c *Crowdsale) Owner() chain.Address { return c.owner }

// TokenAddress returns the ledger this sale disburses from.
func (c *Crowdsale) TokenAddress() chain.Address { return c.token.ContractAddress() }

// Price returns the current unit price (currency per token).
func (c *Crowdsale) Price() *uint256.Int { return new(uint256.Int).Set(c.price) }

// TokensSold returns the units disbursed through purchases so far.
// Monotonically non-decreasing.
func (c *Crowdsale) TokensSold() *uint256.Int { return new(uint256.Int).Set(c.tokensSold) }

// IsWhitelisted reports whether an identity may purchase.
func (c *Crowdsale) IsWhitelisted(addr chain.Address) bool { return c.whitelist[addr] }

// Finalized reports whether the sale has reached its terminal state.
func (c *Crowdsale) Finalized() bool { return c.finalized }

// Inventory returns the sale's own token balance.
func (c *Crowdsale) Inventory() *uint256.Int { return c.token.BalanceOf(c.addr) }

func (c *Crowdsale) requireActive() error {
	if c.finalized {
		return ErrFinalized
	}
	return nil
}

func (c *Crowdsale) requireOwner(ctx *chain.Context) error {
	if ctx.Caller() != c.owner {
		return fmt.Errorf("%w: %s", ErrUnauthorized, ctx.Caller().Hex())
	}
	return nil
}

// BuyTokens sells exactly amount units to a whitelisted caller. The
// attached payment must equal amount * price; there is no change-making
// and no overpayment tolerance.
func (c *Crowdsale) BuyTokens(ctx *chain.Context, amount *uint256.Int) error {
	if err := c.requireActive(); err != nil {
		return err
	}
	if !c.whitelist[ctx.Caller()] {
		return fmt.Errorf("%w: %s", ErrNotWhitelisted, ctx.Caller().Hex())
	}

	cost, overflow := new(uint256.Int).MulOverflow(amount, c.price)
	if overflow || !ctx.Value().Eq(cost) {
		return fmt.Errorf("%w: got %s, want %s", ErrIncorrectPayment,
			ctx.Value().Dec(), cost.Dec())
	}

	return c.disburse(ctx, amount)
}

// Receive handles a direct payment with no explicit purchase call. The
// implied amount is value / price, rounded down; the full payment is
// retained, including any remainder below one unit's price. A payment
// too small to buy a single unit is rejected.
func (c *Crowdsale) Receive(ctx *chain.Context) error {
	if err := c.requireActive(); err != nil {
		return err
	}
	if !c.whitelist[ctx.Caller()] {
		return fmt.Errorf("%w: %s", ErrNotWhitelisted, ctx.Caller().Hex())
	}

	amount := new(uint256.Int).Div(ctx.Value(), c.price)
	if amount.IsZero() {
		return fmt.Errorf("%w: %s buys zero tokens at price %s", ErrIncorrectPayment,
			ctx.Value().Dec(), c.price.Dec())
	}

	return c.disburse(ctx, amount)
}

// disburse moves amount tokens to the buyer and books the sale. Called
// only after state, whitelist, and payment checks have passed. The
// payment itself was credited to the sale by the enclosing call and is
// reverted with everything else if the token transfer fails.
func (c *Crowdsale) disburse(ctx *chain.Context, amount *uint256.Int) error {
	if c.Inventory().Lt(amount) {
		return fmt.Errorf("%w: %s held, %s requested", ErrInsufficientInventory,
			c.Inventory().Dec(), amount.Dec())
	}

	buyer := ctx.Caller()
	if err := c.token.Transfer(ctx.Nested(c.TokenAddress()), buyer, amount); err != nil {
		return err
	}
	c.tokensSold = new(uint256.Int).Add(c.tokensSold, amount)

	ctx.Emit(chain.Event{
		Contract: c.addr,
		Name:     "Buy",
		Args: map[string]string{
			"amount": chain.Arg(amount),
			"buyer":  chain.ArgAddr(buyer),
		},
	})
	return nil
}

// SetPrice overwrites the unit price. Owner only; takes effect for all
// subsequent purchases, with no history kept.
func (c *Crowdsale) SetPrice(ctx *chain.Context, newPrice *uint256.Int) error {
	if err := c.requireActive(); err != nil {
		return err
	}
	if err := c.requireOwner(ctx); err != nil {
		return err
	}
	if newPrice == nil || newPrice.IsZero() {
		return ErrInvalidPrice
	}
	c.price = new(uint256.Int).Set(newPrice)
	return nil
}

// AddToWhitelist grants purchase permission. Owner only; idempotent.
func (c *Crowdsale) AddToWhitelist(ctx *chain.Context, addr chain.Address) error {
	if err := c.requireActive(); err != nil {
		return err
	}
	if err := c.requireOwner(ctx); err != nil {
		return err
	}
	c.whitelist[addr] = true
	return nil
}

// RemoveFromWhitelist revokes purchase permission. Owner only; idempotent.
func (c *Crowdsale) RemoveFromWhitelist(ctx *chain.Context, addr chain.Address) error {
	if err := c.requireActive(); err != nil {
		return err
	}
	if err := c.requireOwner(ctx); err != nil {
		return err
	}
	delete(c.whitelist, addr)
	return nil
}

// Finalize sweeps the sale's remaining tokens and all collected
// currency to the owner and moves to the terminal state. The emitted
// event carries the total units sold and the currency swept.
func (c *Crowdsale) Finalize(ctx *chain.Context) error {
	if err := c.requireActive(); err != nil {
		return err
	}
	if err := c.requireOwner(ctx); err != nil {
		return err
	}

	remaining := c.Inventory()
	if !remaining.IsZero() {
		if err := c.token.Transfer(ctx.Nested(c.TokenAddress()), c.owner, remaining); err != nil {
			return err
		}
	}

	proceeds := ctx.SelfBalance()
	if !proceeds.IsZero() {
		if err := ctx.Send(c.owner, proceeds); err != nil {
			return err
		}
	}

	c.finalized = true

	ctx.Emit(chain.Event{
		Contract: c.addr,
		Name:     "Finalize",
		Args: map[string]string{
			"tokensSold": chain.Arg(c.tokensSold),
			"value":      chain.Arg(proceeds),
		},
	})
	return nil
}

// Checkpoint implements chain.Contract.
func (c *Crowdsale) Checkpoint() chain.Contract {
	cp := &Crowdsale{
		addr:       c.addr,
		owner:      c.owner,
		token:      c.token,
		price:      new(uint256.Int).Set(c.price),
		tokensSold: new(uint256.Int).Set(c.tokensSold),
		whitelist:  make(map[chain.Address]bool, len(c.whitelist)),
		finalized:  c.finalized,
	}
	for addr := range c.whitelist {
		cp.whitelist[addr] = true
	}
	return cp
}

// Restore implements chain.Contract.
func (c *Crowdsale) Restore(saved chain.Contract) {
	*c = *saved.(*Crowdsale)
}
