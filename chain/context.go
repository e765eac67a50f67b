package chain

import (
	"github.com/holiman/uint256"
)

// Context carries the identity and payment of exactly one call. The
// caller is fixed for the duration of the call; nested calls made by a
// contract get a fresh context whose caller is the contract itself.
type Context struct {
	world  *World
	caller Address
	value  *uint256.Int
	self   Address
}

// Caller returns the identity that initiated this call.
func (c *Context) Caller() Address {
	return c.caller
}

// Value returns a copy of the native currency attached to this call.
func (c *Context) Value() *uint256.Int {
	return new(uint256.Int).Set(c.value)
}

// Self returns the contract address this call targets.
func (c *Context) Self() Address {
	return c.self
}

// Nested returns a context for a call the current contract makes into
// another contract. The nested call runs inside the same atomic unit:
// its failures propagate and revert the whole call.
func (c *Context) Nested(target Address) *Context {
	return &Context{
		world:  c.world,
		caller: c.self,
		value:  uint256.NewInt(0),
		self:   target,
	}
}

// Emit records an event. Events from reverted calls never surface.
func (c *Context) Emit(e Event) {
	c.world.events = append(c.world.events, e)
}

// SelfBalance returns the native currency held by the current contract.
func (c *Context) SelfBalance() *uint256.Int {
	return c.world.Balance(c.self)
}

// Send moves native currency out of the current contract.
func (c *Context) Send(to Address, amount *uint256.Int) error {
	return c.world.pay(c.self, to, amount)
}
