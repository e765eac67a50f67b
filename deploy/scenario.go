package deploy

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/pflow-xyz/go-tokensale/chain"
)

// RunDemo executes the scripted sale against a fresh deployment: two
// buyers get whitelisted and funded, one buys through the explicit
// purchase call, one through a direct payment, the owner reprices
// mid-sale, and the sale is finalized. Every step must succeed.
func RunDemo(d *Deployment) error {
	alice := chain.Account("alice")
	bob := chain.Account("bob")
	price := d.Sale.Price()

	d.World.Fund(alice, Ether(100))
	d.World.Fund(bob, Ether(100))

	if err := d.AddToWhitelist(d.Deployer, alice); err != nil {
		return fmt.Errorf("whitelist alice: %w", err)
	}
	if err := d.AddToWhitelist(d.Deployer, bob); err != nil {
		return fmt.Errorf("whitelist bob: %w", err)
	}

	// Alice buys 10 tokens with an exact payment.
	amount := uint256.NewInt(10)
	payment := new(uint256.Int).Mul(amount, price)
	if err := d.Buy(alice, amount, payment); err != nil {
		return fmt.Errorf("alice buys: %w", err)
	}

	// Bob pays directly; the implied amount is value / price.
	if err := d.Send(bob, new(uint256.Int).Mul(uint256.NewInt(5), price)); err != nil {
		return fmt.Errorf("bob sends payment: %w", err)
	}

	// The owner doubles the price; Alice buys again at the new rate.
	newPrice := new(uint256.Int).Mul(price, uint256.NewInt(2))
	if err := d.SetPrice(d.Deployer, newPrice); err != nil {
		return fmt.Errorf("set price: %w", err)
	}
	amount = uint256.NewInt(3)
	payment = new(uint256.Int).Mul(amount, newPrice)
	if err := d.Buy(alice, amount, payment); err != nil {
		return fmt.Errorf("alice buys at new price: %w", err)
	}

	if err := d.Finalize(d.Deployer); err != nil {
		return fmt.Errorf("finalize: %w", err)
	}
	return nil
}
