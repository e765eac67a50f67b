package crowdsale_test

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"

	"github.com/pflow-xyz/go-tokensale/chain"
	"github.com/pflow-xyz/go-tokensale/crowdsale"
	"github.com/pflow-xyz/go-tokensale/token"
)

var (
	deployer = chain.Account("deployer")
	alice    = chain.Account("alice")
	bob      = chain.Account("bob")
)

func ether(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1e18))
}

type fixture struct {
	world *chain.World
	token *token.Token
	sale  *crowdsale.Crowdsale
}

// newFixture deploys a 1,000,000-unit ledger, funds the sale with the
// entire supply at a price of 1 ether per unit, and whitelists alice.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	w := chain.NewWorld()

	tokenAddr := w.NewContractAddress(deployer)
	tok := token.New(tokenAddr, "Dapp University", "DAPP", uint256.NewInt(1_000_000), deployer)
	if err := w.Register(tok); err != nil {
		t.Fatalf("register token: %v", err)
	}

	saleAddr := w.NewContractAddress(deployer)
	sale, err := crowdsale.New(saleAddr, deployer, tok, ether(1))
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if err := w.Register(sale); err != nil {
		t.Fatalf("register sale: %v", err)
	}

	if err := w.Call(deployer, nil, tokenAddr, func(ctx *chain.Context) error {
		return tok.Transfer(ctx, saleAddr, uint256.NewInt(1_000_000))
	}); err != nil {
		t.Fatalf("fund sale allotment: %v", err)
	}

	if err := w.Call(deployer, nil, saleAddr, func(ctx *chain.Context) error {
		return sale.AddToWhitelist(ctx, alice)
	}); err != nil {
		t.Fatalf("whitelist alice: %v", err)
	}

	w.Fund(alice, ether(100))
	w.Fund(bob, ether(100))
	w.DrainEvents() // setup noise

	return &fixture{world: w, token: tok, sale: sale}
}

func (f *fixture) buy(caller chain.Address, value, amount *uint256.Int) error {
	return f.world.Call(caller, value, f.sale.ContractAddress(), func(ctx *chain.Context) error {
		return f.sale.BuyTokens(ctx, amount)
	})
}

func (f *fixture) send(caller chain.Address, value *uint256.Int) error {
	return f.world.Call(caller, value, f.sale.ContractAddress(), func(ctx *chain.Context) error {
		return f.sale.Receive(ctx)
	})
}

func (f *fixture) asOwner(t *testing.T, fn func(ctx *chain.Context) error) error {
	t.Helper()
	return f.world.Call(deployer, nil, f.sale.ContractAddress(), fn)
}

func (f *fixture) finalize(caller chain.Address) error {
	return f.world.Call(caller, nil, f.sale.ContractAddress(), func(ctx *chain.Context) error {
		return f.sale.Finalize(ctx)
	})
}

func TestDeployment(t *testing.T) {
	f := newFixture(t)

	if f.sale.Owner() != deployer {
		t.Errorf("owner = %s, want deployer", f.sale.Owner().Hex())
	}
	if f.sale.TokenAddress() != f.token.ContractAddress() {
		t.Error("sale should point at the ledger it was created with")
	}
	if !f.sale.Price().Eq(ether(1)) {
		t.Errorf("price = %s, want 1 ether", f.sale.Price().Dec())
	}
	if !f.sale.TokensSold().IsZero() {
		t.Errorf("tokensSold = %s, want 0", f.sale.TokensSold().Dec())
	}
	if f.sale.Finalized() {
		t.Error("sale should start active")
	}
	if !f.sale.Inventory().Eq(uint256.NewInt(1_000_000)) {
		t.Errorf("inventory = %s, want the full allotment", f.sale.Inventory().Dec())
	}

	// Deny by default: nobody is whitelisted until the owner adds them.
	if f.sale.IsWhitelisted(bob) {
		t.Error("bob should not be whitelisted by default")
	}
	if f.sale.IsWhitelisted(deployer) {
		t.Error("even the owner is not whitelisted by default")
	}
}

func TestBuyTokens(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		f := newFixture(t)

		if err := f.buy(alice, ether(10), uint256.NewInt(10)); err != nil {
			t.Fatalf("buy failed: %v", err)
		}

		if got := f.token.BalanceOf(alice); !got.Eq(uint256.NewInt(10)) {
			t.Errorf("buyer token balance = %s, want 10", got.Dec())
		}
		if got := f.sale.Inventory(); !got.Eq(uint256.NewInt(999_990)) {
			t.Errorf("inventory = %s, want 999990", got.Dec())
		}
		if got := f.world.Balance(f.sale.ContractAddress()); !got.Eq(ether(10)) {
			t.Errorf("sale currency balance = %s, want 10 ether", got.Dec())
		}
		if got := f.world.Balance(alice); !got.Eq(ether(90)) {
			t.Errorf("buyer currency balance = %s, want 90 ether", got.Dec())
		}
		if got := f.sale.TokensSold(); !got.Eq(uint256.NewInt(10)) {
			t.Errorf("tokensSold = %s, want 10", got.Dec())
		}

		events := f.world.Events()
		if len(events) != 2 {
			t.Fatalf("expected Transfer then Buy, got %d events", len(events))
		}
		if events[0].Name != "Transfer" || events[0].Contract != f.token.ContractAddress() {
			t.Errorf("first event = %s from %s, want ledger Transfer", events[0].Name, events[0].Contract.Hex())
		}
		buy := events[1]
		if buy.Name != "Buy" || buy.Contract != f.sale.ContractAddress() {
			t.Fatalf("second event = %s, want sale Buy", buy.Name)
		}
		if buy.Args["amount"] != "10" || buy.Args["buyer"] != alice.Hex() {
			t.Errorf("Buy args = %v", buy.Args)
		}
	})

	t.Run("IncorrectPayment", func(t *testing.T) {
		f := newFixture(t)

		for name, value := range map[string]*uint256.Int{
			"Zero":  uint256.NewInt(0),
			"Under": ether(9),
			"Over":  ether(11),
		} {
			err := f.buy(alice, value, uint256.NewInt(10))
			if !errors.Is(err, crowdsale.ErrIncorrectPayment) {
				t.Errorf("%s payment: expected ErrIncorrectPayment, got %v", name, err)
			}
		}

		// Nothing moved in either direction.
		if !f.token.BalanceOf(alice).IsZero() {
			t.Error("failed buys should not disburse tokens")
		}
		if !f.world.Balance(f.sale.ContractAddress()).IsZero() {
			t.Error("failed buys should not retain payment")
		}
		if !f.world.Balance(alice).Eq(ether(100)) {
			t.Error("failed buys should refund the buyer in full")
		}
		if len(f.world.Events()) != 0 {
			t.Error("failed buys should emit nothing")
		}
	})

	t.Run("NotWhitelisted", func(t *testing.T) {
		f := newFixture(t)

		err := f.buy(bob, ether(10), uint256.NewInt(10))
		if !errors.Is(err, crowdsale.ErrNotWhitelisted) {
			t.Fatalf("expected ErrNotWhitelisted, got %v", err)
		}
		if !f.world.Balance(bob).Eq(ether(100)) {
			t.Error("rejected buyer should keep their currency")
		}
		if !f.sale.TokensSold().IsZero() {
			t.Error("rejected buys should not count as sold")
		}
	})

	t.Run("InsufficientInventory", func(t *testing.T) {
		f := newFixture(t)
		// Exact payment for 10,000,000 units, ten times the allotment.
		f.world.Fund(alice, ether(10_000_000))

		err := f.buy(alice, ether(10_000_000), uint256.NewInt(10_000_000))
		if !errors.Is(err, crowdsale.ErrInsufficientInventory) {
			t.Fatalf("expected ErrInsufficientInventory, got %v", err)
		}

		if !f.world.Balance(f.sale.ContractAddress()).IsZero() {
			t.Error("payment must not be retained when inventory is short")
		}
		if !f.sale.Inventory().Eq(uint256.NewInt(1_000_000)) {
			t.Error("inventory should be untouched")
		}
	})

	t.Run("PaymentOverflow", func(t *testing.T) {
		f := newFixture(t)

		// amount * price overflows 256 bits; no payment can match.
		huge := new(uint256.Int).SetAllOne()
		err := f.buy(alice, ether(1), huge)
		if !errors.Is(err, crowdsale.ErrIncorrectPayment) {
			t.Fatalf("expected ErrIncorrectPayment on overflow, got %v", err)
		}
	})
}

func TestReceive(t *testing.T) {
	t.Run("ExactMultiple", func(t *testing.T) {
		f := newFixture(t)

		if err := f.send(alice, ether(5)); err != nil {
			t.Fatalf("send failed: %v", err)
		}
		if got := f.token.BalanceOf(alice); !got.Eq(uint256.NewInt(5)) {
			t.Errorf("buyer token balance = %s, want 5", got.Dec())
		}
		if got := f.world.Balance(f.sale.ContractAddress()); !got.Eq(ether(5)) {
			t.Errorf("sale balance = %s, want 5 ether", got.Dec())
		}
		if got := f.sale.TokensSold(); !got.Eq(uint256.NewInt(5)) {
			t.Errorf("tokensSold = %s, want 5", got.Dec())
		}
	})

	t.Run("RemainderRetained", func(t *testing.T) {
		f := newFixture(t)

		// 2.5 ether at 1 ether/unit buys 2 units; the half ether
		// remainder stays with the sale.
		value := new(uint256.Int).Add(ether(2), new(uint256.Int).Div(ether(1), uint256.NewInt(2)))
		if err := f.send(alice, value); err != nil {
			t.Fatalf("send failed: %v", err)
		}
		if got := f.token.BalanceOf(alice); !got.Eq(uint256.NewInt(2)) {
			t.Errorf("buyer token balance = %s, want 2 (floor)", got.Dec())
		}
		if got := f.world.Balance(f.sale.ContractAddress()); !got.Eq(value) {
			t.Errorf("sale balance = %s, want the full payment retained", got.Dec())
		}
	})

	t.Run("BelowOneUnit", func(t *testing.T) {
		f := newFixture(t)

		err := f.send(alice, uint256.NewInt(1))
		if !errors.Is(err, crowdsale.ErrIncorrectPayment) {
			t.Fatalf("expected ErrIncorrectPayment, got %v", err)
		}
		if !f.world.Balance(alice).Eq(ether(100)) {
			t.Error("a zero-unit payment should be refunded")
		}
	})

	t.Run("NotWhitelisted", func(t *testing.T) {
		f := newFixture(t)

		err := f.send(bob, ether(1))
		if !errors.Is(err, crowdsale.ErrNotWhitelisted) {
			t.Fatalf("expected ErrNotWhitelisted, got %v", err)
		}
	})
}

func TestSetPrice(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		f := newFixture(t)

		if err := f.asOwner(t, func(ctx *chain.Context) error {
			return f.sale.SetPrice(ctx, ether(2))
		}); err != nil {
			t.Fatalf("setPrice failed: %v", err)
		}
		if !f.sale.Price().Eq(ether(2)) {
			t.Errorf("price = %s, want 2 ether", f.sale.Price().Dec())
		}

		// The old price no longer satisfies an exact-payment buy.
		if err := f.buy(alice, ether(10), uint256.NewInt(10)); !errors.Is(err, crowdsale.ErrIncorrectPayment) {
			t.Errorf("old price should be rejected, got %v", err)
		}
		if err := f.buy(alice, ether(20), uint256.NewInt(10)); err != nil {
			t.Errorf("new price should be accepted: %v", err)
		}
	})

	t.Run("Unauthorized", func(t *testing.T) {
		f := newFixture(t)

		err := f.world.Call(alice, nil, f.sale.ContractAddress(), func(ctx *chain.Context) error {
			return f.sale.SetPrice(ctx, ether(2))
		})
		if !errors.Is(err, crowdsale.ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
		if !f.sale.Price().Eq(ether(1)) {
			t.Error("rejected setPrice must leave the price unchanged")
		}
	})

	t.Run("ZeroPrice", func(t *testing.T) {
		f := newFixture(t)

		err := f.asOwner(t, func(ctx *chain.Context) error {
			return f.sale.SetPrice(ctx, uint256.NewInt(0))
		})
		if !errors.Is(err, crowdsale.ErrInvalidPrice) {
			t.Fatalf("expected ErrInvalidPrice, got %v", err)
		}
	})
}

func TestWhitelist(t *testing.T) {
	t.Run("AddAndRemove", func(t *testing.T) {
		f := newFixture(t)

		if err := f.asOwner(t, func(ctx *chain.Context) error {
			return f.sale.AddToWhitelist(ctx, bob)
		}); err != nil {
			t.Fatalf("add failed: %v", err)
		}
		if !f.sale.IsWhitelisted(bob) {
			t.Fatal("bob should be whitelisted after add")
		}
		if err := f.buy(bob, ether(1), uint256.NewInt(1)); err != nil {
			t.Errorf("whitelisted bob should be able to buy: %v", err)
		}

		if err := f.asOwner(t, func(ctx *chain.Context) error {
			return f.sale.RemoveFromWhitelist(ctx, bob)
		}); err != nil {
			t.Fatalf("remove failed: %v", err)
		}
		if f.sale.IsWhitelisted(bob) {
			t.Fatal("bob should not be whitelisted after remove")
		}
		if err := f.buy(bob, ether(1), uint256.NewInt(1)); !errors.Is(err, crowdsale.ErrNotWhitelisted) {
			t.Errorf("removed bob should be rejected, got %v", err)
		}

		// Tokens bought while whitelisted remain bob's.
		if got := f.token.BalanceOf(bob); !got.Eq(uint256.NewInt(1)) {
			t.Errorf("bob's earlier purchase should survive removal, balance = %s", got.Dec())
		}
	})

	t.Run("Idempotent", func(t *testing.T) {
		f := newFixture(t)

		for i := 0; i < 2; i++ {
			if err := f.asOwner(t, func(ctx *chain.Context) error {
				return f.sale.AddToWhitelist(ctx, bob)
			}); err != nil {
				t.Fatalf("add %d failed: %v", i, err)
			}
		}
		if err := f.asOwner(t, func(ctx *chain.Context) error {
			return f.sale.RemoveFromWhitelist(ctx, chain.Account("stranger"))
		}); err != nil {
			t.Errorf("removing an absent entry should succeed: %v", err)
		}
	})

	t.Run("Unauthorized", func(t *testing.T) {
		f := newFixture(t)

		err := f.world.Call(bob, nil, f.sale.ContractAddress(), func(ctx *chain.Context) error {
			return f.sale.AddToWhitelist(ctx, bob)
		})
		if !errors.Is(err, crowdsale.ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
		if f.sale.IsWhitelisted(bob) {
			t.Error("rejected add must not change the whitelist")
		}
	})
}

func TestFinalize(t *testing.T) {
	t.Run("SweepsTokensAndProceeds", func(t *testing.T) {
		f := newFixture(t)

		if err := f.buy(alice, ether(10), uint256.NewInt(10)); err != nil {
			t.Fatalf("buy failed: %v", err)
		}
		f.world.DrainEvents()

		if err := f.finalize(deployer); err != nil {
			t.Fatalf("finalize failed: %v", err)
		}

		if !f.sale.Finalized() {
			t.Fatal("sale should be finalized")
		}
		if !f.sale.Inventory().IsZero() {
			t.Errorf("inventory = %s, want 0 after sweep", f.sale.Inventory().Dec())
		}
		if got := f.token.BalanceOf(deployer); !got.Eq(uint256.NewInt(999_990)) {
			t.Errorf("owner token balance = %s, want 999990", got.Dec())
		}
		if !f.world.Balance(f.sale.ContractAddress()).IsZero() {
			t.Error("sale should hold no currency after sweep")
		}
		if got := f.world.Balance(deployer); !got.Eq(ether(10)) {
			t.Errorf("owner proceeds = %s, want 10 ether", got.Dec())
		}

		events := f.world.Events()
		final := events[len(events)-1]
		if final.Name != "Finalize" {
			t.Fatalf("last event = %s, want Finalize", final.Name)
		}
		if final.Args["tokensSold"] != "10" {
			t.Errorf("Finalize tokensSold = %q, want 10", final.Args["tokensSold"])
		}
		if final.Args["value"] != ether(10).Dec() {
			t.Errorf("Finalize value = %q, want 10 ether", final.Args["value"])
		}
	})

	t.Run("Unauthorized", func(t *testing.T) {
		f := newFixture(t)

		if err := f.finalize(alice); !errors.Is(err, crowdsale.ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
		if f.sale.Finalized() {
			t.Error("rejected finalize must not flip the state")
		}
	})

	t.Run("Terminal", func(t *testing.T) {
		f := newFixture(t)

		if err := f.finalize(deployer); err != nil {
			t.Fatalf("finalize failed: %v", err)
		}

		if err := f.finalize(deployer); !errors.Is(err, crowdsale.ErrFinalized) {
			t.Errorf("second finalize: expected ErrFinalized, got %v", err)
		}
		if err := f.buy(alice, ether(1), uint256.NewInt(1)); !errors.Is(err, crowdsale.ErrFinalized) {
			t.Errorf("buy after finalize: expected ErrFinalized, got %v", err)
		}
		if err := f.send(alice, ether(1)); !errors.Is(err, crowdsale.ErrFinalized) {
			t.Errorf("send after finalize: expected ErrFinalized, got %v", err)
		}
		if err := f.asOwner(t, func(ctx *chain.Context) error {
			return f.sale.SetPrice(ctx, ether(2))
		}); !errors.Is(err, crowdsale.ErrFinalized) {
			t.Errorf("setPrice after finalize: expected ErrFinalized, got %v", err)
		}
		if err := f.asOwner(t, func(ctx *chain.Context) error {
			return f.sale.AddToWhitelist(ctx, bob)
		}); !errors.Is(err, crowdsale.ErrFinalized) {
			t.Errorf("whitelist after finalize: expected ErrFinalized, got %v", err)
		}
	})
}

func TestZeroPriceRejectedAtCreation(t *testing.T) {
	w := chain.NewWorld()
	tokenAddr := w.NewContractAddress(deployer)
	tok := token.New(tokenAddr, "Dapp University", "DAPP", uint256.NewInt(1000), deployer)

	if _, err := crowdsale.New(w.NewContractAddress(deployer), deployer, tok, uint256.NewInt(0)); !errors.Is(err, crowdsale.ErrInvalidPrice) {
		t.Errorf("expected ErrInvalidPrice, got %v", err)
	}
	if _, err := crowdsale.New(w.NewContractAddress(deployer), deployer, tok, nil); !errors.Is(err, crowdsale.ErrInvalidPrice) {
		t.Errorf("nil price: expected ErrInvalidPrice, got %v", err)
	}
}

func TestConservationThroughSale(t *testing.T) {
	f := newFixture(t)

	if err := f.buy(alice, ether(7), uint256.NewInt(7)); err != nil {
		t.Fatalf("buy failed: %v", err)
	}
	if err := f.asOwner(t, func(ctx *chain.Context) error {
		return f.sale.AddToWhitelist(ctx, bob)
	}); err != nil {
		t.Fatalf("whitelist failed: %v", err)
	}
	if err := f.send(bob, ether(3)); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if err := f.finalize(deployer); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}

	if err := f.token.CheckInvariants(); err != nil {
		t.Fatalf("conservation broken: %v", err)
	}

	// Every unit is accounted for: buyers plus the swept remainder.
	sum := new(uint256.Int)
	for _, holder := range []chain.Address{deployer, alice, bob, f.sale.ContractAddress()} {
		sum.Add(sum, f.token.BalanceOf(holder))
	}
	if !sum.Eq(f.token.TotalSupply()) {
		t.Errorf("holders sum to %s, supply is %s", sum.Dec(), f.token.TotalSupply().Dec())
	}
	if got := f.sale.TokensSold(); !got.Eq(uint256.NewInt(10)) {
		t.Errorf("tokensSold = %s, want 10", got.Dec())
	}
}
