package deploy

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/pflow-xyz/go-tokensale/chain"
	"github.com/pflow-xyz/go-tokensale/crowdsale"
	"github.com/pflow-xyz/go-tokensale/eventsource"
	"github.com/pflow-xyz/go-tokensale/prover"
	"github.com/pflow-xyz/go-tokensale/token"
)

// Deployment is a deployed token + sale pair with its world.
type Deployment struct {
	RunID    string
	Config   Config
	World    *chain.World
	Deployer chain.Address
	Token    *token.Token
	Sale     *crowdsale.Crowdsale

	allotment *uint256.Int
	recorded  int // world events already flushed to a store
}

// Deploy constructs the ledger and the sale, then funds the sale's
// allotment from the deployer's pre-mint. The order matches the
// original deployment script: token, sale, allotment transfer.
func Deploy(cfg Config) (*Deployment, error) {
	maxSupply, price, allotment, err := cfg.parse()
	if err != nil {
		return nil, err
	}

	world := chain.NewWorld()
	deployer := chain.Account("deployer")

	tokenAddr := world.NewContractAddress(deployer)
	tok := token.New(tokenAddr, cfg.TokenName, cfg.TokenSymbol, maxSupply, deployer)
	if err := world.Register(tok); err != nil {
		return nil, err
	}

	saleAddr := world.NewContractAddress(deployer)
	sale, err := crowdsale.New(saleAddr, deployer, tok, price)
	if err != nil {
		return nil, err
	}
	if err := world.Register(sale); err != nil {
		return nil, err
	}

	err = world.Call(deployer, nil, tokenAddr, func(ctx *chain.Context) error {
		return tok.Transfer(ctx, saleAddr, allotment)
	})
	if err != nil {
		return nil, fmt.Errorf("fund allotment: %w", err)
	}

	return &Deployment{
		RunID:     uuid.New().String(),
		Config:    cfg,
		World:     world,
		Deployer:  deployer,
		Token:     tok,
		Sale:      sale,
		allotment: allotment,
	}, nil
}

// Allotment returns the units funded into the sale at deployment.
func (d *Deployment) Allotment() *uint256.Int {
	return new(uint256.Int).Set(d.allotment)
}

// Buy purchases amount units for the buyer with the given payment.
func (d *Deployment) Buy(buyer chain.Address, amount, payment *uint256.Int) error {
	return d.World.Call(buyer, payment, d.Sale.ContractAddress(), func(ctx *chain.Context) error {
		return d.Sale.BuyTokens(ctx, amount)
	})
}

// Send delivers a direct payment to the sale, triggering the implied
// purchase path.
func (d *Deployment) Send(buyer chain.Address, value *uint256.Int) error {
	return d.World.Call(buyer, value, d.Sale.ContractAddress(), func(ctx *chain.Context) error {
		return d.Sale.Receive(ctx)
	})
}

// AddToWhitelist whitelists addr; the caller must be the owner.
func (d *Deployment) AddToWhitelist(caller, addr chain.Address) error {
	return d.World.Call(caller, nil, d.Sale.ContractAddress(), func(ctx *chain.Context) error {
		return d.Sale.AddToWhitelist(ctx, addr)
	})
}

// RemoveFromWhitelist removes addr; the caller must be the owner.
func (d *Deployment) RemoveFromWhitelist(caller, addr chain.Address) error {
	return d.World.Call(caller, nil, d.Sale.ContractAddress(), func(ctx *chain.Context) error {
		return d.Sale.RemoveFromWhitelist(ctx, addr)
	})
}

// SetPrice updates the unit price; the caller must be the owner.
func (d *Deployment) SetPrice(caller chain.Address, price *uint256.Int) error {
	return d.World.Call(caller, nil, d.Sale.ContractAddress(), func(ctx *chain.Context) error {
		return d.Sale.SetPrice(ctx, price)
	})
}

// Finalize sweeps the sale; the caller must be the owner.
func (d *Deployment) Finalize(caller chain.Address) error {
	return d.World.Call(caller, nil, d.Sale.ContractAddress(), func(ctx *chain.Context) error {
		return d.Sale.Finalize(ctx)
	})
}

// Settlement derives the figures for the conservation proof from the
// finalized sale's recorded events.
func (d *Deployment) Settlement() (*prover.Settlement, error) {
	if !d.Sale.Finalized() {
		return nil, fmt.Errorf("sale not finalized")
	}

	sold := d.Sale.TokensSold()
	swept := new(uint256.Int).Sub(d.Allotment(), sold)

	proceeds := uint256.NewInt(0)
	for _, e := range d.World.Events() {
		if e.Contract == d.Sale.ContractAddress() && e.Name == "Finalize" {
			v, err := uint256.FromDecimal(e.Args["value"])
			if err != nil {
				return nil, fmt.Errorf("finalize value: %w", err)
			}
			proceeds = v
		}
	}

	return &prover.Settlement{
		Allotment: d.Allotment(),
		Sold:      sold,
		Swept:     swept,
		Proceeds:  proceeds,
	}, nil
}

// Record flushes world events emitted since the last Record into the
// store, one stream per contract, preserving global order via the
// sequence attribute.
func (d *Deployment) Record(ctx context.Context, store eventsource.Store) error {
	events := d.World.Events()
	for ; d.recorded < len(events); d.recorded++ {
		e := events[d.recorded]
		stream := e.Contract.Hex()

		stored, err := eventsource.NewEvent(stream, e.Name, map[string]any{
			"sequence": d.recorded,
			"args":     e.Args,
		})
		if err != nil {
			return fmt.Errorf("encode event %d: %w", d.recorded, err)
		}

		version, err := store.StreamVersion(ctx, stream)
		if err != nil {
			return fmt.Errorf("stream version %s: %w", stream, err)
		}
		if _, err := store.Append(ctx, stream, version, []*eventsource.Event{stored}); err != nil {
			return fmt.Errorf("append event %d: %w", d.recorded, err)
		}
	}
	return nil
}
