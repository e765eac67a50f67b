// Package prover generates Groth16 proofs that a finalized sale
// conserved its allotment: every allotted token was either sold to a
// buyer or swept back to the owner. The proof binds the settlement
// figures with a MiMC commitment so they cannot be restated later.
package prover

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/consensys/gnark/frontend"
	gmimc "github.com/consensys/gnark/std/hash/mimc"
	"github.com/holiman/uint256"
)

// SettlementCircuitName identifies the settlement circuit in a Prover.
const SettlementCircuitName = "settlement"

var (
	ErrNotSettled    = errors.New("prover: sold + swept != allotment")
	ErrFieldOverflow = errors.New("prover: value does not fit the BN254 scalar field")
)

// SettlementCircuit proves allotment == sold + swept, with the public
// commitment binding (sold, swept, proceeds).
type SettlementCircuit struct {
	Allotment  frontend.Variable `gnark:",public"`
	Commitment frontend.Variable `gnark:",public"`

	Sold     frontend.Variable
	Swept    frontend.Variable
	Proceeds frontend.Variable
}

// Define implements frontend.Circuit.
func (c *SettlementCircuit) Define(api frontend.API) error {
	api.AssertIsEqual(c.Allotment, api.Add(c.Sold, c.Swept))

	h, err := gmimc.NewMiMC(api)
	if err != nil {
		return err
	}
	h.Write(c.Sold, c.Swept, c.Proceeds)
	api.AssertIsEqual(c.Commitment, h.Sum())
	return nil
}

// Settlement holds the figures of a finalized sale.
type Settlement struct {
	Allotment *uint256.Int // units funded into the sale
	Sold      *uint256.Int // units disbursed to buyers
	Swept     *uint256.Int // units returned to the owner at finalize
	Proceeds  *uint256.Int // currency swept to the owner at finalize
}

// Validate checks that the figures balance and fit the proof field.
func (s *Settlement) Validate() error {
	for _, v := range []*uint256.Int{s.Allotment, s.Sold, s.Swept, s.Proceeds} {
		if v == nil {
			return fmt.Errorf("%w: nil value", ErrFieldOverflow)
		}
		if v.ToBig().Cmp(fr.Modulus()) >= 0 {
			return fmt.Errorf("%w: %s", ErrFieldOverflow, v.Dec())
		}
	}
	total := new(uint256.Int).Add(s.Sold, s.Swept)
	if !total.Eq(s.Allotment) {
		return fmt.Errorf("%w: sold %s + swept %s != allotment %s", ErrNotSettled,
			s.Sold.Dec(), s.Swept.Dec(), s.Allotment.Dec())
	}
	return nil
}

// Commitment computes the MiMC commitment over (sold, swept, proceeds),
// matching the in-circuit hash.
func (s *Settlement) Commitment() (*big.Int, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	h := mimc.NewMiMC()
	for _, v := range []*uint256.Int{s.Sold, s.Swept, s.Proceeds} {
		var el fr.Element
		el.SetBigInt(v.ToBig())
		b := el.Bytes()
		if _, err := h.Write(b[:]); err != nil {
			return nil, fmt.Errorf("commitment hash: %w", err)
		}
	}
	return new(big.Int).SetBytes(h.Sum(nil)), nil
}

// Assignment returns the full witness for proving.
func (s *Settlement) Assignment() (*SettlementCircuit, error) {
	commitment, err := s.Commitment()
	if err != nil {
		return nil, err
	}
	return &SettlementCircuit{
		Allotment:  s.Allotment.ToBig(),
		Commitment: commitment,
		Sold:       s.Sold.ToBig(),
		Swept:      s.Swept.ToBig(),
		Proceeds:   s.Proceeds.ToBig(),
	}, nil
}

// PublicAssignment returns only the public inputs, for verification.
func (s *Settlement) PublicAssignment() (*SettlementCircuit, error) {
	commitment, err := s.Commitment()
	if err != nil {
		return nil, err
	}
	return &SettlementCircuit{
		Allotment:  s.Allotment.ToBig(),
		Commitment: commitment,
	}, nil
}
