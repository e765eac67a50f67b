package prover_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/holiman/uint256"

	"github.com/pflow-xyz/go-tokensale/prover"
)

func demoSettlement() *prover.Settlement {
	return &prover.Settlement{
		Allotment: uint256.NewInt(1_000_000),
		Sold:      uint256.NewInt(18),
		Swept:     uint256.NewInt(999_982),
		Proceeds:  uint256.MustFromDecimal("525000000000000000"),
	}
}

func TestSettlementValidate(t *testing.T) {
	t.Run("Balanced", func(t *testing.T) {
		if err := demoSettlement().Validate(); err != nil {
			t.Fatalf("balanced settlement rejected: %v", err)
		}
	})

	t.Run("Unbalanced", func(t *testing.T) {
		s := demoSettlement()
		s.Sold = uint256.NewInt(19)
		if err := s.Validate(); !errors.Is(err, prover.ErrNotSettled) {
			t.Fatalf("expected ErrNotSettled, got %v", err)
		}
	})

	t.Run("NilValue", func(t *testing.T) {
		s := demoSettlement()
		s.Proceeds = nil
		if err := s.Validate(); !errors.Is(err, prover.ErrFieldOverflow) {
			t.Fatalf("expected ErrFieldOverflow, got %v", err)
		}
	})

	t.Run("FieldOverflow", func(t *testing.T) {
		// 2^255 exceeds the BN254 scalar field.
		s := demoSettlement()
		s.Proceeds = new(uint256.Int).Lsh(uint256.NewInt(1), 255)
		if err := s.Validate(); !errors.Is(err, prover.ErrFieldOverflow) {
			t.Fatalf("expected ErrFieldOverflow, got %v", err)
		}
	})
}

func TestCommitmentDeterministic(t *testing.T) {
	c1, err := demoSettlement().Commitment()
	if err != nil {
		t.Fatalf("commitment failed: %v", err)
	}
	c2, err := demoSettlement().Commitment()
	if err != nil {
		t.Fatalf("commitment failed: %v", err)
	}
	if c1.Cmp(c2) != 0 {
		t.Error("commitment should be deterministic")
	}

	// Changing a private figure changes the commitment.
	other := &prover.Settlement{
		Allotment: uint256.NewInt(1_000_000),
		Sold:      uint256.NewInt(20),
		Swept:     uint256.NewInt(999_980),
		Proceeds:  demoSettlement().Proceeds,
	}
	c3, err := other.Commitment()
	if err != nil {
		t.Fatalf("commitment failed: %v", err)
	}
	if c1.Cmp(c3) == 0 {
		t.Error("different figures should not share a commitment")
	}
}

// settlementProver compiles the circuit once for all proof tests; setup
// dominates the test's runtime.
var (
	proverOnce sync.Once
	sharedP    *prover.Prover
	proverErr  error
)

func settlementProver(t *testing.T) *prover.Prover {
	t.Helper()
	proverOnce.Do(func() {
		sharedP = prover.NewProver()
		proverErr = sharedP.RegisterCircuit(prover.SettlementCircuitName, &prover.SettlementCircuit{})
	})
	if proverErr != nil {
		t.Fatalf("register circuit: %v", proverErr)
	}
	return sharedP
}

func TestProveAndVerify(t *testing.T) {
	p := settlementProver(t)

	assignment, err := demoSettlement().Assignment()
	if err != nil {
		t.Fatalf("assignment failed: %v", err)
	}

	result, err := p.Prove(prover.SettlementCircuitName, assignment)
	if err != nil {
		t.Fatalf("prove failed: %v", err)
	}
	if result.CircuitName != prover.SettlementCircuitName {
		t.Errorf("result circuit = %q", result.CircuitName)
	}
	if result.Constraints == 0 {
		t.Error("compiled circuit should report constraints")
	}
	if result.Proof == "" {
		t.Error("result should carry a serialized proof")
	}
	if len(result.PublicInputs) != 2 {
		t.Errorf("public inputs = %d, want allotment and commitment", len(result.PublicInputs))
	}

	public, err := demoSettlement().PublicAssignment()
	if err != nil {
		t.Fatalf("public assignment failed: %v", err)
	}
	if err := p.VerifyResult(result, public); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
}

func TestVerifyRejectsWrongPublicInputs(t *testing.T) {
	p := settlementProver(t)

	assignment, err := demoSettlement().Assignment()
	if err != nil {
		t.Fatalf("assignment failed: %v", err)
	}
	result, err := p.Prove(prover.SettlementCircuitName, assignment)
	if err != nil {
		t.Fatalf("prove failed: %v", err)
	}

	// A verifier with different settlement figures must reject the proof.
	tampered := &prover.Settlement{
		Allotment: uint256.NewInt(1_000_000),
		Sold:      uint256.NewInt(100),
		Swept:     uint256.NewInt(999_900),
		Proceeds:  uint256.NewInt(1),
	}
	public, err := tampered.PublicAssignment()
	if err != nil {
		t.Fatalf("public assignment failed: %v", err)
	}
	if err := p.VerifyResult(result, public); err == nil {
		t.Fatal("verify should reject mismatched public inputs")
	}
}

func TestUnbalancedWitnessCannotProve(t *testing.T) {
	p := settlementProver(t)

	// Bypass Validate and hand the circuit an unbalanced witness; the
	// constraint system itself must reject it.
	assignment := &prover.SettlementCircuit{
		Allotment:  1_000_000,
		Commitment: 0,
		Sold:       19,
		Swept:      999_982,
		Proceeds:   0,
	}
	if _, err := p.Prove(prover.SettlementCircuitName, assignment); err == nil {
		t.Fatal("proving an unbalanced settlement should fail")
	}
}

func TestProveUnknownCircuit(t *testing.T) {
	p := prover.NewProver()
	if _, err := p.Prove("missing", &prover.SettlementCircuit{}); err == nil {
		t.Fatal("proving with an unregistered circuit should fail")
	}
}

func TestSaveAndLoadCircuit(t *testing.T) {
	p := settlementProver(t)
	cc, ok := p.GetCircuit(prover.SettlementCircuitName)
	if !ok {
		t.Fatal("circuit should be registered")
	}

	dir := t.TempDir()
	if err := cc.SaveTo(dir); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := prover.LoadFrom(prover.SettlementCircuitName, dir, prover.Curve())
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Constraints != cc.Constraints {
		t.Errorf("loaded constraints = %d, want %d", loaded.Constraints, cc.Constraints)
	}

	// Proofs from the original prover verify against the reloaded keys.
	assignment, err := demoSettlement().Assignment()
	if err != nil {
		t.Fatalf("assignment failed: %v", err)
	}
	result, err := p.Prove(prover.SettlementCircuitName, assignment)
	if err != nil {
		t.Fatalf("prove failed: %v", err)
	}

	p2 := prover.NewProver()
	p2.StoreCircuit(loaded)
	public, err := demoSettlement().PublicAssignment()
	if err != nil {
		t.Fatalf("public assignment failed: %v", err)
	}
	if err := p2.VerifyResult(result, public); err != nil {
		t.Fatalf("verify with reloaded keys failed: %v", err)
	}
}
