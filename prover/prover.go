package prover

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
)

// Prover manages circuit compilation, setup, and proof generation.
type Prover struct {
	mu       sync.RWMutex
	circuits map[string]*CompiledCircuit
	curve    ecc.ID
}

// CompiledCircuit holds a compiled constraint system and its keys.
type CompiledCircuit struct {
	Name         string
	CS           constraint.ConstraintSystem
	ProvingKey   groth16.ProvingKey
	VerifyingKey groth16.VerifyingKey
	Constraints  int
}

// ProofResult contains a serialized proof and its public inputs.
type ProofResult struct {
	CircuitName  string   `json:"circuit_name"`
	Constraints  int      `json:"constraints"`
	Proof        string   `json:"proof"`         // hex-encoded Groth16 proof
	PublicInputs []string `json:"public_inputs"` // hex, one per public variable
}

// Curve returns the curve all provers operate on.
func Curve() ecc.ID {
	return ecc.BN254
}

// NewProver creates a prover on BN254 (Ethereum's alt_bn128).
func NewProver() *Prover {
	return &Prover{
		circuits: make(map[string]*CompiledCircuit),
		curve:    ecc.BN254,
	}
}

// RegisterCircuit compiles a circuit and runs trusted setup.
func (p *Prover) RegisterCircuit(name string, circuit frontend.Circuit) error {
	cs, err := frontend.Compile(p.curve.ScalarField(), r1cs.NewBuilder, circuit)
	if err != nil {
		return fmt.Errorf("circuit compilation failed: %w", err)
	}

	// Trusted setup (in production, use ceremony or universal setup)
	pk, vk, err := groth16.Setup(cs)
	if err != nil {
		return fmt.Errorf("setup failed: %w", err)
	}

	p.StoreCircuit(&CompiledCircuit{
		Name:         name,
		CS:           cs,
		ProvingKey:   pk,
		VerifyingKey: vk,
		Constraints:  cs.GetNbConstraints(),
	})
	return nil
}

// StoreCircuit stores a pre-compiled circuit in the prover's registry.
func (p *Prover) StoreCircuit(cc *CompiledCircuit) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.circuits[cc.Name] = cc
}

// GetCircuit returns a compiled circuit by name.
func (p *Prover) GetCircuit(name string) (*CompiledCircuit, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cc, ok := p.circuits[name]
	return cc, ok
}

// Prove generates a Groth16 proof for the given circuit and witness.
func (p *Prover) Prove(circuitName string, assignment frontend.Circuit) (*ProofResult, error) {
	cc, ok := p.GetCircuit(circuitName)
	if !ok {
		return nil, fmt.Errorf("circuit %q not registered", circuitName)
	}

	witness, err := frontend.NewWitness(assignment, p.curve.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("witness creation failed: %w", err)
	}

	proof, err := groth16.Prove(cc.CS, cc.ProvingKey, witness)
	if err != nil {
		return nil, fmt.Errorf("proof generation failed: %w", err)
	}

	publicWitness, err := witness.Public()
	if err != nil {
		return nil, fmt.Errorf("public witness extraction failed: %w", err)
	}

	var proofBuf bytes.Buffer
	if _, err := proof.WriteTo(&proofBuf); err != nil {
		return nil, fmt.Errorf("marshal proof: %w", err)
	}

	result := &ProofResult{
		CircuitName: cc.Name,
		Constraints: cc.Constraints,
		Proof:       hex.EncodeToString(proofBuf.Bytes()),
	}

	// Each public input is a 32-byte BN254 element; skip the 12-byte
	// header (curve ID, nb public, nb secret).
	pubBytes, err := publicWitness.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal public witness: %w", err)
	}
	const headerSize = 12
	const elementSize = 32
	if len(pubBytes) >= headerSize {
		data := pubBytes[headerSize:]
		for i := 0; i+elementSize <= len(data); i += elementSize {
			val := new(big.Int).SetBytes(data[i : i+elementSize])
			result.PublicInputs = append(result.PublicInputs, fmt.Sprintf("0x%064x", val))
		}
	}

	return result, nil
}

// VerifyResult checks a serialized proof against the public inputs of
// the given assignment. Only the assignment's public fields are used.
func (p *Prover) VerifyResult(result *ProofResult, public frontend.Circuit) error {
	cc, ok := p.GetCircuit(result.CircuitName)
	if !ok {
		return fmt.Errorf("circuit %q not registered", result.CircuitName)
	}

	proofBytes, err := hex.DecodeString(result.Proof)
	if err != nil {
		return fmt.Errorf("decode proof: %w", err)
	}
	proof := groth16.NewProof(p.curve)
	if _, err := proof.ReadFrom(bytes.NewReader(proofBytes)); err != nil {
		return fmt.Errorf("unmarshal proof: %w", err)
	}

	publicWitness, err := frontend.NewWitness(public, p.curve.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return fmt.Errorf("public witness creation failed: %w", err)
	}

	return groth16.Verify(proof, cc.VerifyingKey, publicWitness)
}

// Verify proves and verifies in one step, as a local soundness check.
func (p *Prover) Verify(circuitName string, assignment frontend.Circuit) error {
	cc, ok := p.GetCircuit(circuitName)
	if !ok {
		return fmt.Errorf("circuit %q not registered", circuitName)
	}

	witness, err := frontend.NewWitness(assignment, p.curve.ScalarField())
	if err != nil {
		return fmt.Errorf("witness creation failed: %w", err)
	}

	proof, err := groth16.Prove(cc.CS, cc.ProvingKey, witness)
	if err != nil {
		return fmt.Errorf("proof generation failed: %w", err)
	}

	publicWitness, err := witness.Public()
	if err != nil {
		return fmt.Errorf("public witness extraction failed: %w", err)
	}

	return groth16.Verify(proof, cc.VerifyingKey, publicWitness)
}
