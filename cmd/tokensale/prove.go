package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/holiman/uint256"

	"github.com/pflow-xyz/go-tokensale/prover"
)

// settlementFlags registers the four settlement figures on a flag set.
func settlementFlags(fs *flag.FlagSet) (allotment, sold, swept, proceeds *string) {
	allotment = fs.String("allotment", "", "Units funded into the sale")
	sold = fs.String("sold", "", "Units sold to buyers")
	swept = fs.String("swept", "", "Units returned to the owner at finalize")
	proceeds = fs.String("proceeds", "", "Currency swept to the owner at finalize")
	return
}

func parseSettlement(allotment, sold, swept, proceeds string) (*prover.Settlement, error) {
	s := &prover.Settlement{}
	for _, field := range []struct {
		name  string
		value string
		dst   **uint256.Int
	}{
		{"allotment", allotment, &s.Allotment},
		{"sold", sold, &s.Sold},
		{"swept", swept, &s.Swept},
		{"proceeds", proceeds, &s.Proceeds},
	} {
		if field.value == "" {
			return nil, fmt.Errorf("--%s required", field.name)
		}
		v, err := uint256.FromDecimal(field.value)
		if err != nil {
			return nil, fmt.Errorf("--%s: %w", field.name, err)
		}
		*field.dst = v
	}
	return s, s.Validate()
}

// loadOrSetupCircuit loads the settlement circuit from keysDir, or
// compiles it and saves the keys on first use.
func loadOrSetupCircuit(p *prover.Prover, keysDir string) error {
	if keysDir != "" {
		cc, err := prover.LoadFrom(prover.SettlementCircuitName, keysDir, prover.Curve())
		if err == nil {
			p.StoreCircuit(cc)
			return nil
		}
	}

	fmt.Println("Compiling settlement circuit...")
	if err := p.RegisterCircuit(prover.SettlementCircuitName, &prover.SettlementCircuit{}); err != nil {
		return err
	}
	if keysDir != "" {
		cc, _ := p.GetCircuit(prover.SettlementCircuitName)
		if err := cc.SaveTo(keysDir); err != nil {
			return err
		}
		fmt.Printf("Keys saved to %s\n", keysDir)
	}
	return nil
}

func prove(args []string) error {
	fs := flag.NewFlagSet("prove", flag.ExitOnError)
	allotment, sold, swept, proceeds := settlementFlags(fs)
	keysDir := fs.String("keys", "", "Directory for circuit keys (compiled on first use)")
	outPath := fs.String("out", "proof.json", "Output file for the proof")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: tokensale prove [options]

Generate a Groth16 proof that the finalized sale conserved its
allotment: sold + swept == allotment, with the settlement figures bound
by a MiMC commitment.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  tokensale prove --keys keys --out proof.json \
      --allotment 1000000 --sold 18 --swept 999982 --proceeds 525000000000000000
`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	settlement, err := parseSettlement(*allotment, *sold, *swept, *proceeds)
	if err != nil {
		return err
	}
	assignment, err := settlement.Assignment()
	if err != nil {
		return err
	}

	p := prover.NewProver()
	if err := loadOrSetupCircuit(p, *keysDir); err != nil {
		return err
	}

	result, err := p.Prove(prover.SettlementCircuitName, assignment)
	if err != nil {
		return err
	}

	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode proof: %w", err)
	}
	if err := os.WriteFile(*outPath, encoded, 0o644); err != nil {
		return fmt.Errorf("write proof: %w", err)
	}

	fmt.Printf("Settlement proved (%d constraints)\n", result.Constraints)
	fmt.Printf("Proof written to %s\n", *outPath)
	return nil
}
