package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/pflow-xyz/go-tokensale/prover"
)

func verify(args []string) error {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	allotment, sold, swept, proceeds := settlementFlags(fs)
	keysDir := fs.String("keys", "", "Directory holding the circuit keys")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: tokensale verify <proof.json> [options]

Verify a settlement proof against the disclosed settlement figures.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  tokensale verify --keys keys proof.json \
      --allotment 1000000 --sold 18 --swept 999982 --proceeds 525000000000000000
`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() < 1 {
		fs.Usage()
		return fmt.Errorf("proof file required")
	}

	settlement, err := parseSettlement(*allotment, *sold, *swept, *proceeds)
	if err != nil {
		return err
	}
	public, err := settlement.PublicAssignment()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("read proof: %w", err)
	}
	var result prover.ProofResult
	if err := json.Unmarshal(data, &result); err != nil {
		return fmt.Errorf("parse proof: %w", err)
	}

	p := prover.NewProver()
	if err := loadOrSetupCircuit(p, *keysDir); err != nil {
		return err
	}

	if err := p.VerifyResult(&result, public); err != nil {
		return fmt.Errorf("proof rejected: %w", err)
	}

	fmt.Println("Proof verified")
	return nil
}
