package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/pflow-xyz/go-tokensale/deploy"
	"github.com/pflow-xyz/go-tokensale/eventlog"
	"github.com/pflow-xyz/go-tokensale/prover"
)

func demo(args []string) error {
	fs := flag.NewFlagSet("demo", flag.ExitOnError)
	configPath := fs.String("config", "", "JSON config file (defaults used if omitted)")
	dbPath := fs.String("db", "", "Record events to this SQLite database")
	jsonlPath := fs.String("jsonl", "", "Export the event log to this JSONL file")
	csvPath := fs.String("csv", "", "Export the event log to this CSV file")
	withProof := fs.Bool("prove", false, "Generate a settlement proof after finalize")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: tokensale demo [options]

Deploy the contracts and run the scripted sale: whitelist two buyers,
purchase through the explicit call and the direct-payment path, reprice
mid-sale, and finalize.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Run the demo and print the timeline
  tokensale demo

  # Keep the event log and prove the settlement
  tokensale demo --jsonl sale.jsonl --prove
`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := deploy.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = deploy.LoadConfig(*configPath)
		if err != nil {
			return err
		}
	}

	d, err := deploy.Deploy(cfg)
	if err != nil {
		return fmt.Errorf("deploy: %w", err)
	}

	fmt.Printf("Run: %s\n", d.RunID)
	fmt.Printf("Token: %s\n", d.Token.ContractAddress().Hex())
	fmt.Printf("Crowdsale: %s\n\n", d.Sale.ContractAddress().Hex())

	if err := deploy.RunDemo(d); err != nil {
		return fmt.Errorf("scenario: %w", err)
	}

	log := logFromWorld(d)
	printTimeline(log, "")
	fmt.Println()
	log.Summarize().Print()

	if *withProof {
		settlement, err := d.Settlement()
		if err != nil {
			return fmt.Errorf("settlement: %w", err)
		}
		assignment, err := settlement.Assignment()
		if err != nil {
			return err
		}

		p := prover.NewProver()
		fmt.Println("\nCompiling settlement circuit...")
		if err := p.RegisterCircuit(prover.SettlementCircuitName, &prover.SettlementCircuit{}); err != nil {
			return err
		}
		result, err := p.Prove(prover.SettlementCircuitName, assignment)
		if err != nil {
			return err
		}
		fmt.Printf("Settlement proved (%d constraints)\n", result.Constraints)
		for _, input := range result.PublicInputs {
			fmt.Printf("  public input: %s\n", input)
		}
	}

	if *csvPath != "" {
		if err := log.SaveCSV(*csvPath); err != nil {
			return fmt.Errorf("export events: %w", err)
		}
		fmt.Printf("\nEvent log written to %s\n", *csvPath)
	}

	return recordRun(d, *dbPath, *jsonlPath)
}

// logFromWorld builds an activity log from a deployment's events.
func logFromWorld(d *deploy.Deployment) *eventlog.Log {
	return eventlog.FromWorld(d.World.Events())
}

// printTimeline prints the event timeline, optionally filtered by type.
func printTimeline(log *eventlog.Log, typeFilter string) {
	fmt.Println("=== Events ===")
	shown := 0
	for _, e := range log.Events {
		if typeFilter != "" && e.Name != typeFilter {
			continue
		}
		shown++
		fmt.Printf("%4d  %-10s %s", e.Sequence, e.Name, e.Contract)
		for _, key := range []string{"from", "to", "owner", "spender", "buyer", "amount", "tokensSold", "value"} {
			if v, ok := e.Args[key]; ok {
				fmt.Printf("  %s=%s", key, v)
			}
		}
		fmt.Println()
	}
	if shown == 0 {
		if typeFilter != "" {
			fmt.Printf("No events of type '%s'\n", typeFilter)
		} else {
			fmt.Println("No events recorded")
		}
	}
}
