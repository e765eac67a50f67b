package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/pflow-xyz/go-tokensale/deploy"
	"github.com/pflow-xyz/go-tokensale/eventsource"
)

func deployCmd(args []string) error {
	fs := flag.NewFlagSet("deploy", flag.ExitOnError)
	configPath := fs.String("config", "", "JSON config file (defaults used if omitted)")
	dbPath := fs.String("db", "", "Record events to this SQLite database")
	jsonlPath := fs.String("jsonl", "", "Export the event log to this JSONL file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: tokensale deploy [options]

Deploy the token ledger and the crowdsale, then fund the sale's
allotment with a ledger transfer.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Deploy with defaults
  tokensale deploy

  # Deploy with a custom config, recording events
  tokensale deploy --config sale.json --db sale.db
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

	fmt.Printf("Run: %s\n\n", d.RunID)
	fmt.Printf("Token deployed to: %s\n", d.Token.ContractAddress().Hex())
	fmt.Printf("Crowdsale deployed to: %s\n\n", d.Sale.ContractAddress().Hex())
	fmt.Printf("Tokens transferred to Crowdsale: %s\n", d.Allotment().Dec())
	fmt.Printf("Price: %s\n", d.Sale.Price().Dec())

	return recordRun(d, *dbPath, *jsonlPath)
}

// recordRun flushes a deployment's events to the requested sinks.
func recordRun(d *deploy.Deployment, dbPath, jsonlPath string) error {
	if dbPath != "" {
		store, err := eventsource.NewSQLiteStore(dbPath)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := d.Record(context.Background(), store); err != nil {
			return fmt.Errorf("record events: %w", err)
		}
		fmt.Printf("\nEvents recorded to %s\n", dbPath)
	}
	if jsonlPath != "" {
		log := logFromWorld(d)
		if err := log.SaveJSONL(jsonlPath); err != nil {
			return fmt.Errorf("export events: %w", err)
		}
		fmt.Printf("\nEvent log written to %s\n", jsonlPath)
	}
	return nil
}
