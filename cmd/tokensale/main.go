package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "deploy":
		if err := deployCmd(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "demo":
		if err := demo(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "events":
		if err := events(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "summary":
		if err := summary(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "prove":
		if err := prove(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "verify":
		if err := verify(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "help", "-h", "--help":
		printUsage()
	case "version", "-v", "--version":
		fmt.Println("tokensale version 1.0.0")
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`tokensale - token sale deployment and settlement harness

Usage:
  tokensale <command> [options]

Commands:
  deploy     Deploy the token and the sale, fund the allotment
  demo       Deploy and run the scripted sale scenario
  events     Show timeline of recorded contract events
  summary    Display sale summary from recorded events
  prove      Generate a settlement conservation proof
  verify     Verify a settlement proof
  help       Show this help message
  version    Show version information

Examples:
  # Deploy with defaults and record events to SQLite
  tokensale deploy --db sale.db

  # Run the full demo scenario, exporting the event log
  tokensale demo --jsonl sale.jsonl

  # Show the Buy events of a recorded run
  tokensale events sale.jsonl --type Buy

  # Prove and verify the settlement
  tokensale prove --keys keys --out proof.json \
      --allotment 1000000 --sold 18 --swept 999982 --proceeds 525000000000000000
  tokensale verify --keys keys proof.json \
      --allotment 1000000 --sold 18 --swept 999982 --proceeds 525000000000000000

For command-specific help, run:
  tokensale <command> --help`)
}
