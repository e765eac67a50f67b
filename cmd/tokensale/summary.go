package main

import (
	"flag"
	"fmt"
	"os"
)

func summary(args []string) error {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	dbPath := fs.String("db", "", "Read events from this SQLite database")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: tokensale summary [<log.jsonl|log.csv>] [options]

Display sale statistics derived from recorded events: tokens sold,
unique buyers, and finalization status.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  tokensale summary sale.jsonl
  tokensale summary --db sale.db
`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	log, err := loadLog(fs.Arg(0), *dbPath)
	if err != nil {
		return err
	}

	log.Summarize().Print()
	return nil
}
