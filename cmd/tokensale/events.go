package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/pflow-xyz/go-tokensale/eventlog"
	"github.com/pflow-xyz/go-tokensale/eventsource"
)

func events(args []string) error {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	typeFilter := fs.String("type", "", "Filter by event type")
	dbPath := fs.String("db", "", "Read events from this SQLite database")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: tokensale events [<log.jsonl|log.csv>] [options]

Display the timeline of recorded contract events, from an exported log
file or a SQLite event database.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Show all events
  tokensale events sale.jsonl

  # Filter by type
  tokensale events --db sale.db --type Buy
`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	log, err := loadLog(fs.Arg(0), *dbPath)
	if err != nil {
		return err
	}

	printTimeline(log, *typeFilter)
	return nil
}

// loadLog reads an event log from a JSONL/CSV file or a SQLite store.
func loadLog(path, dbPath string) (*eventlog.Log, error) {
	switch {
	case dbPath != "":
		store, err := eventsource.NewSQLiteStore(dbPath)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		return eventlog.FromStore(context.Background(), store)
	case strings.HasSuffix(path, ".csv"):
		return eventlog.ParseCSV(path)
	case path != "":
		return eventlog.ParseJSONL(path)
	default:
		return nil, fmt.Errorf("log file or --db required")
	}
}
