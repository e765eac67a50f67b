// Package eventlog builds a queryable activity log from recorded
// contract events. Supports JSONL and CSV export for offline analysis.
package eventlog

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/holiman/uint256"

	"github.com/pflow-xyz/go-tokensale/chain"
	"github.com/pflow-xyz/go-tokensale/eventsource"
)

// Event is a single log entry.
type Event struct {
	Contract  string            // emitting contract address (hex)
	Name      string            // event name: Transfer, Approval, Buy, Finalize
	Sequence  int               // global position in the run
	Timestamp time.Time         // when the event was recorded
	Args      map[string]string // event arguments
}

// Trace is the ordered event sequence for a single contract.
type Trace struct {
	Contract string
	Events   []Event
}

// Log contains all events of a run, globally ordered, plus per-contract
// traces.
type Log struct {
	Events    []Event
	Contracts map[string]*Trace
}

// NewLog creates an empty log.
func NewLog() *Log {
	return &Log{
		Contracts: make(map[string]*Trace),
	}
}

// Add appends an event to the log and its contract's trace.
func (l *Log) Add(e Event) {
	l.Events = append(l.Events, e)
	trace, ok := l.Contracts[e.Contract]
	if !ok {
		trace = &Trace{Contract: e.Contract}
		l.Contracts[e.Contract] = trace
	}
	trace.Events = append(trace.Events, e)
}

// Sort orders events by global sequence.
func (l *Log) Sort() {
	sort.Slice(l.Events, func(i, j int) bool {
		return l.Events[i].Sequence < l.Events[j].Sequence
	})
	for _, trace := range l.Contracts {
		sort.Slice(trace.Events, func(i, j int) bool {
			return trace.Events[i].Sequence < trace.Events[j].Sequence
		})
	}
}

// FromWorld builds a log directly from a world's committed events.
func FromWorld(events []chain.Event) *Log {
	log := NewLog()
	now := time.Now().UTC()
	for i, e := range events {
		log.Add(Event{
			Contract:  e.Contract.Hex(),
			Name:      e.Name,
			Sequence:  i,
			Timestamp: now,
			Args:      e.Args,
		})
	}
	return log
}

// FromStore rebuilds a log from an event store, restoring the global
// order from the sequence attribute recorded with each event.
func FromStore(ctx context.Context, store eventsource.Store) (*Log, error) {
	streams, err := store.Streams(ctx)
	if err != nil {
		return nil, fmt.Errorf("list streams: %w", err)
	}

	log := NewLog()
	for _, stream := range streams {
		events, err := store.Read(ctx, stream, 0)
		if err != nil {
			return nil, fmt.Errorf("read stream %s: %w", stream, err)
		}
		for _, stored := range events {
			var payload struct {
				Sequence int               `json:"sequence"`
				Args     map[string]string `json:"args"`
			}
			if err := stored.Decode(&payload); err != nil {
				return nil, fmt.Errorf("decode event %s: %w", stored.ID, err)
			}
			log.Add(Event{
				Contract:  stream,
				Name:      stored.Type,
				Sequence:  payload.Sequence,
				Timestamp: stored.Timestamp,
				Args:      payload.Args,
			})
		}
	}
	log.Sort()
	return log, nil
}

// Summary holds aggregate sale statistics derived from the log.
type Summary struct {
	NumContracts int
	NumEvents    int
	EventCounts  map[string]int
	TokensSold   string // sum of Buy amounts
	UniqueBuyers int
	Finalized    bool
	SweptValue   string // currency swept at finalize, if finalized
}

// Summarize computes summary statistics for the log.
func (l *Log) Summarize() Summary {
	summary := Summary{
		NumContracts: len(l.Contracts),
		NumEvents:    len(l.Events),
		EventCounts:  make(map[string]int),
		TokensSold:   "0",
		SweptValue:   "0",
	}

	sold := uint256.NewInt(0)
	buyers := make(map[string]bool)

	for _, e := range l.Events {
		summary.EventCounts[e.Name]++
		switch e.Name {
		case "Buy":
			if amount, err := uint256.FromDecimal(e.Args["amount"]); err == nil {
				sold.Add(sold, amount)
			}
			buyers[e.Args["buyer"]] = true
		case "Finalize":
			summary.Finalized = true
			summary.SweptValue = e.Args["value"]
		}
	}

	summary.TokensSold = sold.Dec()
	summary.UniqueBuyers = len(buyers)
	return summary
}

// Print writes a console report of the summary.
func (s Summary) Print() {
	fmt.Println("=== Sale Summary ===")
	fmt.Printf("Contracts: %d\n", s.NumContracts)
	fmt.Printf("Events: %d\n", s.NumEvents)
	for _, name := range []string{"Transfer", "Approval", "Buy", "Finalize"} {
		if count := s.EventCounts[name]; count > 0 {
			fmt.Printf("  %s: %d\n", name, count)
		}
	}
	fmt.Printf("Tokens sold: %s\n", s.TokensSold)
	fmt.Printf("Unique buyers: %d\n", s.UniqueBuyers)
	if s.Finalized {
		fmt.Printf("Finalized: yes (swept %s)\n", s.SweptValue)
	} else {
		fmt.Println("Finalized: no")
	}
}
