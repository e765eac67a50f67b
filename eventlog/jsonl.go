package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// jsonlRecord is the wire form of a log entry, one JSON object per line.
type jsonlRecord struct {
	Contract  string            `json:"contract"`
	Event     string            `json:"event"`
	Sequence  int               `json:"sequence"`
	Timestamp string            `json:"timestamp"`
	Args      map[string]string `json:"args,omitempty"`
}

// WriteJSONL writes the log as JSON Lines, one event per line, in
// global order.
func (l *Log) WriteJSONL(w io.Writer) error {
	enc := json.NewEncoder(w)
	for _, e := range l.Events {
		record := jsonlRecord{
			Contract:  e.Contract,
			Event:     e.Name,
			Sequence:  e.Sequence,
			Timestamp: e.Timestamp.Format(time.RFC3339Nano),
			Args:      e.Args,
		}
		if err := enc.Encode(record); err != nil {
			return fmt.Errorf("encode event %d: %w", e.Sequence, err)
		}
	}
	return nil
}

// SaveJSONL writes the log to a JSONL file.
func (l *Log) SaveJSONL(filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	if err := l.WriteJSONL(f); err != nil {
		return err
	}
	return f.Close()
}

// ParseJSONLReader parses a log from a JSONL reader.
func ParseJSONLReader(r io.Reader) (*Log, error) {
	log := NewLog()
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if line == "" {
			continue
		}

		var record jsonlRecord
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			return nil, fmt.Errorf("line %d: invalid JSON: %w", lineNum, err)
		}

		timestamp, err := time.Parse(time.RFC3339Nano, record.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid timestamp: %w", lineNum, err)
		}

		log.Add(Event{
			Contract:  record.Contract,
			Name:      record.Event,
			Sequence:  record.Sequence,
			Timestamp: timestamp,
			Args:      record.Args,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}

	log.Sort()
	return log, nil
}

// ParseJSONL parses a log from a JSONL file.
func ParseJSONL(filename string) (*Log, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	return ParseJSONLReader(f)
}
