package eventlog

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

var csvHeader = []string{"sequence", "contract", "event", "timestamp", "args"}

// WriteCSV writes the log as CSV in global order. Event arguments are
// serialized as a JSON object in the final column.
func (l *Log) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, e := range l.Events {
		args := ""
		if len(e.Args) > 0 {
			encoded, err := json.Marshal(e.Args)
			if err != nil {
				return fmt.Errorf("encode args for event %d: %w", e.Sequence, err)
			}
			args = string(encoded)
		}
		record := []string{
			strconv.Itoa(e.Sequence),
			e.Contract,
			e.Name,
			e.Timestamp.Format(time.RFC3339Nano),
			args,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write event %d: %w", e.Sequence, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// SaveCSV writes the log to a CSV file.
func (l *Log) SaveCSV(filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	if err := l.WriteCSV(f); err != nil {
		return err
	}
	return f.Close()
}

// ParseCSVReader parses a log from a CSV reader produced by WriteCSV.
func ParseCSVReader(r io.Reader) (*Log, error) {
	cr := csv.NewReader(r)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return NewLog(), nil
	}

	log := NewLog()
	for i, record := range records[1:] {
		if len(record) != len(csvHeader) {
			return nil, fmt.Errorf("row %d: expected %d columns, got %d", i+2, len(csvHeader), len(record))
		}

		sequence, err := strconv.Atoi(record[0])
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid sequence: %w", i+2, err)
		}
		timestamp, err := time.Parse(time.RFC3339Nano, record[3])
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid timestamp: %w", i+2, err)
		}

		var args map[string]string
		if record[4] != "" {
			if err := json.Unmarshal([]byte(record[4]), &args); err != nil {
				return nil, fmt.Errorf("row %d: invalid args: %w", i+2, err)
			}
		}

		log.Add(Event{
			Contract:  record[1],
			Name:      record[2],
			Sequence:  sequence,
			Timestamp: timestamp,
			Args:      args,
		})
	}

	log.Sort()
	return log, nil
}

// ParseCSV parses a log from a CSV file.
func ParseCSV(filename string) (*Log, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	return ParseCSVReader(f)
}
