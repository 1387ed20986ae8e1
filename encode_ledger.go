package holdings

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
)

func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

// recordHeader is the first line of an encoded record.
type recordHeader struct {
	Position  Position  `json:"position"`
	Version   int64     `json:"version"`
	Aggregate Aggregate `json:"aggregate"`
}

// DecodeRecord decodes a position record from JSONL: a header line with the
// position, its version and aggregate, then one event per line.
func DecodeRecord(r io.Reader) (Record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var rec Record
	header := false
	line := 0
	for scanner.Scan() {
		line++
		lineBytes := scanner.Bytes()
		if len(lineBytes) == 0 {
			continue // Skip empty lines
		}
		if !header {
			var h recordHeader
			if err := json.Unmarshal(lineBytes, &h); err != nil {
				return Record{}, fmt.Errorf("line %d: could not decode header: %w", line, err)
			}
			rec.Position, rec.Version, rec.Aggregate = h.Position, h.Version, h.Aggregate
			header = true
			continue
		}
		var e Event
		if err := json.Unmarshal(lineBytes, &e); err != nil {
			return Record{}, fmt.Errorf("line %d: could not decode event: %w", line, err)
		}
		rec.Events = append(rec.Events, e)
	}
	if err := scanner.Err(); err != nil {
		return Record{}, fmt.Errorf("error reading ledger: %w", err)
	}
	if !header {
		return Record{}, errors.New("empty ledger: missing position header")
	}
	rec.Events = NewPositionLedger(rec.Events...).Slice()
	return rec, nil
}

// EncodeEvent writes a single event as one JSON line.
func EncodeEvent(w io.Writer, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("could not marshal event %s: %w", e.ID, err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("could not write event %s: %w", e.ID, err)
	}
	return nil
}

// EncodeRecord writes rec as JSONL, header first, events in date order.
func EncodeRecord(w io.Writer, rec Record) error {
	data, err := json.Marshal(recordHeader{Position: rec.Position, Version: rec.Version, Aggregate: rec.Aggregate})
	if err != nil {
		return fmt.Errorf("could not marshal position %s: %w", rec.Position.ID, err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return err
	}
	for _, e := range NewPositionLedger(rec.Events...).Events() {
		if err := EncodeEvent(w, e); err != nil {
			return err
		}
	}
	return nil
}
