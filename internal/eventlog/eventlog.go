// Package eventlog decodes order event exports (CSV or JSON) into
// timestamp-ordered event records.
package eventlog

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rewired-gh/venuewatch/internal/models"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// Column names used by venue exports.
const (
	colTimestamp   = "TimeStamp"
	colEpoch       = "TimeStampEpoch"
	colDirection   = "Direction"
	colOrderID     = "OrderID"
	colMessageType = "MessageType"
	colSymbol      = "Symbol"
	colOrderPrice  = "OrderPrice"
	colVenue       = "Exchange"
)

var requiredColumns = []string{colTimestamp, colOrderID, colMessageType, colVenue}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// ErrMissingColumn is returned when a CSV header lacks a required column.
var ErrMissingColumn = errors.New("missing required column")

// rawEvent mirrors one exported row before validation.
type rawEvent struct {
	TimeStamp      string          `json:"TimeStamp"`
	TimeStampEpoch json.RawMessage `json:"TimeStampEpoch"`
	Direction      string          `json:"Direction"`
	OrderID        json.RawMessage `json:"OrderID"`
	MessageType    string          `json:"MessageType"`
	Symbol         string          `json:"Symbol"`
	OrderPrice     json.RawMessage `json:"OrderPrice"`
	Exchange       string          `json:"Exchange"`
}

// DetectFormat picks the format from the file extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("cannot detect event log format of %s", path)
}

// ReadFile decodes the file at path and sorts the events by timestamp.
// An empty format is detected from the extension.
func ReadFile(path string, format Format) ([]models.EventRecord, error) {
	if format == "" {
		var err error
		if format, err = DetectFormat(path); err != nil {
			return nil, err
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}
	defer f.Close()

	var events []models.EventRecord
	switch format {
	case FormatCSV:
		events, err = DecodeCSV(f)
	case FormatJSON:
		events, err = DecodeJSON(f)
	default:
		return nil, fmt.Errorf("unsupported event log format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	SortByTimestamp(events)
	return events, nil
}

// ConcatJSON decodes several JSON exports (one per venue, typically) into a
// single timestamp-ordered stream.
func ConcatJSON(paths []string) ([]models.EventRecord, error) {
	var all []models.EventRecord
	for _, p := range paths {
		events, err := ReadFile(p, FormatJSON)
		if err != nil {
			return nil, err
		}
		all = append(all, events...)
	}
	SortByTimestamp(all)
	return all, nil
}

// SortByTimestamp orders events by timestamp, keeping input order for ties.
func SortByTimestamp(events []models.EventRecord) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
}

// DecodeCSV reads a header row followed by one event per row.
func DecodeCSV(r io.Reader) ([]models.EventRecord, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(h)] = i
	}
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, c)
		}
	}
	field := func(rec []string, name string) string {
		if i, ok := cols[name]; ok && i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}

	var events []models.EventRecord
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		raw := rawEvent{
			TimeStamp:   field(rec, colTimestamp),
			Direction:   field(rec, colDirection),
			MessageType: field(rec, colMessageType),
			Symbol:      field(rec, colSymbol),
			Exchange:    field(rec, colVenue),
		}
		raw.TimeStampEpoch = json.RawMessage(field(rec, colEpoch))
		raw.OrderID = json.RawMessage(strconv.Quote(field(rec, colOrderID)))
		raw.OrderPrice = json.RawMessage(field(rec, colOrderPrice))

		e, err := raw.toRecord()
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		events = append(events, e)
	}
	return events, nil
}

// DecodeJSON reads a JSON array of event objects.
func DecodeJSON(r io.Reader) ([]models.EventRecord, error) {
	var raws []rawEvent
	if err := json.NewDecoder(r).Decode(&raws); err != nil {
		return nil, fmt.Errorf("failed to decode events: %w", err)
	}
	events := make([]models.EventRecord, 0, len(raws))
	for i, raw := range raws {
		e, err := raw.toRecord()
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		events = append(events, e)
	}
	return events, nil
}

func (r rawEvent) toRecord() (models.EventRecord, error) {
	ts, err := parseTimestamp(r.TimeStamp)
	if err != nil {
		return models.EventRecord{}, err
	}
	mt, err := models.ParseMessageType(r.MessageType)
	if err != nil {
		return models.EventRecord{}, err
	}

	e := models.EventRecord{
		Timestamp:   ts,
		OrderID:     unquote(r.OrderID),
		MessageType: mt,
		Symbol:      strings.TrimSpace(r.Symbol),
		Venue:       strings.TrimSpace(r.Exchange),
	}

	if epoch := unquote(r.TimeStampEpoch); epoch != "" {
		n, err := strconv.ParseInt(epoch, 10, 64)
		if err != nil {
			return models.EventRecord{}, fmt.Errorf("invalid epoch %q: %w", epoch, err)
		}
		e.TimestampEpoch = n
	} else {
		e.TimestampEpoch = ts.UnixNano()
	}

	if strings.TrimSpace(r.Direction) != "" {
		if e.Direction, err = models.ParseDirection(r.Direction); err != nil {
			return models.EventRecord{}, err
		}
	}

	if price := unquote(r.OrderPrice); price != "" && !strings.EqualFold(price, "nan") {
		d, err := decimal.NewFromString(price)
		if err != nil {
			return models.EventRecord{}, fmt.Errorf("invalid order price %q: %w", price, err)
		}
		e.OrderPrice = decimal.NewNullDecimal(d)
	}

	if err := e.Validate(); err != nil {
		return models.EventRecord{}, err
	}
	return e, nil
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// unquote turns a raw JSON scalar (string, number or null) into plain text.
func unquote(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return strings.TrimSpace(s)
		}
	}
	return string(raw)
}
