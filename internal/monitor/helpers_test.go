package monitor

import (
	"testing"
	"time"

	"github.com/rewired-gh/venuewatch/internal/models"
)

var t0 = time.Date(2024, 1, 5, 9, 28, 0, 0, time.UTC)

func at(seconds float64) time.Time {
	return t0.Add(time.Duration(seconds * float64(time.Second)))
}

func testEvent(venue, orderID string, mt models.MessageType, symbol string, seconds float64) models.EventRecord {
	ts := at(seconds)
	return models.EventRecord{
		Timestamp:      ts,
		TimestampEpoch: ts.UnixNano(),
		OrderID:        orderID,
		MessageType:    mt,
		Symbol:         symbol,
		Venue:          venue,
	}
}

func mustProcess(t *testing.T, m *Monitor, events ...models.EventRecord) {
	t.Helper()
	for _, e := range events {
		if err := m.Process(e); err != nil {
			t.Fatalf("Process(%s %s @%s): %v", e.OrderID, e.MessageType, e.Timestamp, err)
		}
	}
}

func mustSnapshot(t *testing.T, m *Monitor, venue string) models.VenueSnapshot {
	t.Helper()
	snap, ok := m.Snapshot(venue)
	if !ok {
		t.Fatalf("no snapshot for venue %s", venue)
	}
	return snap
}
