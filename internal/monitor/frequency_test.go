package monitor

import (
	"testing"
	"time"

	"github.com/rewired-gh/venuewatch/internal/models"
)

func TestFrequency_BucketsWithinWindow(t *testing.T) {
	a := NewFrequencyAggregator(time.Second, at(10), at(20))
	hist := make(Histogram)

	// Both window bounds are inclusive; the first and last events fall outside.
	events := []models.EventRecord{
		testEvent("V", "o1", models.NewOrderRequest, "S", 5),
		testEvent("V", "o1", models.NewOrderRequest, "S", 10),
		testEvent("V", "o2", models.NewOrderRequest, "S", 10.4),
		testEvent("V", "o1", models.Trade, "S", 10.9),
		testEvent("V", "o2", models.Cancelled, "S", 12.2),
		testEvent("V", "o3", models.NewOrderRequest, "S", 20),
		testEvent("V", "o3", models.Cancelled, "S", 20.5),
	}
	counted := 0
	for _, e := range events {
		if a.Process(hist, e) {
			counted++
		}
	}
	if counted != 5 {
		t.Fatalf("counted %d events, want 5", counted)
	}

	points := hist.Points()
	if len(points) != 3 {
		t.Fatalf("got %d buckets, want 3", len(points))
	}
	if !points[0].Start.Equal(at(10)) {
		t.Errorf("first bucket starts at %s, want %s", points[0].Start, at(10))
	}
	if points[0].Counts[models.NewOrderRequest] != 2 || points[0].Counts[models.Trade] != 1 {
		t.Errorf("first bucket counts = %v", points[0].Counts)
	}
	if n, ok := points[0].Counts[models.Rejected]; !ok || n != 0 {
		t.Errorf("expected zero-filled Rejected counter, got %d (present %v)", n, ok)
	}
	if points[1].Counts[models.Cancelled] != 1 {
		t.Errorf("second bucket counts = %v", points[1].Counts)
	}
}

func TestFrequency_OpenWindowAndGranularity(t *testing.T) {
	a := NewFrequencyAggregator(time.Minute, time.Time{}, time.Time{})
	hist := make(Histogram)

	for _, s := range []float64{0, 30, 59, 61, 3600} {
		a.Process(hist, testEvent("V", "o", models.Trade, "S", s))
	}

	points := hist.Points()
	if len(points) != 3 {
		t.Fatalf("got %d buckets, want 3", len(points))
	}
	want := []int{3, 1, 1}
	for i, p := range points {
		if p.Counts[models.Trade] != want[i] {
			t.Errorf("bucket %d trades = %d, want %d", i, p.Counts[models.Trade], want[i])
		}
	}
}

func TestFrequency_UnseenMessageTypeExtendsBucket(t *testing.T) {
	a := NewFrequencyAggregator(time.Second, time.Time{}, time.Time{})
	hist := make(Histogram)

	e := testEvent("V", "o", models.NewOrderRequest, "S", 1)
	e.MessageType = "Amended"
	if !a.Process(hist, e) {
		t.Fatal("expected event to be counted")
	}

	points := hist.Points()
	if points[0].Counts["Amended"] != 1 {
		t.Errorf("Amended count = %d, want 1", points[0].Counts["Amended"])
	}
	if len(points[0].Counts) != len(models.MessageTypes)+1 {
		t.Errorf("bucket has %d counters, want %d", len(points[0].Counts), len(models.MessageTypes)+1)
	}
}
