package observability

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/rewired-gh/venuewatch/internal/models"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics("test")

	m.EventProcessed("Exchange_1", models.NewOrderRequest)
	m.EventProcessed("Exchange_1", models.NewOrderRequest)
	m.EventProcessed("Exchange_2", models.Trade)
	m.EventRejected("Exchange_1", "out_of_order")
	m.OrdersFlagged("Exchange_1", 3)
	m.SymbolFlagged("Exchange_2")

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"new orders on Exchange_1", testutil.ToFloat64(m.eventsProcessed.WithLabelValues("Exchange_1", "NewOrderRequest")), 2},
		{"trades on Exchange_2", testutil.ToFloat64(m.eventsProcessed.WithLabelValues("Exchange_2", "Trade")), 1},
		{"rejected", testutil.ToFloat64(m.eventsRejected.WithLabelValues("Exchange_1", "out_of_order")), 1},
		{"orders flagged", testutil.ToFloat64(m.ordersFlagged.WithLabelValues("Exchange_1")), 3},
		{"symbols flagged", testutil.ToFloat64(m.symbolsFlagged.WithLabelValues("Exchange_2")), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestMetrics_ConcurrentUse(t *testing.T) {
	m := NewMetrics("test")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.EventProcessed("Exchange_1", models.Cancelled)
			}
		}()
	}
	wg.Wait()
	if got := testutil.ToFloat64(m.eventsProcessed.WithLabelValues("Exchange_1", "Cancelled")); got != 800 {
		t.Errorf("got %v events, want 800", got)
	}
}

func TestMetrics_ObserveReport(t *testing.T) {
	m := NewMetrics("test")
	m.ObserveReport(&models.RunReport{
		Venues: []models.VenueSnapshot{
			{Venue: "Exchange_1", OpenOrders: 4, MeanDuration: 1.5, StdDevDuration: 0.5},
		},
		Patterns: []models.PatternSummary{{ID: "pattern_1"}, {ID: "pattern_2"}},
	}, 250*time.Millisecond)

	if got := testutil.ToFloat64(m.openOrders.WithLabelValues("Exchange_1")); got != 4 {
		t.Errorf("open orders = %v", got)
	}
	if got := testutil.ToFloat64(m.lifetimeStdDev.WithLabelValues("Exchange_1")); got != 0.5 {
		t.Errorf("stddev = %v", got)
	}
	if got := testutil.ToFloat64(m.patterns); got != 2 {
		t.Errorf("patterns = %v", got)
	}
	if n := testutil.CollectAndCount(m.runDuration); n != 1 {
		t.Errorf("run duration series = %d", n)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics("venuewatch")
	m.EventProcessed("Exchange_1", models.Trade)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	want := `venuewatch_events_processed_total{message_type="Trade",venue="Exchange_1"} 1`
	if !strings.Contains(body, want) {
		t.Errorf("exposition missing %q:\n%s", want, body)
	}
}
