package patterns

import (
	"testing"
	"time"

	"github.com/rewired-gh/venuewatch/internal/models"
)

var base = time.Date(2024, 1, 5, 9, 30, 0, 0, time.UTC)

func ev(orderID string, mt models.MessageType, second int) models.EventRecord {
	ts := base.Add(time.Duration(second) * time.Second)
	return models.EventRecord{
		Timestamp:      ts,
		TimestampEpoch: ts.UnixNano(),
		OrderID:        orderID,
		MessageType:    mt,
		Symbol:         "ABC",
		Venue:          "Exchange_1",
	}
}

// threeOrders interleaves one acknowledged-and-traded order with two rejections.
func threeOrders() []models.EventRecord {
	return []models.EventRecord{
		ev("O1", models.NewOrderRequest, 0),
		ev("O2", models.NewOrderRequest, 1),
		ev("O1", models.NewOrderAcknowledged, 2),
		ev("O3", models.NewOrderRequest, 3),
		ev("O2", models.Rejected, 4),
		ev("O1", models.Trade, 5),
		ev("O3", models.Rejected, 6),
	}
}

func mustShape(t *testing.T, key string) Shape {
	t.Helper()
	s, err := ParseShape(key)
	if err != nil {
		t.Fatalf("ParseShape(%q): %v", key, err)
	}
	return s
}

func TestMine_CountsAndRanksShapes(t *testing.T) {
	res := Mine(threeOrders())

	if res.Registry.Len() != 2 {
		t.Fatalf("got %d patterns, want 2", res.Registry.Len())
	}
	if got := res.Counts[0].Shape.Key(); got != "NewOrderRequest -> Rejected" {
		t.Errorf("top shape = %q, want NewOrderRequest -> Rejected", got)
	}
	if res.Counts[0].Count != 2 || res.Counts[1].Count != 1 {
		t.Errorf("counts = %d, %d; want 2, 1", res.Counts[0].Count, res.Counts[1].Count)
	}

	// Ids follow the counting pass, so the most frequent shape is pattern_1.
	id, ok := res.Registry.ID(mustShape(t, "NewOrderRequest -> Rejected"))
	if !ok || id != "pattern_1" {
		t.Errorf("rejected shape id = %q (%v), want pattern_1", id, ok)
	}
	if got := res.Registry.Counts(); got["pattern_1"] != 2 || got["pattern_2"] != 1 {
		t.Errorf("pattern counts = %v", got)
	}

	want := map[string]string{"O1": "pattern_2", "O2": "pattern_1", "O3": "pattern_1"}
	for order, pid := range want {
		if res.OrderPatterns[order] != pid {
			t.Errorf("order %s -> %s, want %s", order, res.OrderPatterns[order], pid)
		}
	}
}

func TestGroupByOrder_SortedByOrderIDWithArrivalOrder(t *testing.T) {
	groups := GroupByOrder(threeOrders())
	if len(groups) != 3 {
		t.Fatalf("got %d groups, want 3", len(groups))
	}
	for i, want := range []string{"O1", "O2", "O3"} {
		if groups[i].OrderID != want {
			t.Errorf("group %d = %s, want %s", i, groups[i].OrderID, want)
		}
	}
	if got := groups[0].Shape.Key(); got != "NewOrderRequest -> NewOrderAcknowledged -> Trade" {
		t.Errorf("O1 shape = %q", got)
	}
}

func TestCountShapes_TiesKeepFirstEncounter(t *testing.T) {
	events := []models.EventRecord{
		ev("b", models.NewOrderRequest, 0),
		ev("b", models.Cancelled, 1),
		ev("a", models.NewOrderRequest, 2),
		ev("a", models.Rejected, 3),
	}
	counts := CountShapes(GroupByOrder(events))

	// Order "a" is walked first, so its shape wins the tie.
	if got := counts[0].Shape.Key(); got != "NewOrderRequest -> Rejected" {
		t.Errorf("first tied shape = %q", got)
	}
	reg := AssignIDs(counts)
	if id, _ := reg.ID(counts[1].Shape); id != "pattern_2" {
		t.Errorf("second shape id = %s, want pattern_2", id)
	}
}

func TestRegistry_RoundTrip(t *testing.T) {
	res := Mine(threeOrders())
	for _, c := range res.Counts {
		id, ok := res.Registry.ID(c.Shape)
		if !ok {
			t.Fatalf("shape %s not registered", c.Shape)
		}
		back, ok := res.Registry.Shape(id)
		if !ok || !back.Equal(c.Shape) {
			t.Errorf("round trip of %s via %s gave %s", c.Shape, id, back)
		}
	}
}

func TestRegistry_IdsAreNeverReassigned(t *testing.T) {
	r := NewRegistry()
	a := mustShape(t, "NewOrderRequest -> Cancelled")
	b := mustShape(t, "NewOrderRequest -> Rejected")

	idA := r.Assign(a)
	idB := r.Assign(b)
	if again := r.Assign(a); again != idA {
		t.Errorf("re-assigning %s gave %s, want %s", a, again, idA)
	}
	if idA == idB {
		t.Fatalf("distinct shapes share id %s", idA)
	}
	if r.Len() != 2 {
		t.Errorf("len = %d, want 2", r.Len())
	}

	// Mutating the caller's slice must not alter the registered shape.
	a[1] = models.Trade
	if s, _ := r.Shape(idA); s.Key() != "NewOrderRequest -> Cancelled" {
		t.Errorf("registered shape changed to %s", s)
	}
}

func TestRank_IsStable(t *testing.T) {
	counts := []ShapeCount{
		{Shape: Shape{models.Trade}, Count: 1},
		{Shape: Shape{models.Rejected}, Count: 3},
		{Shape: Shape{models.Cancelled}, Count: 1},
	}
	ranked := Rank(counts)
	want := []models.MessageType{models.Rejected, models.Trade, models.Cancelled}
	for i, mt := range want {
		if ranked[i].Shape[0] != mt {
			t.Errorf("rank %d = %s, want %s", i, ranked[i].Shape[0], mt)
		}
	}
	if counts[0].Shape[0] != models.Trade {
		t.Error("Rank modified its input")
	}
}

func TestParseShape(t *testing.T) {
	tests := []struct {
		key     string
		wantLen int
		wantErr bool
	}{
		{"NewOrderRequest -> Rejected", 2, false},
		{"NewOrderRequest->NewOrderAcknowledged->Trade", 3, false},
		{"Trade", 1, false},
		{"", 0, true},
		{"NewOrderRequest -> Amended", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			s, err := ParseShape(tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseShape(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
			if len(s) != tt.wantLen {
				t.Errorf("len = %d, want %d", len(s), tt.wantLen)
			}
		})
	}
}

func TestMine_Top(t *testing.T) {
	res := Mine(threeOrders())
	top := res.Top(1)
	if len(top) != 1 || top[0].ID != "pattern_1" || top[0].Count != 2 {
		t.Errorf("Top(1) = %+v", top)
	}
	if len(res.Top(0)) != 2 {
		t.Errorf("Top(0) should return all patterns")
	}
}
