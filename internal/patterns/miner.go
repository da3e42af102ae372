package patterns

import (
	"sort"

	"github.com/rewired-gh/venuewatch/internal/models"
)

// Group is the shape followed by one order.
type Group struct {
	OrderID string
	Shape   Shape
}

// ShapeCount is the number of orders that followed a shape.
type ShapeCount struct {
	Shape Shape
	Count int
}

// GroupByOrder collects each order's message types in arrival order.
// Groups are returned sorted by order ID, which fixes the traversal order of
// the counting pass and therefore the pattern ids.
func GroupByOrder(events []models.EventRecord) []Group {
	index := make(map[string]int)
	var groups []Group
	for _, e := range events {
		i, ok := index[e.OrderID]
		if !ok {
			i = len(groups)
			index[e.OrderID] = i
			groups = append(groups, Group{OrderID: e.OrderID})
		}
		groups[i].Shape = append(groups[i].Shape, e.MessageType)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].OrderID < groups[j].OrderID
	})
	return groups
}

// ShapesByOrder turns groups into an order ID -> shape lookup.
func ShapesByOrder(groups []Group) map[string]Shape {
	out := make(map[string]Shape, len(groups))
	for _, g := range groups {
		out[g.OrderID] = g.Shape
	}
	return out
}

// CountShapes counts how many orders followed each shape. The result is
// ordered by count descending; ties keep the order in which shapes were
// first met while walking groups.
func CountShapes(groups []Group) []ShapeCount {
	index := make(map[string]int)
	var counts []ShapeCount
	for _, g := range groups {
		key := g.Shape.Key()
		i, ok := index[key]
		if !ok {
			i = len(counts)
			index[key] = i
			counts = append(counts, ShapeCount{Shape: g.Shape})
		}
		counts[i].Count++
	}
	return Rank(counts)
}

// AssignIDs registers shapes in the order given, so ids follow the counting pass.
func AssignIDs(counts []ShapeCount) *Registry {
	r := NewRegistry()
	for _, c := range counts {
		r.AddCount(c.Shape, c.Count)
	}
	return r
}

// Rank returns a copy of counts sorted by count descending. The sort is
// stable, so ties keep their input order.
func Rank(counts []ShapeCount) []ShapeCount {
	ranked := append([]ShapeCount(nil), counts...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Count > ranked[j].Count
	})
	return ranked
}

// Result bundles the outputs of one mining pass.
type Result struct {
	Groups   []Group
	Counts   []ShapeCount
	Registry *Registry
	// OrderPatterns maps order ID -> pattern id.
	OrderPatterns map[string]string
}

// Mine groups, counts and labels the shapes in events.
func Mine(events []models.EventRecord) *Result {
	groups := GroupByOrder(events)
	counts := CountShapes(groups)
	registry := AssignIDs(counts)

	orderPatterns := make(map[string]string, len(groups))
	for _, g := range groups {
		id, _ := registry.ID(g.Shape)
		orderPatterns[g.OrderID] = id
	}

	return &Result{
		Groups:        groups,
		Counts:        counts,
		Registry:      registry,
		OrderPatterns: orderPatterns,
	}
}

// OrderPatterns maps every order in events to its pattern id.
func OrderPatterns(events []models.EventRecord) map[string]string {
	return Mine(events).OrderPatterns
}

// Top returns at most k ranked patterns; k <= 0 returns all of them.
func (r *Result) Top(k int) []Pattern {
	patterns := r.Registry.Patterns()
	if k > 0 && len(patterns) > k {
		patterns = patterns[:k]
	}
	return patterns
}
