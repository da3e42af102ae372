package patterns

import "fmt"

// Pattern is a registered shape with its id and occurrence count.
type Pattern struct {
	ID    string
	Shape Shape
	Count int
}

// Registry assigns stable synthetic ids (pattern_1, pattern_2, ...) to
// distinct shapes. An id, once assigned, always maps to the same shape.
type Registry struct {
	byKey   map[string]string
	byID    map[string]Shape
	counts  map[string]int
	ordered []string
}

func NewRegistry() *Registry {
	return &Registry{
		byKey:  make(map[string]string),
		byID:   make(map[string]Shape),
		counts: make(map[string]int),
	}
}

// Assign returns the id of shape, registering it with the next id if unseen.
func (r *Registry) Assign(shape Shape) string {
	key := shape.Key()
	if id, ok := r.byKey[key]; ok {
		return id
	}
	id := fmt.Sprintf("pattern_%d", len(r.ordered)+1)
	r.byKey[key] = id
	r.byID[id] = append(Shape(nil), shape...)
	r.ordered = append(r.ordered, id)
	return id
}

// AddCount registers shape if needed and adds n occurrences.
func (r *Registry) AddCount(shape Shape, n int) string {
	id := r.Assign(shape)
	r.counts[id] += n
	return id
}

func (r *Registry) ID(shape Shape) (string, bool) {
	id, ok := r.byKey[shape.Key()]
	return id, ok
}

func (r *Registry) Shape(id string) (Shape, bool) {
	s, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	return append(Shape(nil), s...), true
}

func (r *Registry) Count(id string) int {
	return r.counts[id]
}

func (r *Registry) Len() int {
	return len(r.ordered)
}

// Counts returns pattern id -> occurrence count.
func (r *Registry) Counts() map[string]int {
	out := make(map[string]int, len(r.counts))
	for id, n := range r.counts {
		out[id] = n
	}
	return out
}

// Patterns lists every registered pattern in id assignment order.
func (r *Registry) Patterns() []Pattern {
	out := make([]Pattern, 0, len(r.ordered))
	for _, id := range r.ordered {
		out = append(out, Pattern{ID: id, Shape: append(Shape(nil), r.byID[id]...), Count: r.counts[id]})
	}
	return out
}
