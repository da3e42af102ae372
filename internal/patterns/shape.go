// Package patterns mines the message-type sequences ("shapes") that orders
// follow and selects events by shape.
package patterns

import (
	"fmt"
	"strings"

	"github.com/rewired-gh/venuewatch/internal/models"
)

// Separator joins message types in a shape key.
const Separator = " -> "

// Shape is the ordered list of message types observed for one order.
type Shape []models.MessageType

// Key renders the canonical form, e.g. "NewOrderRequest -> Rejected".
func (s Shape) Key() string {
	parts := make([]string, len(s))
	for i, mt := range s {
		parts[i] = string(mt)
	}
	return strings.Join(parts, Separator)
}

func (s Shape) String() string {
	return s.Key()
}

func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// ParseShape parses a canonical key back into a shape.
func ParseShape(key string) (Shape, error) {
	if strings.TrimSpace(key) == "" {
		return nil, fmt.Errorf("empty shape")
	}
	parts := strings.Split(key, strings.TrimSpace(Separator))
	shape := make(Shape, 0, len(parts))
	for _, p := range parts {
		mt, err := models.ParseMessageType(p)
		if err != nil {
			return nil, fmt.Errorf("invalid shape %q: %w", key, err)
		}
		shape = append(shape, mt)
	}
	return shape, nil
}

// ParseShapes parses every key, failing on the first invalid one.
func ParseShapes(keys []string) ([]Shape, error) {
	shapes := make([]Shape, 0, len(keys))
	for _, k := range keys {
		s, err := ParseShape(k)
		if err != nil {
			return nil, err
		}
		shapes = append(shapes, s)
	}
	return shapes, nil
}
