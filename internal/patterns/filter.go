package patterns

import (
	"github.com/rewired-gh/venuewatch/internal/models"
)

// SelectByShape returns the events of orders whose full shape equals one of
// targets. Events keep their input order.
func SelectByShape(events []models.EventRecord, targets []Shape) []models.EventRecord {
	if len(targets) == 0 {
		return []models.EventRecord{}
	}

	wanted := make(map[string]bool, len(targets))
	for _, t := range targets {
		wanted[t.Key()] = true
	}

	matching := make(map[string]bool)
	for _, g := range GroupByOrder(events) {
		if wanted[g.Shape.Key()] {
			matching[g.OrderID] = true
		}
	}

	out := make([]models.EventRecord, 0)
	for _, e := range events {
		if matching[e.OrderID] {
			out = append(out, e)
		}
	}
	return out
}

// TransitionOptions controls SelectByTransition.
type TransitionOptions struct {
	// Strict requires the follow-on message to be the next event of the same
	// order. Without it, any order in the dataset carrying the follow-on type
	// satisfies the transition.
	Strict bool
}

type transition struct {
	from, to models.MessageType
}

// SelectByTransition reads each target as a chain of adjacent transitions
// and returns every event whose type is the source of one of them.
//
// In the default mode a transition a -> b selects all events of type a as
// soon as any order has an event of type b, even a different order. Strict
// mode only selects an a event when the same order's next event is b.
func SelectByTransition(events []models.EventRecord, targets []Shape, opts TransitionOptions) []models.EventRecord {
	var transitions []transition
	for _, t := range targets {
		for i := 0; i+1 < len(t); i++ {
			transitions = append(transitions, transition{from: t[i], to: t[i+1]})
		}
	}
	if len(transitions) == 0 {
		return []models.EventRecord{}
	}

	if opts.Strict {
		return selectStrict(events, transitions)
	}

	present := make(map[models.MessageType]bool)
	for _, e := range events {
		present[e.MessageType] = true
	}
	sources := make(map[models.MessageType]bool)
	for _, tr := range transitions {
		if present[tr.to] {
			sources[tr.from] = true
		}
	}

	out := make([]models.EventRecord, 0)
	for _, e := range events {
		if sources[e.MessageType] {
			out = append(out, e)
		}
	}
	return out
}

func selectStrict(events []models.EventRecord, transitions []transition) []models.EventRecord {
	wanted := make(map[transition]bool, len(transitions))
	for _, tr := range transitions {
		wanted[tr] = true
	}

	positions := make(map[string][]int)
	for i, e := range events {
		positions[e.OrderID] = append(positions[e.OrderID], i)
	}

	selected := make([]bool, len(events))
	for _, idx := range positions {
		for j := 0; j+1 < len(idx); j++ {
			cur, next := events[idx[j]], events[idx[j+1]]
			if wanted[transition{from: cur.MessageType, to: next.MessageType}] {
				selected[idx[j]] = true
			}
		}
	}

	out := make([]models.EventRecord, 0)
	for i, e := range events {
		if selected[i] {
			out = append(out, e)
		}
	}
	return out
}
