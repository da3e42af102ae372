package monitor

import (
	"time"

	"github.com/rewired-gh/venuewatch/internal/models"
)

// LifecycleTracker measures how long orders stay open on a venue and flags
// the ones open abnormally long compared to the closed-order distribution.
type LifecycleTracker struct {
	closing     map[models.MessageType]bool
	multiplier  float64
	gracePeriod time.Duration
}

func NewLifecycleTracker(closingTypes []models.MessageType, multiplier float64, gracePeriod time.Duration) *LifecycleTracker {
	closing := make(map[models.MessageType]bool, len(closingTypes))
	for _, t := range closingTypes {
		closing[t] = true
	}
	return &LifecycleTracker{
		closing:     closing,
		multiplier:  multiplier,
		gracePeriod: gracePeriod,
	}
}

// Process applies one event to the venue state and returns the order IDs
// flagged by the sweep that followed it.
func (t *LifecycleTracker) Process(state *models.VenueState, event models.EventRecord, streamStart time.Time) []string {
	switch event.MessageType {
	case models.NewOrderRequest:
		state.OrdersSent++
		state.OpenOrders[event.OrderID] = event.Timestamp
	case models.Trade:
		state.TradesPassed++
	case models.Cancelled:
		state.OrdersCancelled++
	}

	if t.closing[event.MessageType] {
		// Closing an order that is not open records nothing.
		if opened, ok := state.OpenOrders[event.OrderID]; ok {
			duration := event.Timestamp.Sub(opened).Seconds()
			state.ClosedDurations = append(state.ClosedDurations, duration)
			UpdateWelford(state, duration)
			delete(state.OpenOrders, event.OrderID)
		}
	}

	return t.Sweep(state, event.Timestamp, streamStart)
}

// Sweep flags every open order whose age at now exceeds mean + k*sigma of the
// closed durations. Nothing is flagged until the grace period after
// streamStart has elapsed. Already flagged orders are skipped.
func (t *LifecycleTracker) Sweep(state *models.VenueState, now time.Time, streamStart time.Time) []string {
	if !now.After(streamStart.Add(t.gracePeriod)) {
		return nil
	}

	threshold := t.multiplier*GetSigma(state) + GetMean(state)

	var flagged []string
	for orderID, opened := range state.OpenOrders {
		if _, done := state.FlaggedOrders[orderID]; done {
			continue
		}
		if now.Sub(opened).Seconds() > threshold {
			state.FlaggedOrders[orderID] = struct{}{}
			flagged = append(flagged, orderID)
		}
	}
	return flagged
}
