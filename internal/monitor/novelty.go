package monitor

import (
	"time"

	"github.com/rewired-gh/venuewatch/internal/models"
)

// NoveltyDetector flags symbols whose order flow picks up again after their
// longest quiet spell, once they have accumulated enough orders.
type NoveltyDetector struct {
	threshold   int
	gracePeriod time.Duration
}

func NewNoveltyDetector(threshold int, gracePeriod time.Duration) *NoveltyDetector {
	return &NoveltyDetector{threshold: threshold, gracePeriod: gracePeriod}
}

// Process applies one event and reports whether its symbol was newly flagged.
func (d *NoveltyDetector) Process(state *models.NoveltyState, event models.EventRecord, streamStart time.Time) bool {
	if event.Symbol == "" {
		return false
	}

	sym, ok := state.Symbols[event.Symbol]
	if !ok {
		state.Symbols[event.Symbol] = &models.SymbolNoveltyState{
			Symbol:         event.Symbol,
			Count:          1,
			LastEventEpoch: event.TimestampEpoch,
		}
		return false
	}

	if event.MessageType != models.NewOrderRequest {
		return false
	}

	gap := event.TimestampEpoch - sym.LastEventEpoch
	sym.LastEventEpoch = event.TimestampEpoch
	sym.Count++

	crossing := false
	if gap > sym.HighestGap {
		sym.HighestGap = gap
		if sym.Count > d.threshold {
			sym.ExceededThreshold = true
			crossing = true
		}
	}

	if !crossing || !sym.ExceededThreshold || !event.Timestamp.After(streamStart.Add(d.gracePeriod)) {
		return false
	}
	if _, seen := state.NovelSymbols[event.Symbol]; seen {
		return false
	}
	state.NovelSymbols[event.Symbol] = struct{}{}
	return true
}
