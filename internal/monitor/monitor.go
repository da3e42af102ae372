package monitor

import (
	"fmt"
	"sort"
	"time"

	"github.com/rewired-gh/venuewatch/internal/logger"
	"github.com/rewired-gh/venuewatch/internal/models"
)

const (
	DefaultAnomalyMultiplier = 2.0
	DefaultGracePeriod       = time.Minute
	DefaultNoveltyThreshold  = 20
	DefaultGranularity       = time.Second
)

// DefaultClosingTypes are the message types that end an order's open interval.
var DefaultClosingTypes = []models.MessageType{models.Cancelled, models.Rejected}

type Config struct {
	ClosingTypes      []models.MessageType
	AnomalyMultiplier float64
	GracePeriod       time.Duration
	NoveltyThreshold  int
	Granularity       time.Duration
	WindowStart       time.Time
	WindowEnd         time.Time
	// StreamStart anchors the grace period. Zero means the first processed event.
	StreamStart time.Time
}

func DefaultConfig() Config {
	return Config{
		ClosingTypes:      append([]models.MessageType(nil), DefaultClosingTypes...),
		AnomalyMultiplier: DefaultAnomalyMultiplier,
		GracePeriod:       DefaultGracePeriod,
		NoveltyThreshold:  DefaultNoveltyThreshold,
		Granularity:       DefaultGranularity,
	}
}

// Recorder receives counters about processed events. Implementations must be
// safe for concurrent use when sharded processing is enabled.
type Recorder interface {
	EventProcessed(venue string, messageType models.MessageType)
	EventRejected(venue string, reason string)
	OrdersFlagged(venue string, n int)
	SymbolFlagged(venue string)
}

type nopRecorder struct{}

func (nopRecorder) EventProcessed(string, models.MessageType) {}
func (nopRecorder) EventRejected(string, string)              {}
func (nopRecorder) OrdersFlagged(string, int)                 {}
func (nopRecorder) SymbolFlagged(string)                      {}

type venueState struct {
	lifecycle *models.VenueState
	novelty   *models.NoveltyState
	frequency Histogram
}

func newVenueState(venue string) *venueState {
	return &venueState{
		lifecycle: models.NewVenueState(venue),
		novelty:   models.NewNoveltyState(venue),
		frequency: make(Histogram),
	}
}

// Monitor feeds events through the lifecycle, novelty and frequency trackers
// in that order. It is a single-writer state machine: callers must not
// invoke Process concurrently.
type Monitor struct {
	config    Config
	lifecycle *LifecycleTracker
	novelty   *NoveltyDetector
	frequency *FrequencyAggregator
	recorder  Recorder

	venues      map[string]*venueState
	novelAny    map[string]struct{}
	streamStart time.Time
	processed   int
}

func New(config Config) *Monitor {
	return &Monitor{
		config:      config,
		lifecycle:   NewLifecycleTracker(config.ClosingTypes, config.AnomalyMultiplier, config.GracePeriod),
		novelty:     NewNoveltyDetector(config.NoveltyThreshold, config.GracePeriod),
		frequency:   NewFrequencyAggregator(config.Granularity, config.WindowStart, config.WindowEnd),
		recorder:    nopRecorder{},
		venues:      make(map[string]*venueState),
		novelAny:    make(map[string]struct{}),
		streamStart: config.StreamStart,
	}
}

// SetRecorder installs a metrics recorder. A nil recorder disables recording.
func (m *Monitor) SetRecorder(r Recorder) {
	if r == nil {
		r = nopRecorder{}
	}
	m.recorder = r
}

func (m *Monitor) getOrCreateState(venue string) *venueState {
	if state, exists := m.venues[venue]; exists {
		return state
	}
	state := newVenueState(venue)
	m.venues[venue] = state
	logger.Debug("Tracking new venue %s", venue)
	return state
}

// Process applies one event. Invalid or out-of-order events are rejected
// before any state is touched.
func (m *Monitor) Process(event models.EventRecord) error {
	if err := event.Validate(); err != nil {
		m.recorder.EventRejected(event.Venue, "invalid")
		return fmt.Errorf("invalid event for order %s: %w", event.OrderID, err)
	}
	if existing, ok := m.venues[event.Venue]; ok {
		last := existing.lifecycle.LastTimestamp
		if event.Timestamp.Before(last) {
			m.recorder.EventRejected(event.Venue, "out_of_order")
			return fmt.Errorf("%w: venue %s order %s at %s, last %s", ErrInvalidEventOrder,
				event.Venue, event.OrderID, event.Timestamp.Format(time.RFC3339Nano), last.Format(time.RFC3339Nano))
		}
	}

	if m.streamStart.IsZero() {
		m.streamStart = event.Timestamp
	}

	state := m.getOrCreateState(event.Venue)
	state.lifecycle.LastTimestamp = event.Timestamp

	if flagged := m.lifecycle.Process(state.lifecycle, event, m.streamStart); len(flagged) > 0 {
		logger.Debug("Venue %s flagged %d long-open orders at %s", event.Venue, len(flagged), event.Timestamp.Format(time.RFC3339Nano))
		m.recorder.OrdersFlagged(event.Venue, len(flagged))
	}
	if m.novelty.Process(state.novelty, event, m.streamStart) {
		logger.Info("Symbol %s flagged as novel on venue %s", event.Symbol, event.Venue)
		m.novelAny[event.Symbol] = struct{}{}
		m.recorder.SymbolFlagged(event.Venue)
	}
	m.frequency.Process(state.frequency, event)

	m.processed++
	m.recorder.EventProcessed(event.Venue, event.MessageType)
	return nil
}

// IsFlagged reports whether the event's order is flagged on its venue or its
// symbol is novel on any venue.
func (m *Monitor) IsFlagged(event models.EventRecord) bool {
	if state, ok := m.venues[event.Venue]; ok {
		if _, flagged := state.lifecycle.FlaggedOrders[event.OrderID]; flagged {
			return true
		}
	}
	_, novel := m.novelAny[event.Symbol]
	return novel && event.Symbol != ""
}

// Enrich processes the event and returns a copy carrying its flag.
func (m *Monitor) Enrich(event models.EventRecord) (models.FlaggedEvent, error) {
	if err := m.Process(event); err != nil {
		return models.FlaggedEvent{EventRecord: event}, err
	}
	return models.FlaggedEvent{EventRecord: event, Flagged: m.IsFlagged(event)}, nil
}

// ProcessAll enriches events in order and stops at the first rejected event.
func (m *Monitor) ProcessAll(events []models.EventRecord) ([]models.FlaggedEvent, error) {
	out := make([]models.FlaggedEvent, 0, len(events))
	for i, event := range events {
		fe, err := m.Enrich(event)
		if err != nil {
			return out, fmt.Errorf("event %d: %w", i, err)
		}
		out = append(out, fe)
	}
	return out, nil
}

// StreamStart returns the instant the grace period is measured from.
func (m *Monitor) StreamStart() time.Time {
	return m.streamStart
}

// Processed returns the number of accepted events.
func (m *Monitor) Processed() int {
	return m.processed
}

// Venues returns the known venues in lexical order.
func (m *Monitor) Venues() []string {
	venues := make([]string, 0, len(m.venues))
	for v := range m.venues {
		venues = append(venues, v)
	}
	sort.Strings(venues)
	return venues
}

// Snapshot copies the current state of a venue.
func (m *Monitor) Snapshot(venue string) (models.VenueSnapshot, bool) {
	state, ok := m.venues[venue]
	if !ok {
		return models.VenueSnapshot{}, false
	}
	lc := state.lifecycle
	return models.VenueSnapshot{
		Venue:           venue,
		OrdersSent:      lc.OrdersSent,
		TradesPassed:    lc.TradesPassed,
		OrdersCancelled: lc.OrdersCancelled,
		OpenOrders:      len(lc.OpenOrders),
		ClosedOrders:    len(lc.ClosedDurations),
		MeanDuration:    GetMean(lc),
		StdDevDuration:  GetSigma(lc),
		FlaggedOrders:   sortedKeys(lc.FlaggedOrders),
		NovelSymbols:    sortedKeys(state.novelty.NovelSymbols),
		Frequency:       state.frequency.Points(),
	}, true
}

// Snapshots copies every venue, ordered by venue name.
func (m *Monitor) Snapshots() []models.VenueSnapshot {
	venues := m.Venues()
	snaps := make([]models.VenueSnapshot, 0, len(venues))
	for _, v := range venues {
		s, _ := m.Snapshot(v)
		snaps = append(snaps, s)
	}
	return snaps
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
