package models

import (
	"time"
)

// VenueState is the lifecycle state of one venue. It is owned by a single
// writer and must only be created through NewVenueState.
type VenueState struct {
	Venue string

	OrdersSent      int
	TradesPassed    int
	OrdersCancelled int

	OpenOrders      map[string]time.Time
	ClosedDurations []float64

	WelfordCount int
	WelfordMean  float64
	WelfordM2    float64

	FlaggedOrders map[string]struct{}

	LastTimestamp time.Time
}

func NewVenueState(venue string) *VenueState {
	return &VenueState{
		Venue:         venue,
		OpenOrders:    make(map[string]time.Time),
		FlaggedOrders: make(map[string]struct{}),
	}
}

// SymbolNoveltyState tracks order arrival gaps for one symbol on one venue.
type SymbolNoveltyState struct {
	Symbol            string
	Count             int
	LastEventEpoch    int64
	HighestGap        int64
	ExceededThreshold bool
}

// NoveltyState holds every symbol seen on a venue and the ones flagged as novel.
type NoveltyState struct {
	Venue        string
	Symbols      map[string]*SymbolNoveltyState
	NovelSymbols map[string]struct{}
}

func NewNoveltyState(venue string) *NoveltyState {
	return &NoveltyState{
		Venue:        venue,
		Symbols:      make(map[string]*SymbolNoveltyState),
		NovelSymbols: make(map[string]struct{}),
	}
}

// FrequencyBucket counts message types inside one time bucket.
type FrequencyBucket map[MessageType]int

// FrequencyPoint is a bucket with its start time, used in snapshots.
type FrequencyPoint struct {
	Start  time.Time
	Counts map[MessageType]int
}

// VenueSnapshot is a read-only copy of everything known about a venue.
type VenueSnapshot struct {
	Venue           string
	OrdersSent      int
	TradesPassed    int
	OrdersCancelled int
	OpenOrders      int
	ClosedOrders    int
	MeanDuration    float64
	StdDevDuration  float64
	FlaggedOrders   []string
	NovelSymbols    []string
	Frequency       []FrequencyPoint
}
