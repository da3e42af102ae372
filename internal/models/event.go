// Package models defines the core domain entities: order lifecycle events,
// per-venue analytics state and their read-only snapshots.
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrUnknownMessageType is returned for message types outside the known lifecycle set.
var ErrUnknownMessageType = errors.New("unknown message type")

// MessageType is the lifecycle message carried by an event.
type MessageType string

const (
	NewOrderRequest      MessageType = "NewOrderRequest"
	NewOrderAcknowledged MessageType = "NewOrderAcknowledged"
	Trade                MessageType = "Trade"
	CancelRequest        MessageType = "CancelRequest"
	CancelAcknowledged   MessageType = "CancelAcknowledged"
	Cancelled            MessageType = "Cancelled"
	Rejected             MessageType = "Rejected"
)

// MessageTypes lists every known message type in lifecycle order.
var MessageTypes = []MessageType{
	NewOrderRequest,
	NewOrderAcknowledged,
	Trade,
	CancelRequest,
	CancelAcknowledged,
	Cancelled,
	Rejected,
}

// Valid reports whether t is one of the known message types.
func (t MessageType) Valid() bool {
	for _, known := range MessageTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseMessageType converts a raw message type name.
func ParseMessageType(s string) (MessageType, error) {
	t := MessageType(strings.TrimSpace(s))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownMessageType, s)
	}
	return t, nil
}

// Direction tells whether a message travelled towards or from the venue.
type Direction int

const (
	ToVenue Direction = iota
	FromVenue
)

func (d Direction) String() string {
	if d == FromVenue {
		return "FromVenue"
	}
	return "ToVenue"
}

// ParseDirection accepts both venue and exchange spellings.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tovenue", "toexchange", "nbf to exchange", "nbf->exchange":
		return ToVenue, nil
	case "fromvenue", "fromexchange", "exchange to nbf", "exchange->nbf":
		return FromVenue, nil
	}
	return ToVenue, fmt.Errorf("invalid direction %q", s)
}

// EventRecord is a single order lifecycle message as emitted by a venue.
// Records are treated as immutable once decoded.
type EventRecord struct {
	Timestamp      time.Time           `json:"timestamp"`
	TimestampEpoch int64               `json:"timestamp_epoch"`
	Direction      Direction           `json:"direction"`
	OrderID        string              `json:"order_id"`
	MessageType    MessageType         `json:"message_type"`
	Symbol         string              `json:"symbol"`
	OrderPrice     decimal.NullDecimal `json:"order_price"`
	Venue          string              `json:"venue"`
}

// Validate checks event field constraints.
func (e *EventRecord) Validate() error {
	if e.Timestamp.IsZero() {
		return errors.New("timestamp must be set")
	}
	if e.Venue == "" {
		return errors.New("venue must not be empty")
	}
	if e.OrderID == "" {
		return errors.New("order ID must not be empty")
	}
	if !e.MessageType.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownMessageType, string(e.MessageType))
	}
	if e.OrderPrice.Valid && e.OrderPrice.Decimal.IsNegative() {
		return errors.New("order price must not be negative")
	}
	return nil
}

// FlaggedEvent is an event enriched with the analytics flag for downstream consumers.
type FlaggedEvent struct {
	EventRecord
	Flagged bool `json:"flagged"`
}
