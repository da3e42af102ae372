package monitor

import "errors"

// ErrInvalidEventOrder is returned when an event is older than the last one
// processed for the same venue.
var ErrInvalidEventOrder = errors.New("event timestamp precedes last processed event for venue")
