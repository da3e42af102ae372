package monitor

import (
	"sort"
	"time"

	"github.com/rewired-gh/venuewatch/internal/models"
)

// Histogram maps a bucket start (unix nanoseconds) to its message counts.
type Histogram map[int64]models.FrequencyBucket

// FrequencyAggregator counts message types per time bucket inside an
// observation window. A zero window bound leaves that side open.
type FrequencyAggregator struct {
	granularity time.Duration
	windowStart time.Time
	windowEnd   time.Time
}

func NewFrequencyAggregator(granularity time.Duration, windowStart, windowEnd time.Time) *FrequencyAggregator {
	return &FrequencyAggregator{
		granularity: granularity,
		windowStart: windowStart,
		windowEnd:   windowEnd,
	}
}

func (a *FrequencyAggregator) inWindow(ts time.Time) bool {
	if !a.windowStart.IsZero() && ts.Before(a.windowStart) {
		return false
	}
	if !a.windowEnd.IsZero() && ts.After(a.windowEnd) {
		return false
	}
	return true
}

// BucketStart floors ts to the aggregator granularity.
func (a *FrequencyAggregator) BucketStart(ts time.Time) time.Time {
	return ts.UTC().Truncate(a.granularity)
}

// Process counts the event and reports whether it fell inside the window.
// Message types outside the known set get their own counter.
func (a *FrequencyAggregator) Process(hist Histogram, event models.EventRecord) bool {
	if !a.inWindow(event.Timestamp) {
		return false
	}

	key := a.BucketStart(event.Timestamp).UnixNano()
	bucket, ok := hist[key]
	if !ok {
		bucket = make(models.FrequencyBucket, len(models.MessageTypes))
		for _, mt := range models.MessageTypes {
			bucket[mt] = 0
		}
		hist[key] = bucket
	}
	bucket[event.MessageType]++
	return true
}

// Points returns a copy of the histogram ordered by bucket start.
func (h Histogram) Points() []models.FrequencyPoint {
	keys := make([]int64, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	points := make([]models.FrequencyPoint, 0, len(keys))
	for _, k := range keys {
		counts := make(map[models.MessageType]int, len(h[k]))
		for mt, n := range h[k] {
			counts[mt] = n
		}
		points = append(points, models.FrequencyPoint{
			Start:  time.Unix(0, k).UTC(),
			Counts: counts,
		})
	}
	return points
}
