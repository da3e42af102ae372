package monitor

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/rewired-gh/venuewatch/internal/models"
)

// ProcessSharded runs one Monitor per venue, each owned by its own goroutine.
// Events of a venue are applied in input order on that shard. All shards share
// the grace-period anchor: config.StreamStart, or the first event when unset.
// Row flags are not produced here since novelty is a cross-venue query.
// maxShards bounds concurrently running shards; zero means unbounded.
func ProcessSharded(ctx context.Context, events []models.EventRecord, config Config, maxShards int, recorder Recorder) ([]models.VenueSnapshot, error) {
	if len(events) == 0 {
		return nil, nil
	}
	if config.StreamStart.IsZero() {
		config.StreamStart = events[0].Timestamp
	}

	partitions := make(map[string][]models.EventRecord)
	for _, e := range events {
		partitions[e.Venue] = append(partitions[e.Venue], e)
	}
	venues := make([]string, 0, len(partitions))
	for v := range partitions {
		venues = append(venues, v)
	}
	sort.Strings(venues)

	snaps := make([]models.VenueSnapshot, len(venues))
	g, ctx := errgroup.WithContext(ctx)
	if maxShards > 0 {
		g.SetLimit(maxShards)
	}

	for i, venue := range venues {
		i, venue := i, venue
		g.Go(func() error {
			shard := New(config)
			shard.SetRecorder(recorder)
			for _, e := range partitions[venue] {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := shard.Process(e); err != nil {
					return fmt.Errorf("shard %s: %w", venue, err)
				}
			}
			snaps[i], _ = shard.Snapshot(venue)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snaps, nil
}
