// Package tracking ingests raw edge access events and rolls them up into
// hourly bandwidth aggregates.
package tracking

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/birdcdn/cdn-console/backend/internal/models"
)

// EventStore is the raw access-event log.
type EventStore interface {
	InsertEvent(ctx context.Context, ev *models.AccessEvent) error
	EventsBetween(ctx context.Context, from, to time.Time) ([]models.AccessEvent, error)
	DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// BandwidthSink receives hourly aggregates.
type BandwidthSink interface {
	AddBandwidth(ctx context.Context, l *models.BandwidthLog) error
}

// Aggregator rolls raw events up into per-hour bandwidth rows. Runs are
// serialized: AddBandwidth merges additively, so two overlapping runs over
// the same event window would double-count traffic.
type Aggregator struct {
	events EventStore
	sink   BandwidthSink
	logger *slog.Logger

	mu sync.Mutex
}

func NewAggregator(events EventStore, sink BandwidthSink, logger *slog.Logger) *Aggregator {
	return &Aggregator{events: events, sink: sink, logger: logger}
}

// Run aggregates every complete hour up to now and prunes processed events.
// It walks back at most a day; older events were either aggregated already
// or are not worth recovering. When a run is already in flight the call is
// a no-op.
func (a *Aggregator) Run(ctx context.Context) error {
	if !a.mu.TryLock() {
		a.logger.Info("aggregation already in progress, skipping")
		return nil
	}
	defer a.mu.Unlock()

	end := time.Now().Truncate(time.Hour)
	start := end.Add(-24 * time.Hour)

	events, err := a.events.EventsBetween(ctx, start, end)
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}
	if len(events) == 0 {
		return nil
	}

	buckets := make(map[time.Time]*models.BandwidthLog)
	for _, ev := range events {
		hour := ev.Timestamp.Truncate(time.Hour)
		log, ok := buckets[hour]
		if !ok {
			log = &models.BandwidthLog{Hour: hour}
			buckets[hour] = log
		}
		Apply(log, &ev)
	}

	for hour, log := range buckets {
		if err := a.sink.AddBandwidth(ctx, log); err != nil {
			return fmt.Errorf("store aggregate for %s: %w", hour.Format(time.RFC3339), err)
		}
	}

	deleted, err := a.events.DeleteEventsBefore(ctx, end)
	if err != nil {
		a.logger.Warn("failed to prune aggregated events", slog.Any("error", err))
	}

	a.logger.Info("bandwidth logs aggregated",
		slog.Int("events", len(events)),
		slog.Int("hours", len(buckets)),
		slog.Int64("pruned", deleted))
	return nil
}

// Apply folds one event into an hourly aggregate.
func Apply(log *models.BandwidthLog, ev *models.AccessEvent) {
	log.Requests++
	log.BytesSent += ev.BytesSent

	switch ev.CacheStatus {
	case "HIT", "STALE":
		log.CacheHits++
	case "MISS", "BYPASS", "EXPIRED":
		log.CacheMisses++
	}

	switch {
	case ev.Status == 200:
		log.Status200++
	case ev.Status == 206:
		log.Status206++
	case ev.Status == 304:
		log.Status304++
	case ev.Status == 404:
		log.Status404++
	case ev.Status >= 500:
		log.Status5xx++
	}
}
