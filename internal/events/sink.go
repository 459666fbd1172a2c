package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mfenderov/agenda-watch/internal/storage"
	"github.com/mfenderov/agenda-watch/pkg/models"
)

// Sink receives change events. Delivery is the sink's concern; the monitor
// only reports what changed.
type Sink interface {
	Publish(ctx context.Context, events []models.ChangeEvent) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, events []models.ChangeEvent) error

func (f SinkFunc) Publish(ctx context.Context, events []models.ChangeEvent) error {
	return f(ctx, events)
}

// LogSink writes one log line per event.
type LogSink struct{}

func (LogSink) Publish(_ context.Context, events []models.ChangeEvent) error {
	for _, ev := range events {
		slog.Info("change detected",
			"event_id", ev.EventID,
			"change_type", ev.ChangeType,
			"source_id", ev.SourceID,
			"item_id", ev.ItemID,
			"title", ev.Title,
			"url", ev.SourceURL)
	}
	return nil
}

// Multi fans events out to every sink and joins their errors.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(ctx context.Context, events []models.ChangeEvent) error {
		var errs []error
		for _, s := range sinks {
			if err := s.Publish(ctx, events); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

// Dedupe drops events whose EventID was already published successfully.
type Dedupe struct {
	next Sink
	mu   sync.Mutex
	sent map[string]struct{}
}

// NewDedupe wraps next.
func NewDedupe(next Sink) *Dedupe {
	return &Dedupe{next: next, sent: make(map[string]struct{})}
}

func (d *Dedupe) Publish(ctx context.Context, events []models.ChangeEvent) error {
	d.mu.Lock()
	fresh := make([]models.ChangeEvent, 0, len(events))
	for _, ev := range events {
		if _, ok := d.sent[ev.EventID]; !ok {
			fresh = append(fresh, ev)
		}
	}
	d.mu.Unlock()

	if len(fresh) == 0 {
		return nil
	}
	if err := d.next.Publish(ctx, fresh); err != nil {
		return err
	}

	d.mu.Lock()
	for _, ev := range fresh {
		d.sent[ev.EventID] = struct{}{}
	}
	d.mu.Unlock()
	return nil
}

// Dispatcher decouples publishing from delivery: Publish enqueues and a
// single worker goroutine forwards batches to the downstream sink in order.
type Dispatcher struct {
	next  Sink
	queue chan []models.ChangeEvent
	done  chan struct{}

	mu        sync.Mutex
	delivered int
	failed    int
}

// NewDispatcher starts the delivery worker. Close must be called to drain
// the queue.
func NewDispatcher(next Sink, buffer int) *Dispatcher {
	d := &Dispatcher{
		next:  next,
		queue: make(chan []models.ChangeEvent, buffer),
		done:  make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for batch := range d.queue {
		err := d.next.Publish(context.Background(), batch)
		d.mu.Lock()
		if err != nil {
			d.failed += len(batch)
		} else {
			d.delivered += len(batch)
		}
		d.mu.Unlock()
		if err != nil {
			slog.Error("failed to deliver change events", "count", len(batch), "error", err)
		}
	}
}

// Publish enqueues events, blocking while the queue is full.
func (d *Dispatcher) Publish(ctx context.Context, events []models.ChangeEvent) error {
	if len(events) == 0 {
		return nil
	}
	select {
	case d.queue <- events:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events, waits for the queue to drain and returns the
// number of events delivered and failed.
func (d *Dispatcher) Close() (delivered, failed int) {
	close(d.queue)
	<-d.done
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.delivered, d.failed
}

// ItemStore keeps the last published item set of each source.
type ItemStore struct {
	blobs storage.Store
}

// NewItemStore stores item sets under "items/".
func NewItemStore(blobs storage.Store) *ItemStore {
	return &ItemStore{blobs: blobs}
}

func itemsKey(sourceID string) string {
	return "items/" + storage.KeySegment(sourceID) + ".json"
}

// Load returns nil without error when the source has no stored items.
func (s *ItemStore) Load(ctx context.Context, sourceID string) ([]models.AgendaItem, error) {
	var items []models.AgendaItem
	err := storage.GetJSON(ctx, s.blobs, itemsKey(sourceID), &items)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load items for %s: %w", sourceID, err)
	}
	return items, nil
}

func (s *ItemStore) Save(ctx context.Context, sourceID string, items []models.AgendaItem) error {
	if err := storage.PutJSON(ctx, s.blobs, itemsKey(sourceID), items); err != nil {
		return fmt.Errorf("failed to save items for %s: %w", sourceID, err)
	}
	return nil
}
