package sim

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// BatcherConfig controls the distribution batching stage.
type BatcherConfig struct {
	Window   time.Duration // batch window, default 100ms
	MaxBatch int           // max events per batch, default 10
}

// DefaultBatcherConfig returns the standard distribution settings.
func DefaultBatcherConfig() BatcherConfig {
	return BatcherConfig{Window: 100 * time.Millisecond, MaxBatch: 10}
}

// Batcher groups incoming events into fixed time windows before delivery.
// Within a window, state events are deduplicated per entity keeping only
// the most recent by timestamp; non-state events are never dropped. Each
// batch is delivered in ascending timestamp order. Connection events skip
// batching and are flushed immediately.
type Batcher struct {
	cfg BatcherConfig
	in  <-chan Event
	out chan []Event
}

// NewBatcher wraps an event stream in a batching stage. Run must be called
// to start it.
func NewBatcher(in <-chan Event, cfg BatcherConfig) *Batcher {
	if cfg.Window <= 0 {
		cfg.Window = DefaultBatcherConfig().Window
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = DefaultBatcherConfig().MaxBatch
	}
	return &Batcher{cfg: cfg, in: in, out: make(chan []Event, 16)}
}

// Batches returns the output stream. It is closed when the input closes or
// the run context ends.
func (b *Batcher) Batches() <-chan []Event { return b.out }

// Run pumps events until the context is cancelled or the input closes.
func (b *Batcher) Run(ctx context.Context) {
	defer close(b.out)
	timer := time.NewTimer(b.cfg.Window)
	defer timer.Stop()

	var pending []Event
	flush := func() {
		if len(pending) == 0 {
			return
		}
		batch := assemble(pending)
		pending = pending[:0]
		select {
		case b.out <- batch:
		case <-ctx.Done():
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-b.in:
			if !ok {
				flush()
				return
			}
			if evt.Type == EventConnection {
				// Connection-level events are delivered immediately.
				select {
				case b.out <- []Event{evt}:
				case <-ctx.Done():
					return
				}
				continue
			}
			pending = append(pending, evt)
			if len(pending) >= b.cfg.MaxBatch {
				flush()
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(b.cfg.Window)
			}
		case <-timer.C:
			flush()
			timer.Reset(b.cfg.Window)
		}
	}
}

// assemble deduplicates state events per entity (latest timestamp wins) and
// returns the window's events sorted ascending by timestamp.
func assemble(pending []Event) []Event {
	latest := make(map[string]Event)
	var out []Event
	for _, evt := range pending {
		if !evt.State {
			out = append(out, evt)
			continue
		}
		key := fmt.Sprintf("%s/%d", evt.Type, evt.Entity)
		if prev, ok := latest[key]; !ok || evt.Timestamp.After(prev.Timestamp) {
			latest[key] = evt
		}
	}
	for _, evt := range latest {
		out = append(out, evt)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
