package memory

import (
	"context"
	"time"

	"github.com/nidhogg/vault-city/internal/world"
	"go.uber.org/zap"
)

// Archiver is the optional pipeline stage that copies new high-importance
// working-memory entries into the long-term archive and runs the decay
// sweep on a slow cadence. Archive failures never fault the scheduler.
type Archiver struct {
	archive   *Archive
	ws        *world.Store
	threshold float64
	sweepAge  time.Duration
	lastSweep time.Time
	seen      map[world.EntityID]time.Time // newest archived entry per agent
	logger    *zap.Logger
}

// NewArchiver creates the archival stage. Entries at or above threshold
// importance are archived.
func NewArchiver(archive *Archive, ws *world.Store, threshold float64, logger *zap.Logger) *Archiver {
	if threshold <= 0 {
		threshold = 0.8
	}
	return &Archiver{
		archive:   archive,
		ws:        ws,
		threshold: threshold,
		sweepAge:  time.Hour,
		seen:      make(map[world.EntityID]time.Time),
		logger:    logger,
	}
}

// Name implements sim.System.
func (a *Archiver) Name() string { return "memory-archive" }

// Tick implements sim.System.
func (a *Archiver) Tick(ctx context.Context, now time.Time) error {
	for _, id := range a.ws.EntitiesWith(world.CompAgent) {
		agent, _ := world.Get[world.Agent](a.ws, world.CompAgent, id)
		wm, ok := world.Get[world.WorkingMemory](a.ws, world.CompWorkingMemory, id)
		if !ok {
			continue
		}
		high := a.seen[id]
		for _, entry := range wm.Entries {
			if entry.Importance < a.threshold || !entry.RecordedAt.After(high) {
				continue
			}
			err := a.archive.ArchiveInsight(ctx, &Insight{
				Agent:      agent.Name,
				Content:    entry.Content,
				Importance: entry.Importance,
			})
			if err != nil {
				a.logger.Warn("insight archive failed",
					zap.String("agent", agent.Name), zap.Error(err))
				continue
			}
			if entry.RecordedAt.After(a.seen[id]) {
				a.seen[id] = entry.RecordedAt
			}
		}
	}

	if a.lastSweep.IsZero() {
		a.lastSweep = now
	} else if now.Sub(a.lastSweep) >= a.sweepAge {
		a.lastSweep = now
		pruned, err := a.archive.DecaySweep(ctx, DefaultDecayConfig())
		if err != nil {
			a.logger.Warn("decay sweep failed", zap.Error(err))
		} else if pruned > 0 {
			a.logger.Info("stale insights pruned", zap.Int("count", pruned))
		}
	}
	return nil
}
