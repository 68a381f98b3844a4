package store

import (
	"context"
	"fmt"
	"time"

	"github.com/nidhogg/vault-city/internal/world"
)

// SaveAgentState upserts one agent's externally visible state.
func (s *Store) SaveAgentState(ctx context.Context, snap world.AgentSnapshot, room string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO agent_states (name, bio, room, attention_mode, reasoning_mode, appearance, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (name) DO UPDATE SET
			bio = EXCLUDED.bio,
			room = EXCLUDED.room,
			attention_mode = EXCLUDED.attention_mode,
			reasoning_mode = EXCLUDED.reasoning_mode,
			appearance = EXCLUDED.appearance,
			updated_at = EXCLUDED.updated_at`,
		snap.Name, snap.Bio, room, snap.Mode, snap.Reasoning, snap.Appearance, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("save agent %s: %w", snap.Name, err)
	}
	return nil
}

// SaveThoughts appends reasoning records to the durable trace.
func (s *Store) SaveThoughts(ctx context.Context, agent string, records []world.ThoughtRecord) error {
	for _, r := range records {
		_, err := s.db.Exec(ctx, `
			INSERT INTO thoughts (agent, chain_id, stage, content, confidence, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			agent, r.ChainID, r.Stage, r.Content, r.Confidence, r.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("save thought for %s: %w", agent, err)
		}
	}
	return nil
}

// RecentThoughts returns an agent's latest reasoning records, newest first.
func (s *Store) RecentThoughts(ctx context.Context, agent string, limit int) ([]world.ThoughtRecord, error) {
	rows, err := s.db.Query(ctx, `
		SELECT chain_id, stage, content, confidence, created_at
		FROM thoughts WHERE agent = $1
		ORDER BY created_at DESC LIMIT $2`, agent, limit)
	if err != nil {
		return nil, fmt.Errorf("recent thoughts for %s: %w", agent, err)
	}
	defer rows.Close()

	var records []world.ThoughtRecord
	for rows.Next() {
		var r world.ThoughtRecord
		if err := rows.Scan(&r.ChainID, &r.Stage, &r.Content, &r.Confidence, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan thought: %w", err)
		}
		records = append(records, r)
	}
	return records, nil
}

// SaveTickReport records one tick's aggregate numbers.
func (s *Store) SaveTickReport(ctx context.Context, tick uint64, agents, stimuli int) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO tick_reports (tick, agents, stimuli, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tick) DO NOTHING`,
		tick, agents, stimuli, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("save tick report %d: %w", tick, err)
	}
	return nil
}
