// Package memory archives reasoning insights into Neo4j as a long-term
// graph keyed by agent, decaying activation over time. It is optional
// infrastructure: the simulation runs fine without it.
package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// Archive handles Neo4j operations for long-term insight storage.
type Archive struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// NewArchive creates a Neo4j-backed insight archive.
func NewArchive(uri, user, password string, logger *zap.Logger) (*Archive, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	return &Archive{driver: driver, logger: logger}, nil
}

// Ping verifies the Neo4j connection.
func (a *Archive) Ping(ctx context.Context) error {
	return a.driver.VerifyConnectivity(ctx)
}

// Close shuts down the Neo4j driver.
func (a *Archive) Close(ctx context.Context) error {
	return a.driver.Close(ctx)
}

// Insight is one archived reasoning conclusion.
type Insight struct {
	ID         string    `json:"id"`
	Agent      string    `json:"agent"`
	Content    string    `json:"content"`
	Importance float64   `json:"importance"`
	Activation float64   `json:"activation"`
	CreatedAt  time.Time `json:"created_at"`
}

// ArchiveInsight stores one insight node linked to its agent.
func (a *Archive) ArchiveInsight(ctx context.Context, in *Insight) error {
	if in.ID == "" {
		in.ID = uuid.New().String()
	}
	in.CreatedAt = time.Now()

	session := a.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		`MERGE (ag:Agent {name: $agent})
		 CREATE (i:Insight {
			id: $id, content: $content,
			importance: $importance, activation: $importance,
			created_at: datetime()
		 })
		 CREATE (ag)-[:CONCLUDED]->(i)`,
		map[string]interface{}{
			"agent":      in.Agent,
			"id":         in.ID,
			"content":    in.Content,
			"importance": in.Importance,
		})
	if err != nil {
		return fmt.Errorf("archive insight for %s: %w", in.Agent, err)
	}
	return nil
}

// RecallInsights returns an agent's most activated insights.
func (a *Archive) RecallInsights(ctx context.Context, agent string, limit int) ([]Insight, error) {
	session := a.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (:Agent {name: $agent})-[:CONCLUDED]->(i:Insight)
		 RETURN i.id, i.content, i.importance, i.activation
		 ORDER BY i.activation DESC LIMIT $limit`,
		map[string]interface{}{"agent": agent, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("recall insights for %s: %w", agent, err)
	}

	var insights []Insight
	for result.Next(ctx) {
		rec := result.Record()
		in := Insight{Agent: agent}
		if v, ok := rec.Values[0].(string); ok {
			in.ID = v
		}
		if v, ok := rec.Values[1].(string); ok {
			in.Content = v
		}
		if v, ok := rec.Values[2].(float64); ok {
			in.Importance = v
		}
		if v, ok := rec.Values[3].(float64); ok {
			in.Activation = v
		}
		insights = append(insights, in)
	}
	return insights, result.Err()
}

// DecayConfig controls archived insight decay.
type DecayConfig struct {
	HalfLifeHours float64 // time for activation to halve
	MinActivation float64 // insights below this are pruned
}

// DefaultDecayConfig returns the standard decay tuning.
func DefaultDecayConfig() DecayConfig {
	return DecayConfig{HalfLifeHours: 168, MinActivation: 0.05}
}

// DecaySweep halves activation per half-life across all insights and prunes
// those that fell below the floor. Returns the number pruned.
func (a *Archive) DecaySweep(ctx context.Context, cfg DecayConfig) (int, error) {
	if cfg.HalfLifeHours == 0 {
		cfg = DefaultDecayConfig()
	}

	session := a.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		`MATCH (i:Insight)
		 WITH i, duration.between(i.created_at, datetime()).hours AS age
		 SET i.activation = i.importance * 2.0 ^ (-toFloat(age) / $halfLife)`,
		map[string]interface{}{"halfLife": cfg.HalfLifeHours})
	if err != nil {
		return 0, fmt.Errorf("decay sweep: %w", err)
	}

	result, err := session.Run(ctx,
		`MATCH (i:Insight) WHERE i.activation < $min
		 DETACH DELETE i RETURN count(i)`,
		map[string]interface{}{"min": cfg.MinActivation})
	if err != nil {
		return 0, fmt.Errorf("prune insights: %w", err)
	}
	pruned := 0
	if result.Next(ctx) {
		if v, ok := result.Record().Values[0].(int64); ok {
			pruned = int(v)
		}
	}
	return pruned, result.Err()
}
