package graph

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/aster/pkg/models"
)

const timeFormat = "2006-01-02T15:04:05Z"

// Projection mirrors actors, their signal links, and merge lineage into
// the graph. The relational store stays authoritative; projection failures
// are logged and never fail the resolution path.
type Projection struct {
	client *Client
	logger ectologger.Logger
}

// NewProjection creates a new graph projection
func NewProjection(client *Client, logger ectologger.Logger) *Projection {
	return &Projection{
		client: client,
		logger: logger,
	}
}

// SyncActor creates or updates an actor node
func (p *Projection) SyncActor(ctx context.Context, a *models.Actor) error {
	props := map[string]any{
		"actor_id":               a.ActorID,
		"tenant_id":              a.TenantID,
		"first_seen":             a.FirstSeen.UTC().Format(timeFormat),
		"last_seen":              a.LastSeen.UTC().Format(timeFormat),
		"signal_count":           a.SignalCount,
		"signal_sources":         []string(a.SignalSources),
		"profile_completeness":   a.ProfileCompleteness,
		"confidence_in_identity": a.ConfidenceInIdentity,
		"status":                 string(a.Status),
	}

	cypher := `
		MERGE (a:Actor {actor_id: $actor_id, tenant_id: $tenant_id})
		SET a = $props
	`

	_, err := p.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"actor_id":  a.ActorID,
			"tenant_id": a.TenantID,
			"props":     props,
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"actor_id": a.ActorID,
		}).Error("Failed to sync actor node")
		return fmt.Errorf("failed to sync actor node: %w", err)
	}

	return nil
}

// SyncLink connects an actor node to a signal node. Merges repoint links in
// the relational store; re-syncing after a merge moves the edge too.
func (p *Projection) SyncLink(ctx context.Context, link *models.ActorSignalLink) error {
	cypher := `
		MERGE (a:Actor {actor_id: $actor_id, tenant_id: $tenant_id})
		MERGE (s:Signal {signal_id: $signal_id, tenant_id: $tenant_id})
		MERGE (a)-[l:LINKED]->(s)
		SET l.method = $method, l.confidence = $confidence, l.linked_at = $linked_at
	`

	_, err := p.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"actor_id":   link.ActorID,
			"tenant_id":  link.TenantID,
			"signal_id":  link.SignalID,
			"method":     string(link.LinkMethod),
			"confidence": link.LinkConfidence,
			"linked_at":  link.CreatedAt.UTC().Format(timeFormat),
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"actor_id":  link.ActorID,
			"signal_id": link.SignalID,
		}).Error("Failed to sync signal link")
		return fmt.Errorf("failed to sync signal link: %w", err)
	}

	return nil
}

// SyncMerge records merge lineage: the merged node points at its survivor
// and its signal edges move to the survivor
func (p *Projection) SyncMerge(ctx context.Context, record *models.MergeRecord) error {
	cypher := `
		MERGE (m:Actor {actor_id: $merged_id, tenant_id: $tenant_id})
		MERGE (pr:Actor {actor_id: $primary_id, tenant_id: $tenant_id})
		SET m.status = 'merged', m.merged_into = $primary_id
		MERGE (m)-[r:MERGED_INTO]->(pr)
		SET r.reason = $reason, r.confidence = $confidence, r.merged_at = $merged_at
		WITH m, pr
		MATCH (m)-[l:LINKED]->(s:Signal)
		MERGE (pr)-[nl:LINKED]->(s)
		SET nl = properties(l)
		DELETE l
	`

	_, err := p.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"tenant_id":  record.TenantID,
			"merged_id":  record.MergedActorID,
			"primary_id": record.PrimaryActorID,
			"reason":     record.Reason,
			"confidence": record.Confidence,
			"merged_at":  record.CreatedAt.UTC().Format(timeFormat),
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"primary_actor_id": record.PrimaryActorID,
			"merged_actor_id":  record.MergedActorID,
		}).Error("Failed to sync merge lineage")
		return fmt.Errorf("failed to sync merge lineage: %w", err)
	}

	return nil
}

// NeighborhoodNode is one node in an actor's neighborhood
type NeighborhoodNode struct {
	ID     string         `json:"id"`
	Labels []string       `json:"labels"`
	Props  map[string]any `json:"props"`
}

// NeighborhoodEdge is one relationship in an actor's neighborhood
type NeighborhoodEdge struct {
	From  string         `json:"from"`
	To    string         `json:"to"`
	Type  string         `json:"type"`
	Props map[string]any `json:"props"`
}

// Neighborhood is the subgraph around one actor
type Neighborhood struct {
	Nodes []NeighborhoodNode `json:"nodes"`
	Edges []NeighborhoodEdge `json:"edges"`
}

// GetNeighborhood returns the actor's signals and merge lineage up to the
// given depth
func (p *Projection) GetNeighborhood(ctx context.Context, tenantID, actorID string, depth int) (*Neighborhood, error) {
	if depth < 1 || depth > 5 {
		depth = 2
	}

	cypher := fmt.Sprintf(`
		MATCH (a:Actor {actor_id: $actor_id, tenant_id: $tenant_id})
		OPTIONAL MATCH path = (a)-[*1..%d]-(n)
		WHERE all(x IN nodes(path) WHERE x.tenant_id = $tenant_id)
		RETURN a, collect(DISTINCT n) AS nodes, collect(DISTINCT relationships(path)) AS rels
	`, depth)

	result, err := p.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"actor_id":  actorID,
			"tenant_id": tenantID,
		})
		if err != nil {
			return nil, err
		}

		hood := &Neighborhood{}
		seen := make(map[string]bool)

		addNode := func(n neo4j.Node) {
			if seen[n.ElementId] {
				return
			}
			seen[n.ElementId] = true
			hood.Nodes = append(hood.Nodes, NeighborhoodNode{
				ID:     n.ElementId,
				Labels: n.Labels,
				Props:  n.Props,
			})
		}

		for result.Next(ctx) {
			record := result.Record()

			if v, ok := record.Get("a"); ok {
				if n, ok := v.(neo4j.Node); ok {
					addNode(n)
				}
			}
			if v, ok := record.Get("nodes"); ok {
				for _, item := range v.([]any) {
					if n, ok := item.(neo4j.Node); ok {
						addNode(n)
					}
				}
			}
			if v, ok := record.Get("rels"); ok {
				for _, item := range v.([]any) {
					rels, ok := item.([]any)
					if !ok {
						continue
					}
					for _, ri := range rels {
						r, ok := ri.(neo4j.Relationship)
						if !ok {
							continue
						}
						hood.Edges = append(hood.Edges, NeighborhoodEdge{
							From:  r.StartElementId,
							To:    r.EndElementId,
							Type:  r.Type,
							Props: r.Props,
						})
					}
				}
			}
		}

		return hood, result.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get actor neighborhood: %w", err)
	}

	return result.(*Neighborhood), nil
}
