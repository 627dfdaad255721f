package graph

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Esoteriker/openTree/internal/common/database"
	"github.com/Esoteriker/openTree/internal/domain"
)

// PostgresRepository persists the deduplicated graph in PostgreSQL, one row
// per canonical concept/relation keyed by (tenant_id, session_id, dedup key).
// Merge logic is identical to MemoryRepository's; only storage differs. The
// scope's exclusive lock still comes from an in-process scopeTable, since a
// row-level transaction is not by itself enough to guarantee the read-merge-
// write sequence is atomic across two concurrent upserts to the same scope.
type PostgresRepository struct {
	db     *database.DB
	scopes *scopeTable
}

// NewPostgresRepository opens the concept/relation tables, creating them if
// they do not already exist.
func NewPostgresRepository(ctx context.Context, db *database.DB) (*PostgresRepository, error) {
	repo := &PostgresRepository{db: db, scopes: newScopeTable()}
	if err := repo.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *PostgresRepository) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS graph_concepts (
			tenant_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			normalized_key TEXT NOT NULL,
			node_id TEXT NOT NULL,
			canonical_name TEXT NOT NULL,
			aliases JSONB NOT NULL,
			domain TEXT NOT NULL DEFAULT '',
			confidence DOUBLE PRECISION NOT NULL,
			evidence_turn_ids JSONB NOT NULL,
			PRIMARY KEY (tenant_id, session_id, normalized_key)
		)`,
		`CREATE TABLE IF NOT EXISTS graph_relations (
			tenant_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			dedup_key TEXT NOT NULL,
			edge_id TEXT NOT NULL,
			source_node_id TEXT NOT NULL,
			target_node_id TEXT NOT NULL,
			relation_type TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			evidence_turn_ids JSONB NOT NULL,
			PRIMARY KEY (tenant_id, session_id, dedup_key)
		)`,
	}
	for _, stmt := range statements {
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply graph repository schema: %w", err)
		}
	}
	return nil
}

// Upsert runs the deterministic merge algorithm inside a transaction, with
// the scope's in-process lock held for the duration so two concurrent
// upserts to the same scope always serialize their read-merge-write sequence.
func (r *PostgresRepository) Upsert(ctx context.Context, tenantID, sessionID string, concepts []domain.Concept, relations []domain.Relation) (domain.GraphUpsertResult, error) {
	state := r.scopes.get(scopeKey(tenantID, sessionID))
	state.lock.Lock()
	defer state.lock.Unlock()

	var result domain.GraphUpsertResult
	idMap := make(map[string]string, len(concepts))

	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		for _, c := range concepts {
			normKey := normalizeKey(c.CanonicalName)
			if normKey == "" {
				continue
			}

			var existingNodeID string
			var aliases, evidence []byte
			var confidence float64
			err := tx.QueryRow(ctx, `
				SELECT node_id, aliases, evidence_turn_ids, confidence
				FROM graph_concepts
				WHERE tenant_id = $1 AND session_id = $2 AND normalized_key = $3
			`, tenantID, sessionID, normKey).Scan(&existingNodeID, &aliases, &evidence, &confidence)

			if err == nil {
				var existingAliases, existingEvidence []string
				_ = json.Unmarshal(aliases, &existingAliases)
				_ = json.Unmarshal(evidence, &existingEvidence)
				mergedAliases := sortedUniqueStrings(existingAliases, c.Aliases)
				mergedEvidence := sortedUniqueStrings(existingEvidence, c.EvidenceTurnIDs)
				mergedConfidence := maxFloat(confidence, c.Confidence)

				aliasesJSON, _ := json.Marshal(mergedAliases)
				evidenceJSON, _ := json.Marshal(mergedEvidence)
				if _, err := tx.Exec(ctx, `
					UPDATE graph_concepts
					SET aliases = $1, evidence_turn_ids = $2, confidence = $3
					WHERE tenant_id = $4 AND session_id = $5 AND normalized_key = $6
				`, aliasesJSON, evidenceJSON, mergedConfidence, tenantID, sessionID, normKey); err != nil {
					return fmt.Errorf("failed to merge concept: %w", err)
				}

				idMap[c.NodeID] = existingNodeID
				result.MergedNodes++
			} else if err == pgx.ErrNoRows {
				aliasesJSON, _ := json.Marshal(c.Aliases)
				evidenceJSON, _ := json.Marshal(c.EvidenceTurnIDs)
				if _, err := tx.Exec(ctx, `
					INSERT INTO graph_concepts (tenant_id, session_id, normalized_key, node_id, canonical_name, aliases, domain, confidence, evidence_turn_ids)
					VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
				`, tenantID, sessionID, normKey, c.NodeID, c.CanonicalName, aliasesJSON, c.Domain, c.Confidence, evidenceJSON); err != nil {
					return fmt.Errorf("failed to insert concept: %w", err)
				}
				idMap[c.NodeID] = c.NodeID
				result.AddedNodes++
			} else {
				return fmt.Errorf("failed to look up concept: %w", err)
			}
		}

		for _, rel := range relations {
			srcID, srcOK := idMap[rel.SourceNodeID]
			dstID, dstOK := idMap[rel.TargetNodeID]
			if !srcOK || !dstOK {
				continue
			}
			rel.SourceNodeID = srcID
			rel.TargetNodeID = dstID
			dedupKey := relationDedupKey(srcID, dstID, rel.RelationType)

			var evidence []byte
			var confidence float64
			err := tx.QueryRow(ctx, `
				SELECT evidence_turn_ids, confidence
				FROM graph_relations
				WHERE tenant_id = $1 AND session_id = $2 AND dedup_key = $3
			`, tenantID, sessionID, dedupKey).Scan(&evidence, &confidence)

			if err == nil {
				var existingEvidence []string
				_ = json.Unmarshal(evidence, &existingEvidence)
				mergedEvidence := sortedUniqueStrings(existingEvidence, rel.EvidenceTurnIDs)
				mergedConfidence := maxFloat(confidence, rel.Confidence)
				evidenceJSON, _ := json.Marshal(mergedEvidence)
				if _, err := tx.Exec(ctx, `
					UPDATE graph_relations
					SET confidence = $1, evidence_turn_ids = $2
					WHERE tenant_id = $3 AND session_id = $4 AND dedup_key = $5
				`, mergedConfidence, evidenceJSON, tenantID, sessionID, dedupKey); err != nil {
					return fmt.Errorf("failed to merge relation: %w", err)
				}
				result.MergedEdges++
			} else if err == pgx.ErrNoRows {
				evidenceJSON, _ := json.Marshal(rel.EvidenceTurnIDs)
				if _, err := tx.Exec(ctx, `
					INSERT INTO graph_relations (tenant_id, session_id, dedup_key, edge_id, source_node_id, target_node_id, relation_type, confidence, evidence_turn_ids)
					VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
				`, tenantID, sessionID, dedupKey, rel.EdgeID, srcID, dstID, string(rel.RelationType), rel.Confidence, evidenceJSON); err != nil {
					return fmt.Errorf("failed to insert relation: %w", err)
				}
				result.AddedEdges++
			} else {
				return fmt.Errorf("failed to look up relation: %w", err)
			}
		}

		return nil
	})

	return result, err
}

// Snapshot returns the scope's full concept/relation set, or nil if empty.
func (r *PostgresRepository) Snapshot(ctx context.Context, tenantID, sessionID string) (*domain.GraphSnapshot, error) {
	conceptRows, err := r.db.Query(ctx, `
		SELECT node_id, canonical_name, aliases, domain, confidence, evidence_turn_ids
		FROM graph_concepts WHERE tenant_id = $1 AND session_id = $2
	`, tenantID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query concepts: %w", err)
	}
	var concepts []domain.Concept
	for conceptRows.Next() {
		var c domain.Concept
		var aliases, evidence []byte
		if err := conceptRows.Scan(&c.NodeID, &c.CanonicalName, &aliases, &c.Domain, &c.Confidence, &evidence); err != nil {
			conceptRows.Close()
			return nil, fmt.Errorf("failed to scan concept row: %w", err)
		}
		_ = json.Unmarshal(aliases, &c.Aliases)
		_ = json.Unmarshal(evidence, &c.EvidenceTurnIDs)
		concepts = append(concepts, c)
	}
	conceptRows.Close()

	relationRows, err := r.db.Query(ctx, `
		SELECT edge_id, source_node_id, target_node_id, relation_type, confidence, evidence_turn_ids
		FROM graph_relations WHERE tenant_id = $1 AND session_id = $2
	`, tenantID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query relations: %w", err)
	}
	var relations []domain.Relation
	for relationRows.Next() {
		var rel domain.Relation
		var relationType string
		var evidence []byte
		if err := relationRows.Scan(&rel.EdgeID, &rel.SourceNodeID, &rel.TargetNodeID, &relationType, &rel.Confidence, &evidence); err != nil {
			relationRows.Close()
			return nil, fmt.Errorf("failed to scan relation row: %w", err)
		}
		rel.RelationType = domain.RelationType(relationType)
		_ = json.Unmarshal(evidence, &rel.EvidenceTurnIDs)
		relations = append(relations, rel)
	}
	relationRows.Close()

	if len(concepts) == 0 && len(relations) == 0 {
		return nil, nil
	}
	return &domain.GraphSnapshot{Concepts: concepts, Relations: relations}, nil
}

// IsReady pings the pool.
func (r *PostgresRepository) IsReady(ctx context.Context) (bool, string) {
	if err := r.db.Ping(ctx); err != nil {
		return false, fmt.Sprintf("postgres graph repository not ready: %v", err)
	}
	return true, "postgres graph repository ready"
}

// Close closes the underlying pool.
func (r *PostgresRepository) Close() error {
	r.db.Close()
	return nil
}
