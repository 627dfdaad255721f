// Package domain holds the shared data model for the dialogue/parser/graph/suggestion
// services: sessions, turns, the extracted knowledge-graph entities, async jobs, and the
// request/response shapes the four services exchange.
package domain

import "time"

// Speaker identifies who produced a turn.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
	SpeakerSystem    Speaker = "system"
)

// RelationType enumerates the directed-edge types the parser can emit.
type RelationType string

const (
	RelationCausal     RelationType = "causal"
	RelationChronology RelationType = "chronology"
	RelationContrast   RelationType = "contrast"
	RelationDependency RelationType = "dependency"
	RelationDefinition RelationType = "definition"
	RelationExample    RelationType = "example"
)

// GapType enumerates the knowledge-gap categories the parser can detect.
type GapType string

const (
	GapMissingPrerequisite GapType = "missing_prerequisite"
	GapWeakEvidence        GapType = "weak_evidence"
	GapAmbiguousReference  GapType = "ambiguous_reference"
	GapUnresolvedBranch    GapType = "unresolved_branch"
)

// AsyncJobStatus is the job state-machine status. Transitions are monotonic along
// queued -> processing -> {completed, failed}.
type AsyncJobStatus string

const (
	JobQueued     AsyncJobStatus = "queued"
	JobProcessing AsyncJobStatus = "processing"
	JobCompleted  AsyncJobStatus = "completed"
	JobFailed     AsyncJobStatus = "failed"
)

// Session is an immutable, client-created conversation container scoped to a tenant.
type Session struct {
	TenantID  string                 `json:"tenant_id"`
	SessionID string                 `json:"session_id"`
	UserID    string                 `json:"user_id"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// SessionCreateRequest is the client-supplied payload for creating a session.
// TenantID is optional: when set it must match the resolved tenant, mirroring
// TurnCreateRequest's tenant-mismatch check on the other write paths.
type SessionCreateRequest struct {
	TenantID string                 `json:"tenant_id,omitempty"`
	UserID   string                 `json:"user_id"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Turn is a single utterance appended to a session. Content is encrypted at rest;
// this struct always carries plaintext content, materialized by the session store.
type Turn struct {
	TenantID     string    `json:"tenant_id"`
	SessionID    string    `json:"session_id"`
	TurnID       string    `json:"turn_id"`
	Speaker      Speaker   `json:"speaker"`
	Content      string    `json:"content"`
	ParentTurnID *string   `json:"parent_turn_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// TurnCreate is the client-supplied payload for appending a turn.
type TurnCreate struct {
	Speaker      Speaker `json:"speaker" binding:"required"`
	Content      string  `json:"content" binding:"required"`
	ParentTurnID *string `json:"parent_turn_id,omitempty"`
}

// Concept is a named entity extracted from a turn, scoped to (tenant_id, session_id).
type Concept struct {
	NodeID          string   `json:"node_id"`
	CanonicalName   string   `json:"canonical_name"`
	Aliases         []string `json:"aliases,omitempty"`
	Domain          string   `json:"domain,omitempty"`
	Confidence      float64  `json:"confidence"`
	EvidenceTurnIDs []string `json:"evidence_turn_ids,omitempty"`
}

// Relation is a typed directed edge between two concepts.
type Relation struct {
	EdgeID          string       `json:"edge_id"`
	SourceNodeID    string       `json:"source_node_id"`
	TargetNodeID    string       `json:"target_node_id"`
	RelationType    RelationType `json:"relation_type"`
	Confidence      float64      `json:"confidence"`
	EvidenceTurnIDs []string     `json:"evidence_turn_ids,omitempty"`
}

// Coreference resolves a pronoun mention in the turn text to an antecedent concept name.
type Coreference struct {
	Mention          string `json:"mention"`
	ResolvedConcept  string `json:"resolved_concept"`
}

// KnowledgeGap is a machine-detected deficiency surfaced for the suggestion backend.
type KnowledgeGap struct {
	GapID       string  `json:"gap_id"`
	SessionID   string  `json:"session_id"`
	GapType     GapType `json:"gap_type"`
	Priority    int     `json:"priority"`
	Description string  `json:"description"`
}

// AsyncJob tracks the lifecycle of one asynchronously processed turn.
type AsyncJob struct {
	JobID     string                 `json:"job_id"`
	TenantID  string                 `json:"tenant_id"`
	SessionID string                 `json:"session_id"`
	TurnID    string                 `json:"turn_id"`
	Status    AsyncJobStatus         `json:"status"`
	Result    *DialogueTurnResponse  `json:"result,omitempty"`
	Error     string                 `json:"error,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// ParseResult is the parser backend's output for one turn.
type ParseResult struct {
	Concepts     []Concept     `json:"concepts"`
	Relations    []Relation    `json:"relations"`
	Coreferences []Coreference `json:"coreferences,omitempty"`
	Gaps         []KnowledgeGap `json:"knowledge_gaps,omitempty"`
}

// ParseTurnRequest is the wire request to the Parser service.
type ParseTurnRequest struct {
	TenantID  string `json:"tenant_id"`
	SessionID string `json:"session_id"`
	Turn      Turn   `json:"turn"`
	History   []Turn `json:"history"`
}

// ParseTurnResponse wraps ParseResult for the Parser service's HTTP contract.
type ParseTurnResponse struct {
	ParseResult
}

// GraphUpsertRequest is the wire request to the Graph service.
type GraphUpsertRequest struct {
	TenantID  string     `json:"tenant_id"`
	SessionID string     `json:"session_id"`
	Concepts  []Concept  `json:"concepts"`
	Relations []Relation `json:"relations"`
}

// GraphUpsertResult reports the merge-algorithm counters for one Upsert call.
type GraphUpsertResult struct {
	AddedNodes   int `json:"added_nodes"`
	MergedNodes  int `json:"merged_nodes"`
	AddedEdges   int `json:"added_edges"`
	MergedEdges  int `json:"merged_edges"`
}

// GraphSnapshot is the full deduplicated graph for one session scope.
type GraphSnapshot struct {
	Concepts  []Concept  `json:"concepts"`
	Relations []Relation `json:"relations"`
}

// SuggestionRequest is the wire request to the Suggestion service.
type SuggestionRequest struct {
	TenantID  string         `json:"tenant_id"`
	SessionID string         `json:"session_id"`
	Gaps      []KnowledgeGap `json:"knowledge_gaps"`
}

// Suggestion is one ranked follow-up question.
type Suggestion struct {
	Question string  `json:"question"`
	Reason   string  `json:"reason"`
	Priority int     `json:"priority"`
	GapType  GapType `json:"gap_type"`
}

// SuggestionResponse wraps the ranked suggestions for the Suggestion service's HTTP contract.
type SuggestionResponse struct {
	Suggestions []Suggestion `json:"suggestions"`
}

// DialogueTurnResponse is the aggregate result of running the pipeline on one turn.
type DialogueTurnResponse struct {
	Turn        Turn              `json:"turn"`
	ParseResult ParseResult       `json:"parse_result"`
	GraphUpdate GraphUpsertResult `json:"graph_update"`
	Suggestions []Suggestion      `json:"suggestions"`
}

// AsyncTurnAccepted is returned immediately by AddTurnAsync.
type AsyncTurnAccepted struct {
	JobID  string         `json:"job_id"`
	TurnID string         `json:"turn_id"`
	Status AsyncJobStatus `json:"status"`
}

// AsyncTurnJobResponse is the materialized view of an AsyncJob returned by GetJob.
type AsyncTurnJobResponse struct {
	JobID     string                `json:"job_id"`
	TenantID  string                `json:"tenant_id"`
	SessionID string                `json:"session_id"`
	TurnID    string                `json:"turn_id"`
	Status    AsyncJobStatus        `json:"status"`
	Result    *DialogueTurnResponse `json:"result,omitempty"`
	Error     string                `json:"error,omitempty"`
}

// ContextPathEntry is one element of GetContextPath's flattened turn sequence.
type ContextPathEntry struct {
	TurnID       string  `json:"turn_id"`
	Speaker      Speaker `json:"speaker"`
	ParentTurnID *string `json:"parent_turn_id,omitempty"`
}
