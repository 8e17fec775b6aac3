package priorartsearch

import (
	"time"

	"github.com/google/uuid"
)

const (
	DefaultLLMModel           = "claude-sonnet-4-5"
	DefaultMaxResults         = 20
	DefaultRelevanceThreshold = 0.3
	DefaultBatchSize          = 5
	DefaultMinRequestInterval = 1500 * time.Millisecond
	DefaultRequestTimeout     = 120 * time.Second
	DefaultLLMTimeout         = 30 * time.Second
	DefaultSearchBudget       = 15 * time.Minute

	PatentsViewBaseURL    = "https://search.patentsview.org/api/v1"
	PatentsViewPatentPath = "/patent/"
	PatentsViewClaimsPath = "/g_claim/"

	MaxPageSize         = 100
	MaxClaimsPerPatent  = 100
	MaxAbstractChars    = 1500
	ReportInventorySize = 10
	MaxClaimSnippets    = 3

	Disclaimer = "This report is an automated preliminary search and is not a legal opinion on patentability or freedom to operate."
)

type RelevanceLevel string

const (
	RelevanceIrrelevant   RelevanceLevel = "irrelevant"
	RelevanceSlight       RelevanceLevel = "slight"
	RelevanceModerate     RelevanceLevel = "moderate"
	RelevanceHigh         RelevanceLevel = "high"
	RelevanceExcellent    RelevanceLevel = "excellent"
	RelevanceUnclassified RelevanceLevel = "unclassified"
)

type ClaimType string

const (
	ClaimIndependent ClaimType = "independent"
	ClaimDependent   ClaimType = "dependent"
)

type Phase string

const (
	PhaseStrategize Phase = "strategize"
	PhaseFanOut     Phase = "fan_out_search"
	PhaseDedup      Phase = "dedup"
	PhaseScore      Phase = "score"
	PhaseSelect     Phase = "select"
	PhaseEnrich     Phase = "enrich"
	PhaseDone       Phase = "done"
	PhaseReport     Phase = "report"
)

// SearchStrategy is one structured query against the patent search API.
// Query is a PatentsView query object passed through verbatim as "q".
type SearchStrategy struct {
	Name            string         `json:"name"`
	Description     string         `json:"description"`
	Query           map[string]any `json:"query"`
	ExpectedResults int            `json:"expected_results"`
	Priority        int            `json:"priority"`
}

type RawCandidate struct {
	PatentID          string   `json:"patent_id"`
	Title             string   `json:"title"`
	Abstract          string   `json:"abstract"`
	Date              string   `json:"date"`
	Year              string   `json:"year,omitempty"`
	Inventors         []string `json:"inventors"`
	Assignees         []string `json:"assignees"`
	SourceStrategy    string   `json:"source_strategy"`
	MatchedStrategies []string `json:"matched_strategies"`
}

type Claim struct {
	Number     string    `json:"number"`
	Text       string    `json:"text"`
	Type       ClaimType `json:"type"`
	Dependency string    `json:"dependency,omitempty"`
	Exemplary  bool      `json:"exemplary"`
}

type ScoredCandidate struct {
	RawCandidate
	RelevanceScore float64        `json:"relevance_score"`
	Confidence     float64        `json:"confidence"`
	Reasoning      string         `json:"reasoning"`
	KeyMatches     []string       `json:"key_matches,omitempty"`
	RelevanceLevel RelevanceLevel `json:"relevance_level"`
	ScoringFailed  bool           `json:"scoring_failed,omitempty"`
}

type AnalyzedResult struct {
	ScoredCandidate
	Claims []Claim `json:"claims"`
}

type SearchMetadata struct {
	Threshold         float64 `json:"threshold"`
	MaxResults        int     `json:"max_results"`
	Domain            string  `json:"domain,omitempty"`
	UniqueCount       int     `json:"unique_count"`
	StrategiesCount   int     `json:"strategies_count"`
	StrategiesFailed  int     `json:"strategies_failed"`
	DuplicatesRemoved int     `json:"duplicates_removed"`
	ScoringFailures   int     `json:"scoring_failures"`
	ClaimsFailures    int     `json:"claims_failures"`
	Scorer            string  `json:"scorer"`
	Model             string  `json:"model"`
	DurationMS        int64   `json:"duration_ms"`
}

// SearchResult is the terminal snapshot of one search. It is not modified
// after Search returns.
type SearchResult struct {
	ID         uuid.UUID        `json:"id"`
	Query      string           `json:"query"`
	TotalFound int              `json:"total_found"`
	Results    []AnalyzedResult `json:"results"`
	Strategies []SearchStrategy `json:"strategies"`
	Timestamp  time.Time        `json:"timestamp"`
	Metadata   SearchMetadata   `json:"metadata"`
}
