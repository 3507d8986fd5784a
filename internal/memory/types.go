package memory

import (
	"time"

	"github.com/stellarlinkco/persona/internal/provider"
)

type Type string

const (
	TypeEpisodic   Type = "episodic"
	TypeSemantic   Type = "semantic"
	TypeProcedural Type = "procedural"
	TypeWorking    Type = "working"
)

type ConsolidationState string

const (
	StateActive       ConsolidationState = "active"
	StateConsolidated ConsolidationState = "consolidated"
	StateArchived     ConsolidationState = "archived"
)

// Content is the textual and vector payload of a memory entry.
type Content struct {
	Raw       string
	Summary   string
	Entities  []provider.Entity
	Keywords  []string
	Embedding []float32
}

// Metadata is the lifecycle state of a memory entry. Importance stays in
// [0,1] and decayFactor in [0.1,1.0] at all times.
type Metadata struct {
	CreatedAt      time.Time
	Importance     float64
	Valence        float64
	Arousal        float64
	AccessCount    int
	LastAccessedAt time.Time
	DecayFactor    float64
	State          ConsolidationState
	Category       string
}

// Entry is one long-term memory record.
type Entry struct {
	ID          string
	UserID      string
	Type        Type
	Content     Content
	Metadata    Metadata
	RelatedIDs  []string
	TemporalIDs []string
}

// Overrides lets the caller replace entry defaults at store time. Nil
// pointers keep the default.
type Overrides struct {
	Importance *float64
	Valence    *float64
	Arousal    *float64
	Category   string
}

// SearchQuery scopes a memory search.
type SearchQuery struct {
	UserID          string
	Text            string
	Types           []Type
	MinImportance   float64
	Limit           int
	IncludeArchived bool
}

// SearchResult pairs an entry with its relevance score.
type SearchResult struct {
	Entry     Entry
	Relevance float64
}

// SearchResponse annotates results with the strategy that produced them and
// the execution time.
type SearchResponse struct {
	Results  []SearchResult
	Strategy string
	Elapsed  time.Duration
}

// Stats is an aggregate snapshot of a user's long-term memory.
type Stats struct {
	Total         int
	Active        int
	Consolidated  int
	Archived      int
	AvgImportance float64
	AvgDecay      float64
	ByType        map[Type]int
}

func clampImportance(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampDecay(v float64) float64 {
	if v < 0.1 {
		return 0.1
	}
	if v > 1.0 {
		return 1.0
	}
	return v
}
