package memory

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strings"
	"time"
)

const (
	strategyVector  = "vector"
	strategyKeyword = "keyword"
	strategyRecency = "recency"

	maxSearchTokens = 8
)

var wordRegex = regexp.MustCompile(`[a-zA-Z][a-zA-Z0-9_\-]{2,}|[\p{Han}]{2,}`)

// SearchMemories runs a vector search over the user's entries, falling back
// to keyword (FTS) and finally recency ordering when no embedding is
// available. Cosine distance converts to relevance via score = 1 - distance/2.
// Archived entries are excluded unless the query asks for them.
func (s *Store) SearchMemories(ctx context.Context, q SearchQuery) (*SearchResponse, error) {
	start := time.Now()
	if q.Limit <= 0 {
		q.Limit = 10
	}

	if results, ok := s.vectorSearch(ctx, q); ok {
		return &SearchResponse{Results: results, Strategy: strategyVector, Elapsed: time.Since(start)}, nil
	}

	results, err := s.keywordSearch(q)
	if err != nil {
		log.Printf("[memory] keyword search degraded for user=%s: %v", q.UserID, err)
	}
	if len(results) > 0 {
		return &SearchResponse{Results: results, Strategy: strategyKeyword, Elapsed: time.Since(start)}, nil
	}

	recent, err := s.recencySearch(q)
	if err != nil {
		return nil, err
	}
	return &SearchResponse{Results: recent, Strategy: strategyRecency, Elapsed: time.Since(start)}, nil
}

func (s *Store) vectorSearch(ctx context.Context, q SearchQuery) ([]SearchResult, bool) {
	if s.embedder == nil || strings.TrimSpace(q.Text) == "" {
		return nil, false
	}
	queryVec, err := s.embedder.Embed(ctx, q.Text)
	if err != nil {
		log.Printf("[memory] query embed degraded for user=%s: %v", q.UserID, err)
		return nil, false
	}

	candidates, err := s.vectorCandidates(q.UserID, queryVec, q.Types, q.MinImportance, q.IncludeArchived)
	if err != nil {
		log.Printf("[memory] vector candidates for user=%s: %v", q.UserID, err)
		return nil, false
	}
	if len(candidates) == 0 {
		return nil, false
	}

	results := make([]SearchResult, 0, len(candidates))
	for _, c := range candidates {
		distance := 1 - c.similarity
		score := 1 - distance/2
		if score <= 0 {
			continue
		}
		results = append(results, SearchResult{Entry: c.Entry, Relevance: score})
		if len(results) == q.Limit {
			break
		}
	}
	return results, len(results) > 0
}

type vectorCandidate struct {
	Entry      Entry
	similarity float64
}

func (s *Store) vectorCandidates(userID string, queryVec []float32, types []Type, minImportance float64, includeArchived bool) ([]vectorCandidate, error) {
	query := selectColumns + `
		FROM memories
		WHERE user_id = ? AND embedding IS NOT NULL`
	args := []any{userID}
	query, args = appendFilters(query, args, types, minImportance, includeArchived)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query vector candidates: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}

	candidates := make([]vectorCandidate, 0, len(entries))
	for _, e := range entries {
		if len(e.Content.Embedding) == 0 {
			continue
		}
		sim, err := cosineSimilarity(queryVec, e.Content.Embedding)
		if err != nil {
			continue
		}
		candidates = append(candidates, vectorCandidate{Entry: e, similarity: sim})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].similarity == candidates[j].similarity {
			return candidates[i].Entry.Metadata.Importance > candidates[j].Entry.Metadata.Importance
		}
		return candidates[i].similarity > candidates[j].similarity
	})
	return candidates, nil
}

func (s *Store) keywordSearch(q SearchQuery) ([]SearchResult, error) {
	matchQuery := buildMatchQuery(extractTokens(q.Text))
	if matchQuery == "" {
		return nil, nil
	}

	query := `
		SELECT m.id, m.user_id, m.type, m.category, m.content, m.summary, m.entities, m.keywords,
		       m.embedding, m.importance, m.valence, m.arousal, m.access_count, m.decay_factor,
		       m.state, m.related_ids, m.temporal_ids, m.created_at, m.last_accessed,
		       bm25(memories_fts) AS rank
		FROM memories m
		JOIN memories_fts f ON m.rowid = f.rowid
		WHERE memories_fts MATCH ? AND m.user_id = ?`
	args := []any{matchQuery, q.UserID}
	query, args = appendFilters(query, args, q.Types, q.MinImportance, q.IncludeArchived)
	query += ` ORDER BY bm25(memories_fts), m.importance DESC LIMIT ?`
	args = append(args, q.Limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	ranks := make([]float64, 0)
	for rows.Next() {
		var e Entry
		var typ, state, entities, keywords, related, temporal, createdAt, lastAccessed string
		var blob []byte
		var rank float64
		if err := rows.Scan(
			&e.ID, &e.UserID, &typ, &e.Metadata.Category,
			&e.Content.Raw, &e.Content.Summary, &entities, &keywords,
			&blob, &e.Metadata.Importance, &e.Metadata.Valence, &e.Metadata.Arousal,
			&e.Metadata.AccessCount, &e.Metadata.DecayFactor,
			&state, &related, &temporal, &createdAt, &lastAccessed, &rank,
		); err != nil {
			return nil, fmt.Errorf("scan keyword match: %w", err)
		}
		e.Type = Type(typ)
		e.Metadata.State = ConsolidationState(state)
		e.Metadata.CreatedAt = parseTime(createdAt)
		e.Metadata.LastAccessedAt = parseTime(lastAccessed)
		unmarshalJSON(entities, &e.Content.Entities)
		unmarshalJSON(keywords, &e.Content.Keywords)
		unmarshalJSON(related, &e.RelatedIDs)
		unmarshalJSON(temporal, &e.TemporalIDs)
		if len(blob) > 0 {
			if vec, err := decodeVector(blob); err == nil {
				e.Content.Embedding = vec
			}
		}
		entries = append(entries, e)
		ranks = append(ranks, rank)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keyword matches: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	scores := normalizeRanks(ranks)
	results := make([]SearchResult, len(entries))
	for i, e := range entries {
		results[i] = SearchResult{Entry: e, Relevance: scores[i]}
	}
	return results, nil
}

func (s *Store) recencySearch(q SearchQuery) ([]SearchResult, error) {
	query := selectColumns + ` FROM memories WHERE user_id = ?`
	args := []any{q.UserID}
	query, args = appendFilters(query, args, q.Types, q.MinImportance, q.IncludeArchived)
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, q.Limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("recency search: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	results := make([]SearchResult, len(entries))
	for i, e := range entries {
		// Decay factor stands in for relevance when there is no signal.
		results[i] = SearchResult{Entry: e, Relevance: e.Metadata.DecayFactor * e.Metadata.Importance}
	}
	return results, nil
}

func appendFilters(query string, args []any, types []Type, minImportance float64, includeArchived bool) (string, []any) {
	if !includeArchived {
		query += ` AND state != 'archived'`
	}
	if len(types) > 0 {
		placeholders := make([]string, len(types))
		for i, t := range types {
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		query += ` AND type IN (` + strings.Join(placeholders, ",") + `)`
	}
	if minImportance > 0 {
		query += ` AND importance >= ?`
		args = append(args, minImportance)
	}
	return query, args
}

func extractTokens(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	tokens := make([]string, 0)
	seen := map[string]struct{}{}
	for _, w := range wordRegex.FindAllString(strings.ToLower(text), -1) {
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		tokens = append(tokens, w)
		if len(tokens) == maxSearchTokens {
			break
		}
	}
	return tokens
}

func buildMatchQuery(tokens []string) string {
	if len(tokens) == 0 {
		return ""
	}
	quoted := make([]string, 0, len(tokens))
	for _, t := range tokens {
		t = strings.ReplaceAll(t, `"`, "")
		if t == "" {
			continue
		}
		quoted = append(quoted, `"`+t+`"`)
	}
	return strings.Join(quoted, " OR ")
}

// normalizeRanks converts bm25 ranks (smaller is better) into (0,1] scores.
func normalizeRanks(ranks []float64) []float64 {
	if len(ranks) == 0 {
		return nil
	}
	minRank, maxRank := ranks[0], ranks[0]
	for _, r := range ranks[1:] {
		if r < minRank {
			minRank = r
		}
		if r > maxRank {
			maxRank = r
		}
	}
	scores := make([]float64, len(ranks))
	if maxRank == minRank {
		for i := range scores {
			scores[i] = 1
		}
		return scores
	}
	span := maxRank - minRank
	for i, r := range ranks {
		score := 1 - (r-minRank)/span
		if score <= 0 {
			score = 0.01
		}
		scores[i] = score
	}
	return scores
}
