package memory

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// ConsolidationResult reports what a consolidation pass changed.
type ConsolidationResult struct {
	Archived int
	Created  int
}

type consolidationGroup struct {
	category string
	typ      Type
	members  []Entry
}

// ConsolidateMemories is a no-op while the user's active entries stay at or
// under the threshold. Beyond it, entries rank by importance*decayFactor;
// the top threshold survive untouched, the remainder group by (category,
// type). Each multi-member group collapses into one consolidated entry with
// a merged summary, and every entry outside the kept set is archived rather
// than deleted.
func (s *Store) ConsolidateMemories(ctx context.Context, userID string, threshold int) (*ConsolidationResult, error) {
	if threshold <= 0 {
		threshold = 100
	}

	rows, err := s.db.Query(selectColumns+` FROM memories WHERE user_id = ? AND state = 'active'`, userID)
	if err != nil {
		return nil, fmt.Errorf("consolidate query: %w", err)
	}
	entries, err := scanEntries(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	result := &ConsolidationResult{}
	if len(entries) <= threshold {
		return result, nil
	}

	sort.SliceStable(entries, func(i, j int) bool {
		pi := entries[i].Metadata.Importance * entries[i].Metadata.DecayFactor
		pj := entries[j].Metadata.Importance * entries[j].Metadata.DecayFactor
		if pi == pj {
			return entries[i].Metadata.CreatedAt.After(entries[j].Metadata.CreatedAt)
		}
		return pi > pj
	})

	overflow := entries[threshold:]
	groups := groupOverflow(overflow)

	for _, g := range groups {
		if len(g.members) > 1 {
			if err := s.synthesizeGroup(ctx, userID, g); err != nil {
				log.Printf("[memory] consolidate group %s/%s for user=%s: %v", g.category, g.typ, userID, err)
			} else {
				result.Created++
			}
		}
		for _, member := range g.members {
			if err := s.archiveEntry(member.ID); err != nil {
				log.Printf("[memory] archive %s: %v", member.ID, err)
				continue
			}
			result.Archived++
		}
	}
	return result, nil
}

func groupOverflow(overflow []Entry) []consolidationGroup {
	index := make(map[string]int)
	groups := make([]consolidationGroup, 0)
	for _, e := range overflow {
		key := e.Metadata.Category + "|" + string(e.Type)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, consolidationGroup{category: e.Metadata.Category, typ: e.Type})
		}
		groups[i].members = append(groups[i].members, e)
	}
	return groups
}

// synthesizeGroup builds one consolidated entry from a group's merged
// summaries. The merged summary goes through the embedding provider when
// available; otherwise the member summaries are joined directly.
func (s *Store) synthesizeGroup(ctx context.Context, userID string, g consolidationGroup) error {
	parts := make([]string, 0, len(g.members))
	memberIDs := make([]string, 0, len(g.members))
	maxImportance := 0.0
	var sumValence, sumArousal float64
	for _, m := range g.members {
		text := m.Content.Summary
		if strings.TrimSpace(text) == "" {
			text = fallbackSummary(m.Content.Raw)
		}
		parts = append(parts, text)
		memberIDs = append(memberIDs, m.ID)
		if m.Metadata.Importance > maxImportance {
			maxImportance = m.Metadata.Importance
		}
		sumValence += m.Metadata.Valence
		sumArousal += m.Metadata.Arousal
	}
	joined := strings.Join(parts, " ")

	summary := joined
	if s.embedder != nil {
		if merged, err := s.embedder.Summarize(ctx, joined); err == nil && strings.TrimSpace(merged) != "" {
			summary = merged
		}
	}

	now := s.now().UTC()
	entry := &Entry{
		ID:     uuid.NewString(),
		UserID: userID,
		Type:   g.typ,
		Content: Content{
			Raw:     joined,
			Summary: summary,
		},
		Metadata: Metadata{
			CreatedAt:      now,
			LastAccessedAt: now,
			Importance:     clampImportance(maxImportance),
			Valence:        sumValence / float64(len(g.members)),
			Arousal:        sumArousal / float64(len(g.members)),
			DecayFactor:    1.0,
			State:          StateConsolidated,
			Category:       g.category,
		},
		RelatedIDs: memberIDs,
	}
	if s.embedder != nil {
		if vec, err := s.embedder.Embed(ctx, summary); err == nil {
			entry.Content.Embedding = vec
		}
	}
	return s.insertEntry(entry)
}

func (s *Store) archiveEntry(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(`UPDATE memories SET state = 'archived' WHERE id = ?`, id); err != nil {
		return fmt.Errorf("archive entry: %w", err)
	}
	return nil
}
