package memory

import (
	"fmt"
	"math"
)

// ApplyTemporalDecay recomputes every entry's decay factor from its age,
// importance, and access pattern:
//
//	decay = exp(-daysSinceCreation * 0.01 * (1 - importance))
//	      * min(1.5, 1 + accessCount * 0.1)
//	      * exp(-daysSinceAccess * 0.05)
//
// clamped to [0.1, 1.0]. Important and frequently accessed memories hold
// their weight; stale ones fade. Returns the number of entries updated.
func (s *Store) ApplyTemporalDecay(userID string) (int, error) {
	rows, err := s.db.Query(selectColumns+` FROM memories WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("decay query: %w", err)
	}
	entries, err := scanEntries(rows)
	rows.Close()
	if err != nil {
		return 0, err
	}

	now := s.now().UTC()
	updated := 0
	for _, e := range entries {
		ageDays := now.Sub(e.Metadata.CreatedAt).Hours() / 24
		accessDays := now.Sub(e.Metadata.LastAccessedAt).Hours() / 24
		if ageDays < 0 {
			ageDays = 0
		}
		if accessDays < 0 {
			accessDays = 0
		}

		ageTerm := math.Exp(-ageDays * 0.01 * (1 - e.Metadata.Importance))
		accessBoost := math.Min(1.5, 1+float64(e.Metadata.AccessCount)*0.1)
		staleness := math.Exp(-accessDays * 0.05)
		decay := clampDecay(ageTerm * accessBoost * staleness)

		if decay == e.Metadata.DecayFactor {
			continue
		}
		s.mu.Lock()
		_, err := s.db.Exec(`UPDATE memories SET decay_factor = ? WHERE id = ?`, decay, e.ID)
		s.mu.Unlock()
		if err != nil {
			return updated, fmt.Errorf("decay update %s: %w", e.ID, err)
		}
		updated++
	}
	return updated, nil
}
