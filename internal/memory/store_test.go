package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/stellarlinkco/persona/internal/fault"
)

func TestStoreMemoryDefaults(t *testing.T) {
	s := newTestStore(t, &fakeEmbedder{}, nil)

	entry := mustStore(t, s, "u1", "I adopted a cat named Miso", "", nil)
	if entry.Type != TypeEpisodic {
		t.Fatalf("expected episodic default, got %q", entry.Type)
	}
	if entry.Metadata.Importance != 0.5 {
		t.Fatalf("expected default importance 0.5, got %v", entry.Metadata.Importance)
	}
	if entry.Metadata.DecayFactor != 1.0 {
		t.Fatalf("expected default decay 1.0, got %v", entry.Metadata.DecayFactor)
	}
	if entry.Metadata.State != StateActive {
		t.Fatalf("expected active state, got %q", entry.Metadata.State)
	}
	if entry.Metadata.Category != "general" {
		t.Fatalf("expected general category, got %q", entry.Metadata.Category)
	}
	if !strings.HasPrefix(entry.Content.Summary, "summary:") {
		t.Fatalf("expected provider summary, got %q", entry.Content.Summary)
	}
	if len(entry.Content.Embedding) == 0 {
		t.Fatalf("expected an embedding")
	}
}

func TestStoreMemoryOverridesClamped(t *testing.T) {
	s := newTestStore(t, &fakeEmbedder{}, nil)

	entry := mustStore(t, s, "u1", "something intense", TypeEpisodic, &Overrides{
		Importance: floatPtr(1.7),
		Valence:    floatPtr(-0.4),
		Arousal:    floatPtr(0.9),
		Category:   "emotional",
	})
	if entry.Metadata.Importance != 1.0 {
		t.Fatalf("expected importance clamped to 1.0, got %v", entry.Metadata.Importance)
	}
	if entry.Metadata.Valence != -0.4 || entry.Metadata.Arousal != 0.9 {
		t.Fatalf("unexpected affect: valence=%v arousal=%v", entry.Metadata.Valence, entry.Metadata.Arousal)
	}
	if entry.Metadata.Category != "emotional" {
		t.Fatalf("expected emotional category, got %q", entry.Metadata.Category)
	}
}

func TestStoreMemoryRejectsEmpty(t *testing.T) {
	s := newTestStore(t, &fakeEmbedder{}, nil)
	if _, err := s.StoreMemory(context.Background(), "u1", "   ", TypeEpisodic, nil); err == nil {
		t.Fatalf("expected error for empty content")
	}
}

func TestStoreMemoryDegradesWithoutProviders(t *testing.T) {
	s := newTestStore(t, &fakeEmbedder{failAll: true}, nil)

	raw := "long term plans require consistent effort over many months of work"
	entry := mustStore(t, s, "u1", raw, TypeSemantic, nil)
	if len(entry.Content.Embedding) != 0 {
		t.Fatalf("expected no embedding when provider fails")
	}
	if entry.Content.Summary == "" {
		t.Fatalf("expected lexical fallback summary")
	}

	got, err := s.GetMemory(entry.ID)
	if err != nil {
		t.Fatalf("GetMemory error: %v", err)
	}
	if got.Content.Raw != raw {
		t.Fatalf("round trip lost content")
	}
}

func TestStoreMemoryRoundTrip(t *testing.T) {
	s := newTestStore(t, &fakeEmbedder{}, nil)

	entry := mustStore(t, s, "u1", "moved to Lisbon last spring", TypeEpisodic, nil)
	got, err := s.GetMemory(entry.ID)
	if err != nil {
		t.Fatalf("GetMemory error: %v", err)
	}
	if got.UserID != "u1" || got.Content.Raw != "moved to Lisbon last spring" {
		t.Fatalf("unexpected entry: %+v", got)
	}
	if len(got.Content.Embedding) != 3 {
		t.Fatalf("expected embedding to survive the round trip, got %d dims", len(got.Content.Embedding))
	}
	if len(got.Content.Keywords) == 0 {
		t.Fatalf("expected keywords to survive the round trip")
	}
}

func TestGetMemoryNotFound(t *testing.T) {
	s := newTestStore(t, &fakeEmbedder{}, nil)
	if _, err := s.GetMemory("missing"); !fault.IsNotFound(err) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestAccessMemoryIncrements(t *testing.T) {
	s := newTestStore(t, &fakeEmbedder{}, nil)
	entry := mustStore(t, s, "u1", "remember this", TypeEpisodic, nil)

	first, err := s.AccessMemory(entry.ID)
	if err != nil {
		t.Fatalf("AccessMemory error: %v", err)
	}
	if first.Metadata.AccessCount != 1 {
		t.Fatalf("expected access count 1, got %d", first.Metadata.AccessCount)
	}
	second, err := s.AccessMemory(entry.ID)
	if err != nil {
		t.Fatalf("AccessMemory error: %v", err)
	}
	if second.Metadata.AccessCount != 2 {
		t.Fatalf("expected access count 2, got %d", second.Metadata.AccessCount)
	}

	if _, err := s.AccessMemory("missing"); !fault.IsNotFound(err) {
		t.Fatalf("expected not_found for missing id, got %v", err)
	}
}

func TestTemporalLinking(t *testing.T) {
	s := newTestStore(t, &fakeEmbedder{}, nil)

	first := mustStore(t, s, "u1", "first event", TypeEpisodic, nil)
	second := mustStore(t, s, "u1", "second event", TypeEpisodic, nil)

	if len(first.TemporalIDs) != 0 {
		t.Fatalf("first memory should have no temporal link, got %v", first.TemporalIDs)
	}
	if len(second.TemporalIDs) != 1 || second.TemporalIDs[0] != first.ID {
		t.Fatalf("expected second memory linked to first, got %v", second.TemporalIDs)
	}
}

func TestRelatedLinking(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"I love hiking in the alps": {1, 0, 0},
		"alpine hiking is the best": {0.99, 0.1, 0},
		"my tax return is due":      {0, 0, 1},
	}}
	s := newTestStore(t, embedder, nil)

	base := mustStore(t, s, "u1", "I love hiking in the alps", TypeEpisodic, nil)
	mustStore(t, s, "u1", "my tax return is due", TypeEpisodic, nil)
	similar := mustStore(t, s, "u1", "alpine hiking is the best", TypeEpisodic, nil)

	if len(similar.RelatedIDs) != 1 || similar.RelatedIDs[0] != base.ID {
		t.Fatalf("expected similar entry linked to base only, got %v", similar.RelatedIDs)
	}

	// Linking is one-directional: the earlier entry stays untouched.
	baseReloaded, err := s.GetMemory(base.ID)
	if err != nil {
		t.Fatalf("GetMemory error: %v", err)
	}
	if len(baseReloaded.RelatedIDs) != 0 {
		t.Fatalf("expected base entry unlinked, got %v", baseReloaded.RelatedIDs)
	}
}

func TestDeleteMemory(t *testing.T) {
	s := newTestStore(t, &fakeEmbedder{}, nil)
	entry := mustStore(t, s, "u1", "temporary note", TypeEpisodic, nil)

	if err := s.DeleteMemory(entry.ID); err != nil {
		t.Fatalf("DeleteMemory error: %v", err)
	}
	if _, err := s.GetMemory(entry.ID); !fault.IsNotFound(err) {
		t.Fatalf("expected not_found after delete, got %v", err)
	}
}

func TestDeleteUserMemories(t *testing.T) {
	s := newTestStore(t, &fakeEmbedder{}, nil)
	mustStore(t, s, "u1", "one", TypeEpisodic, nil)
	mustStore(t, s, "u1", "two", TypeEpisodic, nil)
	keep := mustStore(t, s, "u2", "other user", TypeEpisodic, nil)

	deleted, err := s.DeleteUserMemories("u1")
	if err != nil {
		t.Fatalf("DeleteUserMemories error: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deleted, got %d", deleted)
	}
	if _, err := s.GetMemory(keep.ID); err != nil {
		t.Fatalf("other user's memory must survive: %v", err)
	}
}

func TestRecentMemoriesExcludesArchived(t *testing.T) {
	s := newTestStore(t, &fakeEmbedder{}, nil)
	kept := mustStore(t, s, "u1", "kept entry", TypeEpisodic, nil)
	archived := mustStore(t, s, "u1", "archived entry", TypeEpisodic, nil)
	if err := s.archiveEntry(archived.ID); err != nil {
		t.Fatalf("archiveEntry error: %v", err)
	}

	entries, err := s.RecentMemories("u1", 10)
	if err != nil {
		t.Fatalf("RecentMemories error: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != kept.ID {
		t.Fatalf("expected only the kept entry, got %+v", entries)
	}
}

func TestUserStats(t *testing.T) {
	s := newTestStore(t, &fakeEmbedder{}, nil)
	mustStore(t, s, "u1", "a", TypeEpisodic, &Overrides{Importance: floatPtr(0.4)})
	mustStore(t, s, "u1", "b", TypeSemantic, &Overrides{Importance: floatPtr(0.8)})
	archived := mustStore(t, s, "u1", "c", TypeEpisodic, &Overrides{Importance: floatPtr(0.6)})
	if err := s.archiveEntry(archived.ID); err != nil {
		t.Fatalf("archiveEntry error: %v", err)
	}

	stats, err := s.UserStats("u1")
	if err != nil {
		t.Fatalf("UserStats error: %v", err)
	}
	if stats.Total != 3 || stats.Active != 2 || stats.Archived != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.ByType[TypeSemantic] != 1 || stats.ByType[TypeEpisodic] != 2 {
		t.Fatalf("unexpected type breakdown: %+v", stats.ByType)
	}
}

func TestUserIDs(t *testing.T) {
	s := newTestStore(t, &fakeEmbedder{}, nil)
	mustStore(t, s, "u1", "a", TypeEpisodic, nil)
	mustStore(t, s, "u1", "b", TypeEpisodic, nil)
	mustStore(t, s, "u2", "c", TypeEpisodic, nil)

	ids, err := s.UserIDs()
	if err != nil {
		t.Fatalf("UserIDs error: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 users, got %v", ids)
	}
}
