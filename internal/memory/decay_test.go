package memory

import (
	"math"
	"testing"
	"time"
)

func TestApplyTemporalDecayFadesStaleEntries(t *testing.T) {
	clock := newTestClock()
	s := newTestStore(t, &fakeEmbedder{}, clock)

	entry := mustStore(t, s, "u1", "an old unimportant detail", TypeEpisodic, &Overrides{Importance: floatPtr(0.2)})

	clock.Advance(20 * 24 * time.Hour)
	updated, err := s.ApplyTemporalDecay("u1")
	if err != nil {
		t.Fatalf("ApplyTemporalDecay error: %v", err)
	}
	if updated != 1 {
		t.Fatalf("expected 1 entry updated, got %d", updated)
	}

	got, err := s.GetMemory(entry.ID)
	if err != nil {
		t.Fatalf("GetMemory error: %v", err)
	}
	ageTerm := math.Exp(-20 * 0.01 * (1 - 0.2))
	staleness := math.Exp(-20 * 0.05)
	want := clampDecay(ageTerm * staleness)
	if math.Abs(got.Metadata.DecayFactor-want) > 1e-9 {
		t.Fatalf("expected decay %v, got %v", want, got.Metadata.DecayFactor)
	}
	if got.Metadata.DecayFactor >= 1.0 {
		t.Fatalf("stale entry should have decayed below 1.0")
	}
}

func TestApplyTemporalDecayClampsAtFloor(t *testing.T) {
	clock := newTestClock()
	s := newTestStore(t, &fakeEmbedder{}, clock)

	entry := mustStore(t, s, "u1", "ancient trivia", TypeEpisodic, &Overrides{Importance: floatPtr(0.0)})

	clock.Advance(5 * 365 * 24 * time.Hour)
	if _, err := s.ApplyTemporalDecay("u1"); err != nil {
		t.Fatalf("ApplyTemporalDecay error: %v", err)
	}

	got, err := s.GetMemory(entry.ID)
	if err != nil {
		t.Fatalf("GetMemory error: %v", err)
	}
	if got.Metadata.DecayFactor != 0.1 {
		t.Fatalf("expected decay clamped to 0.1, got %v", got.Metadata.DecayFactor)
	}
}

func TestApplyTemporalDecayAccessBoost(t *testing.T) {
	clock := newTestClock()
	s := newTestStore(t, &fakeEmbedder{}, clock)

	plain := mustStore(t, s, "u1", "rarely touched note", TypeEpisodic, &Overrides{Importance: floatPtr(0.5)})
	accessed := mustStore(t, s, "u1", "frequently touched note", TypeEpisodic, &Overrides{Importance: floatPtr(0.5)})

	clock.Advance(10 * 24 * time.Hour)
	// Refresh last_accessed and build up the access count on one entry.
	for i := 0; i < 3; i++ {
		if _, err := s.AccessMemory(accessed.ID); err != nil {
			t.Fatalf("AccessMemory error: %v", err)
		}
	}

	if _, err := s.ApplyTemporalDecay("u1"); err != nil {
		t.Fatalf("ApplyTemporalDecay error: %v", err)
	}

	plainAfter, _ := s.GetMemory(plain.ID)
	accessedAfter, _ := s.GetMemory(accessed.ID)
	if accessedAfter.Metadata.DecayFactor <= plainAfter.Metadata.DecayFactor {
		t.Fatalf("accessed entry should hold more weight: accessed=%v plain=%v",
			accessedAfter.Metadata.DecayFactor, plainAfter.Metadata.DecayFactor)
	}
}

func TestApplyTemporalDecayFreshEntryUnchanged(t *testing.T) {
	clock := newTestClock()
	s := newTestStore(t, &fakeEmbedder{}, clock)

	mustStore(t, s, "u1", "just stored", TypeEpisodic, nil)
	updated, err := s.ApplyTemporalDecay("u1")
	if err != nil {
		t.Fatalf("ApplyTemporalDecay error: %v", err)
	}
	if updated != 0 {
		t.Fatalf("fresh entry should keep decay 1.0, got %d updates", updated)
	}
}
