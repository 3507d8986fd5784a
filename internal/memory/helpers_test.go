package memory

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stellarlinkco/persona/internal/provider"
)

// fakeEmbedder returns deterministic vectors keyed by text, with a shared
// default so unrelated texts still embed.
type fakeEmbedder struct {
	vectors map[string][]float32
	failAll bool
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.failAll {
		return nil, fmt.Errorf("embed unavailable")
	}
	if vec, ok := f.vectors[text]; ok {
		return vec, nil
	}
	return []float32{1, 0, 0}, nil
}

func (f *fakeEmbedder) ExtractEntities(_ context.Context, text string) ([]provider.Entity, error) {
	if f.failAll {
		return nil, fmt.Errorf("entities unavailable")
	}
	return nil, nil
}

func (f *fakeEmbedder) ExtractKeywords(_ context.Context, text string) ([]string, error) {
	if f.failAll {
		return nil, fmt.Errorf("keywords unavailable")
	}
	return strings.Fields(strings.ToLower(text)), nil
}

func (f *fakeEmbedder) Summarize(_ context.Context, text string) (string, error) {
	if f.failAll {
		return "", fmt.Errorf("summarize unavailable")
	}
	return "summary: " + text, nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func newTestStore(t *testing.T, embedder provider.EmbeddingProvider, clock *fakeClock) *Store {
	t.Helper()
	opts := []StoreOption{}
	if clock != nil {
		opts = append(opts, WithStoreClock(clock.Now))
	}
	s, err := NewStore(filepath.Join(t.TempDir(), "persona.db"), embedder, opts...)
	if err != nil {
		t.Fatalf("NewStore error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustStore(t *testing.T, s *Store, userID, raw string, typ Type, ov *Overrides) *Entry {
	t.Helper()
	entry, err := s.StoreMemory(context.Background(), userID, raw, typ, ov)
	if err != nil {
		t.Fatalf("StoreMemory error: %v", err)
	}
	return entry
}

func floatPtr(v float64) *float64 { return &v }
