package persona

import (
	"context"
	"fmt"
	"strings"
)

const resetConfirmationPhrase = "yes, delete all my memories"

// command pairs a recognizer with its handler. The table is ordered: the
// first match wins, and matching runs before any response generation.
type command struct {
	name  string
	match func(input string) bool
	run   func(ctx context.Context, e *Engine, userID, sessionID, input string) (string, error)
}

func commandTable() []command {
	return []command{
		{
			name:  "show_memories",
			match: matchesAny("show memories", "show my memories", "what do you remember"),
			run:   runShowMemories,
		},
		{
			name:  "show_profile",
			match: matchesAny("show profile", "show my profile"),
			run:   runShowProfile,
		},
		{
			name:  "memory_stats",
			match: matchesAny("memory statistics", "memory stats"),
			run:   runMemoryStats,
		},
		{
			name:  "reset_confirm",
			match: func(input string) bool { return input == resetConfirmationPhrase },
			run:   runResetConfirmed,
		},
		{
			name:  "reset_request",
			match: matchesAny("reset memories", "forget everything"),
			run:   runResetRequest,
		},
		{
			name: "search_memories",
			match: func(input string) bool {
				return strings.HasPrefix(input, "search memories:")
			},
			run: runSearchMemories,
		},
	}
}

func matchesAny(phrases ...string) func(string) bool {
	return func(input string) bool {
		for _, p := range phrases {
			if input == p {
				return true
			}
		}
		return false
	}
}

// handleCommand checks the input against the command table. It reports
// whether a command matched; non-matching input falls through to normal
// conversation handling.
func (e *Engine) handleCommand(ctx context.Context, userID, sessionID, input string) (string, string, bool, error) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	for _, cmd := range commandTable() {
		if !cmd.match(normalized) {
			continue
		}
		reply, err := cmd.run(ctx, e, userID, sessionID, normalized)
		return reply, cmd.name, true, err
	}
	return "", "", false, nil
}

func runShowMemories(_ context.Context, e *Engine, userID, _, _ string) (string, error) {
	entries, err := e.memories.RecentMemories(userID, 10)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "I don't have any memories stored for you yet.", nil
	}
	var b strings.Builder
	b.WriteString("Here's what I remember most recently:\n")
	for i, entry := range entries {
		summary := entry.Content.Summary
		if strings.TrimSpace(summary) == "" {
			summary = entry.Content.Raw
		}
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, entry.Type, summary)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func runShowProfile(_ context.Context, e *Engine, userID, _, _ string) (string, error) {
	p, err := e.profiles.GetOrCreateProfile(userID)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("Here's your profile as I see it:\n")
	fmt.Fprintf(&b, "Relationship: %s (trust %.2f, %d interactions)\n",
		p.Metadata.RelationshipLevel, p.Metadata.TrustScore, p.Statistics.TotalInteractions)
	for field, value := range p.Identity.ConfirmedInfo {
		fmt.Fprintf(&b, "%s: %s\n", field, value)
	}
	if len(p.Preferences.TopicInterests) > 0 {
		top := p.Preferences.TopicInterests
		if len(top) > 5 {
			top = top[:5]
		}
		names := make([]string, len(top))
		for i, t := range top {
			names[i] = t.Topic
		}
		fmt.Fprintf(&b, "Interests: %s\n", strings.Join(names, ", "))
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func runMemoryStats(_ context.Context, e *Engine, userID, _, _ string) (string, error) {
	stats, err := e.memories.UserStats(userID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"Memory statistics: %d total (%d active, %d consolidated, %d archived), average importance %.2f, average decay %.2f.",
		stats.Total, stats.Active, stats.Consolidated, stats.Archived,
		stats.AvgImportance, stats.AvgDecay), nil
}

func runResetRequest(_ context.Context, _ *Engine, _, _, _ string) (string, error) {
	return fmt.Sprintf(
		"This will permanently delete everything I remember about you. To confirm, say exactly: %q.",
		resetConfirmationPhrase), nil
}

func runResetConfirmed(_ context.Context, e *Engine, userID, _, _ string) (string, error) {
	deleted, err := e.memories.DeleteUserMemories(userID)
	if err != nil {
		return "", err
	}
	if err := e.profiles.Delete(userID); err != nil {
		return "", err
	}
	return fmt.Sprintf("Done. I deleted %d memories and reset your profile. We're starting fresh.", deleted), nil
}

func runSearchMemories(ctx context.Context, e *Engine, userID, sessionID, input string) (string, error) {
	query := strings.TrimSpace(strings.TrimPrefix(input, "search memories:"))
	if query == "" {
		return "Tell me what to search for, like: search memories: the trip to Kyoto", nil
	}
	results, err := e.orchestrator.SearchRelevantMemories(ctx, userID, sessionID, query, 5)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return fmt.Sprintf("I couldn't find anything about %q.", query), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Here's what I found about %q:\n", query)
	for i, r := range results {
		summary := r.Entry.Content.Summary
		if strings.TrimSpace(summary) == "" {
			summary = r.Entry.Content.Raw
		}
		fmt.Fprintf(&b, "%d. (%.2f) %s\n", i+1, r.Relevance, summary)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
