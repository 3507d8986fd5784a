package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stellarlinkco/persona/internal/config"
	"github.com/stellarlinkco/persona/internal/convo"
	"github.com/stellarlinkco/persona/internal/memory"
	"github.com/stellarlinkco/persona/internal/persona"
	"github.com/stellarlinkco/persona/internal/profile"
	"github.com/stellarlinkco/persona/internal/provider"
	"github.com/stellarlinkco/persona/internal/session"
)

type stubAnalyzer struct{}

func (stubAnalyzer) Analyze(context.Context, string, string) (*provider.Analysis, error) {
	return provider.NeutralAnalysis(), nil
}

type stubBackend struct {
	reply string
	calls int
}

func (b *stubBackend) Generate(context.Context, string, provider.GenerateOptions) (string, error) {
	b.calls++
	return b.reply, nil
}

// testEngineFactory builds a fully wired engine backed by a throwaway
// database and canned providers, so chat can run without network access.
func testEngineFactory(t *testing.T, backend *stubBackend) EngineFactory {
	t.Helper()
	return func(cfg *config.Config) (*persona.Engine, func(), error) {
		memStore, err := memory.NewStore(filepath.Join(t.TempDir(), "persona.db"), nil)
		if err != nil {
			return nil, nil, err
		}
		profiles, err := profile.NewStore(memStore.DB(), nil)
		if err != nil {
			memStore.Close()
			return nil, nil, err
		}
		sessions := session.NewStore(30*time.Minute, 50)
		engine := persona.NewEngine(persona.Deps{
			Sessions:     sessions,
			Memories:     memStore,
			Orchestrator: memory.NewOrchestrator(sessions, memStore, stubAnalyzer{}),
			Profiles:     profiles,
			Conversation: convo.NewOrchestrator(backend),
		})
		return engine, func() { memStore.Close() }, nil
	}
}

func TestRunChatSingleMessage(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	messageFlag = "hello there"
	userFlag = "test-user"
	defer func() { messageFlag = ""; userFlag = "local" }()

	backend := &stubBackend{reply: "Hi! Nice to meet you."}
	var stdout, stderr bytes.Buffer
	err := runChatWithOptions(ChatOptions{
		EngineFactory: testEngineFactory(t, backend),
		Stdin:         strings.NewReader(""),
		Stdout:        &stdout,
		Stderr:        &stderr,
	})
	if err != nil {
		t.Fatalf("runChatWithOptions error: %v", err)
	}
	if !strings.Contains(stdout.String(), "Hi! Nice to meet you.") {
		t.Fatalf("expected reply on stdout, got %q", stdout.String())
	}
	if backend.calls != 1 {
		t.Fatalf("expected 1 generation call, got %d", backend.calls)
	}
}

func TestRunChatREPL(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	messageFlag = ""
	userFlag = "test-user"
	defer func() { userFlag = "local" }()

	backend := &stubBackend{reply: "Sure thing."}
	var stdout, stderr bytes.Buffer
	input := "can you help me plan a trip?\n\nexit\n"
	err := runChatWithOptions(ChatOptions{
		EngineFactory: testEngineFactory(t, backend),
		Stdin:         strings.NewReader(input),
		Stdout:        &stdout,
		Stderr:        &stderr,
	})
	if err != nil {
		t.Fatalf("runChatWithOptions error: %v", err)
	}
	out := stdout.String()
	if !strings.Contains(out, "persona chat") {
		t.Fatalf("expected REPL banner, got %q", out)
	}
	if !strings.Contains(out, "Sure thing.") {
		t.Fatalf("expected reply in REPL output, got %q", out)
	}
	// Blank lines are skipped, exit terminates; only one real turn.
	if backend.calls != 1 {
		t.Fatalf("expected 1 generation call, got %d", backend.calls)
	}
	if stderr.Len() != 0 && !strings.Contains(stderr.String(), "maintenance") {
		t.Fatalf("unexpected stderr output: %q", stderr.String())
	}
}

func TestRunChatREPLHandlesCommand(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	messageFlag = ""
	userFlag = "test-user"
	defer func() { userFlag = "local" }()

	backend := &stubBackend{reply: "unused"}
	var stdout, stderr bytes.Buffer
	err := runChatWithOptions(ChatOptions{
		EngineFactory: testEngineFactory(t, backend),
		Stdin:         strings.NewReader("show memories\nexit\n"),
		Stdout:        &stdout,
		Stderr:        &stderr,
	})
	if err != nil {
		t.Fatalf("runChatWithOptions error: %v", err)
	}
	if !strings.Contains(stdout.String(), "don't have any memories") {
		t.Fatalf("expected empty-memories reply, got %q", stdout.String())
	}
	if backend.calls != 0 {
		t.Fatalf("command must not reach the backend, got %d calls", backend.calls)
	}
}
