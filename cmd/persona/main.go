package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/stellarlinkco/persona/internal/analytics"
	"github.com/stellarlinkco/persona/internal/config"
	"github.com/stellarlinkco/persona/internal/convo"
	"github.com/stellarlinkco/persona/internal/cron"
	"github.com/stellarlinkco/persona/internal/memory"
	"github.com/stellarlinkco/persona/internal/persona"
	"github.com/stellarlinkco/persona/internal/profile"
	"github.com/stellarlinkco/persona/internal/provider"
	"github.com/stellarlinkco/persona/internal/session"
)

// EngineFactory builds the engine from config (allows mocking in tests).
type EngineFactory func(cfg *config.Config) (*persona.Engine, func(), error)

// DefaultEngineFactory wires the real providers and stores.
func DefaultEngineFactory(cfg *config.Config) (*persona.Engine, func(), error) {
	if cfg.Provider.APIKey == "" {
		return nil, nil, fmt.Errorf("API key not set. Run 'persona onboard' or set PERSONA_API_KEY")
	}

	embedder := provider.NewEmbeddingProvider(cfg)
	analyzer := provider.NewMessageAnalyzer(cfg)
	inference := provider.NewInferenceEngine(cfg)
	backend := provider.NewGenerationBackend(cfg)

	memStore, err := memory.NewStore(cfg.Memory.DBPath, embedder)
	if err != nil {
		return nil, nil, fmt.Errorf("open memory store: %w", err)
	}

	profiles, err := profile.NewStore(memStore.DB(), inference)
	if err != nil {
		memStore.Close()
		return nil, nil, fmt.Errorf("open profile store: %w", err)
	}

	sessions := session.NewStore(
		time.Duration(cfg.Session.TTLMinutes)*time.Minute,
		cfg.Session.MaxRecentMessages,
	)

	var sink analytics.Sink = analytics.NopSink{}
	if cfg.Analytics.Enabled {
		sqlSink, err := analytics.NewSQLSink(memStore.DB(), cfg.Analytics.BufferSize)
		if err != nil {
			memStore.Close()
			return nil, nil, fmt.Errorf("open analytics sink: %w", err)
		}
		sink = sqlSink
	}

	engine := persona.NewEngine(persona.Deps{
		Sessions:               sessions,
		Memories:               memStore,
		Orchestrator:           memory.NewOrchestrator(sessions, memStore, analyzer),
		Profiles:               profiles,
		Conversation:           convo.NewOrchestrator(backend),
		Sink:                   sink,
		ConsolidationThreshold: cfg.Maintenance.ConsolidationThreshold,
	})

	cleanup := func() {
		sink.Close()
		memStore.Close()
	}
	return engine, cleanup, nil
}

// ChatOptions for running chat with custom dependencies
type ChatOptions struct {
	EngineFactory EngineFactory
	Stdin         io.Reader
	Stdout        io.Writer
	Stderr        io.Writer
}

var rootCmd = &cobra.Command{
	Use:   "persona",
	Short: "persona - personalized conversation engine",
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat in single message or REPL mode",
	RunE:  runChat,
}

var maintainCmd = &cobra.Command{
	Use:   "maintain",
	Short: "Run one maintenance pass (decay, consolidation, session cleanup)",
	RunE:  runMaintain,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a user's profile and memories as JSON",
	RunE:  runExport,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete a user's memories and profile",
	RunE:  runReset,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config and data directory",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show persona status",
	RunE:  runStatus,
}

var (
	messageFlag string
	userFlag    string
)

func init() {
	chatCmd.Flags().StringVarP(&messageFlag, "message", "m", "", "Single message to send")
	rootCmd.PersistentFlags().StringVarP(&userFlag, "user", "u", "local", "User ID to operate on")
	rootCmd.AddCommand(chatCmd, maintainCmd, exportCmd, resetCmd, onboardCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	return runChatWithOptions(ChatOptions{})
}

// runChatWithOptions runs chat with injectable dependencies for testing
func runChatWithOptions(opts ChatOptions) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	factory := opts.EngineFactory
	if factory == nil {
		factory = DefaultEngineFactory
	}
	engine, cleanup, err := factory(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	stdin := opts.Stdin
	if stdin == nil {
		stdin = os.Stdin
	}
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	ctx := context.Background()

	if messageFlag != "" {
		reply, err := engine.ProcessMessage(ctx, userFlag, "", messageFlag)
		if err != nil {
			return fmt.Errorf("process message: %w", err)
		}
		fmt.Fprintln(stdout, reply.Text)
		return nil
	}

	// REPL mode with the maintenance scheduler running alongside
	svc := cron.NewService(cfg.Maintenance.Schedule, func(ctx context.Context) error {
		_, err := engine.RunMaintenance(ctx)
		return err
	})
	if err := svc.Start(ctx); err != nil {
		fmt.Fprintf(stderr, "Warning: maintenance scheduler disabled: %v\n", err)
	}
	defer svc.Stop()

	fmt.Fprintln(stdout, "persona chat (type 'exit' to quit)")
	scanner := bufio.NewScanner(stdin)
	sessionID := ""
	for {
		fmt.Fprint(stdout, "\n> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}

		reply, err := engine.ProcessMessage(ctx, userFlag, sessionID, input)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			continue
		}
		sessionID = reply.SessionID
		fmt.Fprintln(stdout, reply.Text)
	}
	return nil
}

func runMaintain(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	engine, cleanup, err := DefaultEngineFactory(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	report, err := engine.RunMaintenance(context.Background())
	if err != nil {
		return fmt.Errorf("run maintenance: %w", err)
	}
	fmt.Printf("Maintenance complete: %d users, %d decay updates, %d archived, %d consolidated, %d expired sessions\n",
		report.Users, report.DecayUpdated, report.Archived, report.Consolidated, report.ExpiredSessions)
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	engine, cleanup, err := DefaultEngineFactory(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	data, err := engine.ExportUserData(userFlag)
	if err != nil {
		return fmt.Errorf("export user data: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	engine, cleanup, err := DefaultEngineFactory(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	deleted, err := engine.ResetUser(userFlag)
	if err != nil {
		return fmt.Errorf("reset user: %w", err)
	}
	fmt.Printf("Deleted %d memories and reset profile for user %q\n", deleted, userFlag)
	return nil
}

func runOnboard(cmd *cobra.Command, args []string) error {
	cfgDir := config.ConfigDir()
	cfgPath := config.ConfigPath()

	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := config.SaveConfig(config.DefaultConfig()); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Created config: %s\n", cfgPath)
	} else {
		fmt.Printf("Config already exists: %s\n", cfgPath)
	}

	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Edit %s to set your API key\n", cfgPath)
	fmt.Println("  2. Or set PERSONA_API_KEY environment variable")
	fmt.Println("  3. Run 'persona chat -m \"Hello\"' to test")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Config: error (%v)\n", err)
		return nil
	}

	fmt.Printf("Config: %s\n", config.ConfigPath())
	fmt.Printf("Database: %s\n", cfg.Memory.DBPath)
	fmt.Printf("Model: %s\n", cfg.Memory.Model)
	fmt.Printf("Embedding model: %s\n", cfg.Memory.Embedding.Model)
	if cfg.Provider.APIKey != "" && len(cfg.Provider.APIKey) > 8 {
		masked := cfg.Provider.APIKey[:4] + "..." + cfg.Provider.APIKey[len(cfg.Provider.APIKey)-4:]
		fmt.Printf("API Key: %s\n", masked)
	} else if cfg.Provider.APIKey != "" {
		fmt.Println("API Key: set")
	} else {
		fmt.Println("API Key: not set")
	}
	fmt.Printf("Analytics: enabled=%v\n", cfg.Analytics.Enabled)
	fmt.Printf("Maintenance schedule: %s\n", cfg.Maintenance.Schedule)

	if info, err := os.Stat(cfg.Memory.DBPath); err != nil {
		fmt.Println("Database: not found (created on first chat)")
	} else {
		fmt.Printf("Database size: %d bytes\n", info.Size())
	}
	return nil
}
