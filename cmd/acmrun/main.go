// Command acmrun loads a goal/context/plan from a YAML run file and executes
// it against the ACM runtime, printing the resulting ledger as JSONL.
// Grounded on the teacher pack's cobra-plus-signal.NotifyContext CLI
// skeleton (C360Studio-semspec/cmd/semspec/main.go).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/acmrt/acm/capability"
	"github.com/acmrt/acm/checkpoint"
	"github.com/acmrt/acm/checkpoint/boltstore"
	"github.com/acmrt/acm/checkpoint/inmem"
	"github.com/acmrt/acm/checkpoint/redisstore"
	"github.com/acmrt/acm/config"
	"github.com/acmrt/acm/executor"
	"github.com/acmrt/acm/ledger"
	"github.com/acmrt/acm/llm"
	"github.com/acmrt/acm/llm/anthropic"
	"github.com/acmrt/acm/llm/openai"
	"github.com/acmrt/acm/policy"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "acmrun: %v\n", err)
		os.Exit(1)
	}
}

type runFlags struct {
	planFile     string
	configFile   string
	runID        string
	resumeFrom   int
	provider     string
	apiKey       string
	checkpointBy string
	checkpointAt string
	redisAddr    string
}

func newRootCmd() *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "acmrun",
		Short: "Execute an ACM plan against a goal and context",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return runPlan(ctx, f)
		},
	}

	cmd.Flags().StringVar(&f.planFile, "plan", "", "path to the YAML run file (goal+context+plan)")
	cmd.Flags().StringVar(&f.configFile, "config", "", "path to the YAML runtime config file")
	cmd.Flags().StringVar(&f.runID, "run-id", "", "run identifier (required to resume)")
	cmd.Flags().IntVar(&f.resumeFrom, "resume-from", -1, "checkpoint index to resume from, or -1 for a fresh run")
	cmd.Flags().StringVar(&f.provider, "provider", "", "LLM provider for the nucleus: anthropic, openai, or empty for none")
	cmd.Flags().StringVar(&f.apiKey, "api-key", "", "API key for the selected provider (defaults to its *_API_KEY env var)")
	cmd.Flags().StringVar(&f.checkpointBy, "checkpoint-backend", "memory", "checkpoint backend: memory, bolt, or redis")
	cmd.Flags().StringVar(&f.checkpointAt, "checkpoint-path", "acmrun.checkpoints.db", "bbolt file path, when checkpoint-backend=bolt")
	cmd.Flags().StringVar(&f.redisAddr, "redis-addr", "localhost:6379", "redis address, when checkpoint-backend=redis")

	_ = cmd.MarkFlagRequired("plan")
	return cmd
}

func runPlan(ctx context.Context, f runFlags) error {
	rf, err := loadRunFile(f.planFile)
	if err != nil {
		return err
	}

	cfg := config.Config{}.WithDefaults()
	if f.configFile != "" {
		cfg, err = config.Load(f.configFile)
		if err != nil {
			return err
		}
	}
	if f.runID != "" {
		cfg.RunID = f.runID
	}
	if cfg.RunID == "" {
		cfg.RunID = fmt.Sprintf("%s-%s", rf.Plan.ID, uuid.NewString())
	}

	reg := capability.NewRegistry()
	if err := registerBuiltins(reg); err != nil {
		return fmt.Errorf("acmrun: registering builtin capabilities: %w", err)
	}

	store, closeStore, err := openCheckpointStore(f)
	if err != nil {
		return err
	}
	defer closeStore()

	call, err := resolveLLMCall(f)
	if err != nil {
		return err
	}

	led := ledger.New(nil)

	req := executor.Request{
		Goal:               rf.Goal.toModel(),
		Context:            rf.Context.toModel(),
		Plan:               rf.Plan.toModel(),
		Capabilities:       reg,
		Policy:             policy.NoopEngine{},
		LLMCall:            call,
		Ledger:             led,
		Checkpoints:        store,
		CheckpointInterval: cfg.CheckpointInterval,
		RunID:              cfg.RunID,
		MaxContextTokens:   cfg.MaxContextTokens,
		MaxQueryRounds:     cfg.MaxQueryRounds,
	}
	if f.resumeFrom >= 0 {
		resumeFrom := f.resumeFrom
		req.ResumeFrom = &resumeFrom
	}

	result, err := executor.Execute(ctx, req)
	if err != nil {
		return fmt.Errorf("acmrun: execute: %w", err)
	}

	out, err := result.Ledger.MarshalJSONL()
	if err != nil {
		return fmt.Errorf("acmrun: marshaling ledger: %w", err)
	}
	os.Stdout.Write(out)

	if result.Failure != nil {
		return fmt.Errorf("acmrun: run failed at task %s: %s (%s)", result.Failure.TaskID, result.Failure.Message, result.Failure.Kind)
	}
	return nil
}

func openCheckpointStore(f runFlags) (checkpoint.Store, func(), error) {
	noop := func() {}
	switch f.checkpointBy {
	case "", "memory":
		return inmem.New(), noop, nil
	case "bolt":
		db, err := boltstore.Open(f.checkpointAt)
		if err != nil {
			return nil, noop, fmt.Errorf("acmrun: opening bolt store: %w", err)
		}
		return db, func() { db.Close() }, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: f.redisAddr})
		return redisstore.New(client, "acmrun"), func() { client.Close() }, nil
	default:
		return nil, noop, fmt.Errorf("acmrun: unknown checkpoint backend %q", f.checkpointBy)
	}
}

func resolveLLMCall(f runFlags) (llm.Call, error) {
	switch f.provider {
	case "":
		return nil, nil
	case "anthropic":
		key := f.apiKey
		if key == "" {
			key = os.Getenv("ANTHROPIC_API_KEY")
		}
		return anthropic.New(key), nil
	case "openai":
		key := f.apiKey
		if key == "" {
			key = os.Getenv("OPENAI_API_KEY")
		}
		return openai.New(key), nil
	default:
		return nil, fmt.Errorf("acmrun: unknown provider %q", f.provider)
	}
}
