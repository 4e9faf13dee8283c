// File: cmd/run.go
package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tasker-cli/api/schemas"
	"github.com/xkilldash9x/tasker-cli/internal/action"
	"github.com/xkilldash9x/tasker-cli/internal/capture"
	"github.com/xkilldash9x/tasker-cli/internal/config"
	"github.com/xkilldash9x/tasker-cli/internal/envinfo"
	"github.com/xkilldash9x/tasker-cli/internal/llmclient"
	"github.com/xkilldash9x/tasker-cli/internal/observability"
	"github.com/xkilldash9x/tasker-cli/internal/pipeline"
	"github.com/xkilldash9x/tasker-cli/internal/postmortem"
	"github.com/xkilldash9x/tasker-cli/internal/reason"
	"github.com/xkilldash9x/tasker-cli/internal/store"
	"github.com/xkilldash9x/tasker-cli/internal/translate"
	"github.com/xkilldash9x/tasker-cli/internal/verify"
)

// newRunCmd creates the 'run' command: one session, driven to a terminal
// state, followed by post-mortem synthesis.
func newRunCmd() *cobra.Command {
	var goal string
	var browser string
	var maxSteps int

	cmd := &cobra.Command{
		Use:   "run --goal <description>",
		Short: "Runs one task session: observe, decide, act, verify, repeat.",
		Long: `The run command starts a fresh session toward the given goal and advances it
step by step until the engine reports a verdict, the step budget runs out, or
a fault occurs. Every step is recorded; a post-mortem is synthesized at the
end. Without an API key the deterministic offline engine is used.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg, err := getConfig()
			if err != nil {
				return err
			}
			if maxSteps > 0 {
				cfg.Session.MaxSteps = maxSteps
			}
			return runSession(ctx, cfg, logger, cmd, goal, browser)
		},
	}

	cmd.Flags().StringVarP(&goal, "goal", "g", "", "The natural-language goal to pursue (required).")
	cmd.Flags().StringVarP(&browser, "browser", "b", "", "Browser hint included in the environment description.")
	cmd.Flags().IntVarP(&maxSteps, "max-steps", "n", 0, "Override the default step budget.")
	_ = cmd.MarkFlagRequired("goal")

	return cmd
}

func runSession(ctx context.Context, cfg *config.Config, logger *zap.Logger, cmd *cobra.Command, goal, browser string) error {
	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	// Live engine and verifier only when a key is configured; the stub covers
	// the rest.
	var engine schemas.ReasoningClient
	var verifier schemas.Verifier
	if !cfg.Agent.Engine.Stubbed() {
		llm, err := llmclient.NewClient(cfg.Agent.Engine, logger)
		if err != nil {
			return err
		}
		defer func() { _ = llm.Close() }()
		engine = reason.NewClient(llm, cfg.Agent.Engine.DecideTimeout, logger)
		verifier = verify.New(llm, cfg.Agent.Engine.VerifyTimeout, logger)
	} else {
		logger.Info("No engine API key configured; using the deterministic offline engine.")
	}

	p, err := pipeline.New(pipeline.Deps{
		Store:           st,
		Engine:          engine,
		Fallback:        reason.NewStubClient(logger),
		Translator:      translate.New(cfg.Translator.RulesFile, logger),
		Verifier:        verifier,
		Capturer:        capture.NewPlaceholderCapturer(logger),
		Executor:        action.NewDispatcher(action.NewLogActuator(logger), logger),
		Env:             envinfo.New(nil),
		ScreenshotsDir:  cfg.Capture.ScreenshotsDir,
		DefaultMaxSteps: cfg.Session.MaxSteps,
	}, logger)
	if err != nil {
		return err
	}

	sess, err := p.NewSession(ctx, goal, browser)
	if err != nil {
		return err
	}
	if err := p.Run(ctx, sess); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Session %s finished: %s after %d step(s)\n", sess.ID, sess.Status, sess.StepNumber)

	pm, err := postmortem.New(st, verifier, logger).Synthesize(ctx, *sess, envinfo.New(nil).Describe(browser))
	if err != nil {
		return fmt.Errorf("post-mortem synthesis failed: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout())
	fmt.Fprintln(cmd.OutOrStdout(), pm.OptimizedPrompt)
	return nil
}

// openStore returns the Postgres store when a database URL is configured, the
// in-process store otherwise (data is lost on exit).
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (schemas.Store, func(), error) {
	if cfg.Database.URL == "" {
		logger.Info("No database configured; using the in-process store (data is lost on exit).")
		return store.NewMemoryStore(), func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	st, err := store.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := st.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return st, pool.Close, nil
}
