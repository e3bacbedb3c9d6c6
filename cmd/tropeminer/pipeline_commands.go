package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"tropeminer/internal/config"
	"tropeminer/internal/pipeline"
	"tropeminer/internal/store"
)

func newRunCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run <work-id>",
		Short: "Seed, judge, and verify one work end to end",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStages(cmd, cctx, args[0], pipeline.AllStages())
		},
	}
}

func newSeedCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <work-id>",
		Short: "Seed gazetteer and semantic candidates for a work",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStages(cmd, cctx, args[0], pipeline.Stages{Seed: true})
		},
	}
}

func newJudgeCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "judge <work-id>",
		Short: "Judge previously seeded candidates scene by scene",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStages(cmd, cctx, args[0], pipeline.Stages{Judge: true})
		},
	}
}

func newVerifySpansCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "verify-spans <work-id>",
		Short: "Snap finding evidence spans to better sentence windows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStages(cmd, cctx, args[0], pipeline.Stages{VerifySpans: true})
		},
	}
}

func newVerifyCuesCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "verify-cues <work-id>",
		Short: "Apply the negation/meta cue pass to existing findings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStages(cmd, cctx, args[0], pipeline.Stages{VerifyCues: true})
		},
	}
}

func runStages(cmd *cobra.Command, cctx *commandContext, workID string, stages pipeline.Stages) error {
	cfg, err := cctx.ensureConfig()
	if err != nil {
		return err
	}
	logger := cctx.ensureLogger()

	st, err := store.Open(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	deps, err := pipeline.BuildDeps(cmd.Context(), cfg, st, logger)
	if err != nil {
		return err
	}

	summary, err := pipeline.New(cfg, st, deps, logger).Run(cmd.Context(), workID, stages)
	if err != nil {
		return err
	}
	printSummary(cmd.OutOrStdout(), cfg, summary, stages)
	return nil
}

func printSummary(out io.Writer, cfg *config.Config, summary *pipeline.Summary, stages pipeline.Stages) {
	fmt.Fprintf(out, "Run %s\n", summary.RunID)
	if stages.Seed {
		fmt.Fprintf(out, "Candidates seeded: %d\n", summary.Candidates)
	}
	if stages.Judge {
		fmt.Fprintf(out, "Scenes judged: %d (skipped %d)\n", summary.Scenes, summary.ScenesSkipped)
		fmt.Fprintf(out, "Findings accepted: %d (threshold %.2f)\n", summary.Findings, cfg.Judge.Threshold)
	}
	if stages.VerifySpans {
		fmt.Fprintf(out, "Spans tightened: %d\n", summary.SpansTightened)
	}
	if stages.VerifyCues {
		fmt.Fprintf(out, "Cue flags: %d (deleted %d)\n", summary.CueFlagged, summary.CueDeleted)
	}
}
