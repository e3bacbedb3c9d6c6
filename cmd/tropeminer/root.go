package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string

	cctx := newCommandContext(&configFlag)

	rootCmd := &cobra.Command{
		Use:           "tropeminer",
		Short:         "Trope judging pipeline over ingested fiction",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := cctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newRunCommand(cctx))
	rootCmd.AddCommand(newSeedCommand(cctx))
	rootCmd.AddCommand(newJudgeCommand(cctx))
	rootCmd.AddCommand(newVerifySpansCommand(cctx))
	rootCmd.AddCommand(newVerifyCuesCommand(cctx))
	rootCmd.AddCommand(newFindingsCommand(cctx))
	rootCmd.AddCommand(newRunsCommand(cctx))
	rootCmd.AddCommand(newConfigCommand(cctx))

	return rootCmd
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
