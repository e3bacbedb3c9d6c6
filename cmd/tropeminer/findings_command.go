package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tropeminer/internal/config"
	"tropeminer/internal/store"
)

type findingView struct {
	ID            string   `json:"id"`
	SceneID       string   `json:"scene_id"`
	TropeID       string   `json:"trope_id"`
	Trope         string   `json:"trope"`
	Confidence    float64  `json:"confidence"`
	EvidenceStart int      `json:"evidence_start"`
	EvidenceEnd   int      `json:"evidence_end"`
	VerifierScore *float64 `json:"verifier_score,omitempty"`
	VerifierFlag  string   `json:"verifier_flag,omitempty"`
	Rationale     string   `json:"rationale,omitempty"`
	RunID         string   `json:"run_id,omitempty"`
}

func newFindingsCommand(cctx *commandContext) *cobra.Command {
	var runID string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "findings <work-id>",
		Short: "List accepted findings for a work",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cctx.withStore(func(cfg *config.Config, st *store.Store) error {
				ctx := cmd.Context()
				findings, err := st.WorkFindings(ctx, args[0], runID)
				if err != nil {
					return err
				}
				tropes, err := st.ListTropes(ctx)
				if err != nil {
					return err
				}
				names := make(map[string]string, len(tropes))
				for _, trope := range tropes {
					names[trope.ID] = trope.Name
				}

				views := make([]findingView, 0, len(findings))
				for _, f := range findings {
					views = append(views, findingView{
						ID:            f.ID,
						SceneID:       f.SceneID,
						TropeID:       f.TropeID,
						Trope:         names[f.TropeID],
						Confidence:    f.Confidence,
						EvidenceStart: f.EvidenceStart,
						EvidenceEnd:   f.EvidenceEnd,
						VerifierScore: f.VerifierScore,
						VerifierFlag:  f.VerifierFlag,
						Rationale:     f.Rationale,
						RunID:         f.RunID,
					})
				}

				if asJSON {
					return writeJSON(cmd, views)
				}
				if len(views) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No findings recorded")
					return nil
				}

				rows := make([][]string, 0, len(views))
				for _, v := range views {
					trope := v.Trope
					if trope == "" {
						trope = v.TropeID
					}
					verifier := "-"
					if v.VerifierScore != nil {
						verifier = fmt.Sprintf("%.2f", *v.VerifierScore)
					}
					rows = append(rows, []string{
						v.SceneID,
						trope,
						fmt.Sprintf("[%d, %d)", v.EvidenceStart, v.EvidenceEnd),
						fmt.Sprintf("%.2f", v.Confidence),
						verifier,
						v.VerifierFlag,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"SCENE", "TROPE", "SPAN", "CONF", "VERIFIER", "FLAG"},
					rows, 4, 5))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "Limit output to one run")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}
