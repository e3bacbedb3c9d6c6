package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"tropeminer/internal/config"
	"tropeminer/internal/store"
)

// runParams is the subset of stamped run parameters the listing shows.
type runParams struct {
	WorkID     string `json:"work_id"`
	CatalogSHA string `json:"catalog_sha"`
	Models     struct {
		Embed    string `json:"embed"`
		Reasoner string `json:"reasoner"`
	} `json:"models"`
	Judge struct {
		Threshold float64 `json:"threshold"`
	} `json:"judge"`
}

type runView struct {
	ID        string          `json:"id"`
	CreatedAt string          `json:"created_at"`
	Params    json.RawMessage `json:"params"`
}

func newRunsCommand(cctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded pipeline runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cctx.withStore(func(cfg *config.Config, st *store.Store) error {
				runs, err := st.ListRuns(cmd.Context(), limit)
				if err != nil {
					return err
				}

				if asJSON {
					views := make([]runView, 0, len(runs))
					for _, run := range runs {
						views = append(views, runView{
							ID:        run.ID,
							CreatedAt: run.CreatedAt,
							Params:    json.RawMessage(run.ParamsJSON),
						})
					}
					return writeJSON(cmd, views)
				}
				if len(runs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded")
					return nil
				}

				rows := make([][]string, 0, len(runs))
				for _, run := range runs {
					var params runParams
					// Legacy rows may carry params this view does not know;
					// show what decodes and leave the rest blank.
					_ = json.Unmarshal([]byte(run.ParamsJSON), &params)

					catalog := params.CatalogSHA
					if len(catalog) > 12 {
						catalog = catalog[:12]
					}
					rows = append(rows, []string{
						run.ID,
						run.CreatedAt,
						params.WorkID,
						catalog,
						params.Models.Reasoner,
						fmt.Sprintf("%.2f", params.Judge.Threshold),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"RUN", "CREATED", "WORK", "CATALOG", "REASONER", "THRESHOLD"},
					rows, 6))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}
