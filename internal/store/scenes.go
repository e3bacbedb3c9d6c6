package store

import (
	"context"
	"database/sql"
)

// SceneResults bundles everything the judging pipeline produced for one
// scene. WriteSceneResults commits it atomically: a cancelled or failed
// scene leaves no partial rows behind.
type SceneResults struct {
	SceneID  string
	Supports []Support
	Sanity   []Sanity
	Findings []Finding
}

// WriteSceneResults persists a scene's supports, sanity priors, and
// findings in a single transaction. Findings colliding with an existing
// span dedup silently; the returned count covers findings actually written.
func (s *Store) WriteSceneResults(ctx context.Context, results SceneResults) (int, error) {
	written := 0
	err := s.withTx(ctx, "write scene", func(tx *sql.Tx) error {
		for _, support := range results.Supports {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO support_selection (scene_id, chunk_id, rank, stage1_score, stage2_score, picked, run_id)
				 VALUES (?, ?, ?, ?, ?, ?, ?)
				 ON CONFLICT (scene_id, chunk_id) DO UPDATE SET
				   rank = excluded.rank,
				   stage1_score = excluded.stage1_score,
				   stage2_score = excluded.stage2_score,
				   picked = excluded.picked,
				   run_id = excluded.run_id`,
				support.SceneID, support.ChunkID, nullableRank(support.Rank),
				support.Stage1Score, support.Stage2Score, boolToInt(support.Picked),
				nullableString(support.RunID),
			); err != nil {
				return dbErr("write scene", "support row", err)
			}
		}

		for _, sanity := range results.Sanity {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO trope_sanity (scene_id, trope_id, lex_ok, sem_sim, weight, run_id)
				 VALUES (?, ?, ?, ?, ?, ?)
				 ON CONFLICT (scene_id, trope_id) DO UPDATE SET
				   lex_ok = excluded.lex_ok,
				   sem_sim = excluded.sem_sim,
				   weight = excluded.weight,
				   run_id = excluded.run_id`,
				sanity.SceneID, sanity.TropeID, boolToInt(sanity.LexOK),
				sanity.SemSim, sanity.Weight, nullableString(sanity.RunID),
			); err != nil {
				return dbErr("write scene", "sanity row", err)
			}
		}

		for _, finding := range results.Findings {
			result, err := tx.ExecContext(ctx,
				`INSERT INTO trope_finding
				   (id, work_id, scene_id, chunk_id, trope_id, level, confidence, rationale,
				    evidence_start, evidence_end, model, verifier_score, verifier_flag,
				    calibration_version, threshold_used, run_id, created_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				 ON CONFLICT (work_id, trope_id, evidence_start, evidence_end) DO NOTHING`,
				finding.ID, finding.WorkID, finding.SceneID, nullableString(finding.ChunkID),
				finding.TropeID, string(finding.Level), finding.Confidence, finding.Rationale,
				finding.EvidenceStart, finding.EvidenceEnd, finding.Model,
				finding.VerifierScore, nullableString(finding.VerifierFlag),
				nullableString(finding.CalibrationVersion), finding.ThresholdUsed,
				finding.RunID, now(),
			)
			if err != nil {
				return dbErr("write scene", "finding row", err)
			}
			if n, err := result.RowsAffected(); err == nil {
				written += int(n)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

// PickedSupports returns a scene's picked support rows in rank order.
func (s *Store) PickedSupports(ctx context.Context, sceneID string) ([]Support, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT scene_id, chunk_id, COALESCE(rank, 0), stage1_score, stage2_score, picked, COALESCE(run_id, '')
		 FROM support_selection WHERE scene_id = ? AND picked = 1
		 ORDER BY rank`, sceneID)
	if err != nil {
		return nil, dbErr("picked supports", "query", err)
	}
	defer rows.Close()

	var supports []Support
	for rows.Next() {
		var support Support
		var picked int
		if err := rows.Scan(&support.SceneID, &support.ChunkID, &support.Rank,
			&support.Stage1Score, &support.Stage2Score, &picked, &support.RunID); err != nil {
			return nil, dbErr("picked supports", "scan", err)
		}
		support.Picked = picked != 0
		supports = append(supports, support)
	}
	return supports, dbErr("picked supports", "iterate", rows.Err())
}

// SceneSanity returns the sanity priors recorded for a scene.
func (s *Store) SceneSanity(ctx context.Context, sceneID string) ([]Sanity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT scene_id, trope_id, lex_ok, sem_sim, weight, COALESCE(run_id, '')
		 FROM trope_sanity WHERE scene_id = ?`, sceneID)
	if err != nil {
		return nil, dbErr("scene sanity", "query", err)
	}
	defer rows.Close()

	var priors []Sanity
	for rows.Next() {
		var sanity Sanity
		var lexOK int
		if err := rows.Scan(&sanity.SceneID, &sanity.TropeID, &lexOK,
			&sanity.SemSim, &sanity.Weight, &sanity.RunID); err != nil {
			return nil, dbErr("scene sanity", "scan", err)
		}
		sanity.LexOK = lexOK != 0
		priors = append(priors, sanity)
	}
	return priors, dbErr("scene sanity", "iterate", rows.Err())
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableRank(rank int) any {
	if rank <= 0 {
		return nil
	}
	return rank
}
