package store

import (
	"context"
	"database/sql"
)

// Columns are table-qualified so queries joining scene stay unambiguous.
const findingColumns = `trope_finding.id, trope_finding.work_id, trope_finding.scene_id,
	COALESCE(trope_finding.chunk_id, ''), trope_finding.trope_id, trope_finding.level,
	trope_finding.confidence, trope_finding.rationale, trope_finding.evidence_start,
	trope_finding.evidence_end, trope_finding.model, trope_finding.verifier_score,
	COALESCE(trope_finding.verifier_flag, ''), COALESCE(trope_finding.calibration_version, ''),
	trope_finding.threshold_used, trope_finding.run_id, trope_finding.created_at`

// WorkFindings returns findings for a work, ordered by scene then span so
// consumers see a stable reading order. An empty runID means all runs.
func (s *Store) WorkFindings(ctx context.Context, workID, runID string) ([]Finding, error) {
	query := `SELECT ` + findingColumns + `
		FROM trope_finding
		JOIN scene ON scene.id = trope_finding.scene_id
		WHERE trope_finding.work_id = ?`
	args := []any{workID}
	if runID != "" {
		query += ` AND trope_finding.run_id = ?`
		args = append(args, runID)
	}
	query += ` ORDER BY scene.idx, evidence_start`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbErr("work findings", "query", err)
	}
	defer rows.Close()
	return scanFindings(rows)
}

// RunFindings returns every finding stamped with runID.
func (s *Store) RunFindings(ctx context.Context, runID string) ([]Finding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+findingColumns+` FROM trope_finding WHERE run_id = ? ORDER BY evidence_start`, runID)
	if err != nil {
		return nil, dbErr("run findings", "query", err)
	}
	defer rows.Close()
	return scanFindings(rows)
}

// GetFinding loads one finding.
func (s *Store) GetFinding(ctx context.Context, findingID string) (Finding, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+findingColumns+` FROM trope_finding WHERE id = ?`, findingID)
	finding, err := scanFinding(row)
	if err != nil {
		return Finding{}, dbErr("get finding", findingID, err)
	}
	return finding, nil
}

// UpdateFindingSpan moves a finding's evidence span and records the
// verifier score that justified the move.
func (s *Store) UpdateFindingSpan(ctx context.Context, findingID string, start, end int, score float64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE trope_finding SET evidence_start = ?, evidence_end = ?, verifier_score = ?
		 WHERE id = ?`, start, end, score, findingID)
	if isUniqueViolation(err) {
		// The tightened span collides with an existing finding; keep the
		// original span and only record the score.
		return s.SetVerifierScore(ctx, findingID, score)
	}
	return dbErr("update span", findingID, err)
}

// SetVerifierScore records the verifier score without moving the span.
func (s *Store) SetVerifierScore(ctx context.Context, findingID string, score float64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE trope_finding SET verifier_score = ? WHERE id = ?`, score, findingID)
	return dbErr("set verifier score", findingID, err)
}

// FlagFinding sets the verifier flag and optionally a new confidence.
// A nil confidence leaves the stored value untouched.
func (s *Store) FlagFinding(ctx context.Context, findingID, flag string, confidence *float64) error {
	var err error
	if confidence != nil {
		_, err = s.db.ExecContext(ctx,
			`UPDATE trope_finding SET verifier_flag = ?, confidence = ? WHERE id = ?`,
			flag, *confidence, findingID)
	} else {
		_, err = s.db.ExecContext(ctx,
			`UPDATE trope_finding SET verifier_flag = ? WHERE id = ?`, flag, findingID)
	}
	return dbErr("flag finding", findingID, err)
}

// DeleteFinding removes a finding. Only the explicit delete negation policy
// uses this.
func (s *Store) DeleteFinding(ctx context.Context, findingID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM trope_finding WHERE id = ?`, findingID)
	return dbErr("delete finding", findingID, err)
}

// InsertHumanDecision appends a reviewer verdict. Decisions are append-only;
// v_latest_human exposes the most recent one per finding.
func (s *Store) InsertHumanDecision(ctx context.Context, decision HumanDecision) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO human_decision (finding_id, decision, corrected_start, corrected_end, corrected_trope_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		decision.FindingID, decision.Decision,
		decision.CorrectedStart, decision.CorrectedEnd,
		nullableString(decision.CorrectedTropeID), now())
	return dbErr("insert decision", decision.FindingID, err)
}

// LatestHumanDecisions reads the newest decision per finding via the
// v_latest_human view.
func (s *Store) LatestHumanDecisions(ctx context.Context) ([]HumanDecision, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT finding_id, decision, corrected_start, corrected_end,
		        COALESCE(corrected_trope_id, ''), created_at
		 FROM v_latest_human`)
	if err != nil {
		return nil, dbErr("latest decisions", "query", err)
	}
	defer rows.Close()

	var decisions []HumanDecision
	for rows.Next() {
		var decision HumanDecision
		if err := rows.Scan(&decision.FindingID, &decision.Decision,
			&decision.CorrectedStart, &decision.CorrectedEnd,
			&decision.CorrectedTropeID, &decision.CreatedAt); err != nil {
			return nil, dbErr("latest decisions", "scan", err)
		}
		decisions = append(decisions, decision)
	}
	return decisions, dbErr("latest decisions", "iterate", rows.Err())
}

type findingScanner interface {
	Scan(dest ...any) error
}

func scanFinding(row findingScanner) (Finding, error) {
	var finding Finding
	var level string
	if err := row.Scan(&finding.ID, &finding.WorkID, &finding.SceneID, &finding.ChunkID,
		&finding.TropeID, &level, &finding.Confidence, &finding.Rationale,
		&finding.EvidenceStart, &finding.EvidenceEnd, &finding.Model,
		&finding.VerifierScore, &finding.VerifierFlag, &finding.CalibrationVersion,
		&finding.ThresholdUsed, &finding.RunID, &finding.CreatedAt); err != nil {
		return Finding{}, err
	}
	finding.Level = FindingLevel(level)
	return finding, nil
}

func scanFindings(rows *sql.Rows) ([]Finding, error) {
	var findings []Finding
	for rows.Next() {
		finding, err := scanFinding(rows)
		if err != nil {
			return nil, dbErr("scan findings", "scan", err)
		}
		findings = append(findings, finding)
	}
	return findings, dbErr("scan findings", "iterate", rows.Err())
}
