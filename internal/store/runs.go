package store

import "context"

// InsertRun records a pipeline run with its canonical parameter JSON.
func (s *Store) InsertRun(ctx context.Context, run Run) error {
	createdAt := run.CreatedAt
	if createdAt == "" {
		createdAt = now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run (id, created_at, params_json) VALUES (?, ?, ?)`,
		run.ID, createdAt, run.ParamsJSON)
	return dbErr("insert run", run.ID, err)
}

// GetRun loads one run row.
func (s *Store) GetRun(ctx context.Context, runID string) (Run, error) {
	var run Run
	err := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, params_json FROM run WHERE id = ?`, runID,
	).Scan(&run.ID, &run.CreatedAt, &run.ParamsJSON)
	if err != nil {
		return Run{}, dbErr("get run", runID, err)
	}
	return run, nil
}

// ListRuns returns runs newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, params_json FROM run ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, dbErr("list runs", "query", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.CreatedAt, &run.ParamsJSON); err != nil {
			return nil, dbErr("list runs", "scan", err)
		}
		runs = append(runs, run)
	}
	return runs, dbErr("list runs", "iterate", rows.Err())
}

// SetTropeThreshold stores a per-trope acceptance threshold from
// calibration. It overrides the global threshold at judge time.
func (s *Store) SetTropeThreshold(ctx context.Context, tropeID string, threshold float64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trope_threshold (trope_id, threshold, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (trope_id) DO UPDATE SET
		   threshold = excluded.threshold,
		   updated_at = excluded.updated_at`,
		tropeID, threshold, now())
	return dbErr("set threshold", tropeID, err)
}

// TropeThresholds loads all per-trope threshold overrides.
func (s *Store) TropeThresholds(ctx context.Context) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT trope_id, threshold FROM trope_threshold`)
	if err != nil {
		return nil, dbErr("trope thresholds", "query", err)
	}
	defer rows.Close()

	thresholds := make(map[string]float64)
	for rows.Next() {
		var tropeID string
		var threshold float64
		if err := rows.Scan(&tropeID, &threshold); err != nil {
			return nil, dbErr("trope thresholds", "scan", err)
		}
		thresholds[tropeID] = threshold
	}
	return thresholds, dbErr("trope thresholds", "iterate", rows.Err())
}

// InsertAudit records one structured audit row for a skipped or degraded
// unit of work.
func (s *Store) InsertAudit(ctx context.Context, audit Audit) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (run_id, work_id, scene_id, finding_id, kind, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		nullableString(audit.RunID), nullableString(audit.WorkID),
		nullableString(audit.SceneID), nullableString(audit.FindingID),
		audit.Kind, audit.Detail, now())
	return dbErr("insert audit", audit.Kind, err)
}

// RunAudits lists audit rows for a run in insertion order.
func (s *Store) RunAudits(ctx context.Context, runID string) ([]Audit, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT COALESCE(run_id, ''), COALESCE(work_id, ''), COALESCE(scene_id, ''),
		        COALESCE(finding_id, ''), kind, detail
		 FROM audit_log WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, dbErr("run audits", "query", err)
	}
	defer rows.Close()

	var audits []Audit
	for rows.Next() {
		var audit Audit
		if err := rows.Scan(&audit.RunID, &audit.WorkID, &audit.SceneID,
			&audit.FindingID, &audit.Kind, &audit.Detail); err != nil {
			return nil, dbErr("run audits", "scan", err)
		}
		audits = append(audits, audit)
	}
	return audits, dbErr("run audits", "iterate", rows.Err())
}
