package store

import (
	"context"
	"database/sql"
)

// InsertCandidates writes candidate rows, silently deduplicating on the
// (work, trope, start, end) span index. Returns the number actually
// inserted.
func (s *Store) InsertCandidates(ctx context.Context, candidates []Candidate) (int, error) {
	inserted := 0
	err := s.withTx(ctx, "insert candidates", func(tx *sql.Tx) error {
		for _, candidate := range candidates {
			result, err := tx.ExecContext(ctx,
				`INSERT INTO trope_candidate
				   (id, work_id, scene_id, chunk_id, trope_id, char_start, char_end, source, score, created_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				 ON CONFLICT (work_id, trope_id, char_start, char_end) DO NOTHING`,
				candidate.ID, candidate.WorkID, candidate.SceneID, nullableString(candidate.ChunkID),
				candidate.TropeID, candidate.Start, candidate.End, string(candidate.Source),
				candidate.Score, now(),
			)
			if err != nil {
				return dbErr("insert candidates", candidate.ID, err)
			}
			if n, err := result.RowsAffected(); err == nil {
				inserted += int(n)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// SceneCandidates returns the candidates for one scene ordered by span.
func (s *Store) SceneCandidates(ctx context.Context, sceneID string) ([]Candidate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, work_id, scene_id, COALESCE(chunk_id, ''), trope_id,
		        char_start, char_end, source, score
		 FROM trope_candidate WHERE scene_id = ?
		 ORDER BY char_start, char_end`, sceneID)
	if err != nil {
		return nil, dbErr("scene candidates", "query", err)
	}
	defer rows.Close()
	return scanCandidates(rows)
}

// WorkCandidates returns all candidates for a work ordered by span.
func (s *Store) WorkCandidates(ctx context.Context, workID string) ([]Candidate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, work_id, scene_id, COALESCE(chunk_id, ''), trope_id,
		        char_start, char_end, source, score
		 FROM trope_candidate WHERE work_id = ?
		 ORDER BY char_start, char_end`, workID)
	if err != nil {
		return nil, dbErr("work candidates", "query", err)
	}
	defer rows.Close()
	return scanCandidates(rows)
}

func scanCandidates(rows *sql.Rows) ([]Candidate, error) {
	var out []Candidate
	for rows.Next() {
		var candidate Candidate
		var source string
		if err := rows.Scan(&candidate.ID, &candidate.WorkID, &candidate.SceneID, &candidate.ChunkID,
			&candidate.TropeID, &candidate.Start, &candidate.End, &source, &candidate.Score); err != nil {
			return nil, dbErr("scan candidates", "scan", err)
		}
		candidate.Source = CandidateSource(source)
		out = append(out, candidate)
	}
	return out, dbErr("scan candidates", "iterate", rows.Err())
}
