package store

import (
	"context"
	"database/sql"

	"tropeminer/internal/catalog"
	"tropeminer/internal/textindex"
)

// InsertWork persists a work with its scene and chunk partitions in one
// transaction. Re-ingesting the same chunk text for a work dedups on the
// (work_id, sha256) index.
func (s *Store) InsertWork(ctx context.Context, work textindex.Work, scenes []textindex.Scene, chunks []textindex.Chunk) error {
	return s.withTx(ctx, "insert work", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO work (id, title, author, norm_text, char_count, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			work.ID, work.Title, work.Author, work.NormText, work.CharCount, now(),
		); err != nil {
			return dbErr("insert work", "work row", err)
		}
		for _, scene := range scenes {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO scene (id, work_id, idx, char_start, char_end)
				 VALUES (?, ?, ?, ?, ?)`,
				scene.ID, scene.WorkID, scene.Idx, scene.CharStart, scene.CharEnd,
			); err != nil {
				return dbErr("insert work", "scene row", err)
			}
		}
		for _, chunk := range chunks {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO chunk (id, work_id, scene_id, idx, char_start, char_end, text, sha256)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				chunk.ID, chunk.WorkID, chunk.SceneID, chunk.Idx, chunk.CharStart, chunk.CharEnd, chunk.Text, chunk.SHA256,
			); err != nil {
				if isUniqueViolation(err) {
					continue
				}
				return dbErr("insert work", "chunk row", err)
			}
		}
		return nil
	})
}

// GetWork loads a single work row.
func (s *Store) GetWork(ctx context.Context, workID string) (textindex.Work, error) {
	var work textindex.Work
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, author, norm_text, char_count FROM work WHERE id = ?`, workID,
	).Scan(&work.ID, &work.Title, &work.Author, &work.NormText, &work.CharCount)
	if err != nil {
		return textindex.Work{}, dbErr("get work", workID, err)
	}
	return work, nil
}

// ListWorks returns all works ordered by title.
func (s *Store) ListWorks(ctx context.Context) ([]textindex.Work, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, author, norm_text, char_count FROM work ORDER BY title`)
	if err != nil {
		return nil, dbErr("list works", "query", err)
	}
	defer rows.Close()

	var works []textindex.Work
	for rows.Next() {
		var work textindex.Work
		if err := rows.Scan(&work.ID, &work.Title, &work.Author, &work.NormText, &work.CharCount); err != nil {
			return nil, dbErr("list works", "scan", err)
		}
		works = append(works, work)
	}
	return works, dbErr("list works", "iterate", rows.Err())
}

// LoadIndex assembles the full text index for a work: the work row plus its
// scenes and chunks in idx order.
func (s *Store) LoadIndex(ctx context.Context, workID string) (*textindex.Index, error) {
	work, err := s.GetWork(ctx, workID)
	if err != nil {
		return nil, err
	}

	sceneRows, err := s.db.QueryContext(ctx,
		`SELECT id, work_id, idx, char_start, char_end FROM scene WHERE work_id = ? ORDER BY idx`, workID)
	if err != nil {
		return nil, dbErr("load index", "query scenes", err)
	}
	defer sceneRows.Close()

	var scenes []textindex.Scene
	for sceneRows.Next() {
		var scene textindex.Scene
		if err := sceneRows.Scan(&scene.ID, &scene.WorkID, &scene.Idx, &scene.CharStart, &scene.CharEnd); err != nil {
			return nil, dbErr("load index", "scan scene", err)
		}
		scenes = append(scenes, scene)
	}
	if err := sceneRows.Err(); err != nil {
		return nil, dbErr("load index", "iterate scenes", err)
	}

	chunkRows, err := s.db.QueryContext(ctx,
		`SELECT id, work_id, scene_id, idx, char_start, char_end, text, sha256
		 FROM chunk WHERE work_id = ? ORDER BY idx`, workID)
	if err != nil {
		return nil, dbErr("load index", "query chunks", err)
	}
	defer chunkRows.Close()

	var chunks []textindex.Chunk
	for chunkRows.Next() {
		var chunk textindex.Chunk
		if err := chunkRows.Scan(&chunk.ID, &chunk.WorkID, &chunk.SceneID, &chunk.Idx,
			&chunk.CharStart, &chunk.CharEnd, &chunk.Text, &chunk.SHA256); err != nil {
			return nil, dbErr("load index", "scan chunk", err)
		}
		chunks = append(chunks, chunk)
	}
	if err := chunkRows.Err(); err != nil {
		return nil, dbErr("load index", "iterate chunks", err)
	}

	return textindex.New(work, scenes, chunks), nil
}

// UpsertTrope inserts or replaces a catalog entry.
func (s *Store) UpsertTrope(ctx context.Context, trope catalog.Trope) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trope (id, name, summary, aliases, anti_aliases, source_url, trope_group)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   name = excluded.name,
		   summary = excluded.summary,
		   aliases = excluded.aliases,
		   anti_aliases = excluded.anti_aliases,
		   source_url = excluded.source_url,
		   trope_group = excluded.trope_group`,
		trope.ID, trope.Name, trope.Summary,
		catalog.EncodeList(trope.Aliases), catalog.EncodeList(trope.AntiAliases),
		nullableString(trope.SourceURL), nullableString(trope.Group),
	)
	return dbErr("upsert trope", trope.ID, err)
}

// ListTropes loads the whole catalog ordered by name.
func (s *Store) ListTropes(ctx context.Context) ([]catalog.Trope, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, summary, aliases, anti_aliases,
		        COALESCE(source_url, ''), COALESCE(trope_group, '')
		 FROM trope ORDER BY name`)
	if err != nil {
		return nil, dbErr("list tropes", "query", err)
	}
	defer rows.Close()

	var tropes []catalog.Trope
	for rows.Next() {
		var trope catalog.Trope
		var aliases, antiAliases string
		if err := rows.Scan(&trope.ID, &trope.Name, &trope.Summary, &aliases, &antiAliases,
			&trope.SourceURL, &trope.Group); err != nil {
			return nil, dbErr("list tropes", "scan", err)
		}
		if trope.Aliases, err = catalog.DecodeList(aliases); err != nil {
			return nil, err
		}
		if trope.AntiAliases, err = catalog.DecodeList(antiAliases); err != nil {
			return nil, err
		}
		tropes = append(tropes, trope)
	}
	return tropes, dbErr("list tropes", "iterate", rows.Err())
}
