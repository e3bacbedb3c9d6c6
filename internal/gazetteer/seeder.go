package gazetteer

import (
	"log/slog"

	"github.com/google/uuid"

	"tropeminer/internal/catalog"
	"tropeminer/internal/logging"
	"tropeminer/internal/store"
	"tropeminer/internal/textindex"
)

// Options tune one seeding pass.
type Options struct {
	AntiWindow  int
	MinAliasLen int
	MaxPerTrope int
	Stoplist    *Stoplist
	DisableAnti bool
}

// Stats summarizes a seeding pass.
type Stats struct {
	Candidates        int
	BlockedWindow     int
	BlockedChunkLevel int
}

// Seeder produces gazetteer candidates for a work. It is deterministic:
// the same inputs always yield the same candidate spans.
type Seeder struct {
	opts   Options
	logger *slog.Logger
}

// NewSeeder builds a seeder.
func NewSeeder(opts Options, logger *slog.Logger) *Seeder {
	if opts.Stoplist == nil {
		opts.Stoplist = NewStoplist("")
	}
	return &Seeder{opts: opts, logger: logging.NewComponentLogger(logger, "gazetteer")}
}

// Seed scans every chunk of the work once per trope and emits candidates
// at absolute code-point offsets. Anti-alias phrases anywhere in a chunk
// block the whole chunk for that trope; anti phrasing or negation cues
// near a match block just that match.
func (s *Seeder) Seed(ix *textindex.Index, tropes []catalog.Trope) ([]store.Candidate, Stats) {
	var candidates []store.Candidate
	var stats Stats

	workID := ix.Work().ID
	for _, trope := range tropes {
		matcher := NewMatcher(trope, MatcherOptions{
			MinAliasLen: s.opts.MinAliasLen,
			Stoplist:    s.opts.Stoplist,
		})
		if matcher.Empty() {
			continue
		}

		perTrope := 0
		seen := make(map[[2]int]struct{})

	chunks:
		for _, chunk := range ix.Chunks() {
			if chunk.Text == "" {
				continue
			}
			if !s.opts.DisableAnti && matcher.HasAntiPhrase(chunk.Text) {
				stats.BlockedChunkLevel++
				continue
			}

			runes := []rune(chunk.Text)
			for _, match := range matcher.Find(chunk.Text) {
				start := chunk.CharStart + match.Start
				end := chunk.CharStart + match.End
				if _, dup := seen[[2]int{start, end}]; dup {
					continue
				}
				if start < chunk.CharStart || end > chunk.CharEnd {
					continue
				}
				if !s.opts.DisableAnti && matcher.Suppressed(runes, match.Start, match.End, s.opts.AntiWindow) {
					stats.BlockedWindow++
					continue
				}

				seen[[2]int{start, end}] = struct{}{}
				candidates = append(candidates, store.Candidate{
					ID:      uuid.NewString(),
					WorkID:  workID,
					SceneID: chunk.SceneID,
					ChunkID: chunk.ID,
					TropeID: trope.ID,
					Start:   start,
					End:     end,
					Source:  store.SourceGazetteer,
					Score:   0,
				})
				stats.Candidates++
				perTrope++
				if s.opts.MaxPerTrope > 0 && perTrope >= s.opts.MaxPerTrope {
					break chunks
				}
			}
		}
	}

	s.logger.Info("gazetteer pass complete",
		logging.String("work", workID),
		logging.Int("candidates", stats.Candidates),
		logging.Int("blocked_window", stats.BlockedWindow),
		logging.Int("blocked_chunk", stats.BlockedChunkLevel))
	return candidates, stats
}
