package store

// CandidateSource is the closed set of seeding origins.
type CandidateSource string

const (
	SourceGazetteer CandidateSource = "gazetteer"
	SourceSemantic  CandidateSource = "semantic"
)

// FindingLevel scopes a finding to a span, a whole scene, or a whole work.
type FindingLevel string

const (
	LevelSpan  FindingLevel = "span"
	LevelScene FindingLevel = "scene"
	LevelWork  FindingLevel = "work"
)

// Candidate is a pre-judgment hypothesis that a trope fires at a span.
// Unique per (work, trope, start, end); duplicate inserts dedup silently.
type Candidate struct {
	ID      string
	WorkID  string
	SceneID string
	ChunkID string
	TropeID string
	Start   int
	End     int
	Source  CandidateSource
	Score   float64
}

// Support is one persisted rerank row. Picked rows carry rank in [1, M].
type Support struct {
	SceneID     string
	ChunkID     string
	Rank        int
	Stage1Score float64
	Stage2Score float64
	Picked      bool
	RunID       string
}

// Sanity is the per-(scene, trope) prior computed before judging.
type Sanity struct {
	SceneID string
	TropeID string
	LexOK   bool
	SemSim  float64
	Weight  float64
	RunID   string
}

// Finding is an accepted trope occurrence with its evidence span.
type Finding struct {
	ID                 string
	WorkID             string
	SceneID            string
	ChunkID            string
	TropeID            string
	Level              FindingLevel
	Confidence         float64
	Rationale          string
	EvidenceStart      int
	EvidenceEnd        int
	Model              string
	VerifierScore      *float64
	VerifierFlag       string
	CalibrationVersion string
	ThresholdUsed      float64
	RunID              string
	CreatedAt          string
}

// Run records one end-to-end pipeline execution with stamped parameters.
type Run struct {
	ID         string
	CreatedAt  string
	ParamsJSON string
}

// HumanDecision is the latest reviewer verdict for a finding.
type HumanDecision struct {
	FindingID        string
	Decision         string
	CorrectedStart   *int
	CorrectedEnd     *int
	CorrectedTropeID string
	CreatedAt        string
}

// Audit is one structured row describing a skipped or degraded unit of work.
type Audit struct {
	RunID     string
	WorkID    string
	SceneID   string
	FindingID string
	Kind      string
	Detail    string
}
