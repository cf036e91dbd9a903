package lessongraph

// ReviewStatus is Self-Review's routing verdict.
type ReviewStatus string

const (
	ReviewPass           ReviewStatus = "PASS"
	ReviewPassWithFlags  ReviewStatus = "PASS_WITH_FLAGS"
	ReviewFixed          ReviewStatus = "FIXED"
	ReviewRegenerate     ReviewStatus = "REGENERATE"
)

// IssueType is one member of Self-Review's issue taxonomy.
type IssueType string

const (
	IssueLanguage   IssueType = "LANGUAGE"
	IssueTruncation IssueType = "TRUNCATION"
	IssueHygiene    IssueType = "HYGIENE"
	IssueStructure  IssueType = "STRUCTURE"
	IssueFacts      IssueType = "FACTS"
)

// ReviewIssue is one deficiency Self-Review found, heuristic or LLM-sourced.
type ReviewIssue struct {
	Type        IssueType
	Severity    string // critical|major|minor
	Location    string
	Description string
}

// HeuristicDetails records what each deterministic pre-filter found, for
// diagnostics and for the idempotence/lower-bound tests.
type HeuristicDetails struct {
	ForeignScriptChars   int
	ForeignScriptRatio   float64
	TruncationIssues     []string
	HygienePhrasesFound  []string
	StructureIssueCount  int
}

// SelfReviewResult is Self-Review's output.
type SelfReviewResult struct {
	Status               ReviewStatus
	Issues               []ReviewIssue
	SectionsToRegenerate []string
	HeuristicsPassed     bool
	PatchedContent       string
	TokensUsed           int
	DurationMs           int64
	HeuristicDetails     HeuristicDetails
}

// SectionRegenerationResult is the outcome of a REGENERATE_SECTIONS node run.
type SectionRegenerationResult struct {
	MergedContent    string
	RegeneratedIDs   []string
	TokensUsed       int
	DurationMs       int64
}
