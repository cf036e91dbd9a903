// Command coursegen-server is the CLI driver described in : given
// an existing course and a set of source files, it enqueues DOCUMENT_UPLOAD
// jobs for each file, starts the worker pool, polls the course until it
// reaches a terminal generation_status or the deadline elapses, and prints a
// machine-readable report of per-stage cost and per-lesson quality.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bobmcallan/coursegen/internal/app"
	"github.com/bobmcallan/coursegen/internal/interfaces"
	"github.com/bobmcallan/coursegen/internal/models"
	"github.com/bobmcallan/coursegen/internal/pipeerr"
)

// Exit codes for the CLI driver's terminal outcomes.
const (
	ExitCompleted      = 0
	ExitStageFailure   = 1
	ExitTimeout        = 2
	ExitConfigError    = 3
)

const defaultPollInterval = 2 * time.Second
const defaultTimeout = 30 * time.Minute

// fileArg is one --file path=mimeType pair.
type fileArg struct {
	Path     string
	MimeType string
}

// fileList accumulates repeated --file flags.
type fileList []fileArg

func (f *fileList) String() string {
	parts := make([]string, len(*f))
	for i, fa := range *f {
		parts[i] = fa.Path + "=" + fa.MimeType
	}
	return strings.Join(parts, ",")
}

func (f *fileList) Set(value string) error {
	path, mime, ok := strings.Cut(value, "=")
	if !ok || path == "" || mime == "" {
		return fmt.Errorf("--file must be path=mimeType, got %q", value)
	}
	*f = append(*f, fileArg{Path: path, MimeType: mime})
	return nil
}

// cliConfig is the parsed command line.
type cliConfig struct {
	ConfigPath   string
	CourseID     string
	OrgID        string
	UserID       string
	SeedTitle    string
	Files        fileList
	Timeout      time.Duration
	PollInterval time.Duration
	ReportPath   string
}

func parseArgs(args []string) (*cliConfig, error) {
	fs := flag.NewFlagSet("coursegen-server", flag.ContinueOnError)
	cfg := &cliConfig{}
	fs.StringVar(&cfg.ConfigPath, "config", "", "path to coursegen-service.toml")
	fs.StringVar(&cfg.CourseID, "course-id", "", "id of the course to generate (required)")
	fs.StringVar(&cfg.OrgID, "org-id", "", "organization id for enqueued jobs")
	fs.StringVar(&cfg.UserID, "user-id", "", "user id for enqueued jobs")
	fs.StringVar(&cfg.SeedTitle, "seed-title", "", "if set, create the course when --course-id doesn't exist yet (badger backend only)")
	fs.Var(&cfg.Files, "file", "source file as path=mimeType; repeatable")
	fs.DurationVar(&cfg.Timeout, "timeout", defaultTimeout, "maximum time to wait for the course to reach a terminal status")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", defaultPollInterval, "interval between course status polls")
	fs.StringVar(&cfg.ReportPath, "report", "", "path to write the JSON report; defaults to stdout")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cfg.CourseID == "" {
		return nil, fmt.Errorf("--course-id is required")
	}
	return cfg, nil
}

// courseSeeder is implemented by storage backends that allow a course to be
// created directly for development/demo use (badger's courseStorage). This
// is deliberately not part of interfaces.CourseStore: courses are created
// externally, so seeding is an opt-in CLI convenience, not a pipeline
// capability.
type courseSeeder interface {
	UpsertCourse(ctx context.Context, c *models.Course) error
}

// resolveCourse loads the course the driver will operate on. If it doesn't
// exist and --seed-title was given, it is created via the backend's seeding
// escape hatch; otherwise a missing course is a configuration error, since
// courses are created externally to this pipeline.
func resolveCourse(ctx context.Context, a *app.App, cfg *cliConfig) (*models.Course, error) {
	courses := a.Storage.CourseStore()
	course, err := courses.Get(ctx, cfg.CourseID)
	if err == nil {
		return course, nil
	}
	if !pipeerr.Is(err, pipeerr.ValidationError) {
		return nil, fmt.Errorf("failed to load course %s: %w", cfg.CourseID, err)
	}
	if cfg.SeedTitle == "" {
		return nil, fmt.Errorf("course %s does not exist; pass --seed-title to create it for local testing", cfg.CourseID)
	}

	seeder, ok := courses.(courseSeeder)
	if !ok {
		return nil, fmt.Errorf("course %s does not exist and this storage backend has no seeding support", cfg.CourseID)
	}
	now := time.Now()
	seeded := &models.Course{
		ID:               cfg.CourseID,
		OrganizationID:   cfg.OrgID,
		UserID:           cfg.UserID,
		Title:            cfg.SeedTitle,
		Language:         "en",
		GenerationStatus: models.StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := seeder.UpsertCourse(ctx, seeded); err != nil {
		return nil, fmt.Errorf("failed to seed course %s: %w", cfg.CourseID, err)
	}
	return seeded, nil
}

// enqueueUploads builds one DOCUMENT_UPLOAD job per input file, matching the
// payload fields DocumentUploadHandler expects.
func enqueueUploads(ctx context.Context, a *app.App, cfg *cliConfig, course *models.Course) error {
	for _, f := range cfg.Files {
		data, err := readFileSize(f.Path)
		if err != nil {
			return fmt.Errorf("failed to stat file %s: %w", f.Path, err)
		}

		job := &models.Job{
			Type: models.JobTypeDocumentUpload,
			Payload: models.JobPayload{
				JobType:        models.JobTypeDocumentUpload,
				OrganizationID: course.OrganizationID,
				CourseID:       course.ID,
				UserID:         course.UserID,
				CreatedAt:      time.Now(),
				Fields: map[string]any{
					"fileId":      uuid.New().String(),
					"filename":    f.Path,
					"mimeType":    f.MimeType,
					"storagePath": f.Path,
					"sizeBytes":   data,
				},
			},
		}
		if err := a.Queue.Enqueue(ctx, job); err != nil {
			return fmt.Errorf("failed to enqueue upload for %s: %w", f.Path, err)
		}
	}
	return nil
}

// pollCourse blocks until the course reaches a terminal generation status or
// ctx is done, whichever comes first.
func pollCourse(ctx context.Context, courses interfaces.CourseStore, courseID string, interval time.Duration) (*models.Course, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		course, err := courses.Get(ctx, courseID)
		if err != nil {
			return nil, fmt.Errorf("failed to poll course %s: %w", courseID, err)
		}
		if course.GenerationStatus == models.StatusCompleted || course.GenerationStatus == models.StatusFailed {
			return course, nil
		}

		select {
		case <-ctx.Done():
			return course, ctx.Err()
		case <-ticker.C:
		}
	}
}

// lessonReport is one lesson's entry in the run report.
type lessonReport struct {
	LessonID            string  `json:"lessonId"`
	Status              string  `json:"status"`
	TokensUsed          int     `json:"tokensUsed"`
	CostUsd             float64 `json:"costUsd"`
	DurationMs          int64   `json:"durationMs"`
	ModelUsed           string  `json:"modelUsed"`
	RegenerationAttempts int    `json:"regenerationAttempts"`
	QualityScore        float64 `json:"qualityScore"`
}

// runReport is the machine-readable output for: per-stage
// durations, per-lesson tokens, per-lesson quality scores.
type runReport struct {
	CourseID         string         `json:"courseId"`
	FinalStatus      string         `json:"finalStatus"`
	ErrorMessage     string         `json:"errorMessage,omitempty"`
	TotalDurationMs  int64          `json:"totalDurationMs"`
	PipelineTokens   int            `json:"pipelineTokens"`
	PipelineCostUsd  float64        `json:"pipelineCostUsd"`
	Lessons          []lessonReport `json:"lessons"`
}

// buildReport assembles the final report from the course's lessons, their
// persisted LessonContent.Metrics, and the app-level ledger's record of the
// pipeline-stage (S3/S4/S5) LLM calls that aren't attached to any one lesson.
func buildReport(ctx context.Context, a *app.App, course *models.Course, elapsed time.Duration) (*runReport, error) {
	report := &runReport{
		CourseID:        course.ID,
		FinalStatus:     string(course.GenerationStatus),
		ErrorMessage:    course.ErrorMessage,
		TotalDurationMs: elapsed.Milliseconds(),
	}

	for _, n := range a.Metrics.NodesForCourse(course.ID) {
		report.PipelineTokens += n.InputTokens + n.OutputTokens
		report.PipelineCostUsd += n.CostUsd
	}

	lessons, err := a.Storage.LessonStore().ListByCourse(ctx, course.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lessons for report: %w", err)
	}
	for _, l := range lessons {
		lr := lessonReport{LessonID: l.ID, Status: string(l.Status)}
		content, err := a.Storage.LessonContentStore().Get(ctx, l.ID)
		if err == nil {
			lr.TokensUsed = content.Metrics.TokensUsed
			lr.CostUsd = content.Metrics.CostUsd
			lr.DurationMs = content.Metrics.DurationMs
			lr.ModelUsed = content.Metrics.ModelUsed
			lr.RegenerationAttempts = content.Metrics.RegenerationAttempts
			lr.QualityScore = content.Metrics.QualityScore
		} else if !pipeerr.Is(err, pipeerr.ValidationError) {
			return nil, fmt.Errorf("failed to load lesson content for %s: %w", l.ID, err)
		}
		report.Lessons = append(report.Lessons, lr)
	}
	return report, nil
}

// run executes the full driver flow and returns the process exit code. The
// report is written to reportOut as JSON.
func run(ctx context.Context, a *app.App, cfg *cliConfig, reportOut io.Writer) int {
	start := time.Now()

	course, err := resolveCourse(ctx, a, cfg)
	if err != nil {
		fmt.Fprintf(reportOut, "configuration error: %v\n", err)
		return ExitConfigError
	}

	if err := enqueueUploads(ctx, a, cfg, course); err != nil {
		fmt.Fprintf(reportOut, "configuration error: %v\n", err)
		return ExitConfigError
	}

	a.Start()

	pollCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	final, pollErr := pollCourse(pollCtx, a.Storage.CourseStore(), course.ID, cfg.PollInterval)
	elapsed := time.Since(start)

	if pollErr != nil {
		if final != nil {
			writeReport(reportOut, a, final, elapsed)
		}
		return ExitTimeout
	}

	report, err := buildReport(ctx, a, final, elapsed)
	if err != nil {
		fmt.Fprintf(reportOut, "failed to build report: %v\n", err)
		return ExitStageFailure
	}
	emitJSON(reportOut, report)

	if final.GenerationStatus == models.StatusCompleted {
		return ExitCompleted
	}
	return ExitStageFailure
}

func writeReport(out io.Writer, a *app.App, course *models.Course, elapsed time.Duration) {
	report, err := buildReport(context.Background(), a, course, elapsed)
	if err != nil {
		fmt.Fprintf(out, "timed out; failed to build partial report: %v\n", err)
		return
	}
	emitJSON(out, report)
}

func readFileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func emitJSON(out io.Writer, v any) {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(out, "failed to encode report: %v\n", err)
	}
}
