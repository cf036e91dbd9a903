package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/coursegen/internal/app"
	"github.com/bobmcallan/coursegen/internal/models"
)

func newTestApp(t *testing.T) *app.App {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "data"), 0o755))

	config := `
[storage]
backend = "badger"

[storage.badger]
path = "` + filepath.Join(dir, "data") + `"

[logging]
level = "error"
`
	configPath := filepath.Join(dir, "coursegen.toml")
	require.NoError(t, os.WriteFile(configPath, []byte(config), 0o644))

	a, err := app.NewApp(configPath)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestParseArgsRequiresCourseID(t *testing.T) {
	_, err := parseArgs([]string{"--config", "x.toml"})
	require.Error(t, err)
}

func TestParseArgsCollectsRepeatedFiles(t *testing.T) {
	cfg, err := parseArgs([]string{
		"--course-id", "course-1",
		"--file", "a.md=text/markdown",
		"--file", "b.pdf=application/pdf",
	})
	require.NoError(t, err)
	require.Len(t, cfg.Files, 2)
	assert.Equal(t, fileArg{Path: "a.md", MimeType: "text/markdown"}, cfg.Files[0])
	assert.Equal(t, fileArg{Path: "b.pdf", MimeType: "application/pdf"}, cfg.Files[1])
}

func TestFileListSetRejectsMissingMimeType(t *testing.T) {
	var fl fileList
	err := fl.Set("justapath")
	require.Error(t, err)
}

func TestResolveCourseFailsWithoutSeedTitleWhenMissing(t *testing.T) {
	a := newTestApp(t)
	cfg := &cliConfig{CourseID: "missing-course"}

	_, err := resolveCourse(context.Background(), a, cfg)
	require.Error(t, err)
}

func TestResolveCourseSeedsWhenRequested(t *testing.T) {
	a := newTestApp(t)
	cfg := &cliConfig{CourseID: "new-course", SeedTitle: "Intro to Testing", OrgID: "org-1", UserID: "user-1"}

	course, err := resolveCourse(context.Background(), a, cfg)
	require.NoError(t, err)
	assert.Equal(t, "new-course", course.ID)
	assert.Equal(t, models.StatusPending, course.GenerationStatus)

	again, err := resolveCourse(context.Background(), a, cfg)
	require.NoError(t, err)
	assert.Equal(t, course.ID, again.ID)
}

func TestEnqueueUploadsCreatesUploadJobPerFile(t *testing.T) {
	a := newTestApp(t)
	cfg := &cliConfig{CourseID: "course-1", SeedTitle: "seed"}

	path := filepath.Join(t.TempDir(), "doc.md")
	require.NoError(t, os.WriteFile(path, []byte("# hi"), 0o644))
	cfg.Files = fileList{{Path: path, MimeType: "text/markdown"}}

	course, err := resolveCourse(context.Background(), a, cfg)
	require.NoError(t, err)

	require.NoError(t, enqueueUploads(context.Background(), a, cfg, course))

	pending, err := a.Storage.JobQueueStore().CountPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
}

func TestPollCourseReturnsImmediatelyWhenAlreadyTerminal(t *testing.T) {
	a := newTestApp(t)
	cfg := &cliConfig{CourseID: "course-done", SeedTitle: "Done Course"}
	course, err := resolveCourse(context.Background(), a, cfg)
	require.NoError(t, err)

	require.NoError(t, a.Storage.CourseStore().UpdateStatus(context.Background(), course.ID, models.StatusPending, models.StatusFailed, 0, "boom"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	final, err := pollCourse(ctx, a.Storage.CourseStore(), course.ID, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, final.GenerationStatus)
}

func TestBuildReportWithNoLessonsIsEmpty(t *testing.T) {
	a := newTestApp(t)
	cfg := &cliConfig{CourseID: "course-empty", SeedTitle: "Empty Course"}
	course, err := resolveCourse(context.Background(), a, cfg)
	require.NoError(t, err)

	report, err := buildReport(context.Background(), a, course, 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, course.ID, report.CourseID)
	assert.Empty(t, report.Lessons)
	assert.Equal(t, 0, report.PipelineTokens)
}
