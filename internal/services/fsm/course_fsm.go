// Package fsm implements C2, the course state machine.
package fsm

import (
	"context"
	"fmt"

	"github.com/bobmcallan/coursegen/internal/common"
	"github.com/bobmcallan/coursegen/internal/interfaces"
	"github.com/bobmcallan/coursegen/internal/models"
	"github.com/bobmcallan/coursegen/internal/pipeerr"
)

// CourseFSM applies course state transitions through a single C9 upsert
// guarded by the caller-observed current status, so two workers racing to
// transition the same course can't both succeed.
type CourseFSM struct {
	courses interfaces.CourseStore
	logger  *common.Logger
}

func NewCourseFSM(courses interfaces.CourseStore, logger *common.Logger) *CourseFSM {
	return &CourseFSM{courses: courses, logger: logger}
}

// Transition moves courseID from its currently stored status to next.
func (f *CourseFSM) Transition(ctx context.Context, courseID string, next models.GenerationStatus) error {
	course, err := f.courses.Get(ctx, courseID)
	if err != nil {
		return fmt.Errorf("failed to load course %s: %w", courseID, err)
	}

	current := course.GenerationStatus
	if !models.CanTransition(current, next) {
		return pipeerr.NewStateConflict(fmt.Sprintf("course %s cannot transition %s -> %s", courseID, current, next))
	}

	progress := models.ProgressFor(next)
	if progress < 0 {
		progress = course.GenerationProgress
	}

	if err := f.courses.UpdateStatus(ctx, courseID, current, next, progress, ""); err != nil {
		return fmt.Errorf("failed to persist transition for course %s: %w", courseID, err)
	}

	f.logger.Info().
		Str("course_id", courseID).
		Str("from", string(current)).
		Str("to", string(next)).
		Int("progress", progress).
		Msg("course transitioned")

	return nil
}

// Fail drives courseID straight to the absorbing failed state.
func (f *CourseFSM) Fail(ctx context.Context, courseID string, errMsg string) error {
	course, err := f.courses.Get(ctx, courseID)
	if err != nil {
		return fmt.Errorf("failed to load course %s: %w", courseID, err)
	}

	current := course.GenerationStatus
	if !models.CanTransition(current, models.StatusFailed) {
		return pipeerr.NewStateConflict(fmt.Sprintf("course %s is already terminal (%s)", courseID, current))
	}

	if err := f.courses.UpdateStatus(ctx, courseID, current, models.StatusFailed, course.GenerationProgress, errMsg); err != nil {
		return fmt.Errorf("failed to persist failure for course %s: %w", courseID, err)
	}

	f.logger.Warn().
		Str("course_id", courseID).
		Str("from", string(current)).
		Str("error", errMsg).
		Msg("course failed")

	return nil
}

var _ interfaces.CourseFSM = (*CourseFSM)(nil)
