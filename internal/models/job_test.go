package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeverityRankOrdersCriticalFirst(t *testing.T) {
	assert.Less(t, SeverityCritical.Rank(), SeverityMajor.Rank())
	assert.Less(t, SeverityMajor.Rank(), SeverityMinor.Rank())
}

func TestDefaultMaxAttemptsCoversEveryJobType(t *testing.T) {
	for _, jt := range []JobType{
		JobTypeDocumentUpload, JobTypeDocumentProcessing, JobTypeSummarization,
		JobTypeStructureAnalysis, JobTypeStructureGeneration, JobTypeLessonContent,
	} {
		_, ok := DefaultMaxAttempts[jt]
		assert.True(t, ok, "missing default max attempts for %s", jt)
	}
}
