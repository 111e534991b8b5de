package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIngestionJobLifecycle(t *testing.T) {
	job := NewIngestionJob("job-1", SourceKindText, "Notes", nil)
	assert.Equal(t, JobStatusPending, job.Status)

	job.Start()
	assert.Equal(t, JobStatusRunning, job.Status)
	assert.NotNil(t, job.StartedAt)

	job.Fail("embedding unavailable")
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.True(t, job.CanRetry(3))

	job.Retry()
	assert.Equal(t, 1, job.RetryCount)
	assert.Equal(t, JobStatusPending, job.Status)
	assert.Empty(t, job.ErrorMessage)

	job.Start()
	job.Complete("doc-1", 12)
	assert.True(t, job.Done())
	assert.Equal(t, "doc-1", job.DocumentID)
	assert.Equal(t, 12, job.ChunkCount)
	assert.False(t, job.CanRetry(3))
}

func TestSourceKindValid(t *testing.T) {
	assert.True(t, SourceKindAudio.Valid())
	assert.False(t, SourceKind("pdf").Valid())

	doc := NewDocument("d", "t", SourceKind("pdf"), "body")
	assert.Equal(t, SourceKindText, doc.SourceKind)
}
