package main

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recall-api/internal/application/ingestion"
	"recall-api/internal/application/retrieval"
	"recall-api/internal/domain/entity"
	"recall-api/pkg/utils"
)

func TestParseSourceKind(t *testing.T) {
	kind, err := parseSourceKind(" Audio ")
	require.NoError(t, err)
	assert.Equal(t, entity.SourceKindAudio, kind)

	_, err = parseSourceKind("pdf")
	assert.Error(t, err)
}

func TestFormatForPath(t *testing.T) {
	assert.Equal(t, ingestion.FormatMarkdown, formatForPath("notes/standup.MD"))
	assert.Equal(t, ingestion.FormatMarkdown, formatForPath("a.markdown"))
	assert.Equal(t, ingestion.FormatText, formatForPath("a.txt"))
}

func TestParseTranscript(t *testing.T) {
	segs, err := parseTranscript([]byte(`[{"start":0,"end":4.2,"speaker":"Anna","text":"Hallo"}]`))
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, "Anna", segs[0].Speaker)
	require.NotNil(t, segs[0].End)
	assert.InDelta(t, 4.2, *segs[0].End, 1e-9)

	_, err = parseTranscript([]byte(`[]`))
	assert.Error(t, err)

	_, err = parseTranscript([]byte(`{"text":"x"}`))
	assert.Error(t, err)
}

func TestNormalizeScopes(t *testing.T) {
	scopes, err := normalizeScopes([]string{"READ", " ingest", "read", ""})
	require.NoError(t, err)
	assert.Equal(t, []string{utils.ScopeRead, utils.ScopeIngest}, scopes)

	_, err = normalizeScopes([]string{"admin"})
	assert.Error(t, err)

	_, err = normalizeScopes(nil)
	assert.Error(t, err)
}

type stubJobs struct {
	states []entity.JobStatus
	calls  int
	err    error
}

func (s *stubJobs) GetByID(_ context.Context, id string) (*entity.IngestionJob, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.states) == 0 {
		return nil, nil
	}
	i := s.calls
	if i >= len(s.states) {
		i = len(s.states) - 1
	}
	s.calls++
	return &entity.IngestionJob{ID: id, Status: s.states[i]}, nil
}

func TestWaitForJob(t *testing.T) {
	ctx := context.Background()

	jobs := &stubJobs{states: []entity.JobStatus{entity.JobStatusPending, entity.JobStatusRunning, entity.JobStatusCompleted}}
	job, err := waitForJob(ctx, jobs, "job-1", time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusCompleted, job.Status)
	assert.Equal(t, 3, jobs.calls)

	job, err = waitForJob(ctx, &stubJobs{states: []entity.JobStatus{entity.JobStatusFailed}}, "job-2", time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusFailed, job.Status)

	_, err = waitForJob(ctx, &stubJobs{}, "missing", time.Millisecond)
	assert.Error(t, err)

	boom := errors.New("db down")
	_, err = waitForJob(ctx, &stubJobs{err: boom}, "job-3", time.Millisecond)
	assert.ErrorIs(t, err, boom)

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = waitForJob(short, &stubJobs{states: []entity.JobStatus{entity.JobStatusRunning}}, "job-4", 5*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPrintResults(t *testing.T) {
	var buf bytes.Buffer
	printResults(&buf, nil)
	assert.Equal(t, "no results\n", buf.String())

	buf.Reset()
	speaker := "Anna"
	printResults(&buf, &retrieval.SearchOutput{Results: []*entity.RetrievalResult{
		{Chunk: &entity.Chunk{Content: "Release   notes\nfinal", Speaker: &speaker}, DocumentTitle: "Standup", Score: 0.5},
		nil,
	}})
	assert.Contains(t, buf.String(), "Standup @Anna")
	assert.Contains(t, buf.String(), "Release notes final")
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "abc", snippet("  abc ", 5))
	assert.Equal(t, "äö...", snippet("äöü", 2))
}
