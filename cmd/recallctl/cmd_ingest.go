package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"recall-api/internal/application/ingestion"
	"recall-api/internal/domain/entity"
	"recall-api/internal/wire"
)

var (
	ingestTitle      string
	ingestKind       string
	ingestSpeaker    string
	ingestTranscript bool
	ingestWait       bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Submit a note or transcript file for ingestion",
	Long: `Submit a file to the ingestion queue.

Plain text and markdown files are submitted as notes. With --transcript the
file must be a JSON array of segments: [{"start":0,"end":4.2,"speaker":"Anna","text":"..."}].`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestTitle, "title", "", "document title (defaults to file name)")
	ingestCmd.Flags().StringVar(&ingestKind, "kind", string(entity.SourceKindText), "source kind: text, audio or video")
	ingestCmd.Flags().StringVar(&ingestSpeaker, "speaker", "", "speaker of the whole note")
	ingestCmd.Flags().BoolVar(&ingestTranscript, "transcript", false, "file is a JSON transcript")
	ingestCmd.Flags().BoolVar(&ingestWait, "wait", false, "wait until the job finishes")
}

func runIngest(cmd *cobra.Command, args []string) error {
	path := args[0]
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	kind, err := parseSourceKind(ingestKind)
	if err != nil {
		return err
	}
	title := ingestTitle
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	kit, cleanup, err := wire.InitializeToolkit(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer cleanup()

	var jobID string
	if ingestTranscript {
		segments, perr := parseTranscript(raw)
		if perr != nil {
			return perr
		}
		jobID, err = kit.Ingestion.SubmitTranscript(ctx, ingestion.TranscriptSubmission{
			Title:      title,
			SourceKind: kind,
			OriginRef:  path,
			Segments:   segments,
		})
	} else {
		jobID, err = kit.Ingestion.SubmitText(ctx, ingestion.TextSubmission{
			Title:      title,
			Content:    string(raw),
			SourceKind: kind,
			Format:     formatForPath(path),
			Speaker:    ingestSpeaker,
			OriginRef:  path,
		})
	}
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "job %s queued\n", jobID)

	if !ingestWait {
		return nil
	}
	job, err := waitForJob(ctx, kit.Jobs, jobID, time.Second)
	if err != nil {
		return err
	}
	if job.Status == entity.JobStatusFailed {
		return fmt.Errorf("job %s failed: %s", job.ID, job.ErrorMessage)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "document %s stored with %d chunks in %dms\n", job.DocumentID, job.ChunkCount, job.DurationMs)
	return nil
}

type jobGetter interface {
	GetByID(ctx context.Context, id string) (*entity.IngestionJob, error)
}

// waitForJob 轮询直到任务完成或失败
func waitForJob(ctx context.Context, jobs jobGetter, id string, interval time.Duration) (*entity.IngestionJob, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := jobs.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load job: %w", err)
		}
		if job == nil {
			return nil, fmt.Errorf("job %s not found", id)
		}
		if job.Status == entity.JobStatusCompleted || job.Status == entity.JobStatusFailed {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for job %s: %w", id, ctx.Err())
		case <-ticker.C:
		}
	}
}

func parseSourceKind(s string) (entity.SourceKind, error) {
	switch kind := entity.SourceKind(strings.ToLower(strings.TrimSpace(s))); kind {
	case entity.SourceKindText, entity.SourceKindAudio, entity.SourceKindVideo:
		return kind, nil
	default:
		return "", fmt.Errorf("unknown source kind %q", s)
	}
}

func formatForPath(path string) ingestion.Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return ingestion.FormatMarkdown
	default:
		return ingestion.FormatText
	}
}

func parseTranscript(raw []byte) ([]ingestion.TranscriptSegment, error) {
	var segments []ingestion.TranscriptSegment
	if err := json.Unmarshal(raw, &segments); err != nil {
		return nil, fmt.Errorf("parse transcript: %w", err)
	}
	if len(segments) == 0 {
		return nil, errors.New("transcript has no segments")
	}
	return segments, nil
}
