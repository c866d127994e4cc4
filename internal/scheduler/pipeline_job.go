package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/labormetrics/pulse/internal/modules/ingest"
	"github.com/labormetrics/pulse/internal/modules/runs"
)

// IngestService loads fresh observations into the warehouse.
type IngestService interface {
	Ingest(ctx context.Context, req ingest.Request) (*ingest.Result, error)
}

// TransformService recomputes the derived analytics table.
type TransformService interface {
	Recompute(ctx context.Context) (int, error)
}

// RunRecorder persists stage outcomes for the status endpoints.
type RunRecorder interface {
	Start(runID, stage string, startedAt int64) (int64, error)
	Finish(id int64, finishedAt int64, status string, detail string) error
}

// PipelineJob runs an incremental ingest across all tracked series and,
// unless every series failed, recomputes analytics from the raw store.
type PipelineJob struct {
	ingest    IngestService
	transform TransformService
	recorder  RunRecorder
	timeout   time.Duration
	log       zerolog.Logger
}

func NewPipelineJob(ingestSvc IngestService, transform TransformService, recorder RunRecorder, log zerolog.Logger) *PipelineJob {
	return &PipelineJob{
		ingest:    ingestSvc,
		transform: transform,
		recorder:  recorder,
		timeout:   30 * time.Minute,
		log:       log.With().Str("job", "pipeline").Logger(),
	}
}

func (j *PipelineJob) Name() string {
	return "pipeline"
}

func (j *PipelineJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	result, err := j.runIngest(ctx)
	if err != nil {
		return err
	}
	if result.Status == ingest.StatusFailed {
		return fmt.Errorf("ingest failed for all series, skipping transform")
	}

	return j.runTransform(ctx, result.RunID)
}

func (j *PipelineJob) runIngest(ctx context.Context) (*ingest.Result, error) {
	startedAt := time.Now().UTC().Unix()

	result, err := j.ingest.Ingest(ctx, ingest.Request{})
	if err != nil {
		j.record("unknown", "ingest", startedAt, "error", err.Error())
		return nil, fmt.Errorf("pipeline ingest failed: %w", err)
	}

	detail := fmt.Sprintf("%d series loaded", len(result.Results))
	if len(result.Errors) > 0 {
		failed := make([]string, 0, len(result.Errors))
		for id := range result.Errors {
			failed = append(failed, id)
		}
		detail = fmt.Sprintf("%s, %d failed: %s", detail, len(failed), strings.Join(failed, ", "))
	}
	j.record(result.RunID, "ingest", startedAt, runStatus(result.Status), detail)

	j.log.Info().
		Str("run_id", result.RunID).
		Str("status", result.Status).
		Int("series_failed", len(result.Errors)).
		Msg("Scheduled ingest completed")

	return result, nil
}

func (j *PipelineJob) runTransform(ctx context.Context, runID string) error {
	startedAt := time.Now().UTC().Unix()

	n, err := j.transform.Recompute(ctx)
	if err != nil {
		j.record(runID, "transform", startedAt, "error", err.Error())
		return fmt.Errorf("pipeline transform failed: %w", err)
	}

	j.record(runID, "transform", startedAt, "ok", fmt.Sprintf("%d rows", n))

	j.log.Info().
		Str("run_id", runID).
		Int("rows", n).
		Msg("Scheduled transform completed")

	return nil
}

func (j *PipelineJob) record(runID, stage string, startedAt int64, status, detail string) {
	if j.recorder == nil {
		return
	}
	id, err := j.recorder.Start(runID, stage, startedAt)
	if err != nil {
		j.log.Warn().Err(err).Str("stage", stage).Msg("Failed to record run start")
		return
	}
	if err := j.recorder.Finish(id, time.Now().UTC().Unix(), status, detail); err != nil {
		j.log.Warn().Err(err).Str("stage", stage).Msg("Failed to record run finish")
	}
}

func runStatus(s string) string {
	switch s {
	case ingest.StatusOK:
		return "ok"
	case ingest.StatusPartial:
		return "partial"
	default:
		return "error"
	}
}

var _ Job = (*PipelineJob)(nil)
var _ RunRecorder = (*runs.Repository)(nil)
