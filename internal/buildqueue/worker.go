package buildqueue

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"zkgate/internal/codegen"
	"zkgate/internal/registry"
	"zkgate/internal/webhook"
)

// artifactRelPath is where the configured build command is expected to
// leave the compiled guest program, relative to the job's work directory —
// the conventional cargo release output path for a binary named "guest",
// matching the binary name the Code Generator's Cargo.toml template declares.
const artifactRelPath = "target/release/guest"

// Worker pops jobs off the Queue, drives the Code Generator and an
// external build command, and records the result in the Registry. It runs
// a blocking pop loop (no ticker) until its context is cancelled.
type Worker struct {
	ID          string
	queue       *Queue
	registry    *registry.Registry
	webhook     *webhook.Client
	workDir     string
	popTimeout  time.Duration
	leaseTTL    time.Duration
	buildCmd    string
	log         *zap.Logger
}

// Config carries the tunables a Worker needs beyond its collaborators.
type Config struct {
	WorkDir      string
	PopTimeout   time.Duration
	LeaseTTL     time.Duration
	BuildCommand string
}

// NewWorker constructs a Worker identified by id (used for lease ownership).
func NewWorker(id string, queue *Queue, reg *registry.Registry, wh *webhook.Client, cfg Config, log *zap.Logger) *Worker {
	return &Worker{
		ID:         id,
		queue:      queue,
		registry:   reg,
		webhook:    wh,
		workDir:    cfg.WorkDir,
		popTimeout: cfg.PopTimeout,
		leaseTTL:   cfg.LeaseTTL,
		buildCmd:   cfg.BuildCommand,
		log:        log,
	}
}

// Run blocks popping and processing jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, found, err := w.queue.Pop(ctx, w.popTimeout)
		if err != nil {
			w.log.Error("build queue pop failed", zap.Error(err))
			continue
		}
		if !found {
			continue
		}

		if err := w.queue.Lease(ctx, job, w.ID, w.leaseTTL); err != nil {
			w.log.Error("failed to lease job", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		job.MarkBuilding(w.ID, w.leaseTTL)

		w.process(ctx, job)
	}
}

// process runs the generate → build → register pipeline for a single job
// and reports completion to the webhook client, win or lose.
func (w *Worker) process(ctx context.Context, job Job) {
	started := time.Now()
	log := w.log.With(zap.String("job_id", job.ID), zap.String("customer_id", job.CustomerID))

	result, err := codegen.Generate(job.DSL)
	if err != nil {
		w.fail(ctx, job, fmt.Sprintf("code generation failed: %v", err), log)
		return
	}
	for _, warning := range result.Warnings {
		log.Warn("code generation warning", zap.String("warning", warning))
	}

	jobDir := filepath.Join(w.workDir, job.ID)
	if err := writeFiles(jobDir, result.Files); err != nil {
		w.fail(ctx, job, fmt.Sprintf("failed to write generated sources: %v", err), log)
		return
	}

	if err := w.runBuildCommand(ctx, jobDir); err != nil {
		w.fail(ctx, job, fmt.Sprintf("build command failed: %v", err), log)
		return
	}

	artifact, err := os.ReadFile(filepath.Join(jobDir, artifactRelPath))
	if err != nil {
		w.fail(ctx, job, fmt.Sprintf("build produced no artifact: %v", err), log)
		return
	}

	imageID := codegen.DeriveImageID(artifact)
	imageIDHex := fmt.Sprintf("%x", imageID)

	_, err = w.registry.Register(ctx, registry.Deployment{
		CustomerID:       job.CustomerID,
		ImageID:          imageIDHex,
		GuestProgramPath: filepath.Join(jobDir, artifactRelPath),
		CreatedAt:        time.Now(),
		Metadata: &registry.Metadata{
			UseCase: job.DSL.UseCase,
			Version: job.DSL.Version,
		},
	})
	if err != nil {
		// A customer rebuilding an existing deployment is expected — update
		// instead of treating "already registered" as a build failure.
		if _, updErr := w.registry.Update(ctx, job.CustomerID, registry.Deployment{
			CustomerID:       job.CustomerID,
			ImageID:          imageIDHex,
			GuestProgramPath: filepath.Join(jobDir, artifactRelPath),
			CreatedAt:        time.Now(),
			Metadata: &registry.Metadata{
				UseCase: job.DSL.UseCase,
				Version: job.DSL.Version,
			},
		}); updErr != nil {
			w.fail(ctx, job, fmt.Sprintf("registry update failed: %v", updErr), log)
			return
		}
	}

	if err := w.queue.Complete(ctx, job, imageIDHex, filepath.Join(jobDir, artifactRelPath)); err != nil {
		log.Error("failed to persist job completion", zap.Error(err))
	}

	log.Info("build completed",
		zap.String("image_id", imageIDHex),
		zap.Duration("build_duration", time.Since(started)),
		zap.Duration("queue_wait", job.BuildingAt.Sub(job.QueuedAt)))

	w.webhook.Post(ctx, job.WebhookURL, WebhookPayload{
		JobID:      job.ID,
		CustomerID: job.CustomerID,
		Status:     StatusCompleted,
		ImageID:    imageIDHex,
	})
}

func (w *Worker) fail(ctx context.Context, job Job, reason string, log *zap.Logger) {
	log.Error("build failed", zap.String("reason", reason))
	if err := w.queue.Fail(ctx, job, reason); err != nil {
		log.Error("failed to persist job failure", zap.Error(err))
	}
	w.webhook.Post(ctx, job.WebhookURL, WebhookPayload{
		JobID:      job.ID,
		CustomerID: job.CustomerID,
		Status:     StatusFailed,
		Error:      reason,
	})
}

func (w *Worker) runBuildCommand(ctx context.Context, jobDir string) error {
	if w.buildCmd == "" {
		return nil
	}
	cmd := exec.CommandContext(ctx, "sh", "-c", w.buildCmd)
	cmd.Dir = jobDir
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}

func writeFiles(dir string, files map[string]string) error {
	for relPath, contents := range files {
		full := filepath.Join(dir, relPath)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(full, []byte(contents), 0o644); err != nil {
			return err
		}
	}
	return nil
}
