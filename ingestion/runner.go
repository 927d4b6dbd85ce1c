package ingestion

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/thinkdocs/core"
	"github.com/poiesic/thinkdocs/retry"
)

// Default scheduler settings.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 2 * time.Second
	DefaultSoftTimeout = 5 * time.Minute
	DefaultHardTimeout = 10 * time.Minute
)

// Runnable is a single pipeline invocation. *Pipeline implements it.
type Runnable interface {
	Run(ctx context.Context, req RunRequest) *RunResult
}

// RunnerOptions configure a Runner. Zero values take the defaults.
type RunnerOptions struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	SoftTimeout time.Duration
	HardTimeout time.Duration
	Logger      *slog.Logger
}

// Runner delivers a document to the pipeline the way a task scheduler
// would: retryable failures are redelivered with backoff under one task id,
// and every attempt runs under soft and hard time limits.
type Runner struct {
	pipeline Runnable
	opts     RunnerOptions
	logger   *slog.Logger
}

// NewRunner creates a Runner for pipeline.
func NewRunner(pipeline Runnable, opts RunnerOptions) (*Runner, error) {
	if pipeline == nil {
		return nil, ErrPipelineRequired
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	if opts.SoftTimeout <= 0 {
		opts.SoftTimeout = DefaultSoftTimeout
	}
	if opts.HardTimeout <= 0 {
		opts.HardTimeout = DefaultHardTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		pipeline: pipeline,
		opts:     opts,
		logger:   logger.With("component", "runner"),
	}, nil
}

// Run delivers req until it succeeds, fails for good or ctx ends, and
// returns the result of the last attempt.
func (r *Runner) Run(ctx context.Context, req RunRequest) *RunResult {
	if req.TaskID == "" {
		req.TaskID = uuid.NewString()
	}
	req.MaxAttempts = r.opts.MaxAttempts

	var last *RunResult
	err := retry.WithBackoff(ctx, func(attempt int) error {
		req.Attempt = attempt
		last = r.runOnce(ctx, req)
		if last.Succeeded() {
			return nil
		}
		return last.Err
	}, r.opts.MaxAttempts, r.opts.BaseDelay,
		retry.If(Retryable),
		retry.WithMaxDelay(r.opts.MaxDelay),
		retry.WithLogger(r.logger),
		retry.OnRetry(func(attempt int, err error, delay time.Duration) {
			r.logger.Warn("retrying document",
				"document_id", req.DocumentID,
				"task_id", req.TaskID,
				"attempt", attempt,
				"delay", delay,
				"error", err)
		}))

	if last == nil {
		// ctx ended before the first attempt
		last = &RunResult{
			DocumentID: req.DocumentID,
			TaskID:     req.TaskID,
			OwnerID:    req.OwnerID,
			Status:     core.JobFailed,
			State:      StateCreated,
			Error:      err.Error(),
			ErrorType:  core.ErrorType(err),
			Final:      true,
			Err:        err,
		}
	}
	return last
}

// runOnce runs a single attempt under the soft and hard limits. The soft
// limit only logs; the hard limit cancels the attempt's context.
func (r *Runner) runOnce(ctx context.Context, req RunRequest) *RunResult {
	ctx, cancel := context.WithTimeout(ctx, r.opts.HardTimeout)
	defer cancel()

	soft := time.AfterFunc(r.opts.SoftTimeout, func() {
		r.logger.Warn("document processing exceeded soft time limit",
			"document_id", req.DocumentID,
			"task_id", req.TaskID,
			"limit", r.opts.SoftTimeout)
	})
	defer soft.Stop()

	return r.pipeline.Run(ctx, req)
}
