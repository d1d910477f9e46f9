// Package jobs turns asynchronous remote jobs into a blocking wait.
//
// A wait is a small state machine: every poll either keeps the job pending
// or moves it to succeeded or failed, and the deadline moves it to timed_out.
// Clock and sleep are injected so tests can run without real delays.
package jobs

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/gomcpgo/remote_image_ai/pkg/config"
	"github.com/gomcpgo/remote_image_ai/pkg/metrics"
	"github.com/gomcpgo/remote_image_ai/pkg/types"
)

// Clock tells the poller the current time
type Clock interface {
	Now() time.Time
}

// SleepFunc blocks for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Sleep is the default SleepFunc
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ResultFetcher is the part of the image client the poller needs
type ResultFetcher interface {
	JobResult(ctx context.Context, jobID string, includeBase64 bool) (*types.JobResult, error)
}

// WaitOptions controls one polling loop. Zero values take the defaults.
type WaitOptions struct {
	IncludeBinary bool
	PollInterval  time.Duration
	Timeout       time.Duration
}

// Poller waits for remote jobs
type Poller struct {
	fetcher         ResultFetcher
	clock           Clock
	sleep           SleepFunc
	defaultInterval time.Duration
	defaultTimeout  time.Duration
	logger          *zap.Logger
	metrics         *metrics.Collector
	tracer          trace.Tracer
}

// Option configures a Poller
type Option func(*Poller)

// WithClock injects the clock
func WithClock(c Clock) Option { return func(p *Poller) { p.clock = c } }

// WithSleep injects the sleep function
func WithSleep(s SleepFunc) Option { return func(p *Poller) { p.sleep = s } }

// WithMetrics attaches a metrics collector
func WithMetrics(m *metrics.Collector) Option { return func(p *Poller) { p.metrics = m } }

// WithDefaults sets the interval and timeout used when WaitOptions leaves them zero
func WithDefaults(interval, timeout time.Duration) Option {
	return func(p *Poller) {
		p.defaultInterval = interval
		p.defaultTimeout = timeout
	}
}

// NewPoller creates a poller over fetcher
func NewPoller(fetcher ResultFetcher, logger *zap.Logger, opts ...Option) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := config.DefaultTimeouts()
	p := &Poller{
		fetcher:         fetcher,
		clock:           systemClock{},
		sleep:           Sleep,
		defaultInterval: defaults.PollInterval,
		defaultTimeout:  defaults.UpscaleTimeout,
		logger:          logger.With(zap.String("component", "job_poller")),
		tracer:          otel.Tracer("github.com/gomcpgo/remote_image_ai/pkg/jobs"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Normalize fills defaults and clamps interval and timeout to their bounds
func (p *Poller) Normalize(opts WaitOptions) WaitOptions {
	if opts.PollInterval <= 0 {
		opts.PollInterval = p.defaultInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = p.defaultTimeout
	}
	opts.PollInterval = clamp(opts.PollInterval, config.MinPollInterval, config.MaxPollInterval)
	opts.Timeout = clamp(opts.Timeout, config.MinJobTimeout, config.MaxJobTimeout)
	return opts
}

// WaitForJobResult polls jobID until it succeeds, fails or the timeout passes.
// Transient fetch errors are logged and the loop continues. The remote job is
// never cancelled or resubmitted.
func (p *Poller) WaitForJobResult(ctx context.Context, jobID string, opts WaitOptions) (*types.JobOutcome, error) {
	if jobID == "" {
		return nil, types.InvalidRequest("job id is required")
	}
	opts = p.Normalize(opts)

	ctx, span := p.tracer.Start(ctx, "jobs.wait", trace.WithAttributes(
		attribute.String("job.id", jobID),
		attribute.Float64("job.timeout_seconds", opts.Timeout.Seconds()),
	))
	defer span.End()

	start := p.clock.Now()
	deadline := start.Add(opts.Timeout)
	lastStatus := ""
	polls := 0
	logger := p.logger.With(zap.String("job_id", jobID))

	finish := func(state string) {
		p.metrics.RecordJobWait(state, p.clock.Now().Sub(start))
		span.SetAttributes(attribute.String("job.state", state), attribute.Int("job.polls", polls))
	}

	for {
		polls++
		res, err := p.fetcher.JobResult(ctx, jobID, opts.IncludeBinary)
		if ctxErr := ctx.Err(); ctxErr != nil {
			finish("cancelled")
			return nil, ctxErr
		}

		switch {
		case err != nil:
			if !IsTransient(err) {
				p.metrics.RecordJobPoll("fatal_error")
				finish(types.JobFailed)
				span.SetStatus(codes.Error, err.Error())
				return nil, err
			}
			p.metrics.RecordJobPoll("transient_error")
			logger.Warn("transient error while polling job", zap.Int("poll", polls), zap.Error(err))

		default:
			status := strings.ToLower(strings.TrimSpace(res.Status))
			state := Classify(status)
			p.metrics.RecordJobPoll(state)

			switch state {
			case types.JobSucceeded:
				finish(state)
				logger.Debug("job succeeded", zap.Int("polls", polls))
				return outcomeFrom(jobID, status, res, polls), nil
			case types.JobFailed:
				finish(state)
				jobErr := types.NewJobFailed(jobID, status, res.ErrorDetail())
				span.SetStatus(codes.Error, jobErr.Error())
				logger.Info("job failed", zap.String("status", status), zap.String("detail", jobErr.Detail))
				return nil, jobErr
			}

			if status != "" {
				lastStatus = status
			}
			logger.Debug("job pending", zap.String("status", status), zap.Int("poll", polls))
		}

		now := p.clock.Now()
		if !now.Before(deadline) {
			finish(types.JobTimedOut)
			timeoutErr := types.Timeout(jobID, opts.Timeout, lastStatus)
			span.SetStatus(codes.Error, timeoutErr.Error())
			logger.Warn("job polling timed out", zap.Duration("timeout", opts.Timeout), zap.String("last_status", lastStatus))
			return nil, timeoutErr
		}

		wait := opts.PollInterval
		if remaining := deadline.Sub(now); remaining < wait {
			wait = remaining
		}
		if err := p.sleep(ctx, wait); err != nil {
			finish("cancelled")
			return nil, err
		}
	}
}

// Classify maps a remote status string onto pending, succeeded or failed
func Classify(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "succeeded", "completed":
		return types.JobSucceeded
	case "failed", "error", "cancelled", "canceled":
		return types.JobFailed
	}
	return types.JobPending
}

// IsTransient reports whether a poll error should be retried in the loop.
// Transport failures, per-request timeouts, not-registered-yet and not-ready
// responses, rate limiting and server errors are transient. Other caller
// errors (bad request, auth, validation) end the wait.
func IsTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var typed *types.Error
	if !errors.As(err, &typed) {
		return true
	}
	switch typed.Kind {
	case types.KindTimeout, types.KindNotFound:
		return true
	case types.KindRemoteService:
		code := typed.StatusCode
		switch {
		case code == 0, code >= 500:
			return true
		case code == 404, code == 408, code == 409, code == 425, code == 429:
			return true
		}
		return false
	}
	return false
}

func outcomeFrom(jobID, status string, res *types.JobResult, polls int) *types.JobOutcome {
	return &types.JobOutcome{
		JobID:       jobID,
		Status:      status,
		ImageBase64: res.ImageBase64,
		RemoteToken: res.Token,
		DownloadURL: res.DownloadURL,
		MimeType:    res.MimeType,
		Metadata:    res.Metadata,
		Polls:       polls,
		Raw:         res.Raw,
	}
}

func clamp(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
