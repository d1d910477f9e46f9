package handler

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/gomcpgo/remote_image_ai/pkg/jobs"
	"github.com/gomcpgo/remote_image_ai/pkg/responses"
	"github.com/gomcpgo/remote_image_ai/pkg/types"
)

// handleCheckJob handles the check_job tool
func (h *ImageHandler) handleCheckJob(ctx context.Context, args map[string]interface{}) (string, error) {
	jobID, err := requiredString(args, "job_id")
	if err != nil {
		return "", err
	}
	status, err := h.client.JobStatus(ctx, jobID)
	if err != nil {
		return "", err
	}

	data := map[string]interface{}{
		"job_id": jobID,
		"status": status.Status,
		"state":  jobs.Classify(status.Status),
	}
	if status.Progress != nil {
		data["progress"] = *status.Progress
	}
	if status.ETA != nil {
		data["eta_seconds"] = *status.ETA
	}
	if p, ok := h.pending.Get(jobID); ok {
		data["pending_operation"] = p.Operation
	}
	return responses.BuildSuccessResponse("check_job", data), nil
}

// handleContinueJob handles the continue_job tool. Jobs not found in the
// pending registry (after a restart, for example) are still waited on and
// saved under the continue_job operation.
func (h *ImageHandler) handleContinueJob(ctx context.Context, args map[string]interface{}) (string, error) {
	jobID, err := requiredString(args, "job_id")
	if err != nil {
		return "", err
	}
	interval, timeout, err := waitArgs(args)
	if err != nil {
		return "", err
	}
	if timeout == 0 {
		timeout = h.timeouts.ContinueWait
	}

	p, known := h.pending.Get(jobID)
	if !known {
		h.logger.Info("continuing job not in pending registry", zap.String("job_id", jobID))
		p = &jobs.Pending{JobID: jobID, Operation: types.OpContinueJob}
	}

	result, err := h.generator.CompleteJob(ctx, p, jobs.WaitOptions{PollInterval: interval, Timeout: timeout})
	if err != nil {
		if errors.Is(err, types.ErrJobFailed) {
			h.pending.Remove(jobID)
		}
		return "", jobs.AsPending(err, *p)
	}

	h.pending.Remove(jobID)
	return responses.BuildRecordResponse("continue_job", result.Record, map[string]interface{}{
		"job_id":             jobID,
		"original_operation": p.Operation,
		"polls":              result.Polls,
		"duration_seconds":   result.Duration.Seconds(),
	}), nil
}
