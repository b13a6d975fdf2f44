// internal/common/errors/handler.go
package errors

import (
	"context"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

// OutcomeAborted is the outcome variable value written for jobs that could not be handled.
const OutcomeAborted = "aborted"

// ErrorHandler completes failed lifecycle jobs without handing them back to the engine.
// Lifecycle jobs are never failed or thrown.
type ErrorHandler struct {
	logger Logger
}

type Logger interface {
	Error(msg string, fields map[string]interface{})
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// HandleJobError logs err and completes the job with aborted outcome variables.
func (h *ErrorHandler) HandleJobError(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	stdErr := Normalize(err)
	vars := stdErr.ToOutcomeVariables()
	vars["outcome"] = OutcomeAborted

	h.logError(job, stdErr)

	cmd, cmdErr := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromMap(vars)
	if cmdErr != nil {
		h.logger.Error("failed to build complete command for aborted job", map[string]interface{}{
			"jobKey": job.Key,
			"error":  cmdErr,
		})
		_, _ = client.NewCompleteJobCommand().JobKey(job.Key).Send(ctx)
		return
	}
	if _, sendErr := cmd.Send(ctx); sendErr != nil {
		h.logger.Error("failed to complete aborted job", map[string]interface{}{
			"jobKey": job.Key,
			"error":  sendErr,
		})
	}
}

func (h *ErrorHandler) logError(job entities.Job, stdErr *StandardError) {
	h.logger.Error("job aborted", map[string]interface{}{
		"jobKey":           job.Key,
		"jobType":          job.Type,
		"errorCode":        string(stdErr.Code),
		"message":          stdErr.Message,
		"details":          stdErr.Details,
		"errorCategory":    GetErrorCategory(stdErr.Code),
		"workflowInstance": job.ProcessInstanceKey,
	})
}
