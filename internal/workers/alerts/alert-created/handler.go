// internal/workers/alerts/alert-created/handler.go
package alertcreated

import (
	"context"

	"sos-workers/internal/common/config"
	"sos-workers/internal/common/errors"
	"sos-workers/internal/common/logger"
	"sos-workers/internal/events"
	"sos-workers/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = config.TaskAlertCreated
)

type Handler struct {
	config     *Config
	codec      *events.Codec
	reactor    events.Reactor
	errHandler *errors.ErrorHandler
	logger     logger.Logger
}

func NewHandler(config *Config, codec *events.Codec, reactor events.Reactor, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		codec:      codec,
		reactor:    reactor,
		errHandler: errors.NewErrorHandler(log),
		logger:     log,
	}
}

// Handle always completes the job; rejected payloads complete with an aborted outcome.
func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, []byte(job.Variables))
	if err != nil {
		h.errHandler.HandleJobError(context.Background(), client, job, err)
		return
	}

	h.completeJob(client, job, output)
}

func (h *Handler) execute(ctx context.Context, variables []byte) (*Output, error) {
	outcome, err := h.codec.Dispatch(ctx, h.reactor, registry.EventCreated, variables)
	if err != nil {
		return nil, err
	}
	return outputFromOutcome(outcome), nil
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	_, err = cmd.Send(context.Background())
	if err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
	}
}

func (h *Handler) Execute(ctx context.Context, variables []byte) (*Output, error) {
	return h.execute(ctx, variables)
}
