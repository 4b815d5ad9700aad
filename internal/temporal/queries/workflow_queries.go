package queries

import (
	"context"
	"time"

	ierr "github.com/flexprice/deprovisioner/internal/errors"
	"github.com/flexprice/deprovisioner/internal/logger"
	"github.com/flexprice/deprovisioner/internal/temporal/searchattr"
	"github.com/flexprice/deprovisioner/internal/types"
	"go.temporal.io/api/workflowservice/v1"
	"go.temporal.io/sdk/client"
)

// WorkflowQuerier reads workflow executions from Temporal visibility
type WorkflowQuerier struct {
	client client.Client
	logger *logger.Logger
}

func NewWorkflowQuerier(temporalClient client.Client, logger *logger.Logger) *WorkflowQuerier {
	return &WorkflowQuerier{
		client: temporalClient,
		logger: logger,
	}
}

// WorkflowExecutionInfo contains basic workflow execution information
type WorkflowExecutionInfo struct {
	WorkflowID   string     `json:"workflow_id"`
	RunID        string     `json:"run_id"`
	WorkflowType string     `json:"workflow_type"`
	Status       string     `json:"status"`
	StartTime    time.Time  `json:"start_time"`
	CloseTime    *time.Time `json:"close_time,omitempty"`
	TaskQueue    string     `json:"task_queue,omitempty"`
	HistorySize  int64      `json:"history_size,omitempty"`
}

// DescribeWorkflow retrieves workflow execution details
func (q *WorkflowQuerier) DescribeWorkflow(ctx context.Context, workflowID, runID string) (*WorkflowExecutionInfo, error) {
	resp, err := q.client.DescribeWorkflowExecution(ctx, workflowID, runID)
	if err != nil {
		q.logger.Errorw("failed to describe workflow execution", "error", err, "workflow_id", workflowID, "run_id", runID)
		return nil, ierr.WithError(err).
			WithHintf("Failed to describe workflow %s", workflowID).
			Mark(ierr.ErrSystem)
	}

	exec := resp.GetWorkflowExecutionInfo()
	info := &WorkflowExecutionInfo{
		WorkflowID:   exec.GetExecution().GetWorkflowId(),
		RunID:        exec.GetExecution().GetRunId(),
		WorkflowType: exec.GetType().GetName(),
		Status:       exec.GetStatus().String(),
		StartTime:    exec.GetStartTime().AsTime(),
		TaskQueue:    resp.GetExecutionConfig().GetTaskQueue().GetName(),
		HistorySize:  exec.GetHistoryLength(),
	}
	if exec.GetCloseTime() != nil {
		closeTime := exec.GetCloseTime().AsTime()
		info.CloseTime = &closeTime
	}
	return info, nil
}

// ListRunningDeprovisioningWorkflows finds the open deprovisioning workflows
// of an organization through the OrganizationID search attribute.
func (q *WorkflowQuerier) ListRunningDeprovisioningWorkflows(ctx context.Context, organizationID string) ([]*WorkflowExecutionInfo, error) {
	query := searchattr.RunningDeprovisioningQuery(types.TemporalDeprovisioningWorkflow.String(), organizationID)

	var (
		result    []*WorkflowExecutionInfo
		pageToken []byte
	)
	for {
		resp, err := q.client.ListWorkflow(ctx, &workflowservice.ListWorkflowExecutionsRequest{
			Query:         query,
			NextPageToken: pageToken,
		})
		if err != nil {
			q.logger.Errorw("failed to list workflows", "error", err, "organization_id", organizationID)
			return nil, ierr.WithError(err).
				WithHint("Failed to list running deprovisioning workflows").
				WithReportableDetails(map[string]interface{}{
					"organization_id": organizationID,
				}).
				Mark(ierr.ErrSystem)
		}

		for _, exec := range resp.GetExecutions() {
			result = append(result, &WorkflowExecutionInfo{
				WorkflowID:   exec.GetExecution().GetWorkflowId(),
				RunID:        exec.GetExecution().GetRunId(),
				WorkflowType: exec.GetType().GetName(),
				Status:       exec.GetStatus().String(),
				StartTime:    exec.GetStartTime().AsTime(),
				TaskQueue:    exec.GetTaskQueue(),
			})
		}

		pageToken = resp.GetNextPageToken()
		if len(pageToken) == 0 {
			break
		}
	}
	return result, nil
}
