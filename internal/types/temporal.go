package types

import (
	"fmt"
	"strings"

	ierr "github.com/flexprice/deprovisioner/internal/errors"
	"github.com/samber/lo"
)

// TemporalTaskQueue represents a logical grouping of workflows and activities
type TemporalTaskQueue string

const (
	TemporalTaskQueueDeprovisioning TemporalTaskQueue = "deprovisioning"
)

func (tq TemporalTaskQueue) String() string {
	return string(tq)
}

// Validate validates the task queue
func (tq TemporalTaskQueue) Validate() error {
	allowedQueues := GetAllTaskQueues()
	if lo.Contains(allowedQueues, tq) {
		return nil
	}
	return ierr.NewError("invalid task queue").
		WithHint(fmt.Sprintf("Task queue must be one of: %s", strings.Join(lo.Map(allowedQueues, func(tq TemporalTaskQueue, _ int) string { return string(tq) }), ", "))).
		Mark(ierr.ErrValidation)
}

// TemporalWorkflowType represents the type of workflow
type TemporalWorkflowType string

const (
	TemporalDeprovisioningWorkflow TemporalWorkflowType = "DeprovisioningWorkflow"
)

func (w TemporalWorkflowType) String() string {
	return string(w)
}

// Validate validates the workflow type
func (w TemporalWorkflowType) Validate() error {
	allowedWorkflows := []TemporalWorkflowType{
		TemporalDeprovisioningWorkflow,
	}
	if lo.Contains(allowedWorkflows, w) {
		return nil
	}

	return ierr.NewError("invalid workflow type").
		WithHint(fmt.Sprintf("Workflow type must be one of: %s", strings.Join(lo.Map(allowedWorkflows, func(w TemporalWorkflowType, _ int) string { return string(w) }), ", "))).
		Mark(ierr.ErrValidation)
}

// TaskQueue returns the logical task queue for the workflow
func (w TemporalWorkflowType) TaskQueue() TemporalTaskQueue {
	switch w {
	case TemporalDeprovisioningWorkflow:
		return TemporalTaskQueueDeprovisioning
	default:
		return TemporalTaskQueueDeprovisioning
	}
}

// TaskQueueName returns the task queue name for the workflow
func (w TemporalWorkflowType) TaskQueueName() string {
	return w.TaskQueue().String()
}

// WorkflowID returns the workflow ID for the workflow with given identifiers
func (w TemporalWorkflowType) WorkflowID(identifiers ...string) string {
	return string(w) + "-" + strings.Join(identifiers, "-")
}

// GetWorkflowsForTaskQueue returns all workflows that belong to a specific task queue
func GetWorkflowsForTaskQueue(taskQueue TemporalTaskQueue) []TemporalWorkflowType {
	switch taskQueue {
	case TemporalTaskQueueDeprovisioning:
		return []TemporalWorkflowType{TemporalDeprovisioningWorkflow}
	default:
		return []TemporalWorkflowType{}
	}
}

// GetAllTaskQueues returns all available task queues
func GetAllTaskQueues() []TemporalTaskQueue {
	return []TemporalTaskQueue{
		TemporalTaskQueueDeprovisioning,
	}
}

// Signals understood by the deprovisioning workflow.
const (
	SignalCancelDeprovisioning = "cancel_deprovisioning"
)

// Queries understood by the deprovisioning workflow.
const (
	QueryDeprovisioningProgress = "deprovisioning_progress"
)
