package models

import (
	"time"

	ierr "github.com/flexprice/deprovisioner/internal/errors"
	"github.com/flexprice/deprovisioner/internal/types"
)

// DeprovisioningSchedule holds the waits between workflow steps.
type DeprovisioningSchedule struct {
	ReminderAfter     time.Duration `json:"reminder_after"`
	FinalWarningAfter time.Duration `json:"final_warning_after"`
	ExecutionAfter    time.Duration `json:"execution_after"`
}

// DefaultDeprovisioningSchedule is day 7, day 13 and day 14.
var DefaultDeprovisioningSchedule = DeprovisioningSchedule{
	ReminderAfter:     7 * 24 * time.Hour,
	FinalWarningAfter: 6 * 24 * time.Hour,
	ExecutionAfter:    24 * time.Hour,
}

// WithDefaults fills zero waits from DefaultDeprovisioningSchedule.
func (s DeprovisioningSchedule) WithDefaults() DeprovisioningSchedule {
	if s.ReminderAfter <= 0 {
		s.ReminderAfter = DefaultDeprovisioningSchedule.ReminderAfter
	}
	if s.FinalWarningAfter <= 0 {
		s.FinalWarningAfter = DefaultDeprovisioningSchedule.FinalWarningAfter
	}
	if s.ExecutionAfter <= 0 {
		s.ExecutionAfter = DefaultDeprovisioningSchedule.ExecutionAfter
	}
	return s
}

// DeprovisioningWorkflowInput binds one workflow run to a batch of queue entries.
type DeprovisioningWorkflowInput struct {
	OrganizationID string                 `json:"organization_id"`
	BatchID        string                 `json:"batch_id"`
	QueueEntryIDs  []string               `json:"queue_entry_ids"`
	Schedule       DeprovisioningSchedule `json:"schedule"`
}

func (i *DeprovisioningWorkflowInput) Validate() error {
	if i.OrganizationID == "" {
		return ierr.NewError("organization_id is required").
			WithHint("Organization ID is required").
			Mark(ierr.ErrValidation)
	}
	if i.BatchID == "" && len(i.QueueEntryIDs) == 0 {
		return ierr.NewError("batch_id or queue_entry_ids is required").
			WithHint("The workflow needs a batch of queue entries").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// WorkflowID is unique per organization and batch.
func (i *DeprovisioningWorkflowInput) WorkflowID() string {
	return types.TemporalDeprovisioningWorkflow.WorkflowID(i.OrganizationID, i.batchKey())
}

func (i *DeprovisioningWorkflowInput) batchKey() string {
	if i.BatchID != "" {
		return i.BatchID
	}
	return i.QueueEntryIDs[0]
}

// DeprovisioningStage is the workflow's position in the cadence.
type DeprovisioningStage string

const (
	DeprovisioningStageScheduled DeprovisioningStage = "scheduled"
	DeprovisioningStageReminder  DeprovisioningStage = "reminder"
	DeprovisioningStageFinal     DeprovisioningStage = "final_warning"
	DeprovisioningStageExecution DeprovisioningStage = "execution"
	DeprovisioningStageDone      DeprovisioningStage = "done"
)

// DeprovisioningWorkflowResult summarises a run. Progress queries return the
// same shape while the run is in flight.
type DeprovisioningWorkflowResult struct {
	OrganizationID string              `json:"organization_id"`
	BatchID        string              `json:"batch_id"`
	Stage          DeprovisioningStage `json:"stage"`
	Canceled       bool                `json:"canceled"`
	StoppedEarly   bool                `json:"stopped_early"`
	Notified       map[string]int      `json:"notified"`
	SuccessCount   int                 `json:"success_count"`
	FailureCount   int                 `json:"failure_count"`
	SkippedCount   int                 `json:"skipped_count"`
}

// CancelDeprovisioningSignal is matched against the workflow's organization.
type CancelDeprovisioningSignal struct {
	OrganizationID string            `json:"organization_id"`
	Status         types.QueueStatus `json:"status,omitempty"`
}

// StageEntriesInput selects the batch entries due for a notification level or
// for execution, evaluated at AsOf.
type StageEntriesInput struct {
	OrganizationID string                  `json:"organization_id"`
	BatchID        string                  `json:"batch_id"`
	QueueEntryIDs  []string                `json:"queue_entry_ids"`
	Level          types.NotificationLevel `json:"level,omitempty"`
	AsOf           time.Time               `json:"as_of"`
}

// StageEntries is the outcome of a stage re-check.
type StageEntries struct {
	QueueEntryIDs        []string  `json:"queue_entry_ids"`
	UserIDs              []string  `json:"user_ids"`
	EarliestScheduledFor time.Time `json:"earliest_scheduled_for"`
}

type AdvanceNotificationsInput struct {
	QueueEntryIDs []string                `json:"queue_entry_ids"`
	Level         types.NotificationLevel `json:"level"`
	AsOf          time.Time               `json:"as_of"`
}

type ExecuteDeactivationInput struct {
	QueueEntryID string    `json:"queue_entry_id"`
	AsOf         time.Time `json:"as_of"`
}

// WorkflowRun identifies a started (or already running) workflow execution.
type WorkflowRun struct {
	WorkflowID     string `json:"workflow_id"`
	RunID          string `json:"run_id,omitempty"`
	AlreadyStarted bool   `json:"already_started,omitempty"`
}
