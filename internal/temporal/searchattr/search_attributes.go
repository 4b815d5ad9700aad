package searchattr

// Helpers for the custom search attributes set by the deprovisioning workflow.
//
// They are fail-safe: panics are recovered and upsert errors are logged as
// warnings, so a namespace without the attributes registered still runs
// workflows normally.

import (
	"fmt"
	"strings"

	"go.temporal.io/sdk/workflow"
)

const (
	// These must be registered in the Temporal namespace before use.
	SearchAttributeOrganizationID  = "OrganizationID"
	SearchAttributeBatchID         = "DeprovisioningBatchID"
	SearchAttributeStage           = "DeprovisioningStage"
	SearchAttributeFailingActivity = "FailingActivity"
	SearchAttributeFailureReason   = "FailureReason"
)

// UpsertDeprovisioningSearchAttributes tags the run with its organization and batch.
func UpsertDeprovisioningSearchAttributes(ctx workflow.Context, organizationID, batchID string) {
	attrs := map[string]interface{}{}
	if organizationID != "" {
		attrs[SearchAttributeOrganizationID] = organizationID
	}
	if batchID != "" {
		attrs[SearchAttributeBatchID] = batchID
	}
	upsert(ctx, "deprovisioning", attrs)
}

// UpsertStageSearchAttribute records the stage the run has reached.
func UpsertStageSearchAttribute(ctx workflow.Context, stage string) {
	if stage == "" {
		return
	}
	upsert(ctx, "stage", map[string]interface{}{SearchAttributeStage: stage})
}

// UpsertFailureSearchAttributes records which activity failed and why.
func UpsertFailureSearchAttributes(ctx workflow.Context, activityName string, err error) {
	if err == nil {
		return
	}
	attrs := map[string]interface{}{
		SearchAttributeFailureReason: truncateString(err.Error(), 2000),
	}
	if activityName != "" {
		attrs[SearchAttributeFailingActivity] = activityName
	}
	upsert(ctx, "failure", attrs)
}

func upsert(ctx workflow.Context, kind string, attrs map[string]interface{}) {
	if ctx == nil || len(attrs) == 0 {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			workflow.GetLogger(ctx).Warn("Recovered from panic while upserting search attributes",
				"kind", kind, "panic", r)
		}
	}()

	if err := workflow.UpsertSearchAttributes(ctx, attrs); err != nil {
		workflow.GetLogger(ctx).Warn("Failed to upsert search attributes (non-critical)",
			"kind", kind,
			"error", err.Error())
	}
}

func truncateString(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	if maxLen > 3 {
		return s[:maxLen-3] + "..."
	}
	return s[:maxLen]
}

// RunningDeprovisioningQuery is the visibility query for an organization's
// open deprovisioning workflows.
func RunningDeprovisioningQuery(workflowType, organizationID string) string {
	return fmt.Sprintf("WorkflowType = '%s' AND ExecutionStatus = 'Running' AND %s = '%s'",
		workflowType, SearchAttributeOrganizationID, strings.ReplaceAll(organizationID, "'", ""))
}
