package interceptor

import (
	"context"
	"fmt"
	"strconv"

	ierr "github.com/flexprice/deprovisioner/internal/errors"
	"github.com/flexprice/deprovisioner/internal/sentry"
	sentrygo "github.com/getsentry/sentry-go"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/interceptor"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// SentryInterceptor reports failed deprovisioning workflows and activities to Sentry
type SentryInterceptor struct {
	interceptor.WorkerInterceptorBase
	sentry *sentry.Service
}

func NewSentryInterceptor(sentryService *sentry.Service) *SentryInterceptor {
	return &SentryInterceptor{
		sentry: sentryService,
	}
}

func (s *SentryInterceptor) InterceptWorkflow(_ workflow.Context, next interceptor.WorkflowInboundInterceptor) interceptor.WorkflowInboundInterceptor {
	return &workflowInboundInterceptor{
		WorkflowInboundInterceptorBase: interceptor.WorkflowInboundInterceptorBase{
			Next: next,
		},
		sentry: s.sentry,
	}
}

func (s *SentryInterceptor) InterceptActivity(_ context.Context, next interceptor.ActivityInboundInterceptor) interceptor.ActivityInboundInterceptor {
	return &activityInboundInterceptor{
		ActivityInboundInterceptorBase: interceptor.ActivityInboundInterceptorBase{
			Next: next,
		},
		sentry: s.sentry,
	}
}

type workflowInboundInterceptor struct {
	interceptor.WorkflowInboundInterceptorBase
	sentry *sentry.Service
}

func (w *workflowInboundInterceptor) ExecuteWorkflow(ctx workflow.Context, in *interceptor.ExecuteWorkflowInput) (interface{}, error) {
	result, err := w.Next.ExecuteWorkflow(ctx, in)
	if err == nil || temporal.IsCanceledError(err) || !w.sentry.IsEnabled() {
		return result, err
	}

	// Replays re-run this; only report from the live execution.
	if workflow.IsReplaying(ctx) {
		return result, err
	}

	info := workflow.GetInfo(ctx)
	workflow.GetLogger(ctx).Error("Workflow failed, reporting to Sentry", "error", err)
	w.sentry.CaptureException(fmt.Errorf("temporal workflow %s failed: %w", info.WorkflowType.Name, err), map[string]string{
		"workflow_type": info.WorkflowType.Name,
		"workflow_id":   info.WorkflowExecution.ID,
		"run_id":        info.WorkflowExecution.RunID,
		"task_queue":    info.TaskQueueName,
	})
	return result, err
}

type activityInboundInterceptor struct {
	interceptor.ActivityInboundInterceptorBase
	sentry *sentry.Service
}

func (a *activityInboundInterceptor) ExecuteActivity(ctx context.Context, in *interceptor.ExecuteActivityInput) (interface{}, error) {
	if !a.sentry.IsEnabled() {
		return a.Next.ExecuteActivity(ctx, in)
	}

	info := activity.GetInfo(ctx)
	span, spanCtx := a.sentry.StartMonitoringSpan(ctx, "temporal.activity."+info.ActivityType.Name, map[string]interface{}{
		"activity_type": info.ActivityType.Name,
		"workflow_id":   info.WorkflowExecution.ID,
		"attempt":       info.Attempt,
	})

	result, err := a.Next.ExecuteActivity(spanCtx, in)

	if span != nil {
		if err != nil {
			span.Status = sentrygo.SpanStatusInternalError
			span.SetData("error", err.Error())
		}
		span.Finish()
	}

	// Entries that changed under the workflow are expected, not incidents.
	if err != nil && !ierr.IsNotFound(err) && !ierr.IsInvalidOperation(err) {
		a.sentry.CaptureException(fmt.Errorf("temporal activity %s failed: %w", info.ActivityType.Name, err), map[string]string{
			"activity_type": info.ActivityType.Name,
			"workflow_id":   info.WorkflowExecution.ID,
			"attempt":       strconv.Itoa(int(info.Attempt)),
		})
	}
	return result, err
}
