package types

import (
	"time"

	ierr "github.com/flexprice/deprovisioner/internal/errors"
	"github.com/samber/lo"
)

// QueueStatus is the lifecycle state of a deprovisioning queue entry.
type QueueStatus string

const (
	QueueStatusPending          QueueStatus = "PENDING"
	QueueStatusNotifiedOnce     QueueStatus = "NOTIFIED_ONCE"
	QueueStatusNotifiedReminder QueueStatus = "NOTIFIED_REMINDER"
	QueueStatusNotifiedFinal    QueueStatus = "NOTIFIED_FINAL"
	QueueStatusCompleted        QueueStatus = "COMPLETED"
	QueueStatusCanceledUpgrade  QueueStatus = "CANCELED_UPGRADE"
	QueueStatusCanceledManual   QueueStatus = "CANCELED_MANUAL"
	QueueStatusCanceledUserLeft QueueStatus = "CANCELED_USER_LEFT"
)

// ActiveQueueStatuses are the non-absorbing states.
var ActiveQueueStatuses = []QueueStatus{
	QueueStatusPending,
	QueueStatusNotifiedOnce,
	QueueStatusNotifiedReminder,
	QueueStatusNotifiedFinal,
}

// CancellationStatuses are the states reachable through cancel.
var CancellationStatuses = []QueueStatus{
	QueueStatusCanceledUpgrade,
	QueueStatusCanceledManual,
	QueueStatusCanceledUserLeft,
}

type queueTransition struct {
	From QueueStatus
	To   QueueStatus
}

var validQueueTransitions = map[queueTransition]bool{
	{QueueStatusPending, QueueStatusNotifiedOnce}:           true,
	{QueueStatusNotifiedOnce, QueueStatusNotifiedReminder}:  true,
	{QueueStatusNotifiedReminder, QueueStatusNotifiedFinal}: true,
	{QueueStatusNotifiedFinal, QueueStatusCompleted}:        true,
}

func init() {
	for _, from := range ActiveQueueStatuses {
		for _, to := range CancellationStatuses {
			validQueueTransitions[queueTransition{from, to}] = true
		}
	}
}

// IsTerminal reports whether the status is absorbing.
func (s QueueStatus) IsTerminal() bool {
	return !lo.Contains(ActiveQueueStatuses, s)
}

// IsCanceled reports whether the status is one of the cancellation exits.
func (s QueueStatus) IsCanceled() bool {
	return lo.Contains(CancellationStatuses, s)
}

// CanTransitionTo reports whether s → to is a legal state change.
func (s QueueStatus) CanTransitionTo(to QueueStatus) bool {
	return validQueueTransitions[queueTransition{s, to}]
}

func (s QueueStatus) Validate() error {
	if lo.Contains(ActiveQueueStatuses, s) || s == QueueStatusCompleted || s.IsCanceled() {
		return nil
	}
	return ierr.NewErrorf("invalid queue status %q", string(s)).
		WithHint("Unknown deprovisioning queue status").
		Mark(ierr.ErrValidation)
}

// DeprovisioningReason records why an entry was queued.
type DeprovisioningReason string

const (
	DeprovisioningReasonSubscriptionDowngrade DeprovisioningReason = "SUBSCRIPTION_DOWNGRADE"
	DeprovisioningReasonSubscriptionCancelled DeprovisioningReason = "SUBSCRIPTION_CANCELLED"
)

func (r DeprovisioningReason) Validate() error {
	switch r {
	case DeprovisioningReasonSubscriptionDowngrade, DeprovisioningReasonSubscriptionCancelled:
		return nil
	}
	return ierr.NewErrorf("invalid deprovisioning reason %q", string(r)).
		WithHint("Reason must be SUBSCRIPTION_DOWNGRADE or SUBSCRIPTION_CANCELLED").
		Mark(ierr.ErrValidation)
}

// NotificationLevel identifies one step of the admin notification cadence.
type NotificationLevel string

const (
	NotificationLevelScheduled NotificationLevel = "scheduled"
	NotificationLevelReminder  NotificationLevel = "reminder"
	NotificationLevelFinal     NotificationLevel = "final"
)

// RequiredStatus is the status an entry must be in to receive this level.
func (l NotificationLevel) RequiredStatus() QueueStatus {
	switch l {
	case NotificationLevelReminder:
		return QueueStatusNotifiedOnce
	case NotificationLevelFinal:
		return QueueStatusNotifiedReminder
	default:
		return QueueStatusPending
	}
}

// NextStatus is the status an entry moves to once this level was sent.
func (l NotificationLevel) NextStatus() QueueStatus {
	switch l {
	case NotificationLevelReminder:
		return QueueStatusNotifiedReminder
	case NotificationLevelFinal:
		return QueueStatusNotifiedFinal
	default:
		return QueueStatusNotifiedOnce
	}
}

func (l NotificationLevel) Template() NotificationTemplate {
	switch l {
	case NotificationLevelReminder:
		return NotificationTemplateReminder
	case NotificationLevelFinal:
		return NotificationTemplateFinalWarning
	default:
		return NotificationTemplateScheduledRemoval
	}
}

func (l NotificationLevel) Validate() error {
	switch l {
	case NotificationLevelScheduled, NotificationLevelReminder, NotificationLevelFinal:
		return nil
	}
	return ierr.NewErrorf("invalid notification level %q", string(l)).
		WithHint("Level must be scheduled, reminder or final").
		Mark(ierr.ErrValidation)
}

// NotificationTemplate names an admin email template.
type NotificationTemplate string

const (
	NotificationTemplateScheduledRemoval NotificationTemplate = "deprovisioning-scheduled"
	NotificationTemplateReminder         NotificationTemplate = "deprovisioning-reminder"
	NotificationTemplateFinalWarning     NotificationTemplate = "deprovisioning-final-warning"
	NotificationTemplateRemovalCompleted NotificationTemplate = "deprovisioning-completed"
	NotificationTemplateRemovalCanceled  NotificationTemplate = "deprovisioning-canceled"
)

func (t NotificationTemplate) String() string {
	return string(t)
}

// UrgencyLevel drives the admin warning banner.
type UrgencyLevel string

const (
	UrgencyLevelInfo     UrgencyLevel = "info"
	UrgencyLevelWarning  UrgencyLevel = "warning"
	UrgencyLevelCritical UrgencyLevel = "critical"
)

// UrgencyForDaysRemaining classifies days left until removal.
func UrgencyForDaysRemaining(days int) UrgencyLevel {
	switch {
	case days <= 1:
		return UrgencyLevelCritical
	case days <= 7:
		return UrgencyLevelWarning
	default:
		return UrgencyLevelInfo
	}
}

// DaysUntil returns whole days from now until t, rounded up, never negative.
func DaysUntil(now, t time.Time) int {
	d := t.Sub(now)
	if d <= 0 {
		return 0
	}
	days := int(d / (24 * time.Hour))
	if d%(24*time.Hour) != 0 {
		days++
	}
	return days
}

// HoursUntil returns whole hours from now until t, rounded up, never negative.
func HoursUntil(now, t time.Time) int {
	d := t.Sub(now)
	if d <= 0 {
		return 0
	}
	hours := int(d / time.Hour)
	if d%time.Hour != 0 {
		hours++
	}
	return hours
}

// ExecutionOutcome classifies the result of a deactivation attempt.
type ExecutionOutcome string

const (
	ExecutionOutcomeDeactivated ExecutionOutcome = "deactivated"
	ExecutionOutcomeNoop        ExecutionOutcome = "noop"
	ExecutionOutcomeSkipped     ExecutionOutcome = "skipped"
	ExecutionOutcomeFailed      ExecutionOutcome = "failed"
)

func (o ExecutionOutcome) String() string {
	return string(o)
}
