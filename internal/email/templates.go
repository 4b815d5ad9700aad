package email

import "github.com/flexprice/deprovisioner/internal/types"

const layoutStart = `<!DOCTYPE html>
<html>
<head>
    <meta http-equiv="Content-Type" content="text/html; charset=UTF-8" />
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Helvetica, Arial, sans-serif; font-size: 14px; line-height: 1.6; color: #333;">
    <p>Hi {{.admin_name}},</p>
`

const layoutEnd = `
    <p>If you believe this is a mistake, an administrator can request a one time extension or upgrade the plan from the billing page.</p>
</body>
</html>`

// emailTemplates are keyed by notification template name.
var emailTemplates = map[string]string{
	types.NotificationTemplateScheduledRemoval.String(): layoutStart + `
    <p>The subscription for <strong>{{.organization_name}}</strong> no longer covers all of its members.
    The following {{len .affected_user_ids}} member(s) are scheduled for removal on <strong>{{.scheduled_for}}</strong>:</p>
    <ul>{{range .affected_user_ids}}<li>{{.}}</li>{{end}}</ul>
` + layoutEnd,

	types.NotificationTemplateReminder.String(): layoutStart + `
    <p>Reminder: members of <strong>{{.organization_name}}</strong> will be removed in <strong>{{.days_remaining}} day(s)</strong>
    because the current plan allows fewer members.</p>
` + layoutEnd,

	types.NotificationTemplateFinalWarning.String(): layoutStart + `
    <p><strong>Final warning:</strong> members of <strong>{{.organization_name}}</strong> will be removed in
    <strong>{{.hours_remaining}} hour(s)</strong>.</p>
` + layoutEnd,

	types.NotificationTemplateRemovalCompleted.String(): `<!DOCTYPE html>
<html>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Helvetica, Arial, sans-serif; font-size: 14px; line-height: 1.6; color: #333;">
    <p>Hi {{.admin_name}},</p>
    <p>{{.count}} member(s) of <strong>{{.organization_name}}</strong> were deactivated to match the current plan.
    Their content is kept and they can be re-added after an upgrade.</p>
</body>
</html>`,

	types.NotificationTemplateRemovalCanceled.String(): `<!DOCTYPE html>
<html>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Helvetica, Arial, sans-serif; font-size: 14px; line-height: 1.6; color: #333;">
    <p>Hi {{.admin_name}},</p>
    <p>Good news: the plan for <strong>{{.organization_name}}</strong> was upgraded and the scheduled removal of
    {{.count}} member(s) has been canceled.</p>
</body>
</html>`,
}

var emailSubjects = map[types.NotificationTemplate]string{
	types.NotificationTemplateScheduledRemoval: "Members scheduled for removal from %s",
	types.NotificationTemplateReminder:         "Reminder: member removal in %s is approaching",
	types.NotificationTemplateFinalWarning:     "Final warning: members of %s will be removed soon",
	types.NotificationTemplateRemovalCompleted: "Members removed from %s",
	types.NotificationTemplateRemovalCanceled:  "Member removal canceled for %s",
}
