package channel

import (
	"fmt"
	"strings"

	"github.com/complytrack/alert-engine/internal/model"
	"github.com/complytrack/alert-engine/internal/urgency"
)

// Render builds the per-channel content for an alert. Email subject and
// visual treatment follow the urgency tier; the critical template is
// deliberately loud. SMS is a single urgency-prefixed line.
func Render(alert *model.Alert, ackBaseURL string) *Message {
	msg := &Message{
		AlertID: alert.ID,
		Urgency: alert.Urgency,
	}

	due := alert.DueAt.Format("Jan 2, 2006")
	days := urgency.DaysUntil(alert.DueAt, alert.ScheduledFor)

	switch alert.Channel {
	case model.ChannelSMS:
		msg.Body = fmt.Sprintf("[%s] %s due %s. Reply DONE to acknowledge.",
			strings.ToUpper(alert.Urgency), alert.DeadlineTitle, due)
	default:
		msg.Subject = emailSubject(alert, due)
		msg.Body = emailText(alert, due, days)
		msg.HTMLBody = emailHTML(alert, due, ackURL(ackBaseURL, alert))
	}
	return msg
}

func ackURL(base string, alert *model.Alert) string {
	if base == "" {
		return ""
	}
	return fmt.Sprintf("%s/api/v1/alerts/%s/acknowledge", strings.TrimRight(base, "/"), alert.ID)
}

func emailSubject(alert *model.Alert, due string) string {
	switch urgency.Tier(alert.Urgency) {
	case urgency.TierCritical:
		return fmt.Sprintf("ACTION REQUIRED: %s due %s", alert.DeadlineTitle, due)
	case urgency.TierHigh:
		return fmt.Sprintf("Due tomorrow: %s", alert.DeadlineTitle)
	case urgency.TierMedium:
		return fmt.Sprintf("Due soon: %s (%s)", alert.DeadlineTitle, due)
	default:
		return fmt.Sprintf("Upcoming deadline: %s (%s)", alert.DeadlineTitle, due)
	}
}

func emailText(alert *model.Alert, due string, days int) string {
	when := fmt.Sprintf("in %d day(s)", days)
	if days <= 0 {
		when = "now"
	}
	return fmt.Sprintf("The compliance deadline %q is due %s (%s).", alert.DeadlineTitle, due, when)
}

func emailHTML(alert *model.Alert, due, ack string) string {
	var b strings.Builder

	banner := "#2563eb"
	label := "Deadline reminder"
	if urgency.Tier(alert.Urgency) == urgency.TierCritical {
		banner = "#dc2626"
		label = "Critical compliance deadline"
	}

	fmt.Fprintf(&b, `<div style="font-family:sans-serif;max-width:600px">`)
	fmt.Fprintf(&b, `<div style="background:%s;color:#fff;padding:12px 16px;font-weight:bold">%s</div>`, banner, label)
	fmt.Fprintf(&b, `<div style="padding:16px;border:1px solid #e5e7eb">`)
	fmt.Fprintf(&b, `<p><strong>%s</strong> is due <strong>%s</strong>.</p>`, alert.DeadlineTitle, due)
	if urgency.Tier(alert.Urgency) == urgency.TierCritical {
		fmt.Fprintf(&b, `<p style="color:%s">This deadline requires immediate attention.</p>`, banner)
	}
	if ack != "" {
		fmt.Fprintf(&b, `<p><a href="%s" style="background:%s;color:#fff;padding:10px 18px;text-decoration:none;border-radius:4px">Mark as done</a></p>`, ack, banner)
	}
	fmt.Fprintf(&b, `</div></div>`)
	return b.String()
}
