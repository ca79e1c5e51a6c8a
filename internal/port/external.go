package port

import (
	"context"

	"github.com/taskflow/taskflow/internal/models"
)

// Broadcaster pushes realtime events to subscribed channels. Delivery is
// best effort; callers log failures and move on.
type Broadcaster interface {
	Publish(channels []string, event string, payload map[string]any)
}

// Mailer sends escalation mail to supervisors
type Mailer interface {
	SendEscalation(ctx context.Context, supervisor *models.User, task *models.Task, daysOverdue int) error
}
