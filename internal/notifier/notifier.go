package notifier

import (
	"time"

	"github.com/meywd/benchforge/internal/models"
)

// Notifier delivers benchmark lifecycle events to an external channel.
// Delivery is fire-and-forget: a failed or dropped notification must never
// fail the orchestration operation that produced it.
type Notifier interface {
	Notify(n *models.Notification)
	Close() error
}

// NopNotifier discards every notification. Useful in tests and when no
// notification channel is configured.
type NopNotifier struct{}

func (NopNotifier) Notify(*models.Notification) {}
func (NopNotifier) Close() error                { return nil }

// NewEvent builds a notification with the creation timestamp set.
func NewEvent(t models.NotificationType, benchmarkID, orgID, userID, message string, data map[string]interface{}) *models.Notification {
	return &models.Notification{
		Type:           t,
		BenchmarkID:    benchmarkID,
		OrganizationID: orgID,
		UserID:         userID,
		Message:        message,
		Data:           data,
		CreatedAt:      time.Now(),
	}
}
