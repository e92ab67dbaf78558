package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/munesh14/first-exchange-hub-sub000/internal/lpo"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueCritical carries vendor-facing work ahead of housekeeping.
	QueueCritical = "critical"
	// TaskVendorDispatch hands a sent order to its vendor.
	TaskVendorDispatch = "lpo:vendor_dispatch"
	// TaskAssetPendingReminder reports assets still awaiting activation.
	TaskAssetPendingReminder = "assets:pending_reminder"
)

// DefaultReminderAge is used when the reminder payload carries no age.
const DefaultReminderAge = 7 * 24 * time.Hour

// NewVendorDispatchTask constructs the dispatch task. The task id is derived
// from the order so a retried send does not queue a second dispatch.
func NewVendorDispatchTask(d lpo.VendorDispatch) (*asynq.Task, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskVendorDispatch, data,
		asynq.Queue(QueueCritical),
		asynq.MaxRetry(8),
		asynq.TaskID(fmt.Sprintf("lpo-dispatch-%d", d.OrderID)),
	), nil
}

// AssetReminderPayload configures the pending-asset reminder.
type AssetReminderPayload struct {
	AgeHours int `json:"age_hours"`
}

// Age returns the reminder age, falling back to DefaultReminderAge.
func (p AssetReminderPayload) Age() time.Duration {
	if p.AgeHours <= 0 {
		return DefaultReminderAge
	}
	return time.Duration(p.AgeHours) * time.Hour
}

// NewAssetReminderTask constructs the reminder task.
func NewAssetReminderTask(age time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(AssetReminderPayload{AgeHours: int(age / time.Hour)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAssetPendingReminder, data, asynq.Queue(QueueDefault)), nil
}
