package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/munesh14/first-exchange-hub-sub000/internal/assets"
	jobmetrics "github.com/munesh14/first-exchange-hub-sub000/internal/jobs"
)

// PendingAssetLister returns assets still awaiting activation.
type PendingAssetLister interface {
	ListPendingSince(ctx context.Context, receivedBefore time.Time) ([]assets.Asset, error)
}

// AssetReminderJob surfaces assets received but never put to use.
type AssetReminderJob struct {
	Assets  PendingAssetLister
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewAssetReminderJob initialises the reminder handler.
func NewAssetReminderJob(lister PendingAssetLister, logger *slog.Logger, metrics *jobmetrics.Metrics) *AssetReminderJob {
	return &AssetReminderJob{
		Assets:  lister,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle lists overdue pending assets and publishes the gauge.
func (j *AssetReminderJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Assets == nil {
		return errors.New("asset reminder: handler not configured")
	}
	var payload AssetReminderPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := j.Metrics.Track(TaskAssetPendingReminder)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	cutoff := j.now().Add(-payload.Age())
	logger := j.logger().With(slog.Time("received_before", cutoff))
	pending, err := j.Assets.ListPendingSince(ctx, cutoff)
	if err != nil {
		logger.Error("list pending assets", slog.Any("error", err))
		return err
	}
	for _, a := range pending {
		logger.Warn("asset awaiting activation",
			slog.Int64("asset_id", a.ID),
			slog.String("tag", a.Tag),
			slog.Int64("order_id", a.OrderID),
			slog.Time("received_at", a.ReceivedAt),
		)
	}
	j.Metrics.SetPendingAssets(len(pending))
	logger.Info("completed pending asset scan", slog.Int("pending", len(pending)))
	return nil
}

func (j *AssetReminderJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

func (j *AssetReminderJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
