package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/munesh14/first-exchange-hub-sub000/internal/jobs"
	"github.com/munesh14/first-exchange-hub-sub000/internal/lpo"
	"github.com/munesh14/first-exchange-hub-sub000/internal/platform/messaging"
)

// VendorSender delivers a dispatch over some channel and reports which one.
type VendorSender interface {
	Send(ctx context.Context, d lpo.VendorDispatch) (channel string, err error)
}

// LogSender records the dispatch in the worker log only.
type LogSender struct {
	Logger *slog.Logger
}

// Send implements VendorSender.
func (s LogSender) Send(_ context.Context, d lpo.VendorDispatch) (string, error) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("vendor dispatch recorded",
		slog.String("number", d.Number),
		slog.Int64("vendor_id", d.VendorID),
		slog.String("vendor", d.VendorName),
		slog.String("total", d.Total.String()),
		slog.String("currency", d.Currency),
	)
	return "log", nil
}

// TopicSender forwards the dispatch to the vendor integration topic.
type TopicSender struct {
	Publisher messaging.Publisher
}

// Send implements VendorSender.
func (s TopicSender) Send(ctx context.Context, d lpo.VendorDispatch) (string, error) {
	if s.Publisher == nil {
		return "", errors.New("vendor dispatch: publisher not configured")
	}
	if err := s.Publisher.Publish(ctx, d.Number, d); err != nil {
		return "", err
	}
	return "kafka", nil
}

// VendorDispatchJob processes TaskVendorDispatch tasks.
type VendorDispatchJob struct {
	Sender  VendorSender
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewVendorDispatchJob wires the dispatch handler.
func NewVendorDispatchJob(sender VendorSender, logger *slog.Logger, metrics *jobmetrics.Metrics) *VendorDispatchJob {
	return &VendorDispatchJob{Sender: sender, Logger: logger, Metrics: metrics}
}

// Handle delivers one dispatch. Malformed payloads are not retried.
func (j *VendorDispatchJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Sender == nil {
		return errors.New("vendor dispatch: handler not configured")
	}
	var payload lpo.VendorDispatch
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.OrderID == 0 {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskVendorDispatch)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int64("order_id", payload.OrderID), slog.String("number", payload.Number))
	channel, err := j.Sender.Send(ctx, payload)
	if err != nil {
		logger.Error("vendor dispatch failed", slog.Any("error", err))
		return err
	}
	j.Metrics.AddDispatched(channel)
	logger.Info("vendor dispatch delivered", slog.String("channel", channel))
	return nil
}

func (j *VendorDispatchJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
