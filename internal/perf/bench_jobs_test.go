package perf

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"

	jobmetrics "github.com/munesh14/first-exchange-hub-sub000/internal/jobs"
	"github.com/munesh14/first-exchange-hub-sub000/internal/lpo"
	"github.com/munesh14/first-exchange-hub-sub000/jobs"
)

type flakySender struct {
	calls   int
	failNth int
	delay   time.Duration
}

func (s *flakySender) Send(_ context.Context, _ lpo.VendorDispatch) (string, error) {
	s.calls++
	time.Sleep(s.delay)
	if s.failNth > 0 && s.calls%s.failNth == 0 {
		return "", errors.New("vendor gateway timeout")
	}
	return "log", nil
}

func TestVendorDispatchThroughputAndReliability(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	sender := &flakySender{failNth: 25, delay: 2 * time.Millisecond}
	job := jobs.NewVendorDispatchJob(sender, nil, metrics)

	for i := 1; i <= 100; i++ {
		task, err := jobs.NewVendorDispatchTask(lpo.VendorDispatch{
			OrderID:  int64(i),
			Number:   "LPO-2026-00001",
			VendorID: 3,
			Currency: "AED",
			Total:    decimal.NewFromInt(int64(i * 10)),
			SentBy:   1,
			SentAt:   time.Now(),
		})
		if err != nil {
			t.Fatalf("build task: %v", err)
		}
		_ = job.Handle(context.Background(), task)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	success := metricValue(t, families, "hub_jobs_total", map[string]string{"job": jobs.TaskVendorDispatch, "status": "success"})
	failure := metricValue(t, families, "hub_jobs_total", map[string]string{"job": jobs.TaskVendorDispatch, "status": "failure"})
	if success+failure != 100 {
		t.Fatalf("expected 100 dispatch executions, got %v", success+failure)
	}
	if ratio := success / (success + failure); ratio < 0.95 {
		t.Fatalf("dispatch success ratio too low: %f", ratio)
	}
	if delivered := metricValue(t, families, "hub_vendor_dispatch_total", map[string]string{"channel": "log"}); delivered != success {
		t.Fatalf("dispatch counter %v does not match successes %v", delivered, success)
	}

	mean := histogramMean(t, families, "hub_job_duration_seconds", map[string]string{"job": jobs.TaskVendorDispatch})
	if mean > 0.5 {
		t.Fatalf("dispatch duration above budget: %f", mean)
	}
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				if fam.GetType() == dto.MetricType_COUNTER {
					return metric.GetCounter().GetValue()
				}
				if fam.GetType() == dto.MetricType_GAUGE {
					return metric.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramMean(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				hist := metric.GetHistogram()
				if hist == nil || hist.GetSampleCount() == 0 {
					t.Fatalf("histogram %s missing samples", name)
				}
				return hist.GetSampleSum() / float64(hist.GetSampleCount())
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	matched := 0
	for _, lp := range metric.GetLabel() {
		val, ok := labels[lp.GetName()]
		if !ok {
			continue
		}
		if lp.GetValue() != val {
			return false
		}
		matched++
	}
	return matched == len(labels)
}
