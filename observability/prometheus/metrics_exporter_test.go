package prometheus

import (
	"context"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"

	"github.com/Swind/go-task-scheduler/core"
)

func TestMetricsExporter_RecordMethods(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("tasksched", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	exporter.RecordTaskDuration("sched-a", core.TaskPriorityUserVisible, 250*time.Millisecond)
	exporter.RecordTaskPanic("sched-a", "panic")
	exporter.RecordQueueDepth("sched-a", 7)
	exporter.RecordTaskRejected("sched-a", "shutdown")

	panicTotal := testutil.ToFloat64(exporter.taskPanicTotal.WithLabelValues("sched-a"))
	if panicTotal != 1 {
		t.Fatalf("panic total = %v, want 1", panicTotal)
	}

	queueDepth := testutil.ToFloat64(exporter.waitingTasks.WithLabelValues("sched-a"))
	if queueDepth != 7 {
		t.Fatalf("queue depth = %v, want 7", queueDepth)
	}

	exporter.RecordTaskCanceled("sched-a", core.CanceledWhileQueued)
	exporter.RecordTaskCanceled("sched-a", core.CanceledWhileQueued)
	if got := testutil.ToFloat64(exporter.taskCanceledTotal.WithLabelValues("sched-a", "queued")); got != 2 {
		t.Fatalf("canceled total = %v, want 2", got)
	}

	rejected := testutil.ToFloat64(exporter.taskRejectedTotal.WithLabelValues("sched-a", "shutdown"))
	if rejected != 1 {
		t.Fatalf("rejected total = %v, want 1", rejected)
	}

	histCount, err := histogramSampleCount(exporter.taskDurationSeconds.WithLabelValues("sched-a", "user_visible"))
	if err != nil {
		t.Fatalf("histogramSampleCount failed: %v", err)
	}
	if histCount != 1 {
		t.Fatalf("duration sample count = %d, want 1", histCount)
	}
}

func TestMetricsExporter_AlreadyRegisteredReuse(t *testing.T) {
	reg := prom.NewRegistry()
	first, err := NewMetricsExporter("tasksched", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("first NewMetricsExporter failed: %v", err)
	}
	second, err := NewMetricsExporter("tasksched", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("second NewMetricsExporter failed: %v", err)
	}

	first.RecordTaskPanic("sched-a", nil)
	second.RecordTaskPanic("sched-a", nil)

	got := testutil.ToFloat64(first.taskPanicTotal.WithLabelValues("sched-a"))
	if got != 2 {
		t.Fatalf("shared panic counter = %v, want 2", got)
	}
}

func TestPriorityLabel(t *testing.T) {
	if got := priorityLabel(core.TaskPriorityBestEffort); got != "best_effort" {
		t.Fatalf("priorityLabel(best effort) = %s", got)
	}
	if got := priorityLabel(1500); got != "1500" {
		t.Fatalf("priorityLabel(1500) = %s, want 1500", got)
	}
}

// TestMetricsExporter_WiredIntoScheduler verifies the exporter as scheduler Metrics
func TestMetricsExporter_WiredIntoScheduler(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}
	cfg := core.DefaultTasksSchedulerConfig(core.UniformAllocations(1))
	cfg.Name = "wired"
	cfg.Logger = core.NewNoOpLogger()
	cfg.Executor = core.InlineExecutor()
	cfg.Metrics = exporter
	s := core.NewTasksSchedulerWithConfig(cfg)

	s.Schedule(core.NewTask(func(ctx context.Context) (int, error) { return 1, nil }, core.TraitsUserBlocking()))

	histCount, err := histogramSampleCount(exporter.taskDurationSeconds.WithLabelValues("wired", "user_blocking"))
	if err != nil || histCount != 1 {
		t.Fatalf("duration sample count = %d (%v), want 1", histCount, err)
	}
}

func histogramSampleCount(observer prom.Observer) (uint64, error) {
	collector, ok := observer.(prom.Collector)
	if !ok {
		return 0, nil
	}

	metricCh := make(chan prom.Metric, 1)
	collector.Collect(metricCh)
	close(metricCh)
	for metric := range metricCh {
		msg := &dto.Metric{}
		if err := metric.Write(msg); err != nil {
			return 0, err
		}
		if msg.Histogram != nil {
			return msg.Histogram.GetSampleCount(), nil
		}
	}
	return 0, nil
}
