package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tasksDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dagon",
		Name:      "tasks_dispatched_total",
		Help:      "Tasks handed to an execution backend.",
	}, []string{"workflow", "type"})

	tasksCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dagon",
		Name:      "tasks_completed_total",
		Help:      "Tasks that reached a terminal status.",
	}, []string{"workflow", "status"})

	taskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "dagon",
		Name:      "task_duration_seconds",
		Help:      "Wall time of task execution including cleanup.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
	}, []string{"workflow", "type"})

	tasksRunning = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "dagon",
		Name:      "tasks_running",
		Help:      "Tasks currently in RUNNING status.",
	}, []string{"workflow"})

	workflowRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dagon",
		Name:      "workflow_runs_total",
		Help:      "Finished workflow runs by outcome.",
	}, []string{"status"})

	checkpointsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dagon",
		Name:      "checkpoints_written_total",
		Help:      "Checkpoint files written.",
	})
)

// TaskDispatched отмечает передачу задачи backend'у.
func TaskDispatched(workflow, typ string) {
	tasksDispatched.WithLabelValues(workflow, typ).Inc()
	tasksRunning.WithLabelValues(workflow).Inc()
}

// TaskCompleted отмечает завершение выполнявшейся задачи.
func TaskCompleted(workflow, typ, status string, d time.Duration) {
	tasksRunning.WithLabelValues(workflow).Dec()
	tasksCompleted.WithLabelValues(workflow, status).Inc()
	taskDuration.WithLabelValues(workflow, typ).Observe(d.Seconds())
}

// TaskSkipped отмечает задачу, пропущенную из-за упавшей зависимости.
func TaskSkipped(workflow string) {
	tasksCompleted.WithLabelValues(workflow, "SKIPPED").Inc()
}

// WorkflowFinished отмечает завершение прогона workflow.
func WorkflowFinished(status string) {
	workflowRuns.WithLabelValues(status).Inc()
}

// CheckpointWritten отмечает запись файла checkpoint.
func CheckpointWritten() {
	checkpointsWritten.Inc()
}
