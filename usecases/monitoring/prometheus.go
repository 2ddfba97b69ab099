//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ / / |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2025 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "chanstore"

type PrometheusMetrics struct {
	Registerer prometheus.Registerer

	TasksTotal      *prometheus.CounterVec
	TaskDurations   *prometheus.HistogramVec
	ChannelProblems *prometheus.CounterVec

	HousekeepingDurations *prometheus.HistogramVec
	HousekeepingExhausted *prometheus.CounterVec

	EntityCount *prometheus.GaugeVec
	CachedBytes *prometheus.GaugeVec
	DataFiles   *prometheus.GaugeVec
	StoredBytes *prometheus.CounterVec

	GCSweeps        *prometheus.CounterVec
	GCSweptEntities *prometheus.CounterVec
	ZombieObjectIDs *prometheus.CounterVec

	ImportedEntities      *prometheus.CounterVec
	ImportReadBytes       prometheus.Counter
	ImportRejectedSources prometheus.Counter

	BackupItems       *prometheus.CounterVec
	BackupQueueLength prometheus.Gauge
	BackupBytes       prometheus.Counter

	LockFileRefreshes  *prometheus.CounterVec
	MetricsConnections prometheus.Gauge
}

// NewPrometheusMetrics registers all collectors with reg. Pass a
// NoopPrometheusRegistery to keep the metric objects without exposing them.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = noop
	}
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		Registerer: reg,

		TasksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Number of tasks completed by all channels, by outcome",
		}, []string{"task", "status"}),
		TaskDurations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Duration from task creation until completion on all channels",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"task"}),
		ChannelProblems: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_problems_total",
			Help:      "Problems registered by a channel while processing a task",
		}, []string{"channel", "task"}),

		HousekeepingDurations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "housekeeping_duration_seconds",
			Help:      "Duration of a single housekeeping operation",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"channel", "operation"}),
		HousekeepingExhausted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "housekeeping_budget_exhausted_total",
			Help:      "Housekeeping operations that ran out of time budget",
		}, []string{"channel", "operation"}),

		EntityCount: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "entities",
			Help:      "Number of live entities per channel",
		}, []string{"channel"}),
		CachedBytes: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "entity_cache_bytes",
			Help:      "Bytes of entity data held in the channel cache",
		}, []string{"channel"}),
		DataFiles: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "data_files",
			Help:      "Number of data files per channel",
		}, []string{"channel"}),
		StoredBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stored_bytes_total",
			Help:      "Bytes appended to data files, by origin",
		}, []string{"channel", "origin"}),

		GCSweeps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gc_sweeps_total",
			Help:      "Completed garbage collection sweeps per channel",
		}, []string{"channel"}),
		GCSweptEntities: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gc_swept_entities_total",
			Help:      "Entities reclaimed by garbage collection",
		}, []string{"channel"}),
		ZombieObjectIDs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gc_zombie_object_ids_total",
			Help:      "Unresolvable object ids met during marking",
		}, []string{"kind"}),

		ImportedEntities: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "imported_entities_total",
			Help:      "Entities committed by imports",
		}, []string{"channel"}),
		ImportReadBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_read_bytes_total",
			Help:      "Bytes read from import sources",
		}),
		ImportRejectedSources: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_rejected_sources_total",
			Help:      "Import sources that stopped early on invalid data",
		}),

		BackupItems: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backup_items_total",
			Help:      "Backup items processed, by operation and outcome",
		}, []string{"operation", "status"}),
		BackupQueueLength: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backup_queue_length",
			Help:      "Backup items waiting to be applied",
		}),
		BackupBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backup_bytes_total",
			Help:      "Bytes written to the backup location",
		}),

		LockFileRefreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_file_refreshes_total",
			Help:      "Lock file refresh attempts, by outcome",
		}, []string{"status"}),
		MetricsConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "metrics_open_connections",
			Help:      "Open connections to the metrics endpoint",
		}),
	}
}

// NewNoopMetrics builds metrics that are not registered anywhere.
func NewNoopMetrics() *PrometheusMetrics {
	return NewPrometheusMetrics(noop)
}
