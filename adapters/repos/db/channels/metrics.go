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

package channels

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/weaviate/chanstore/adapters/repos/db/tasks"
	"github.com/weaviate/chanstore/usecases/monitoring"
)

const (
	originStore    = "store"
	originImport   = "import"
	originTransfer = "transfer"
)

// channelMetrics are the collectors of one channel, curried by its index.
// A nil *channelMetrics is valid and records nothing.
type channelMetrics struct {
	entities    prometheus.Gauge
	cachedBytes prometheus.Gauge
	dataFiles   prometheus.Gauge
	storedBytes *prometheus.CounterVec

	gcSweeps prometheus.Counter
	gcSwept  prometheus.Counter
	imported prometheus.Counter

	housekeepingDurations prometheus.ObserverVec
	housekeepingExhausted *prometheus.CounterVec
}

func newChannelMetrics(pm *monitoring.PrometheusMetrics, channel int) *channelMetrics {
	if pm == nil {
		return nil
	}
	labels := prometheus.Labels{"channel": strconv.Itoa(channel)}
	return &channelMetrics{
		entities:    pm.EntityCount.With(labels),
		cachedBytes: pm.CachedBytes.With(labels),
		dataFiles:   pm.DataFiles.With(labels),
		storedBytes: pm.StoredBytes.MustCurryWith(labels),

		gcSweeps: pm.GCSweeps.With(labels),
		gcSwept:  pm.GCSweptEntities.With(labels),
		imported: pm.ImportedEntities.With(labels),

		housekeepingDurations: pm.HousekeepingDurations.MustCurryWith(labels),
		housekeepingExhausted: pm.HousekeepingExhausted.MustCurryWith(labels),
	}
}

func (m *channelMetrics) observeState(c *Channel) {
	if m == nil {
		return
	}
	m.entities.Set(float64(c.cache.len()))
	m.cachedBytes.Set(float64(c.cache.cachedBytes))
	m.dataFiles.Set(float64(len(c.files.files)))
}

func (m *channelMetrics) stored(origin string, bytes int) {
	if m == nil {
		return
	}
	m.storedBytes.WithLabelValues(origin).Add(float64(bytes))
}

func (m *channelMetrics) swept(count int) {
	if m == nil {
		return
	}
	m.gcSweeps.Inc()
	m.gcSwept.Add(float64(count))
}

func (m *channelMetrics) importedEntities(count int) {
	if m == nil {
		return
	}
	m.imported.Add(float64(count))
}

func (m *channelMetrics) housekeeping(operation string, took time.Duration, done bool) {
	if m == nil {
		return
	}
	m.housekeepingDurations.WithLabelValues(operation).Observe(took.Seconds())
	if !done {
		m.housekeepingExhausted.WithLabelValues(operation).Inc()
	}
}

// taskObserver reports task outcomes to prometheus.
type taskObserver struct {
	metrics *monitoring.PrometheusMetrics
}

func (o taskObserver) TaskDone(kind tasks.Kind, took time.Duration, failed bool) {
	status := "success"
	if failed {
		status = "failed"
	}
	o.metrics.TasksTotal.WithLabelValues(string(kind), status).Inc()
	o.metrics.TaskDurations.WithLabelValues(string(kind)).Observe(took.Seconds())
}

func (o taskObserver) ChannelProblem(kind tasks.Kind, channel int, _ error) {
	o.metrics.ChannelProblems.WithLabelValues(strconv.Itoa(channel), string(kind)).Inc()
}
