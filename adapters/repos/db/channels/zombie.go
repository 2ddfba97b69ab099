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
	"github.com/sirupsen/logrus"

	"github.com/weaviate/chanstore/entities/objectid"
	"github.com/weaviate/chanstore/usecases/monitoring"
)

// ZombieHandler decides about ids met during marking that do not resolve to
// a stored entity. It returns true if the id is expected to be unresolvable.
type ZombieHandler interface {
	HandleZombieObjectID(id int64) bool
}

type loggingZombieHandler struct {
	logger  logrus.FieldLogger
	metrics *monitoring.PrometheusMetrics
}

func newZombieHandler(logger logrus.FieldLogger, metrics *monitoring.PrometheusMetrics) *loggingZombieHandler {
	return &loggingZombieHandler{
		logger:  logger.WithField("action", "gc_zombie"),
		metrics: metrics,
	}
}

func (h *loggingZombieHandler) HandleZombieObjectID(id int64) bool {
	switch {
	case objectid.IsTypeID(id):
		h.count("type")
		return true
	case objectid.IsConstantID(id):
		h.count("constant")
		return true
	}

	h.count("object")
	h.logger.WithField("object_id", id).Warn("reference to an object id that is not stored")
	return false
}

func (h *loggingZombieHandler) count(kind string) {
	if h.metrics == nil {
		return
	}
	h.metrics.ZombieObjectIDs.WithLabelValues(kind).Inc()
}
