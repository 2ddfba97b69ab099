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

import "github.com/prometheus/client_golang/prometheus"

var noop prometheus.Registerer = &NoopPrometheusRegistery{}

// NoopPrometheusRegistery accepts every collector without exposing it. Used
// when monitoring is disabled and in tests, where registering the same
// metric names repeatedly would otherwise panic.
type NoopPrometheusRegistery struct{}

func (n *NoopPrometheusRegistery) Register(prometheus.Collector) error {
	return nil
}

func (n *NoopPrometheusRegistery) MustRegister(...prometheus.Collector) {
}

func (n *NoopPrometheusRegistery) Unregister(prometheus.Collector) bool {
	return true
}
