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
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	enterrors "github.com/weaviate/chanstore/entities/errors"
)

type countingListener struct {
	net.Listener
	count prometheus.Gauge
}

func CountingListener(l net.Listener, g prometheus.Gauge) net.Listener {
	return &countingListener{Listener: l, count: g}
}

func (c *countingListener) Accept() (net.Conn, error) {
	conn, err := c.Listener.Accept()
	if err != nil {
		return nil, err
	}
	c.count.Inc()
	return &countingConn{Conn: conn, count: c.count}, nil
}

type countingConn struct {
	net.Conn
	count prometheus.Gauge
	once  sync.Once
}

func (c *countingConn) Close() error {
	err := c.Conn.Close()

	// Close may be called more than once, only the first call counts.
	c.once.Do(func() {
		c.count.Dec()
	})

	return err
}

// ServeMetrics exposes gatherer on addr under /metrics until ctx is done.
// The returned address is the one actually bound, which matters for ":0".
func ServeMetrics(ctx context.Context, addr string, gatherer prometheus.Gatherer,
	pm *PrometheusMetrics, logger logrus.FieldLogger,
) (string, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	logger = logger.WithField("action", "metrics_server")
	enterrors.GoWrapper(func() {
		err := srv.Serve(CountingListener(l, pm.MetricsConnections))
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("metrics server stopped")
		}
	}, logger)

	enterrors.GoWrapper(func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("metrics server shutdown")
		}
	}, logger)

	return l.Addr().String(), nil
}
