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

package importer

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/weaviate/chanstore/entities/entityheader"
	enterrors "github.com/weaviate/chanstore/entities/errors"
	"github.com/weaviate/chanstore/entities/objectid"
	"github.com/weaviate/chanstore/usecases/monitoring"
)

const DefaultMaxBatchLength = 2 << 20

type Reader struct {
	evaluator      *entityheader.Evaluator
	channels       *objectid.ChannelEvaluator
	maxBatchLength int64
	logger         logrus.FieldLogger
	metrics        *monitoring.PrometheusMetrics
}

func NewReader(evaluator *entityheader.Evaluator, channels *objectid.ChannelEvaluator,
	maxBatchLength int64, logger logrus.FieldLogger, metrics *monitoring.PrometheusMetrics,
) *Reader {
	if maxBatchLength <= 0 {
		maxBatchLength = DefaultMaxBatchLength
	}
	return &Reader{
		evaluator:      evaluator,
		channels:       channels,
		maxBatchLength: maxBatchLength,
		logger:         logger.WithField("action", "import_reader"),
		metrics:        metrics,
	}
}

// Scan validates data and splits it into batches per channel. It stops at
// the first invalid region, everything valid before it is kept.
func (r *Reader) Scan(name string, data []byte) ([][]Batch, SourceReport) {
	perChannel := make([][]Batch, r.channels.ChannelCount())
	report := SourceReport{Source: name}

	var current *Batch
	flush := func() {
		if current == nil {
			return
		}
		perChannel[current.Channel] = append(perChannel[current.Channel], *current)
		report.Batches++
		current = nil
	}

	end, err := r.evaluator.Iterate(data,
		func(offset int64, h entityheader.Header, _ []byte) error {
			e := Entity{Offset: offset, Length: h.Length, TypeID: h.TypeID, ObjectID: h.ObjectID}
			channel := r.channels.ChannelIndex(h.ObjectID)
			if current != nil && (current.Channel != channel ||
				current.Length+e.Length > r.maxBatchLength) {
				flush()
			}
			if current == nil {
				current = newBatch(channel, e)
			} else {
				current.add(e)
			}
			report.Entities++
			return nil
		},
		func(int64, int64) {
			flush()
		})
	flush()

	report.Bytes = end
	if err != nil {
		report.Fault = err
		report.FaultOffset = end
	}
	return perChannel, report
}

// Run is one import in progress. A single goroutine reads the sources in
// order and feeds every channel's queue.
type Run struct {
	sources []Source
	queues  []chan SourceSlice
	done    chan struct{}

	reports []SourceReport
	err     error

	closeOnce sync.Once
	closeErr  error
}

// Start begins reading sources. Every channel has to drain its queue.
func (r *Reader) Start(ctx context.Context, sources []Source) *Run {
	run := &Run{
		sources: sources,
		queues:  make([]chan SourceSlice, r.channels.ChannelCount()),
		done:    make(chan struct{}),
	}
	for i := range run.queues {
		// one slice per source at most, the reader never blocks
		run.queues[i] = make(chan SourceSlice, len(sources))
	}

	enterrors.GoWrapper(func() {
		defer func() {
			for _, q := range run.queues {
				close(q)
			}
			close(run.done)
		}()
		run.reports, run.err = r.read(ctx, run)
	}, r.logger)

	return run
}

func (r *Reader) read(ctx context.Context, run *Run) ([]SourceReport, error) {
	reports := make([]SourceReport, 0, len(run.sources))
	for _, src := range run.sources {
		if err := ctx.Err(); err != nil {
			return reports, errors.Wrap(err, "import aborted")
		}

		data, err := src.Open()
		if err != nil {
			reports = append(reports, SourceReport{Source: src.Name(), Fault: err})
			return reports, err
		}
		if r.metrics != nil {
			r.metrics.ImportReadBytes.Add(float64(len(data)))
		}

		perChannel, report := r.Scan(src.Name(), data)
		for channel, batches := range perChannel {
			if len(batches) == 0 {
				continue
			}
			run.queues[channel] <- SourceSlice{Source: src.Name(), Data: data, Batches: batches}
		}

		if report.Fault != nil {
			if r.metrics != nil {
				r.metrics.ImportRejectedSources.Inc()
			}
			r.logger.WithFields(logrus.Fields{
				"source": report.Source,
				"offset": report.FaultOffset,
			}).WithError(report.Fault).Warn("import source contains invalid data, skipping the rest of it")
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// Queue returns the slices for channel, closed once reading finished.
func (run *Run) Queue(channel int) <-chan SourceSlice {
	return run.queues[channel]
}

// Wait blocks until all sources were read. The error reports I/O failures,
// validation faults only show up in the reports.
func (run *Run) Wait(ctx context.Context) ([]SourceReport, error) {
	select {
	case <-run.done:
		return run.reports, run.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close releases all sources. Only call it once no channel reads the
// slices anymore.
func (run *Run) Close() error {
	run.closeOnce.Do(func() {
		var merr *multierror.Error
		for _, src := range run.sources {
			if err := src.Close(); err != nil {
				merr = multierror.Append(merr, err)
			}
		}
		run.closeErr = merr.ErrorOrNil()
	})
	return run.closeErr
}
