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

package backup

import (
	"context"
	"path"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spaolacci/murmur3"
	"golang.org/x/time/rate"

	"github.com/weaviate/chanstore/adapters/repos/db/afs"
	enterrors "github.com/weaviate/chanstore/entities/errors"
	"github.com/weaviate/chanstore/entities/storagestate"
	"github.com/weaviate/chanstore/usecases/monitoring"
)

type Config struct {
	// BytesPerSecond throttles writes to the backup, 0 disables throttling.
	BytesPerSecond int
	// Verify reads every append back and compares checksums.
	Verify bool
	// MaxRetryTime bounds the retries of a single item.
	MaxRetryTime time.Duration
}

const minBurst = 64 * 1024

type Handler struct {
	target     afs.FileSystem
	controller *storagestate.WriteController
	config     Config
	limiter    *rate.Limiter
	logger     logrus.FieldLogger
	metrics    *monitoring.PrometheusMetrics

	mu      sync.Mutex
	items   []Item
	notify  chan struct{}
	lastErr error

	cancel  context.CancelFunc
	stopped chan struct{}
}

func NewHandler(target afs.FileSystem, controller *storagestate.WriteController, config Config,
	logger logrus.FieldLogger, metrics *monitoring.PrometheusMetrics,
) *Handler {
	if config.MaxRetryTime <= 0 {
		config.MaxRetryTime = time.Minute
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if config.BytesPerSecond > 0 {
		burst := config.BytesPerSecond
		if burst < minBurst {
			burst = minBurst
		}
		limiter = rate.NewLimiter(rate.Limit(config.BytesPerSecond), burst)
	}
	return &Handler{
		target:     target,
		controller: controller,
		config:     config,
		limiter:    limiter,
		logger:     logger.WithField("action", "backup"),
		metrics:    metrics,
		notify:     make(chan struct{}, 1),
	}
}

// Start launches the worker goroutine applying queued items.
func (h *Handler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.stopped = make(chan struct{})

	enterrors.GoWrapper(func() {
		defer close(h.stopped)
		h.work(ctx)
	}, h.logger)
}

// Stop applies what is already queued and ends the worker, or abandons the
// queue when ctx ends first.
func (h *Handler) Stop(ctx context.Context) error {
	if h.cancel == nil {
		return nil
	}
	err := h.Flush(ctx)
	h.cancel()
	<-h.stopped
	return err
}

// Enqueue adds items to the end of the queue.
func (h *Handler) Enqueue(items ...Item) error {
	if err := h.controller.ValidateIsBackupEnabled(); err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	h.push(items...)
	return nil
}

func (h *Handler) push(items ...Item) {
	h.mu.Lock()
	h.items = append(h.items, items...)
	length := len(h.items)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.BackupQueueLength.Set(float64(length))
	}
	select {
	case h.notify <- struct{}{}:
	default:
	}
}

// Flush waits until every item enqueued before the call was applied.
func (h *Handler) Flush(ctx context.Context) error {
	flushed := make(chan struct{})
	h.push(Item{Op: opFlush, flushed: flushed})
	select {
	case <-flushed:
		return h.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the first item that could not be applied.
func (h *Handler) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastErr
}

func (h *Handler) pop() (Item, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.items) == 0 {
		return Item{}, false
	}
	item := h.items[0]
	h.items[0] = Item{}
	h.items = h.items[1:]
	if h.metrics != nil {
		h.metrics.BackupQueueLength.Set(float64(len(h.items)))
	}
	return item, true
}

func (h *Handler) work(ctx context.Context) {
	for {
		item, ok := h.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-h.notify:
				continue
			}
		}

		if item.Op == opFlush {
			close(item.flushed)
			continue
		}

		status := "success"
		if err := h.applyWithRetry(ctx, item); err != nil {
			status = "failure"
			h.logger.WithField("item", item.String()).WithError(err).Error("apply backup item")
			h.mu.Lock()
			if h.lastErr == nil {
				h.lastErr = errors.Wrap(err, item.String())
			}
			h.mu.Unlock()
		}
		if h.metrics != nil {
			h.metrics.BackupItems.WithLabelValues(string(item.Op), status).Inc()
		}
	}
}

func (h *Handler) applyWithRetry(ctx context.Context, item Item) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 10 * time.Millisecond
	policy.MaxElapsedTime = h.config.MaxRetryTime

	attempt := 0
	return backoff.Retry(func() error {
		err := h.apply(ctx, item, attempt > 0)
		attempt++
		if err == nil {
			return nil
		}
		if enterrors.IsTransient(err) {
			h.logger.WithField("attempt", attempt).WithError(err).Debug("retry backup item")
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(policy, ctx))
}

func (h *Handler) apply(ctx context.Context, item Item, retry bool) error {
	if item.Op == OpDelete {
		return h.backupFile(item.Path).Delete()
	}

	file, err := h.EnsureBackupFile(item.Path)
	if err != nil {
		return err
	}

	switch item.Op {
	case OpAppend:
		size, err := file.Size()
		if err != nil {
			return err
		}
		if retry && size > item.Position && size <= item.Position+int64(len(item.Data)) {
			// leftover of a failed attempt
			if err := file.Truncate(item.Position); err != nil {
				return err
			}
			size = item.Position
		}
		if size != item.Position {
			return errors.Wrapf(ErrInconsistentBackup, "%s has %d bytes, append expects %d",
				item.Path, size, item.Position)
		}
		if err := h.throttle(ctx, len(item.Data)); err != nil {
			return err
		}
		if _, err := file.Append(item.Data); err != nil {
			return err
		}
		if h.config.Verify {
			if err := verify(file, item.Position, item.Data); err != nil {
				return err
			}
		}
		h.countBytes(len(item.Data))
		return nil

	case OpTruncate:
		return file.Truncate(item.Size)

	case OpReplace:
		if err := h.throttle(ctx, len(item.Data)); err != nil {
			return err
		}
		dir := h.target.Root().Directory(path.Dir(item.Path))
		tmp := dir.File(path.Base(item.Path) + ".tmp")
		if err := tmp.Delete(); err != nil {
			return err
		}
		if _, err := tmp.Append(item.Data); err != nil {
			return err
		}
		if err := tmp.MoveTo(file); err != nil {
			return err
		}
		h.countBytes(len(item.Data))
		return nil

	default:
		return errors.Errorf("unknown backup operation %q", item.Op)
	}
}

// EnsureBackupFile returns the mirror of the storage file at p, creating it
// empty if needed.
func (h *Handler) EnsureBackupFile(p string) (afs.File, error) {
	dir := h.target.Root().Directory(path.Dir(p))
	if err := dir.Ensure(); err != nil {
		return nil, err
	}
	file := h.backupFile(p)
	if err := file.Ensure(); err != nil {
		return nil, errors.Wrapf(err, "ensure backup file %s", p)
	}
	return file, nil
}

func (h *Handler) backupFile(p string) afs.File {
	return h.target.Root().Directory(path.Dir(p)).File(path.Base(p))
}

func (h *Handler) throttle(ctx context.Context, n int) error {
	if h.limiter.Limit() == rate.Inf {
		return nil
	}
	burst := h.limiter.Burst()
	for n > 0 {
		chunk := n
		if chunk > burst {
			chunk = burst
		}
		if err := h.limiter.WaitN(ctx, chunk); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}

func (h *Handler) countBytes(n int) {
	if h.metrics != nil {
		h.metrics.BackupBytes.Add(float64(n))
	}
}

func verify(file afs.File, position int64, data []byte) error {
	written, err := afs.ReadRange(file, position, int64(len(data)))
	if err != nil {
		return err
	}
	if murmur3.Sum64(written) != murmur3.Sum64(data) {
		return errors.Wrapf(ErrInconsistentBackup, "checksum mismatch in %s at %d", file.Path(), position)
	}
	return nil
}
