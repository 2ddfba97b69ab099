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

// Package lockfile guards a storage directory against concurrent use by a
// second process. The lock is an exclusive flock on a file whose content
// identifies the owner and is refreshed periodically.
package lockfile

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sys/unix"

	"github.com/weaviate/chanstore/entities/cyclemanager"
	"github.com/weaviate/chanstore/usecases/monitoring"
)

const FileName = "used.lock"

var ErrLocked = errors.New("storage directory is locked by another process")

// Info is the content of the lock file.
type Info struct {
	ID       uuid.UUID `msgpack:"id"`
	PID      int       `msgpack:"pid"`
	Host     string    `msgpack:"host"`
	Acquired time.Time `msgpack:"acquired"`
	Updated  time.Time `msgpack:"updated"`
}

type LockFile struct {
	sync.Mutex

	path    string
	file    *os.File
	info    Info
	logger  logrus.FieldLogger
	metrics *monitoring.PrometheusMetrics

	cycles   cyclemanager.CycleManager
	callback cyclemanager.CycleCallbackCtrl
}

// Acquire locks dir and keeps the lock file fresh every refreshInterval
// until Release. If another process holds the lock the error wraps
// ErrLocked and names the owner.
func Acquire(dir string, refreshInterval time.Duration, logger logrus.FieldLogger,
	metrics *monitoring.PrometheusMetrics,
) (*LockFile, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create storage directory %q", dir)
	}
	path := filepath.Join(dir, FileName)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open lock file %q", path)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			if owner, rerr := ReadInfo(path); rerr == nil {
				return nil, errors.Wrapf(ErrLocked, "%s held by %s (pid %d on %s, updated %s)",
					path, owner.ID, owner.PID, owner.Host, owner.Updated.Format(time.RFC3339))
			}
			return nil, errors.Wrap(ErrLocked, path)
		}
		return nil, errors.Wrapf(err, "lock %q", path)
	}

	host, _ := os.Hostname()
	now := time.Now()
	l := &LockFile{
		path: path,
		file: f,
		info: Info{
			ID:       uuid.New(),
			PID:      os.Getpid(),
			Host:     host,
			Acquired: now,
			Updated:  now,
		},
		logger:  logger.WithField("action", "lock_file"),
		metrics: metrics,
	}
	if err := l.write(); err != nil {
		l.unlock()
		return nil, err
	}

	group := cyclemanager.NewCallbackGroup("lock_file", l.logger, 1)
	l.callback = group.Register(path, true, l.refresh)
	l.cycles = cyclemanager.NewManager(cyclemanager.NewFixedTicker(refreshInterval),
		group.CycleCallback, l.logger)
	l.cycles.Start()

	l.logger.WithFields(logrus.Fields{
		"path": path,
		"id":   l.info.ID,
	}).Debug("acquired lock file")
	return l, nil
}

func (l *LockFile) write() error {
	data, err := msgpack.Marshal(&l.info)
	if err != nil {
		return errors.Wrap(err, "encode lock file")
	}
	if err := l.file.Truncate(0); err != nil {
		return errors.Wrapf(err, "truncate lock file %q", l.path)
	}
	if _, err := l.file.WriteAt(data, 0); err != nil {
		return errors.Wrapf(err, "write lock file %q", l.path)
	}
	return l.file.Sync()
}

func (l *LockFile) refresh(shouldAbort cyclemanager.ShouldAbortCallback) bool {
	if shouldAbort() {
		return false
	}

	l.Lock()
	defer l.Unlock()

	if l.file == nil {
		return false
	}
	l.info.Updated = time.Now()
	status := "success"
	if err := l.write(); err != nil {
		status = "failure"
		l.logger.WithError(err).Warn("refresh lock file")
	}
	if l.metrics != nil {
		l.metrics.LockFileRefreshes.WithLabelValues(status).Inc()
	}
	return true
}

func (l *LockFile) Info() Info {
	l.Lock()
	defer l.Unlock()
	return l.info
}

func (l *LockFile) Path() string {
	return l.path
}

// Release stops refreshing, removes the lock file and unlocks it.
func (l *LockFile) Release(ctx context.Context) error {
	if err := l.callback.Unregister(ctx); err != nil {
		return err
	}
	if err := l.cycles.StopAndWait(ctx); err != nil {
		return errors.Wrap(err, "stop lock file refresh")
	}

	l.Lock()
	defer l.Unlock()

	if l.file == nil {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		l.logger.WithError(err).Warn("remove lock file")
	}
	return l.unlock()
}

func (l *LockFile) unlock() error {
	f := l.file
	l.file = nil
	if err := unix.Flock(int(f.Fd()), unix.LOCK_UN); err != nil {
		f.Close()
		return errors.Wrapf(err, "unlock %q", l.path)
	}
	return f.Close()
}

// ReadInfo decodes the lock file at path.
func ReadInfo(path string) (Info, error) {
	var info Info
	data, err := os.ReadFile(path)
	if err != nil {
		return info, err
	}
	if len(data) == 0 {
		return info, errors.Errorf("lock file %q is empty", path)
	}
	if err := msgpack.Unmarshal(data, &info); err != nil {
		return info, errors.Wrapf(err, "decode lock file %q", path)
	}
	return info, nil
}
