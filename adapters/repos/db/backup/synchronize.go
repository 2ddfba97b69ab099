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

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spaolacci/murmur3"

	"github.com/weaviate/chanstore/adapters/repos/db/afs"
	enterrors "github.com/weaviate/chanstore/entities/errors"
)

// Synchronize brings the backup of every listed directory up to date with
// the storage before live mirroring starts. Directories are handled in
// parallel.
func (h *Handler) Synchronize(ctx context.Context, source afs.FileSystem, dirs []string) error {
	eg := enterrors.NewErrorGroupWrapper(h.logger)
	for _, dir := range dirs {
		dir := dir
		eg.Go(func() error {
			return h.synchronizeDirectory(ctx,
				source.Root().Directory(dir), h.target.Root().Directory(dir))
		}, dir)
	}
	return eg.Wait()
}

func (h *Handler) synchronizeDirectory(ctx context.Context, source, target afs.Directory) error {
	sourceSizes, err := sizes(source)
	if err != nil {
		return err
	}
	targetSizes, err := sizes(target)
	if err != nil {
		return err
	}

	if total(sourceSizes) == 0 && total(targetSizes) > 0 {
		return errors.Wrapf(ErrStorageEmptyBackupNot, "directory %s", source.Path())
	}
	if err := target.Ensure(); err != nil {
		return err
	}

	copied := 0
	for name, size := range sourceSizes {
		if err := ctx.Err(); err != nil {
			return err
		}

		src := source.File(name)
		dst := target.File(name)
		backupSize, exists := targetSizes[name]
		switch {
		case !exists:
			if err := dst.Ensure(); err != nil {
				return err
			}
			backupSize = 0
		case backupSize > size:
			return errors.Wrapf(ErrBackupAhead, "%s: backup has %d bytes, storage %d",
				src.Path(), backupSize, size)
		case backupSize == size && !h.config.Verify:
			continue
		}

		if h.config.Verify && backupSize > 0 {
			if err := samePrefix(src, dst, backupSize); err != nil {
				return err
			}
		}
		if backupSize == size {
			continue
		}
		if err := h.throttle(ctx, int(size-backupSize)); err != nil {
			return err
		}
		if _, err := afs.CopyRange(src, backupSize, size-backupSize, dst); err != nil {
			return errors.Wrapf(err, "copy tail of %s", src.Path())
		}
		h.countBytes(int(size - backupSize))
		copied++
	}

	// files the storage no longer has
	for name := range targetSizes {
		if _, ok := sourceSizes[name]; !ok {
			if err := target.File(name).Delete(); err != nil {
				return err
			}
		}
	}

	h.logger.WithFields(logrus.Fields{
		"directory": source.Path(),
		"copied":    copied,
	}).Debug("synchronized backup directory")
	return nil
}

func sizes(dir afs.Directory) (map[string]int64, error) {
	names, err := dir.List()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(names))
	for _, name := range names {
		size, err := dir.File(name).Size()
		if err != nil {
			return nil, err
		}
		out[name] = size
	}
	return out, nil
}

func total(sizes map[string]int64) int64 {
	var n int64
	for _, s := range sizes {
		n += s
	}
	return n
}

func samePrefix(a, b afs.File, length int64) error {
	left, err := afs.ReadRange(a, 0, length)
	if err != nil {
		return err
	}
	right, err := afs.ReadRange(b, 0, length)
	if err != nil {
		return err
	}
	if murmur3.Sum64(left) != murmur3.Sum64(right) {
		return errors.Wrapf(ErrInconsistentBackup, "%s differs from its backup", a.Path())
	}
	return nil
}
