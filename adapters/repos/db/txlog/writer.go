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

package txlog

import (
	"github.com/pkg/errors"

	"github.com/weaviate/chanstore/adapters/repos/db/afs"
)

// Writer buffers entries and appends them to the log file in one write on
// Commit. Entries of a failed operation are dropped with Discard.
type Writer struct {
	file    afs.File
	size    int64
	pending []byte
}

// OpenWriter opens the log at file, which must be at most size bytes long.
// A longer file carries a torn tail and is truncated to size.
func OpenWriter(file afs.File, size int64) (*Writer, error) {
	if err := file.Ensure(); err != nil {
		return nil, errors.Wrapf(err, "ensure transactions file %s", file.Path())
	}
	actual, err := file.Size()
	if err != nil {
		return nil, err
	}
	if actual > size {
		if err := file.Truncate(size); err != nil {
			return nil, errors.Wrapf(err, "truncate torn tail of %s", file.Path())
		}
	} else if actual < size {
		return nil, errors.Wrapf(ErrInconsistent, "transactions file %s has %d bytes, expected %d",
			file.Path(), actual, size)
	}
	return &Writer{file: file, size: size}, nil
}

func (w *Writer) Add(entries ...Entry) {
	for _, e := range entries {
		w.pending = e.Append(w.pending)
	}
}

// Pending reports whether entries are waiting for Commit.
func (w *Writer) Pending() bool {
	return len(w.pending) > 0
}

// Commit appends all pending entries. It returns the log position they were
// written at and their encoded bytes, which backups mirror verbatim.
func (w *Writer) Commit() (int64, []byte, error) {
	if len(w.pending) == 0 {
		return w.size, nil, nil
	}

	data := w.pending
	w.pending = nil
	position := w.size
	size, err := w.file.Append(data)
	if err != nil {
		// a partial append is a torn tail, cut it off right away
		if terr := w.file.Truncate(position); terr != nil {
			return position, nil, errors.Wrapf(err, "truncate after failed append: %v", terr)
		}
		return position, nil, errors.Wrapf(err, "append to %s", w.file.Path())
	}
	w.size = size
	return position, data, nil
}

func (w *Writer) Discard() {
	w.pending = nil
}

// Size is the committed length of the log.
func (w *Writer) Size() int64 {
	return w.size
}

func (w *Writer) File() afs.File {
	return w.file
}

// Replace swaps the log content for data by writing it next to the log and
// moving it over. Pending entries are discarded.
func (w *Writer) Replace(tmp afs.File, data []byte) error {
	w.pending = nil
	if err := tmp.Delete(); err != nil {
		return err
	}
	if _, err := tmp.Append(data); err != nil {
		return errors.Wrapf(err, "write compacted log to %s", tmp.Path())
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.MoveTo(w.file); err != nil {
		return errors.Wrapf(err, "replace %s", w.file.Path())
	}
	w.size = int64(len(data))
	return nil
}
