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

// Package backup mirrors the live storage files into a second location.
// Items replay the file events of the live storage in FIFO order, so the
// backup is itself a consistent, recoverable storage directory.
package backup

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrInconsistentBackup    = errors.New("backup is inconsistent with the storage")
	ErrBackupAhead           = errors.New("backup file is longer than the storage file")
	ErrStorageEmptyBackupNot = errors.New("storage is empty but the backup is not")
)

type Operation string

const (
	OpAppend   Operation = "append"
	OpTruncate Operation = "truncate"
	OpDelete   Operation = "delete"
	OpReplace  Operation = "replace"

	opFlush Operation = "flush"
)

// Item is one file event. Path is relative to the storage root, which is
// mirrored 1:1 below the backup root.
type Item struct {
	Op   Operation
	Path string
	// Position is where Data has to start for appends.
	Position int64
	// Data carries the appended bytes or the complete replacement content.
	Data []byte
	// Size is the target length of a truncation.
	Size int64

	flushed chan struct{}
}

func Append(path string, position int64, data []byte) Item {
	return Item{Op: OpAppend, Path: path, Position: position, Data: data}
}

func Truncate(path string, size int64) Item {
	return Item{Op: OpTruncate, Path: path, Size: size}
}

func Delete(path string) Item {
	return Item{Op: OpDelete, Path: path}
}

func Replace(path string, data []byte) Item {
	return Item{Op: OpReplace, Path: path, Data: data}
}

func (i Item) String() string {
	switch i.Op {
	case OpAppend:
		return fmt.Sprintf("append %d bytes at %d to %s", len(i.Data), i.Position, i.Path)
	case OpTruncate:
		return fmt.Sprintf("truncate %s to %d", i.Path, i.Size)
	case OpReplace:
		return fmt.Sprintf("replace %s with %d bytes", i.Path, len(i.Data))
	default:
		return fmt.Sprintf("%s %s", i.Op, i.Path)
	}
}
