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

// Package afs is the file abstraction the storage engine is written against.
// Connectors decide where bytes actually live.
package afs

import (
	"io"
	"path"

	"github.com/pkg/errors"
)

var ErrNotExist = errors.New("file does not exist")

// File is a handle on a possibly not yet existing file. Handles are cheap
// and do not keep resources open between calls.
type File interface {
	Name() string
	// Path is the slash separated location relative to the file system root.
	Path() string
	Exists() (bool, error)
	// Ensure creates the file empty if it does not exist.
	Ensure() error
	Size() (int64, error)
	ReadAt(p []byte, off int64) (int, error)
	// Append writes p at the end of the file, creating it if needed, and
	// returns the file size after the write.
	Append(p []byte) (int64, error)
	Truncate(size int64) error
	Delete() error
	// MoveTo replaces target with this file's content and removes this file.
	MoveTo(target File) error
	Sync() error
}

type Directory interface {
	Name() string
	Path() string
	Ensure() error
	Directory(name string) Directory
	File(name string) File
	// List returns the names of the files directly inside the directory.
	List() ([]string, error)
}

type FileSystem interface {
	Root() Directory
	Close() error
}

// ReadAll reads the complete content of f.
func ReadAll(f File) ([]byte, error) {
	size, err := f.Size()
	if err != nil {
		return nil, err
	}
	return ReadRange(f, 0, size)
}

// ReadRange reads exactly length bytes starting at off.
func ReadRange(f File, off, length int64) ([]byte, error) {
	buf := make([]byte, length)
	n, err := f.ReadAt(buf, off)
	if err != nil && !(errors.Is(err, io.EOF) && int64(n) == length) {
		return nil, errors.Wrapf(err, "read %d bytes at %d from %s", length, off, f.Path())
	}
	if int64(n) != length {
		return nil, errors.Wrapf(io.ErrUnexpectedEOF, "read %d bytes at %d from %s", length, off, f.Path())
	}
	return buf, nil
}

// CopyRange appends length bytes of source starting at off to target.
func CopyRange(source File, off, length int64, target File) (int64, error) {
	data, err := ReadRange(source, off, length)
	if err != nil {
		return 0, err
	}
	return target.Append(data)
}

// Join builds a slash separated path, the format File.Path uses.
func Join(elem ...string) string {
	return path.Join(elem...)
}
