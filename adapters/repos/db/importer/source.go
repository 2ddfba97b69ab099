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

// Package importer reads external entity streams, validates every record
// envelope and groups the records into per-channel batches.
package importer

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"

	"github.com/weaviate/chanstore/entities/diskio"
)

// Source provides the bytes of one import input. The slice returned by
// Open stays valid until Close.
type Source interface {
	Name() string
	Open() ([]byte, error)
	Close() error
}

type BufferSource struct {
	name string
	data []byte
}

func NewBufferSource(name string, data []byte) *BufferSource {
	return &BufferSource{name: name, data: data}
}

func (s *BufferSource) Name() string {
	return s.name
}

func (s *BufferSource) Open() ([]byte, error) {
	return s.data, nil
}

func (s *BufferSource) Close() error {
	return nil
}

type ReadMode int

const (
	// ReadModeMmap maps the file read-only.
	ReadModeMmap ReadMode = iota
	// ReadModeRead copies the file into memory.
	ReadModeRead
)

type FileSource struct {
	sync.Mutex
	path string
	mode ReadMode

	file   *os.File
	mapped mmap.MMap
	data   []byte

	readBytes int64
	readTime  time.Duration
}

func NewFileSource(path string, mode ReadMode) *FileSource {
	return &FileSource{path: path, mode: mode}
}

func (s *FileSource) Name() string {
	return s.path
}

func (s *FileSource) Open() ([]byte, error) {
	s.Lock()
	defer s.Unlock()

	if s.data != nil {
		return s.data, nil
	}

	f, err := os.Open(s.path)
	if err != nil {
		return nil, errors.Wrapf(err, "open import file %q", s.path)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "stat import file %q", s.path)
	}
	if info.Size() == 0 {
		f.Close()
		s.data = []byte{}
		return s.data, nil
	}

	if s.mode == ReadModeMmap {
		m, err := mmap.Map(f, mmap.RDONLY, 0)
		if err != nil {
			f.Close()
			return nil, errors.Wrapf(err, "mmap import file %q", s.path)
		}
		s.file = f
		s.mapped = m
		s.data = m
		return s.data, nil
	}

	defer f.Close()
	meter := diskio.NewMeteredReader(f, func(read, nanoseconds int64) {
		s.readBytes += read
		s.readTime += time.Duration(nanoseconds)
	})
	data, err := io.ReadAll(meter)
	if err != nil {
		return nil, errors.Wrapf(err, "read import file %q", s.path)
	}
	s.data = data
	return s.data, nil
}

// ReadStats reports bytes and time spent reading in ReadModeRead.
func (s *FileSource) ReadStats() (int64, time.Duration) {
	s.Lock()
	defer s.Unlock()
	return s.readBytes, s.readTime
}

// Close unmaps and closes the file. It may be called more than once.
func (s *FileSource) Close() error {
	s.Lock()
	defer s.Unlock()

	var err error
	if s.mapped != nil {
		err = s.mapped.Unmap()
		s.mapped = nil
	}
	if s.file != nil {
		if cerr := s.file.Close(); err == nil {
			err = cerr
		}
		s.file = nil
	}
	s.data = nil
	return errors.Wrapf(err, "close import file %q", s.path)
}
