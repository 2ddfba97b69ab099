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

// Package boltfs stores the abstract file system inside a single bbolt
// database: one bucket per directory path, one key per file.
package boltfs

import (
	"io"
	"path"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/weaviate/chanstore/adapters/repos/db/afs"
)

const rootBucket = "/"

// Stored values carry a marker byte in front of the content, so an empty
// file is never confused with a missing key.
const marker byte = 1

type FileSystem struct {
	db *bolt.DB
}

// Open opens or creates the database file at path. bbolt holds an exclusive
// file lock for as long as the database is open.
func Open(path string) (*FileSystem, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open %q", path)
	}
	return &FileSystem{db: db}, nil
}

func (fs *FileSystem) Root() afs.Directory {
	return &directory{fs: fs, rel: ""}
}

func (fs *FileSystem) Close() error {
	return fs.db.Close()
}

func bucketName(dir string) []byte {
	if dir == "" || dir == "." {
		return []byte(rootBucket)
	}
	return []byte(dir)
}

type directory struct {
	fs  *FileSystem
	rel string
}

func (d *directory) Name() string {
	return path.Base(d.rel)
}

func (d *directory) Path() string {
	return d.rel
}

func (d *directory) Ensure() error {
	return d.fs.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName(d.rel))
		return errors.Wrapf(err, "ensure directory %s", d.rel)
	})
}

func (d *directory) Directory(name string) afs.Directory {
	return &directory{fs: d.fs, rel: afs.Join(d.rel, name)}
}

func (d *directory) File(name string) afs.File {
	return &file{fs: d.fs, dir: d.rel, name: name}
}

func (d *directory) List() ([]string, error) {
	var names []string
	err := d.fs.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName(d.rel))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	// bbolt iterates keys in byte order, which is what callers expect
	return names, err
}

type file struct {
	fs   *FileSystem
	dir  string
	name string
}

func (f *file) Name() string {
	return f.name
}

func (f *file) Path() string {
	return afs.Join(f.dir, f.name)
}

func (f *file) Exists() (bool, error) {
	exists := false
	err := f.fs.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName(f.dir))
		exists = b != nil && b.Get([]byte(f.name)) != nil
		return nil
	})
	return exists, err
}

func (f *file) Ensure() error {
	return f.fs.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName(f.dir))
		if err != nil {
			return err
		}
		if b.Get([]byte(f.name)) != nil {
			return nil
		}
		return b.Put([]byte(f.name), []byte{marker})
	})
}

func (f *file) Size() (int64, error) {
	var size int64
	err := f.view(func(content []byte) error {
		size = int64(len(content))
		return nil
	})
	return size, err
}

func (f *file) ReadAt(p []byte, off int64) (int, error) {
	n := 0
	err := f.view(func(content []byte) error {
		if off >= int64(len(content)) {
			return io.EOF
		}
		// content is only valid inside the transaction
		n = copy(p, content[off:])
		if n < len(p) {
			return io.EOF
		}
		return nil
	})
	return n, err
}

func (f *file) Append(data []byte) (int64, error) {
	var size int64
	err := f.fs.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName(f.dir))
		if err != nil {
			return err
		}
		current := b.Get([]byte(f.name))
		if current == nil {
			current = []byte{marker}
		}
		next := make([]byte, 0, len(current)+len(data))
		next = append(append(next, current...), data...)
		size = int64(len(next) - 1)
		return b.Put([]byte(f.name), next)
	})
	return size, errors.Wrapf(err, "append to %s", f.Path())
}

func (f *file) Truncate(size int64) error {
	return f.fs.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName(f.dir))
		var current []byte
		if b != nil {
			current = b.Get([]byte(f.name))
		}
		if current == nil {
			return errors.Wrap(afs.ErrNotExist, f.Path())
		}
		next := make([]byte, size+1)
		copy(next, current)
		return b.Put([]byte(f.name), next)
	})
}

func (f *file) Delete() error {
	return f.fs.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName(f.dir))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(f.name))
	})
}

func (f *file) MoveTo(target afs.File) error {
	t, ok := target.(*file)
	if !ok || t.fs != f.fs {
		data, err := afs.ReadAll(f)
		if err != nil {
			return err
		}
		if err := target.Delete(); err != nil {
			return err
		}
		if _, err := target.Append(data); err != nil {
			return err
		}
		return f.Delete()
	}

	return f.fs.db.Update(func(tx *bolt.Tx) error {
		src := tx.Bucket(bucketName(f.dir))
		var content []byte
		if src != nil {
			content = src.Get([]byte(f.name))
		}
		if content == nil {
			return errors.Wrap(afs.ErrNotExist, f.Path())
		}
		dst, err := tx.CreateBucketIfNotExists(bucketName(t.dir))
		if err != nil {
			return err
		}
		moved := append([]byte{}, content...)
		if err := dst.Put([]byte(t.name), moved); err != nil {
			return err
		}
		return src.Delete([]byte(f.name))
	})
}

// Sync is a no-op, every update transaction is already fsynced by bbolt.
func (f *file) Sync() error {
	return nil
}

func (f *file) view(fn func(content []byte) error) error {
	return f.fs.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName(f.dir))
		var content []byte
		if b != nil {
			content = b.Get([]byte(f.name))
		}
		if content == nil {
			return errors.Wrap(afs.ErrNotExist, f.Path())
		}
		return fn(content[1:])
	})
}
