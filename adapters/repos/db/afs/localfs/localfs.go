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

// Package localfs connects the abstract file system to a local directory.
package localfs

import (
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"

	"github.com/weaviate/chanstore/adapters/repos/db/afs"
	"github.com/weaviate/chanstore/entities/diskio"
)

type FileSystem struct {
	rootPath string
}

func New(rootPath string) (*FileSystem, error) {
	abs, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve root %q", rootPath)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create root %q", abs)
	}
	return &FileSystem{rootPath: abs}, nil
}

func (fs *FileSystem) RootPath() string {
	return fs.rootPath
}

func (fs *FileSystem) Root() afs.Directory {
	return &directory{fs: fs, rel: ""}
}

func (fs *FileSystem) Close() error {
	return nil
}

func (fs *FileSystem) abs(rel string) (string, error) {
	return diskio.SanitizeFilePathJoin(fs.rootPath, rel)
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
	p, err := d.fs.abs(d.rel)
	if err != nil {
		return err
	}
	return errors.Wrapf(os.MkdirAll(p, 0o755), "ensure directory %s", d.rel)
}

func (d *directory) Directory(name string) afs.Directory {
	return &directory{fs: d.fs, rel: afs.Join(d.rel, name)}
}

func (d *directory) File(name string) afs.File {
	return &file{fs: d.fs, rel: afs.Join(d.rel, name)}
}

func (d *directory) List() ([]string, error) {
	p, err := d.fs.abs(d.rel)
	if err != nil {
		return nil, err
	}
	sizes, err := diskio.GetFileWithSizes(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "list directory %s", d.rel)
	}
	names := make([]string, 0, len(sizes))
	for name := range sizes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

type file struct {
	fs  *FileSystem
	rel string
}

func (f *file) Name() string {
	return path.Base(f.rel)
}

func (f *file) Path() string {
	return f.rel
}

func (f *file) abs() (string, error) {
	return f.fs.abs(f.rel)
}

func (f *file) Exists() (bool, error) {
	p, err := f.abs()
	if err != nil {
		return false, err
	}
	return diskio.FileExists(p)
}

func (f *file) Ensure() error {
	fh, err := f.open(os.O_CREATE | os.O_WRONLY)
	if err != nil {
		return err
	}
	return fh.Close()
}

func (f *file) Size() (int64, error) {
	p, err := f.abs()
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, errors.Wrap(afs.ErrNotExist, f.rel)
		}
		return 0, err
	}
	return info.Size(), nil
}

func (f *file) ReadAt(buf []byte, off int64) (int, error) {
	fh, err := f.open(os.O_RDONLY)
	if err != nil {
		return 0, err
	}
	defer fh.Close()
	return fh.ReadAt(buf, off)
}

func (f *file) Append(data []byte) (int64, error) {
	fh, err := f.open(os.O_CREATE | os.O_WRONLY | os.O_APPEND)
	if err != nil {
		return 0, err
	}
	defer fh.Close()

	if _, err := fh.Write(data); err != nil {
		return 0, errors.Wrapf(err, "append to %s", f.rel)
	}
	info, err := fh.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (f *file) Truncate(size int64) error {
	p, err := f.abs()
	if err != nil {
		return err
	}
	return errors.Wrapf(os.Truncate(p, size), "truncate %s to %d", f.rel, size)
}

func (f *file) Delete() error {
	p, err := f.abs()
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "delete %s", f.rel)
	}
	return nil
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

	src, err := f.abs()
	if err != nil {
		return err
	}
	dst, err := t.abs()
	if err != nil {
		return err
	}
	if err := os.Rename(src, dst); err != nil {
		return errors.Wrapf(err, "move %s to %s", f.rel, t.rel)
	}
	return diskio.Fsync(filepath.Dir(dst))
}

func (f *file) Sync() error {
	p, err := f.abs()
	if err != nil {
		return err
	}
	return diskio.Fsync(p)
}

func (f *file) open(flag int) (*os.File, error) {
	p, err := f.abs()
	if err != nil {
		return nil, err
	}
	if flag&os.O_CREATE != 0 {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, errors.Wrapf(err, "create parent of %s", f.rel)
		}
	}
	fh, err := os.OpenFile(p, flag, 0o644)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(afs.ErrNotExist, f.rel)
		}
		return nil, errors.Wrapf(err, "open %s", f.rel)
	}
	return fh, nil
}
