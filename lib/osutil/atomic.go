// Copyright (C) 2015 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package osutil

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
)

var (
	ErrClosed  = errors.New("write to closed writer")
	TempPrefix = ".crossdrop.tmp."
)

// An AtomicWriter writes to a temporary file next to its final path and
// renames it into place on Close. The first error from Write or Close is
// kept and returned by every later call.
type AtomicWriter struct {
	path string
	next *os.File
	err  error
}

// CreateAtomic starts an atomic write of path. The temporary file is
// readable by the owner only, whatever the umask.
func CreateAtomic(path string) (*AtomicWriter, error) {
	fd, err := os.CreateTemp(filepath.Dir(path), TempPrefix)
	if err != nil {
		return nil, err
	}
	return &AtomicWriter{path: path, next: fd}, nil
}

func (w *AtomicWriter) Write(bs []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	n, err := w.next.Write(bs)
	if err != nil {
		w.fail(err)
	}
	return n, err
}

// Close moves the written data into place. A file already at the final
// path is replaced and its permissions carried over.
func (w *AtomicWriter) Close() error {
	if w.err != nil {
		return w.err
	}
	defer os.Remove(w.next.Name())

	// Not every platform can sync; the rename is what matters.
	_ = w.next.Sync()
	if err := w.next.Close(); err != nil {
		return w.fail(err)
	}

	old, statErr := os.Lstat(w.path)
	if statErr != nil && !errors.Is(statErr, fs.ErrNotExist) {
		return w.fail(statErr)
	}
	if err := rename(w.next.Name(), w.path); err != nil {
		return w.fail(err)
	}
	if statErr == nil {
		if err := os.Chmod(w.path, old.Mode()); err != nil {
			return w.fail(err)
		}
	}
	syncDir(filepath.Dir(w.path))

	w.err = ErrClosed
	return nil
}

func (w *AtomicWriter) fail(err error) error {
	w.err = err
	w.next.Close()
	return err
}

// WriteAtomic writes path through an AtomicWriter, calling fn to produce
// the contents. Nothing changes at path unless fn and the write succeed.
func WriteAtomic(path string, fn func(io.Writer) error) error {
	w, err := CreateAtomic(path)
	if err != nil {
		return err
	}
	if err := fn(w); err != nil {
		w.fail(err)
		os.Remove(w.next.Name())
		return err
	}
	return w.Close()
}

func rename(from, to string) error {
	err := os.Rename(from, to)
	if runtime.GOOS == "windows" && errors.Is(err, fs.ErrPermission) {
		// A read only target cannot be renamed over on Windows.
		_ = os.Chmod(to, 0o644)
		err = os.Rename(from, to)
	}
	return err
}

func syncDir(dir string) {
	if fd, err := os.Open(dir); err == nil {
		fd.Sync()
		fd.Close()
	}
}
