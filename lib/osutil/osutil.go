// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package osutil implements utilities for native OS support.
package osutil

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var errNoHome = errors.New("no home directory found - set $HOME (or the platform equivalent)")

// ExpandTilde replaces a leading "~" path component with the user's home
// directory.
func ExpandTilde(path string) (string, error) {
	if path == "~" {
		return getHomeDir()
	}

	path = filepath.FromSlash(path)
	if !strings.HasPrefix(path, "~"+string(os.PathSeparator)) {
		return path, nil
	}

	home, err := getHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, path[2:]), nil
}

func getHomeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "", errNoHome
	}
	return home, nil
}

// UniqueName returns path if nothing exists there, otherwise the first of
// "name (1).ext", "name (2).ext", ... in the same directory that is free.
// Errors other than the name not existing are returned as is.
func UniqueName(path string) (string, error) {
	if free, err := isFree(path); free || err != nil {
		return path, err
	}

	dir, base := filepath.Split(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if stem == "" {
		// Dot files such as ".profile" have no extension to speak of.
		stem, ext = base, ""
	}

	for i := 1; ; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, i, ext))
		if free, err := isFree(candidate); free || err != nil {
			return candidate, err
		}
	}
}

func isFree(path string) (bool, error) {
	_, err := os.Lstat(path)
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, fs.ErrNotExist):
		return true, nil
	default:
		return false, err
	}
}

// InWritableDir calls fn(path), while making sure that the directory
// containing `path` is writable for the duration of the call.
func InWritableDir(fn func(string) error, path string) error {
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return errors.New("not a directory: " + path)
	}
	if info.Mode()&0o200 == 0 {
		// A non-writeable directory (for this user; we assume that's the
		// relevant part). Temporarily change the mode so we can delete the
		// file or directory inside it.
		if err := os.Chmod(dir, 0o755); err == nil {
			defer os.Chmod(dir, info.Mode())
		}
	}

	return fn(path)
}

// RemoveAll removes path and everything below it. A path that does not exist
// is not an error.
func RemoveAll(path string) error {
	err := InWritableDir(os.RemoveAll, path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Remove removes a single file or empty directory. A path that does not exist
// is not an error.
func Remove(path string) error {
	err := InWritableDir(os.Remove, path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// CopyFile copies the contents of the file named src to the file named dst,
// creating or truncating dst. It returns the number of bytes copied.
func CopyFile(src, dst string) (n int64, err error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	defer func() {
		cerr := out.Close()
		if err == nil {
			err = cerr
		}
	}()
	return io.Copy(out, in)
}
