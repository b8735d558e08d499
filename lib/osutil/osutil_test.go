// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package osutil_test

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/syncthing/crossdrop/lib/osutil"
)

func TestInWriteableDir(t *testing.T) {
	if runtime.GOOS == "windows" || os.Getuid() == 0 {
		t.Skip("permission bits are not enforced here")
	}

	dir := t.TempDir()
	os.Mkdir(filepath.Join(dir, "testdata"), 0o700)
	os.Mkdir(filepath.Join(dir, "testdata", "rw"), 0o700)
	os.Mkdir(filepath.Join(dir, "testdata", "ro"), 0o500)

	create := func(name string) error {
		fd, err := os.Create(name)
		if err != nil {
			return err
		}
		fd.Close()
		return nil
	}

	// These should succeed

	err := osutil.InWritableDir(create, filepath.Join(dir, "testdata", "file"))
	if err != nil {
		t.Error("testdata/file:", err)
	}
	err = osutil.InWritableDir(create, filepath.Join(dir, "testdata", "rw", "foo"))
	if err != nil {
		t.Error("testdata/rw/foo:", err)
	}
	err = osutil.InWritableDir(os.Remove, filepath.Join(dir, "testdata", "rw", "foo"))
	if err != nil {
		t.Error("testdata/rw/foo:", err)
	}

	err = osutil.InWritableDir(create, filepath.Join(dir, "testdata", "ro", "foo"))
	if err != nil {
		t.Error("testdata/ro/foo:", err)
	}
	err = osutil.InWritableDir(os.Remove, filepath.Join(dir, "testdata", "ro", "foo"))
	if err != nil {
		t.Error("testdata/ro/foo:", err)
	}

	// These should not

	err = osutil.InWritableDir(create, filepath.Join(dir, "testdata", "nonexistent", "foo"))
	if err == nil {
		t.Error("testdata/nonexistent/foo returned nil error")
	}
	err = osutil.InWritableDir(create, filepath.Join(dir, "testdata", "file", "foo"))
	if err == nil {
		t.Error("testdata/file/foo returned nil error")
	}

	// The read only directory keeps its mode.
	info, err := os.Stat(filepath.Join(dir, "testdata", "ro"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o500 {
		t.Errorf("mode not restored, got 0%o", info.Mode().Perm())
	}
}

func TestUniqueName(t *testing.T) {
	dir := t.TempDir()
	touch := func(name string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	cases := []struct {
		existing []string
		name     string
		expected string
	}{
		{nil, "report.pdf", "report.pdf"},
		{[]string{"report.pdf"}, "report.pdf", "report (1).pdf"},
		{[]string{"report (1).pdf"}, "report.pdf", "report (2).pdf"},
		{[]string{"archive.tar.gz"}, "archive.tar.gz", "archive.tar (1).gz"},
		{[]string{"README"}, "README", "README (1)"},
		{[]string{".profile"}, ".profile", ".profile (1)"},
	}

	for _, tc := range cases {
		for _, name := range tc.existing {
			touch(name)
		}
		got, err := osutil.UniqueName(filepath.Join(dir, tc.name))
		if err != nil {
			t.Fatal(err)
		}
		if want := filepath.Join(dir, tc.expected); got != want {
			t.Errorf("UniqueName(%q) == %q, expected %q", tc.name, got, want)
		}
	}
}

func TestUniqueNameLstatError(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("a path below a file does not exist on windows")
	}

	dir := t.TempDir()
	file := filepath.Join(dir, "file")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	// A regular file in the middle of the path is not a missing name.
	if _, err := osutil.UniqueName(filepath.Join(file, "child.txt")); err == nil {
		t.Error("expected an error below a regular file")
	}
}

func TestRemoveAll(t *testing.T) {
	dir := t.TempDir()
	tree := filepath.Join(dir, "tree")
	if err := os.MkdirAll(filepath.Join(tree, "a", "b"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tree, "a", "b", "file"), []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := osutil.RemoveAll(tree); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Lstat(tree); !os.IsNotExist(err) {
		t.Error("tree still exists")
	}

	// Removing again, or below a missing parent, is fine.
	if err := osutil.RemoveAll(tree); err != nil {
		t.Error("unexpected error for missing path:", err)
	}
	if err := osutil.RemoveAll(filepath.Join(dir, "missing", "child")); err != nil {
		t.Error("unexpected error for missing parent:", err)
	}
	if err := osutil.Remove(filepath.Join(dir, "missing")); err != nil {
		t.Error("unexpected error for missing file:", err)
	}
}

func TestCreateAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")

	w, err := osutil.CreateAtomic(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("[]")); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Lstat(path); !os.IsNotExist(err) {
		t.Error("final file should not exist before Close")
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	bs, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(bs) != "[]" {
		t.Errorf("unexpected contents %q", bs)
	}
	if _, err := w.Write([]byte("more")); err != osutil.ErrClosed {
		t.Error("write after close should fail with ErrClosed, got", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("temporary file left behind: %v", entries)
	}
}

func TestWriteAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	failure := errors.New("marshalling failed")
	err := osutil.WriteAtomic(path, func(w io.Writer) error {
		w.Write([]byte("partial"))
		return failure
	})
	if err != failure {
		t.Fatal("unexpected error", err)
	}
	if bs, _ := os.ReadFile(path); string(bs) != "old" {
		t.Errorf("failed write changed the file to %q", bs)
	}

	err = osutil.WriteAtomic(path, func(w io.Writer) error {
		_, err := w.Write([]byte("new"))
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if bs, _ := os.ReadFile(path); string(bs) != "new" {
		t.Errorf("unexpected contents %q", bs)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("temporary files left behind: %v", entries)
	}
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	if err := os.WriteFile(src, []byte("HELLOWORLD"), 0o644); err != nil {
		t.Fatal(err)
	}
	n, err := osutil.CopyFile(src, dst)
	if err != nil {
		t.Fatal(err)
	}
	if n != 10 {
		t.Errorf("copied %d bytes, expected 10", n)
	}
	bs, _ := os.ReadFile(dst)
	if string(bs) != "HELLOWORLD" {
		t.Errorf("unexpected contents %q", bs)
	}
}

func TestExpandTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		t.Skip("no home directory")
	}

	got, err := osutil.ExpandTilde("~/Received")
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(home, "Received"); got != want {
		t.Errorf("got %q, expected %q", got, want)
	}

	got, err = osutil.ExpandTilde("/abs/path")
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.FromSlash("/abs/path") {
		t.Errorf("absolute path changed to %q", got)
	}
}
