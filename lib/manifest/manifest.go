// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package manifest describes the set of files and directories making up a
// transfer, and builds that description from local file references.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/syncthing/crossdrop/lib/osutil"
)

// The marker entry some senders append after a folder listing. It names no
// file and is dropped on load.
const legacyDeleteMarker = ".delete"

var ErrInvalidPath = errors.New("invalid manifest path")

// An Entry is one file or directory in the transfer. Path is slash
// separated and relative to the parent of the selected item.
type Entry struct {
	Path  string
	Size  int64
	IsDir bool
}

type jsonEntry struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// MarshalJSON encodes the entry as {"path": ..., "size": ...}, marking
// directories with a trailing slash.
func (e Entry) MarshalJSON() ([]byte, error) {
	je := jsonEntry{Path: e.Path, Size: e.Size}
	if e.IsDir {
		je.Path += "/"
		je.Size = 0
	}
	return json.Marshal(je)
}

func (e *Entry) UnmarshalJSON(bs []byte) error {
	var je jsonEntry
	if err := json.Unmarshal(bs, &je); err != nil {
		return err
	}
	e.IsDir = strings.HasSuffix(je.Path, "/")
	e.Path = strings.TrimSuffix(je.Path, "/")
	e.Size = je.Size
	if e.IsDir {
		e.Size = 0
	}
	return nil
}

func (e Entry) String() string {
	if e.IsDir {
		return e.Path + "/"
	}
	return fmt.Sprintf("%s (%d bytes)", e.Path, e.Size)
}

// Validate returns an error unless the entry path is a clean relative path
// that stays within its destination.
func (e Entry) Validate() error {
	if e.Path == "." || !fs.ValidPath(e.Path) {
		return fmt.Errorf("%w: %q", ErrInvalidPath, e.Path)
	}
	if e.Size < 0 {
		return fmt.Errorf("%w: %q has negative size", ErrInvalidPath, e.Path)
	}
	return nil
}

// A Manifest is the ordered list of entries in a transfer. Directories
// always precede their contents.
type Manifest []Entry

// Validate checks every entry and rejects duplicate paths.
func (m Manifest) Validate() error {
	seen := make(map[string]struct{}, len(m))
	for _, e := range m {
		if err := e.Validate(); err != nil {
			return err
		}
		if _, ok := seen[e.Path]; ok {
			return fmt.Errorf("%w: %q listed twice", ErrInvalidPath, e.Path)
		}
		seen[e.Path] = struct{}{}
	}
	return nil
}

// Files returns the number of file entries.
func (m Manifest) Files() int {
	n := 0
	for _, e := range m {
		if !e.IsDir {
			n++
		}
	}
	return n
}

// TotalSize returns the sum of the file sizes.
func (m Manifest) TotalSize() int64 {
	var size int64
	for _, e := range m {
		size += e.Size
	}
	return size
}

// Roots returns the distinct top level names in the manifest, in order of
// first appearance.
func (m Manifest) Roots() []string {
	var roots []string
	seen := make(map[string]struct{})
	for _, e := range m {
		root, _, _ := strings.Cut(e.Path, "/")
		if _, ok := seen[root]; ok {
			continue
		}
		seen[root] = struct{}{}
		roots = append(roots, root)
	}
	return roots
}

// Save writes the manifest as an indented JSON array, replacing any previous
// file at path atomically.
func (m Manifest) Save(path string) error {
	if m == nil {
		m = Manifest{}
	}
	bs, err := json.MarshalIndent(m, "", "    ")
	if err != nil {
		return err
	}

	err = osutil.WriteAtomic(path, func(w io.Writer) error {
		_, err := w.Write(append(bs, '\n'))
		return err
	})
	if err != nil {
		return err
	}
	l.Debugf("saved manifest of %d entries to %s", len(m), path)
	return nil
}

// Load reads and validates a manifest written by Save, or by any sender
// producing the same JSON form.
func Load(path string) (Manifest, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw Manifest
	if err := json.Unmarshal(bs, &raw); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	m := raw[:0]
	for _, e := range raw {
		if e.Path == legacyDeleteMarker {
			continue
		}
		m = append(m, e)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}
