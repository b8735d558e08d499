// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package manifest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/gobwas/glob"
	"golang.org/x/text/unicode/norm"
)

// A Builder turns file and directory references into a Manifest.
type Builder struct {
	ignores []glob.Glob
}

// NewBuilder returns a Builder leaving out anything below a selected
// directory that matches one of the ignore patterns. A pattern is matched
// against both the entry path and its base name.
func NewBuilder(ignores []string) (*Builder, error) {
	b := &Builder{}
	for _, pat := range ignores {
		g, err := glob.Compile(pat, '/')
		if err != nil {
			return nil, fmt.Errorf("ignore pattern %q: %w", pat, err)
		}
		b.ignores = append(b.ignores, g)
	}
	return b, nil
}

// Build lists each reference in order. A file becomes one entry named by its
// base name; a directory contributes one entry per file and subdirectory
// below it, depth first with siblings sorted by name, but no entry of its
// own. Symlinks are followed. A directory that cannot be read is skipped
// with a warning; a reference that does not exist is an error.
func (b *Builder) Build(ctx context.Context, refs []string) (Manifest, error) {
	m, _, err := b.BuildSources(ctx, refs)
	return m, err
}

// BuildSources is like Build, and also returns the filesystem path each
// entry was listed from.
func (b *Builder) BuildSources(ctx context.Context, refs []string) (Manifest, []string, error) {
	var lst listing
	for _, ref := range refs {
		info, err := os.Stat(ref)
		if err != nil {
			return nil, nil, fmt.Errorf("selected item: %w", err)
		}
		name := norm.NFC.String(filepath.Base(filepath.Clean(ref)))

		switch {
		case info.IsDir():
			ancestors := newAncestorDirList()
			ancestors.AppendUnlessPresent(info)
			if err := b.walk(ctx, ref, name, ancestors, &lst); err != nil {
				return nil, nil, err
			}

		case info.Mode().IsRegular():
			lst.add(Entry{Path: name, Size: info.Size()}, ref)

		default:
			return nil, nil, fmt.Errorf("selected item %s: not a regular file or directory", ref)
		}
	}

	if err := lst.entries.Validate(); err != nil {
		// Two selected items with the same base name.
		return nil, nil, err
	}
	l.Debugf("built manifest of %d entries from %d references", len(lst.entries), len(refs))
	return lst.entries, lst.sources, nil
}

type listing struct {
	entries Manifest
	sources []string
}

func (lst *listing) add(e Entry, source string) {
	lst.entries = append(lst.entries, e)
	lst.sources = append(lst.sources, source)
	if e.IsDir {
		metricEntries.WithLabelValues(metricTypeDir).Inc()
	} else {
		metricEntries.WithLabelValues(metricTypeFile).Inc()
	}
}

func (b *Builder) walk(ctx context.Context, dir, rel string, ancestors *ancestorDirList, lst *listing) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	names, err := readDirNames(dir)
	if err != nil {
		l.Warnf("Skipping unreadable directory %s: %v", dir, err)
		metricSkipped.WithLabelValues(metricReasonUnreadable).Inc()
		return nil
	}
	sort.Strings(names)

	for _, name := range names {
		childRel := rel + "/" + norm.NFC.String(name)
		if b.ignored(childRel, name) {
			l.Debugln("ignoring", childRel)
			metricSkipped.WithLabelValues(metricReasonIgnored).Inc()
			continue
		}

		full := filepath.Join(dir, name)
		info, err := os.Stat(full)
		if err != nil {
			// Dangling symlink or removed while we were looking.
			l.Warnf("Skipping %s: %v", full, err)
			metricSkipped.WithLabelValues(metricReasonUnreadable).Inc()
			continue
		}

		switch {
		case info.IsDir():
			if !ancestors.AppendUnlessPresent(info) {
				l.Warnf("Not descending into %s: symlink loop", full)
				metricSkipped.WithLabelValues(metricReasonLoop).Inc()
				continue
			}
			lst.add(Entry{Path: childRel, IsDir: true}, full)
			err := b.walk(ctx, full, childRel, ancestors, lst)
			ancestors.Remove()
			if err != nil {
				return err
			}

		case info.Mode().IsRegular():
			lst.add(Entry{Path: childRel, Size: info.Size()}, full)

		default:
			l.Debugln("skipping special file", full)
			metricSkipped.WithLabelValues(metricReasonSpecial).Inc()
		}
	}
	return nil
}

func (b *Builder) ignored(rel, name string) bool {
	for _, g := range b.ignores {
		if g.Match(rel) || g.Match(name) {
			return true
		}
	}
	return false
}

func readDirNames(dir string) ([]string, error) {
	fd, err := os.Open(dir)
	if err != nil {
		return nil, err
	}
	defer fd.Close()
	return fd.Readdirnames(-1)
}

// ancestorDirList holds the directories on the path from the selected item
// down to the one being listed, to detect symlinks leading back up.
type ancestorDirList struct {
	list []os.FileInfo
}

func newAncestorDirList() *ancestorDirList {
	return &ancestorDirList{list: make([]os.FileInfo, 0, 20)}
}

func (ancestors *ancestorDirList) AppendUnlessPresent(info os.FileInfo) bool {
	for _, ancestor := range ancestors.list {
		if os.SameFile(info, ancestor) {
			return false
		}
	}
	ancestors.list = append(ancestors.list, info)
	return true
}

func (ancestors *ancestorDirList) Remove() {
	if len(ancestors.list) == 0 {
		panic("bug: Remove on empty ancestorDirList")
	}
	ancestors.list = ancestors.list[:len(ancestors.list)-1]
}
