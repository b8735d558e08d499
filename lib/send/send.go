// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package send prepares selected files and directories for transfer: one
// manifest describing them and one stream per file, encrypted when a
// password is given.
package send

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/syncthing/crossdrop/lib/crypt"
	"github.com/syncthing/crossdrop/lib/events"
	"github.com/syncthing/crossdrop/lib/manifest"
	"github.com/syncthing/crossdrop/lib/osutil"
)

var ErrTooLarge = errors.New("file exceeds the maximum transfer size")

type Options struct {
	// StageDir receives one file per manifest file entry and one directory
	// per directory entry, laid out by manifest path.
	StageDir string
	// ManifestPath is where the manifest is written, once, before any file
	// is staged.
	ManifestPath string
	// Password enables encryption. Entries are then renamed with the
	// encryption suffix and sized as their encrypted form.
	Password    string
	Ignores     []string
	MaxFileSize int64 // bytes; zero means no limit
	Events      events.Logger
}

// Prepare builds the manifest for refs, writes it and stages every entry.
// Files already present in the staging directory are replaced.
func Prepare(ctx context.Context, refs []string, opts Options) (manifest.Manifest, error) {
	if opts.Events == nil {
		opts.Events = events.NoopLogger
	}

	b, err := manifest.NewBuilder(opts.Ignores)
	if err != nil {
		return nil, err
	}
	plain, sources, err := b.BuildSources(ctx, refs)
	if err != nil {
		return nil, err
	}

	m := make(manifest.Manifest, len(plain))
	for i, e := range plain {
		if !e.IsDir && opts.MaxFileSize > 0 && e.Size > opts.MaxFileSize {
			return nil, fmt.Errorf("%s: %w", e.Path, ErrTooLarge)
		}
		if !e.IsDir && opts.Password != "" {
			e.Path = crypt.EncryptedName(e.Path)
			e.Size = crypt.EncryptedSize(e.Size)
		}
		m[i] = e
	}
	if err := m.Validate(); err != nil {
		// An encrypted name collides with a file already carrying the suffix.
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(opts.ManifestPath), 0o700); err != nil {
		return nil, err
	}
	if err := m.Save(opts.ManifestPath); err != nil {
		return nil, fmt.Errorf("writing manifest: %w", err)
	}
	l.Debugf("wrote manifest of %d entries to %s", len(m), opts.ManifestPath)
	opts.Events.Log(events.ManifestWritten, map[string]interface{}{
		"path":    opts.ManifestPath,
		"entries": len(m),
		"size":    m.TotalSize(),
	})

	for i, e := range m {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		dst := filepath.Join(opts.StageDir, filepath.FromSlash(e.Path))
		if e.IsDir {
			if err := os.MkdirAll(dst, 0o755); err != nil {
				return nil, err
			}
			continue
		}
		if err := stage(e, sources[i], dst, opts); err != nil {
			return nil, fmt.Errorf("staging %s: %w", e.Path, err)
		}
	}

	l.Infof("Prepared %d files (%d bytes) in %s", m.Files(), m.TotalSize(), opts.StageDir)
	return m, nil
}

func stage(e manifest.Entry, src, dst string, opts Options) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := osutil.Remove(dst); err != nil {
		return err
	}

	opts.Events.Log(events.ItemStarted, map[string]string{
		"item":   e.Path,
		"source": src,
	})

	mode := metricModePlain
	var size int64
	if opts.Password != "" {
		mode = metricModeEncrypted
		if _, err := crypt.EncryptFile(opts.Password, src, dst); err != nil {
			return err
		}
		if info, err := os.Stat(src); err == nil {
			size = info.Size()
		}
	} else {
		n, err := osutil.CopyFile(src, dst)
		if err != nil {
			osutil.Remove(dst)
			return err
		}
		size = n
	}

	metricStagedFiles.WithLabelValues(mode).Inc()
	metricStagedBytes.WithLabelValues(mode).Add(float64(size))
	l.Debugln("staged", src, "as", dst)
	opts.Events.Log(events.ItemFinished, map[string]interface{}{
		"item": e.Path,
		"size": e.Size,
	})
	return nil
}
