// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package receive decrypts a received transfer, allowing a limited number of
// password attempts before the received data is destroyed.
package receive

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/thejerf/suture/v4"
	"golang.org/x/time/rate"

	"github.com/syncthing/crossdrop/lib/crypt"
	"github.com/syncthing/crossdrop/lib/events"
	"github.com/syncthing/crossdrop/lib/manifest"
	"github.com/syncthing/crossdrop/lib/osutil"
	"github.com/syncthing/crossdrop/lib/svcutil"
)

// MaxAttempts is the number of failed entries tolerated before lockout.
const MaxAttempts = 3

// Attempts beyond this many waiting on the worker are refused.
const maxPending = MaxAttempts

type State int

const (
	StateIdle State = iota
	StateDecrypting
	StateRetry
	StateSuccess
	StateLockout
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDecrypting:
		return "decrypting"
	case StateRetry:
		return "retry"
	case StateSuccess:
		return "success"
	case StateLockout:
		return "lockout"
	default:
		return "unknown"
	}
}

// Terminal returns true for the states a session never leaves.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateLockout
}

type FailureKind int

const (
	FailureNone FailureKind = iota
	// The password was wrong or the data is corrupt.
	FailureCrypto
	// A file could not be read, written or removed.
	FailureIO
	// Too many attempts are already waiting; nothing was tried.
	FailureBusy
)

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureCrypto:
		return "crypto"
	case FailureIO:
		return "io"
	case FailureBusy:
		return "busy"
	default:
		return "unknown"
	}
}

// An Outcome is the result of one password attempt.
type Outcome struct {
	State State
	// Remaining attempts before lockout.
	Remaining int
	Failure   FailureKind
	// Failed is the manifest path of the entry that failed, if any.
	Failed string
}

type request struct {
	password string
	result   chan Outcome
}

// A Session decrypts the encrypted entries of one manifest below root. All
// decryption happens on a single worker, one entry at a time.
type Session struct {
	ID       uuid.UUID
	root     string
	manifest manifest.Manifest
	evLogger events.Logger

	requests chan request

	// Owned by the worker.
	done     []bool
	outputs  []string
	progress rate.Sometimes

	mut      sync.Mutex
	state    State
	failures int
	closed   bool
	cancel   context.CancelFunc
	stopped  <-chan error
}

// New returns an idle session for the entries of m, which are expected below
// root.
func New(root string, m manifest.Manifest, evLogger events.Logger) (*Session, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("receive: %w", err)
	}
	if evLogger == nil {
		evLogger = events.NoopLogger
	}
	return &Session{
		ID:       uuid.New(),
		root:     root,
		manifest: m,
		evLogger: evLogger,
		requests: make(chan request, maxPending),
		done:     make([]bool, len(m)),
		progress: rate.Sometimes{First: 1, Interval: 250 * time.Millisecond},
	}, nil
}

func (s *Session) String() string {
	return fmt.Sprintf("receive.Session@%s", s.ID)
}

// Start runs the session worker until Stop is called or the session reaches
// a terminal state.
func (s *Session) Start(ctx context.Context) {
	s.mut.Lock()
	defer s.mut.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	sup := suture.New(s.String(), svcutil.SpecWithDebugLogger(l))
	sup.Add(svcutil.AsService(s.serve, s.String()))
	s.stopped = sup.ServeBackground(ctx)
}

// Stop cancels the worker and waits for it to return. Attempts still waiting
// are answered with the current state.
func (s *Session) Stop() {
	s.mut.Lock()
	cancel, stopped := s.cancel, s.stopped
	s.mut.Unlock()

	if cancel != nil {
		cancel()
		<-stopped
	}

	s.mut.Lock()
	defer s.mut.Unlock()
	s.closed = true
	s.drainLocked()
}

// State returns the current state.
func (s *Session) State() State {
	s.mut.Lock()
	defer s.mut.Unlock()
	return s.state
}

// Submit queues a password attempt and returns at once. The outcome is
// delivered on the returned channel. Once the session is finished every
// submission is answered with the final state.
func (s *Session) Submit(password string) <-chan Outcome {
	res := make(chan Outcome, 1)

	s.mut.Lock()
	defer s.mut.Unlock()

	if s.closed || s.state.Terminal() {
		res <- s.outcomeLocked(FailureNone, "")
		return res
	}
	select {
	case s.requests <- request{password: password, result: res}:
	default:
		l.Debugln(s, "refusing attempt, queue full")
		res <- s.outcomeLocked(FailureBusy, "")
	}
	return res
}

func (s *Session) serve(ctx context.Context) error {
	l.Debugln(s, "starting")
	defer l.Debugln(s, "stopping")

	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-s.requests:
			out := s.attempt(ctx, req.password)
			req.result <- out
			if out.State.Terminal() {
				s.mut.Lock()
				s.drainLocked()
				s.mut.Unlock()
				return svcutil.NoRestartErr(nil)
			}
		}
	}
}

// attempt runs one pass over the entries not yet decrypted. The first
// failing entry ends the pass.
func (s *Session) attempt(ctx context.Context, password string) Outcome {
	prev := s.State()
	s.setState(StateDecrypting)

	total := s.manifest.Files()
	for i, e := range s.manifest {
		if ctx.Err() != nil {
			s.setState(prev)
			return s.outcome(FailureNone, "")
		}
		if e.IsDir || s.done[i] {
			continue
		}

		src := s.sourcePath(e)
		plain, ok := crypt.PlainName(src)
		if !ok {
			// Sent in the clear; nothing to do.
			s.done[i] = true
			continue
		}
		dst, err := osutil.UniqueName(plain)
		if err != nil {
			return s.fail(e, err)
		}

		s.evLogger.Log(events.ItemStarted, map[string]string{
			"session": s.ID.String(),
			"item":    e.Path,
		})
		n, err := crypt.DecryptFile(password, src, dst)
		if err != nil {
			return s.fail(e, err)
		}

		s.done[i] = true
		s.outputs = append(s.outputs, dst)
		metricEntriesDecrypted.Inc()
		metricBytesDecrypted.Add(float64(n))
		s.evLogger.Log(events.ItemFinished, map[string]interface{}{
			"session": s.ID.String(),
			"item":    e.Path,
			"output":  dst,
			"size":    n,
		})
		s.reportProgress(total)
	}

	return s.succeed()
}

func (s *Session) fail(e manifest.Entry, err error) Outcome {
	kind := FailureIO
	if errors.Is(err, crypt.ErrDecryption) {
		kind = FailureCrypto
	}
	s.mut.Lock()
	s.failures++
	remaining := MaxAttempts - s.failures
	s.mut.Unlock()

	metricFailures.WithLabelValues(kind.String()).Inc()
	l.Debugf("%v: %s: %v", s, e.Path, err)

	if remaining > 0 {
		l.Warnf("Could not decrypt %s (%v). Remaining attempts: %d", e.Path, err, remaining)
		s.evLogger.Log(events.DecryptFailed, map[string]interface{}{
			"session":   s.ID.String(),
			"item":      e.Path,
			"kind":      kind.String(),
			"error":     events.Error(err),
			"remaining": remaining,
		})
		s.setState(StateRetry)
		metricAttempts.WithLabelValues(StateRetry.String()).Inc()
		return s.outcome(kind, e.Path)
	}

	l.Warnf("Could not decrypt %s (%v). Too many failed attempts, deleting received files", e.Path, err)
	s.evLogger.Log(events.SessionLockout, map[string]interface{}{
		"session": s.ID.String(),
		"item":    e.Path,
		"kind":    kind.String(),
	})
	s.wipe()
	s.setState(StateLockout)
	metricAttempts.WithLabelValues(StateLockout.String()).Inc()
	return s.outcome(kind, e.Path)
}

// wipe removes everything the transfer put below root, both what was
// received and what was decrypted from it.
func (s *Session) wipe() {
	for _, out := range s.outputs {
		if err := osutil.RemoveAll(out); err != nil {
			l.Warnln("Deleting decrypted file:", err)
		}
	}
	for _, root := range s.manifest.Roots() {
		if err := osutil.RemoveAll(filepath.Join(s.root, filepath.FromSlash(root))); err != nil {
			l.Warnln("Deleting received files:", err)
		}
	}
}

func (s *Session) succeed() Outcome {
	for _, e := range s.manifest {
		if e.IsDir {
			continue
		}
		src := s.sourcePath(e)
		if _, ok := crypt.PlainName(src); !ok {
			continue
		}
		if err := osutil.Remove(src); err != nil {
			l.Warnln("Deleting encrypted file:", err)
		}
	}

	l.Infof("Decrypted %d files in %s", len(s.outputs), s.root)
	s.evLogger.Log(events.SessionCompleted, map[string]interface{}{
		"session": s.ID.String(),
		"files":   len(s.outputs),
	})
	s.setState(StateSuccess)
	metricAttempts.WithLabelValues(StateSuccess.String()).Inc()
	return s.outcome(FailureNone, "")
}

func (s *Session) reportProgress(total int) {
	decrypted := 0
	for i, e := range s.manifest {
		if !e.IsDir && s.done[i] {
			decrypted++
		}
	}
	send := func() {
		s.evLogger.Log(events.DecryptProgress, map[string]interface{}{
			"session": s.ID.String(),
			"done":    decrypted,
			"total":   total,
		})
	}
	if decrypted == total {
		send()
		return
	}
	s.progress.Do(send)
}

func (s *Session) sourcePath(e manifest.Entry) string {
	return filepath.Join(s.root, filepath.FromSlash(e.Path))
}

func (s *Session) setState(state State) {
	s.mut.Lock()
	from := s.state
	s.state = state
	s.mut.Unlock()

	if from != state {
		l.Debugln(s, from, "->", state)
		s.evLogger.Log(events.StateChanged, map[string]string{
			"session": s.ID.String(),
			"from":    from.String(),
			"to":      state.String(),
		})
	}
}

func (s *Session) outcome(kind FailureKind, failed string) Outcome {
	s.mut.Lock()
	defer s.mut.Unlock()
	return s.outcomeLocked(kind, failed)
}

func (s *Session) outcomeLocked(kind FailureKind, failed string) Outcome {
	return Outcome{
		State:     s.state,
		Remaining: MaxAttempts - s.failures,
		Failure:   kind,
		Failed:    failed,
	}
}

// drainLocked answers attempts that will never run.
func (s *Session) drainLocked() {
	for {
		select {
		case req := <-s.requests:
			req.result <- s.outcomeLocked(FailureNone, "")
		default:
			return
		}
	}
}
