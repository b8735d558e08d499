// Copyright (C) 2016 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package svcutil holds helpers for running crossdrop components as suture
// services.
package svcutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/syncthing/crossdrop/lib/logger"
)

// ServiceTimeout bounds how long a supervisor waits for a service to stop.
const ServiceTimeout = 10 * time.Second

type ExitStatus int

const (
	ExitSuccess ExitStatus = 0
	ExitError   ExitStatus = 1
	// A receive session wiped its sources after too many failed attempts.
	ExitLockout ExitStatus = 3
)

func (s ExitStatus) AsInt() int {
	return int(s)
}

// A FatalErr ends the supervisor tree and the process, with Status as the
// exit status.
type FatalErr struct {
	Err    error
	Status ExitStatus
}

// AsFatalErr wraps err in a FatalErr, unless it already is one.
func AsFatalErr(err error, status ExitStatus) *FatalErr {
	var ferr *FatalErr
	if errors.As(err, &ferr) {
		return ferr
	}
	return &FatalErr{Err: err, Status: status}
}

func (e *FatalErr) Error() string {
	return e.Err.Error()
}

func (e *FatalErr) Unwrap() error {
	return e.Err
}

func (e *FatalErr) Is(target error) bool {
	return target == suture.ErrTerminateSupervisorTree
}

// NoRestartErr wraps err, which may be nil, so that it matches
// suture.ErrDoNotRestart.
func NoRestartErr(err error) error {
	if err == nil {
		return suture.ErrDoNotRestart
	}
	return &noRestartErr{err}
}

type noRestartErr struct {
	err error
}

func (e *noRestartErr) Error() string {
	return e.err.Error()
}

func (e *noRestartErr) Unwrap() error {
	return e.err
}

func (e *noRestartErr) Is(target error) bool {
	return target == suture.ErrDoNotRestart
}

type ServiceWithError interface {
	suture.Service
	fmt.Stringer
	Error() error
}

// AsService turns fn into a suture service that remembers the error of its
// last run.
func AsService(fn func(ctx context.Context) error, creator string) ServiceWithError {
	return &service{
		creator: creator,
		serve:   fn,
	}
}

type service struct {
	creator string
	serve   func(ctx context.Context) error

	mut sync.Mutex
	err error
}

func (s *service) Serve(ctx context.Context) error {
	s.setError(nil)
	err := s.serve(ctx)
	s.setError(err)
	return err
}

func (s *service) setError(err error) {
	s.mut.Lock()
	s.err = err
	s.mut.Unlock()
}

func (s *service) Error() error {
	s.mut.Lock()
	defer s.mut.Unlock()
	return s.err
}

func (s *service) String() string {
	return fmt.Sprintf("Service@%p created by %v", s, s.creator)
}

// SpecWithDebugLogger returns a supervisor spec that logs supervisor events
// at debug level on l.
func SpecWithDebugLogger(l logger.Logger) suture.Spec {
	return suture.Spec{
		EventHook:         func(e suture.Event) { l.Debugln(e) },
		Timeout:           ServiceTimeout,
		PassThroughPanics: true,
	}
}
