// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package logger implements a leveled logger with per facility debug
// switches and message handlers.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
)

type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelVerbose
	LevelInfo
	LevelWarn
	NumLevels
)

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelVerbose:
		return "VERBOSE"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARNING"
	default:
		return "UNKNOWN"
	}
}

const (
	DefaultFlags = log.Ltime | log.Ldate
	DebugFlags   = log.Ltime | log.Ldate | log.Lmicroseconds | log.Lshortfile
)

// TraceEnv names the environment variable holding the comma separated list
// of facilities to debug, or "all".
const TraceEnv = "CROSSDROP_TRACE"

// A MessageHandler is called with the log level and message text.
type MessageHandler func(l LogLevel, msg string)

type Logger interface {
	AddHandler(level LogLevel, h MessageHandler)
	SetFlags(flag int)
	SetOutput(w io.Writer)
	Debugln(vals ...interface{})
	Debugf(format string, vals ...interface{})
	Verboseln(vals ...interface{})
	Verbosef(format string, vals ...interface{})
	Infoln(vals ...interface{})
	Infof(format string, vals ...interface{})
	Warnln(vals ...interface{})
	Warnf(format string, vals ...interface{})
	ShouldDebug(facility string) bool
	SetDebug(facility string, enabled bool)
	Facilities() map[string]string
	NewFacility(facility, description string) Logger
}

type logger struct {
	logger     *log.Logger
	handlers   [NumLevels][]MessageHandler
	facilities map[string]string // facility name => description
	debug      map[string]bool
	traceAll   bool
	traced     []string
	mut        sync.Mutex
}

// DefaultLogger writes to standard error, leaving standard output to
// command results.
var DefaultLogger = New()

func New() Logger {
	if os.Getenv("LOGGER_DISCARD") != "" {
		return newLogger(io.Discard)
	}
	return newLogger(os.Stderr)
}

func newLogger(w io.Writer) *logger {
	l := &logger{
		logger:     log.New(controlStripper{w}, "", DefaultFlags),
		facilities: make(map[string]string),
		debug:      make(map[string]bool),
	}
	l.traceAll, l.traced = parseTraces(os.Getenv(TraceEnv))
	return l
}

// parseTraces splits the trace variable on commas, semicolons or spaces.
func parseTraces(env string) (all bool, facilities []string) {
	facilities = strings.FieldsFunc(env, func(r rune) bool {
		return strings.ContainsRune(",; ", r)
	})
	if slices.Contains(facilities, "all") {
		return true, nil
	}
	slices.Sort(facilities)
	return false, facilities
}

// AddHandler registers a handler for messages at level and above.
func (l *logger) AddHandler(level LogLevel, h MessageHandler) {
	l.mut.Lock()
	defer l.mut.Unlock()
	l.handlers[level] = append(l.handlers[level], h)
}

func (l *logger) SetFlags(flag int) {
	l.logger.SetFlags(flag)
}

func (l *logger) SetOutput(w io.Writer) {
	l.logger.SetOutput(controlStripper{w})
}

func (l *logger) output(level LogLevel, s string) {
	l.mut.Lock()
	defer l.mut.Unlock()
	// Three frames up is the caller of Debugln and friends.
	l.logger.Output(3, level.String()+": "+s)
	s = strings.TrimSpace(s)
	for ll := LevelDebug; ll <= level; ll++ {
		for _, h := range l.handlers[ll] {
			h(level, s)
		}
	}
}

func (l *logger) Debugln(vals ...interface{}) {
	l.output(LevelDebug, fmt.Sprintln(vals...))
}

func (l *logger) Debugf(format string, vals ...interface{}) {
	l.output(LevelDebug, fmt.Sprintf(format, vals...))
}

func (l *logger) Verboseln(vals ...interface{}) {
	l.output(LevelVerbose, fmt.Sprintln(vals...))
}

func (l *logger) Verbosef(format string, vals ...interface{}) {
	l.output(LevelVerbose, fmt.Sprintf(format, vals...))
}

func (l *logger) Infoln(vals ...interface{}) {
	l.output(LevelInfo, fmt.Sprintln(vals...))
}

func (l *logger) Infof(format string, vals ...interface{}) {
	l.output(LevelInfo, fmt.Sprintf(format, vals...))
}

func (l *logger) Warnln(vals ...interface{}) {
	l.output(LevelWarn, fmt.Sprintln(vals...))
}

func (l *logger) Warnf(format string, vals ...interface{}) {
	l.output(LevelWarn, fmt.Sprintf(format, vals...))
}

// ShouldDebug returns true if the given facility has debugging enabled.
func (l *logger) ShouldDebug(facility string) bool {
	l.mut.Lock()
	defer l.mut.Unlock()
	return l.debug[facility]
}

// SetDebug enables or disables debugging for the given facility name. Log
// lines carry source positions while any facility is debugging.
func (l *logger) SetDebug(facility string, enabled bool) {
	l.mut.Lock()
	defer l.mut.Unlock()
	if enabled {
		l.debug[facility] = true
	} else {
		delete(l.debug, facility)
	}
	if len(l.debug) > 0 {
		l.logger.SetFlags(DebugFlags)
	} else {
		l.logger.SetFlags(DefaultFlags)
	}
}

// Facilities returns the known facilities and their descriptions.
func (l *logger) Facilities() map[string]string {
	l.mut.Lock()
	defer l.mut.Unlock()
	res := make(map[string]string, len(l.facilities))
	for facility, descr := range l.facilities {
		res[facility] = descr
	}
	return res
}

// NewFacility returns a logger whose debug output is switched by facility.
// Facilities named in the trace variable start out debugging.
func (l *logger) NewFacility(facility, description string) Logger {
	l.mut.Lock()
	l.facilities[facility] = description
	_, traced := slices.BinarySearch(l.traced, facility)
	l.mut.Unlock()

	if l.traceAll || traced {
		l.SetDebug(facility, true)
	}
	return &facilityLogger{
		logger:   l,
		facility: facility,
	}
}

// A facilityLogger drops debug lines unless its facility is debugging.
type facilityLogger struct {
	*logger
	facility string
}

func (l *facilityLogger) Debugln(vals ...interface{}) {
	if l.ShouldDebug(l.facility) {
		l.output(LevelDebug, fmt.Sprintln(vals...))
	}
}

func (l *facilityLogger) Debugf(format string, vals ...interface{}) {
	if l.ShouldDebug(l.facility) {
		l.output(LevelDebug, fmt.Sprintf(format, vals...))
	}
}

// controlStripper replaces control characters other than line breaks with
// spaces. Device names arrive from the network and end up in log lines.
type controlStripper struct {
	io.Writer
}

func (s controlStripper) Write(data []byte) (int, error) {
	for i, b := range data {
		if b < 32 && b != '\n' && b != '\r' {
			data[i] = ' '
		}
	}
	return s.Writer.Write(data)
}
