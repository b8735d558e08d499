// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package logger

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestAPI(t *testing.T) {
	l := newLogger(io.Discard)
	l.SetFlags(0)

	debug := 0
	l.AddHandler(LevelDebug, checkFunc(t, LevelDebug, "test 0", &debug))
	info := 0
	l.AddHandler(LevelInfo, checkFunc(t, LevelInfo, "test 1", &info))
	warn := 0
	l.AddHandler(LevelWarn, checkFunc(t, LevelWarn, "test 2", &warn))

	l.Debugf("test %d", 0)
	l.Debugln("test", 0)
	l.Infof("test %d", 1)
	l.Infoln("test", 1)
	l.Warnf("test %d", 2)
	l.Warnln("test", 2)

	// The debug handler also sees info and warning lines.
	if debug != 6 {
		t.Errorf("Debug handler called %d != 6 times", debug)
	}
	if info != 4 {
		t.Errorf("Info handler called %d != 4 times", info)
	}
	if warn != 2 {
		t.Errorf("Warn handler called %d != 2 times", warn)
	}
}

func checkFunc(t *testing.T, minl LogLevel, expectmsg string, counter *int) func(LogLevel, string) {
	return func(l LogLevel, msg string) {
		*counter++
		if l < minl {
			t.Errorf("Incorrect message level %d < %d", l, minl)
		}
		if !strings.HasPrefix(msg, "test") {
			t.Errorf("%q does not start with %q", msg, "test")
		}
		if l == minl && !strings.HasSuffix(msg, expectmsg) {
			t.Errorf("%q does not end with %q", msg, expectmsg)
		}
	}
}

func TestFacilityDebugging(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf)

	f0 := l.NewFacility("f0", "foo#0")
	f1 := l.NewFacility("f1", "foo#1")

	if len(l.Facilities()) != 2 {
		t.Fatal("expected two facilities, got", l.Facilities())
	}

	l.SetDebug("f0", true)
	f0.Debugln("debug line from f0")
	f1.Debugln("debug line from f1")

	out := buf.String()
	if !strings.Contains(out, "from f0") {
		t.Error("expected debug output from f0")
	}
	if strings.Contains(out, "from f1") {
		t.Error("unexpected debug output from f1")
	}
	if !strings.Contains(out, "logger_test.go") {
		t.Error("expected source positions while debugging")
	}

	l.SetDebug("f0", false)
	buf.Reset()
	f0.Debugln("silenced")
	f0.Infoln("still here")
	if out := buf.String(); strings.Contains(out, "silenced") || !strings.Contains(out, "still here") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestParseTraces(t *testing.T) {
	all, fs := parseTraces("receive, discover;crypt")
	if all || strings.Join(fs, ",") != "crypt,discover,receive" {
		t.Errorf("got %v %v", all, fs)
	}
	if all, _ := parseTraces("discover,all"); !all {
		t.Error("expected all")
	}
	if all, fs := parseTraces(""); all || len(fs) != 0 {
		t.Errorf("got %v %v", all, fs)
	}
}

func TestControlStripper(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf)
	l.SetFlags(0)

	l.Infoln("name\x07with\x1bcontrol")

	if got := buf.String(); got != "INFO: name with control\n" {
		t.Errorf("unexpected output %q", got)
	}
}
