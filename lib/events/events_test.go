// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package events

import (
	"fmt"
	"testing"
	"time"
)

const timeout = time.Second

func TestNewLogger(t *testing.T) {
	l := NewLogger()
	if l == nil {
		t.Fatal("Unexpected nil Logger")
	}
}

func TestSubscriber(t *testing.T) {
	l := NewLogger()
	s := l.Subscribe(0)
	defer s.Unsubscribe()
	if s == nil {
		t.Fatal("Unexpected nil Subscription")
	}
}

func TestTimeout(t *testing.T) {
	l := NewLogger()
	s := l.Subscribe(0)
	defer s.Unsubscribe()
	_, err := s.Poll(timeout)
	if err != ErrTimeout {
		t.Fatal("Unexpected non-Timeout error:", err)
	}
}

func TestEventBeforeSubscribe(t *testing.T) {
	l := NewLogger()

	l.Log(DeviceDiscovered, "foo")
	s := l.Subscribe(0)
	defer s.Unsubscribe()

	_, err := s.Poll(timeout)
	if err != ErrTimeout {
		t.Fatal("Unexpected non-Timeout error:", err)
	}
}

func TestEventAfterSubscribe(t *testing.T) {
	l := NewLogger()

	s := l.Subscribe(AllEvents)
	defer s.Unsubscribe()
	l.Log(DeviceDiscovered, "foo")

	ev, err := s.Poll(timeout)

	if err != nil {
		t.Fatal("Unexpected error:", err)
	}
	if ev.Type != DeviceDiscovered {
		t.Error("Incorrect event type", ev.Type)
	}
	switch v := ev.Data.(type) {
	case string:
		if v != "foo" {
			t.Error("Incorrect Data string", v)
		}
	default:
		t.Errorf("Incorrect Data type %#v", v)
	}
}

func TestEventAfterSubscribeIgnoreMask(t *testing.T) {
	l := NewLogger()

	s := l.Subscribe(SessionLockout)
	defer s.Unsubscribe()
	l.Log(DeviceDiscovered, "foo")

	_, err := s.Poll(timeout)
	if err != ErrTimeout {
		t.Fatal("Unexpected non-Timeout error:", err)
	}
}

func TestBufferOverflow(t *testing.T) {
	l := NewLogger()

	s := l.Subscribe(AllEvents)
	defer s.Unsubscribe()

	// The logger must not block on a subscriber that never reads.
	done := make(chan struct{})
	go func() {
		for i := 0; i < BufferSize*2; i++ {
			l.Log(DecryptProgress, "foo")
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Log blocked on a full subscription")
	}

	for i := 0; i < BufferSize; i++ {
		if _, err := s.Poll(timeout); err != nil {
			t.Fatal("Unexpected error:", err)
		}
	}
	if _, err := s.Poll(10 * time.Millisecond); err != ErrTimeout {
		t.Fatal("Expected overflow events to be dropped, got", err)
	}
}

func TestUnsubscribe(t *testing.T) {
	l := NewLogger()

	s := l.Subscribe(AllEvents)
	l.Log(DeviceDiscovered, "foo")

	_, err := s.Poll(timeout)
	if err != nil {
		t.Fatal("Unexpected error:", err)
	}

	s.Unsubscribe()
	l.Log(DeviceDiscovered, "foo")

	_, err = s.Poll(timeout)
	if err != ErrClosed {
		t.Fatal("Unexpected non-Closed error:", err)
	}

	// Unsubscribing twice is harmless.
	s.Unsubscribe()
}

func TestIDs(t *testing.T) {
	l := NewLogger()

	s := l.Subscribe(AllEvents)
	defer s.Unsubscribe()
	l.Log(DeviceDiscovered, "foo")
	l.Log(StateChanged, "bar")
	l.Log(DeviceDiscovered, "baz")

	ev, err := s.Poll(timeout)
	if err != nil {
		t.Fatal(err)
	}
	if ev.Data.(string) != "foo" {
		t.Fatal("Incorrect event:", ev)
	}
	id := ev.SubscriptionID

	ev, err = s.Poll(timeout)
	if err != nil {
		t.Fatal(err)
	}
	if ev.Data.(string) != "bar" {
		t.Fatal("Incorrect event:", ev)
	}
	if ev.SubscriptionID != id+1 {
		t.Fatalf("ID not incremented (%d != %d)", ev.SubscriptionID, id+1)
	}

	ev, err = s.Poll(timeout)
	if err != nil {
		t.Fatal(err)
	}
	if ev.GlobalID != 3 {
		t.Fatalf("Unexpected global ID %d", ev.GlobalID)
	}
}

func TestSubscriptionIDsPerMask(t *testing.T) {
	l := NewLogger()

	all := l.Subscribe(AllEvents)
	defer all.Unsubscribe()
	lockouts := l.Subscribe(SessionLockout)
	defer lockouts.Unsubscribe()

	l.Log(DecryptFailed, "one")
	l.Log(SessionLockout, "two")

	ev, err := lockouts.Poll(timeout)
	if err != nil {
		t.Fatal(err)
	}
	if ev.SubscriptionID != 1 {
		t.Errorf("masked subscription should count its own events, got ID %d", ev.SubscriptionID)
	}
	if ev.GlobalID != 2 {
		t.Errorf("unexpected global ID %d", ev.GlobalID)
	}
}

func TestChannel(t *testing.T) {
	l := NewLogger()

	s := l.Subscribe(AllEvents)
	defer s.Unsubscribe()

	for i := 0; i < 10; i++ {
		l.Log(ItemFinished, fmt.Sprintf("event-%d", i))
	}

	for i := 0; i < 10; i++ {
		select {
		case ev := <-s.C():
			if got, want := ev.Data.(string), fmt.Sprintf("event-%d", i); got != want {
				t.Errorf("event %d: got %q, want %q", i, got, want)
			}
		case <-time.After(timeout):
			t.Fatal("timed out waiting for event", i)
		}
	}
}

func TestEventTypeNames(t *testing.T) {
	for et := EventType(1); et&AllEvents != 0; et <<= 1 {
		name := et.String()
		if name == "Unknown" {
			t.Errorf("event type %d has no name", et)
			continue
		}
		if back := UnmarshalEventType(name); back != et {
			t.Errorf("%s round trips to %d, not %d", name, back, et)
		}
	}
	if UnmarshalEventType("NoSuchEvent") != 0 {
		t.Error("unknown name should map to zero")
	}
}

func TestNoopLogger(t *testing.T) {
	NoopLogger.Log(SessionCompleted, "ignored")
	s := NoopLogger.Subscribe(AllEvents)
	defer s.Unsubscribe()
	if s.Mask() != AllEvents {
		t.Error("mask not retained")
	}
	if _, err := s.Poll(time.Millisecond); err != ErrTimeout {
		t.Error("noop subscription should only time out, got", err)
	}
}

func TestError(t *testing.T) {
	if Error(nil) != nil {
		t.Error("nil error should give nil pointer")
	}
	if s := Error(fmt.Errorf("boom")); s == nil || *s != "boom" {
		t.Error("unexpected error string", s)
	}
}

func TestPollZeroTimeout(t *testing.T) {
	l := NewLogger()
	s := l.Subscribe(AllEvents)
	defer s.Unsubscribe()

	if _, err := s.Poll(0); err != ErrTimeout {
		t.Fatal("expected timeout on empty subscription, got", err)
	}
	l.Log(SessionCompleted, nil)
	ev, err := s.Poll(0)
	if err != nil {
		t.Fatal("waiting event not returned:", err)
	}
	if ev.Type != SessionCompleted {
		t.Errorf("unexpected event %v", ev.Type)
	}

	s.Unsubscribe()
	if _, err := s.Poll(0); err != ErrClosed {
		t.Error("expected closed, got", err)
	}
}
