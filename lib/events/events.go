// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package events provides event subscription and polling functionality.
// Status notifications (progress, warnings, completion) reach the display
// layer through here, never by direct calls from the worker goroutines.
package events

import (
	"errors"
	"sync"
	"time"
)

type EventType int64

const (
	Starting EventType = 1 << iota
	DeviceDiscovered
	DiscoveryFailed
	ManifestWritten
	StateChanged
	ItemStarted
	ItemFinished
	DecryptProgress
	DecryptFailed
	SessionLockout
	SessionCompleted

	AllEvents = (1 << iota) - 1
)

func (t EventType) String() string {
	switch t {
	case Starting:
		return "Starting"
	case DeviceDiscovered:
		return "DeviceDiscovered"
	case DiscoveryFailed:
		return "DiscoveryFailed"
	case ManifestWritten:
		return "ManifestWritten"
	case StateChanged:
		return "StateChanged"
	case ItemStarted:
		return "ItemStarted"
	case ItemFinished:
		return "ItemFinished"
	case DecryptProgress:
		return "DecryptProgress"
	case DecryptFailed:
		return "DecryptFailed"
	case SessionLockout:
		return "SessionLockout"
	case SessionCompleted:
		return "SessionCompleted"
	default:
		return "Unknown"
	}
}

func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func UnmarshalEventType(s string) EventType {
	switch s {
	case "Starting":
		return Starting
	case "DeviceDiscovered":
		return DeviceDiscovered
	case "DiscoveryFailed":
		return DiscoveryFailed
	case "ManifestWritten":
		return ManifestWritten
	case "StateChanged":
		return StateChanged
	case "ItemStarted":
		return ItemStarted
	case "ItemFinished":
		return ItemFinished
	case "DecryptProgress":
		return DecryptProgress
	case "DecryptFailed":
		return DecryptFailed
	case "SessionLockout":
		return SessionLockout
	case "SessionCompleted":
		return SessionCompleted
	default:
		return 0
	}
}

const BufferSize = 64

type Logger interface {
	Log(t EventType, data interface{})
	Subscribe(mask EventType) Subscription
}

type logger struct {
	subs                []*subscription
	nextSubscriptionIDs []int
	nextGlobalID        int
	mutex               sync.Mutex
}

type Event struct {
	// Per-subscription sequential event ID.
	SubscriptionID int `json:"id"`
	// Global ID of the event across all subscriptions
	GlobalID int         `json:"globalID"`
	Time     time.Time   `json:"time"`
	Type     EventType   `json:"type"`
	Data     interface{} `json:"data"`
}

type Subscription interface {
	C() <-chan Event
	Poll(timeout time.Duration) (Event, error)
	Mask() EventType
	Unsubscribe()
}

type subscription struct {
	mask   EventType
	events chan Event
	logger *logger
	once   sync.Once
}

var (
	ErrTimeout = errors.New("timeout")
	ErrClosed  = errors.New("closed")
)

func NewLogger() Logger {
	return &logger{}
}

// Log delivers the event to every subscription interested in its type. A
// subscriber that is not keeping up loses events rather than blocking the
// caller.
func (l *logger) Log(t EventType, data interface{}) {
	l.mutex.Lock()
	dl.Debugln("log", l.nextGlobalID, t, data)
	l.nextGlobalID++

	e := Event{
		GlobalID: l.nextGlobalID,
		Time:     time.Now(),
		Type:     t,
		Data:     data,
	}

	for i, s := range l.subs {
		if s.mask&t != 0 {
			e.SubscriptionID = l.nextSubscriptionIDs[i]
			l.nextSubscriptionIDs[i]++

			select {
			case s.events <- e:
			default:
				// if s.events is not ready, drop the event
				dl.Debugln("dropped event", t, "for slow subscriber")
			}
		}
	}
	l.mutex.Unlock()
}

func (l *logger) Subscribe(mask EventType) Subscription {
	l.mutex.Lock()
	dl.Debugln("subscribe", mask)

	s := &subscription{
		mask:   mask,
		events: make(chan Event, BufferSize),
		logger: l,
	}
	l.subs = append(l.subs, s)
	l.nextSubscriptionIDs = append(l.nextSubscriptionIDs, 1)
	l.mutex.Unlock()
	return s
}

func (l *logger) unsubscribe(s *subscription) {
	l.mutex.Lock()
	dl.Debugln("unsubscribe", s.mask)
	for i, ss := range l.subs {
		if s == ss {
			last := len(l.subs) - 1

			l.subs[i] = l.subs[last]
			l.subs[last] = nil
			l.subs = l.subs[:last]

			l.nextSubscriptionIDs[i] = l.nextSubscriptionIDs[last]
			l.nextSubscriptionIDs[last] = 0
			l.nextSubscriptionIDs = l.nextSubscriptionIDs[:last]

			break
		}
	}
	close(s.events)
	l.mutex.Unlock()
}

// Poll returns the next event, waiting at most timeout for one. It returns
// ErrTimeout when none arrives and ErrClosed once unsubscribed. An event
// already waiting is returned even for a zero timeout.
func (s *subscription) Poll(timeout time.Duration) (Event, error) {
	dl.Debugln("poll", timeout)

	select {
	case e, ok := <-s.events:
		return pollResult(e, ok)
	default:
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case e, ok := <-s.events:
		return pollResult(e, ok)
	case <-t.C:
		return Event{}, ErrTimeout
	}
}

func pollResult(e Event, ok bool) (Event, error) {
	if !ok {
		return e, ErrClosed
	}
	return e, nil
}

func (s *subscription) C() <-chan Event {
	return s.events
}

func (s *subscription) Mask() EventType {
	return s.mask
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.logger.unsubscribe(s)
	})
}

// Error returns a string pointer suitable for JSON marshalling errors. It
// retains the "null on success" semantics, but ensures the error result is a
// string regardless of the underlying concrete error type.
func Error(err error) *string {
	if err == nil {
		return nil
	}
	str := err.Error()
	return &str
}

type noopLogger struct{}

var NoopLogger Logger = &noopLogger{}

func (*noopLogger) Log(_ EventType, _ interface{}) {}

func (*noopLogger) Subscribe(mask EventType) Subscription {
	return &noopSubscription{mask: mask}
}

type noopSubscription struct {
	mask EventType
}

func (*noopSubscription) C() <-chan Event {
	return nil
}

func (*noopSubscription) Poll(timeout time.Duration) (Event, error) {
	time.Sleep(timeout)
	return Event{}, ErrTimeout
}

func (s *noopSubscription) Mask() EventType {
	return s.mask
}

func (*noopSubscription) Unsubscribe() {}
