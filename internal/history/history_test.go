package history

import (
	"context"
	"errors"
	"testing"
	"time"
)

type recordingSink struct {
	events []Event
	err    error
	closed bool
}

func (r *recordingSink) Send(_ context.Context, e Event) error {
	r.events = append(r.events, e)
	return r.err
}

func (r *recordingSink) Close() error {
	r.closed = true
	return nil
}

func testEvent(t EventType) Event {
	return Event{
		Type:       t,
		OccurredAt: time.Now().UTC(),
		Record:     Record{LaunchID: "launch-1", PID: 4321, BuildID: "1.2.3+abc", Version: "1.2.3"},
	}
}

func TestNopSink(t *testing.T) {
	if err := (Nop{}).Send(context.Background(), testEvent(EventLaunchStarted)); err != nil {
		t.Fatalf("nop sink returned error: %v", err)
	}
}

func TestMultiFanout(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{}
	m := Multi{a, b}

	e := testEvent(EventOwnershipClaimed)
	if err := m.Send(context.Background(), e); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(a.events) != 1 || len(b.events) != 1 {
		t.Fatalf("fanout missed a sink: a=%d b=%d", len(a.events), len(b.events))
	}
	if a.events[0].Record.LaunchID != "launch-1" {
		t.Fatalf("record not delivered intact: %+v", a.events[0])
	}
}

func TestMultiFirstErrorWinsAllAttempted(t *testing.T) {
	errA := errors.New("sink a down")
	errB := errors.New("sink b down")
	a := &recordingSink{err: errA}
	b := &recordingSink{err: errB}
	m := Multi{a, b}

	err := m.Send(context.Background(), testEvent(EventRaceDetected))
	if !errors.Is(err, errA) {
		t.Fatalf("expected first error, got %v", err)
	}
	// The failing first sink must not short-circuit delivery to the second.
	if len(b.events) != 1 {
		t.Fatalf("second sink not attempted")
	}
}

func TestMultiClose(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{}
	m := Multi{a, Nop{}, b}
	if err := m.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !a.closed || !b.closed {
		t.Fatalf("closers not invoked: a=%t b=%t", a.closed, b.closed)
	}
}

func TestEmptyMulti(t *testing.T) {
	var m Multi
	if err := m.Send(context.Background(), testEvent(EventLaunchExited)); err != nil {
		t.Fatalf("empty multi send: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("empty multi close: %v", err)
	}
}
