package api

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"agenda-tracker/domain"
)

type recordingSink struct {
	mu     sync.Mutex
	events []domain.ForwardEvent
	err    error
}

func (s *recordingSink) Publish(_ context.Context, events ...domain.ForwardEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return s.err
}

func (s *recordingSink) Events() []domain.ForwardEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ForwardEvent, len(s.events))
	copy(out, s.events)
	return out
}

// idlePublisher has no workers so tests control the channel.
func idlePublisher(buffer int, handoff time.Duration) *eventPublisher {
	return &eventPublisher{
		logger:         log.New(),
		jobs:           make(chan domain.ForwardEvent, buffer),
		handoffTimeout: handoff,
	}
}

func TestPublishWaitsForCapacity(t *testing.T) {
	p := idlePublisher(1, 50*time.Millisecond)
	p.jobs <- domain.ForwardEvent{}

	done := make(chan bool, 1)
	go func() {
		done <- p.publish(domain.ForwardEvent{RevisionID: "r2"})
	}()

	select {
	case <-done:
		t.Fatal("publish returned before capacity was freed")
	case <-time.After(20 * time.Millisecond):
	}

	<-p.jobs

	select {
	case ok := <-done:
		if !ok {
			t.Fatal("expected successful publish after capacity freed")
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for publish completion")
	}
}

func TestPublishDropsWhenSaturated(t *testing.T) {
	logger, hook := test.NewNullLogger()
	p := idlePublisher(1, 20*time.Millisecond)
	p.logger = logger
	p.jobs <- domain.ForwardEvent{}

	if p.publish(domain.ForwardEvent{RevisionID: "r2"}) {
		t.Fatal("expected publish to fail when the buffer stays full")
	}
	entry := hook.LastEntry()
	if entry == nil || entry.Level != log.WarnLevel || entry.Data["revision_id"] != "r2" {
		t.Fatalf("expected drop warning, got %#v", entry)
	}
}

func TestPublishReturnsFalseWhenClosed(t *testing.T) {
	p := idlePublisher(0, 0)
	close(p.jobs)

	if p.publish(domain.ForwardEvent{}) {
		t.Fatal("expected publish to fail when channel is closed")
	}
}

func TestPublishNilPublisher(t *testing.T) {
	var p *eventPublisher
	if p.publish(domain.ForwardEvent{}) {
		t.Fatal("nil publisher must not accept events")
	}
	p.shutdown()
}

func TestPublisherDeliversAndDrainsOnShutdown(t *testing.T) {
	sink := &recordingSink{}
	p := newEventPublisher(sink, 2, 8, log.New())

	for _, id := range []string{"a", "b", "c"} {
		if !p.publish(domain.ForwardEvent{RevisionID: id}) {
			t.Fatalf("publish %s rejected", id)
		}
	}
	p.shutdown()
	p.shutdown()

	if got := len(sink.Events()); got != 3 {
		t.Fatalf("expected 3 delivered events, got %d", got)
	}
}

func TestPublisherLogsSinkFailure(t *testing.T) {
	logger, hook := test.NewNullLogger()
	sink := &recordingSink{err: errors.New("queue down")}
	p := newEventPublisher(sink, 1, 1, logger)

	p.publish(domain.ForwardEvent{RevisionID: "r1", Action: domain.ActionSubmit})
	p.shutdown()

	var found bool
	for _, e := range hook.AllEntries() {
		if e.Level == log.ErrorLevel && e.Data["revision_id"] == "r1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected publish failure to be logged, got %d entries", len(hook.AllEntries()))
	}
}
