package api

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"agenda-tracker/domain"
)

const (
	defaultPublishTimeout = 30 * time.Second
	defaultHandoffTimeout = 15 * time.Millisecond
)

// eventPublisher hands forward events to a sink from a bounded pool of
// workers so a slow queue never holds up the forward response.
type eventPublisher struct {
	sink           EventSink
	logger         *log.Logger
	jobs           chan domain.ForwardEvent
	publishTimeout time.Duration
	handoffTimeout time.Duration

	closeOnce sync.Once
	wg        sync.WaitGroup
}

func newEventPublisher(sink EventSink, workers, buffer int, logger *log.Logger) *eventPublisher {
	if logger == nil {
		panic("logger is not initialized")
	}
	if workers <= 0 {
		workers = 1
	}
	if buffer < 0 {
		buffer = 0
	}
	p := &eventPublisher{
		sink:           sink,
		logger:         logger,
		jobs:           make(chan domain.ForwardEvent, buffer),
		publishTimeout: defaultPublishTimeout,
		handoffTimeout: defaultHandoffTimeout,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	logger.Infof("event publisher started, workers: %d, buffer: %d", workers, buffer)
	return p
}

func (p *eventPublisher) worker(id int) {
	defer p.wg.Done()
	for ev := range p.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), p.publishTimeout)
		err := p.sink.Publish(ctx, ev)
		cancel()
		if err != nil {
			p.logger.WithFields(log.Fields{
				"revision_id": ev.RevisionID,
				"action":      ev.Action,
				"worker":      id,
			}).WithError(err).Error("publish forward event failed")
		}
	}
}

// publish queues ev, waiting at most handoffTimeout for room. Dropped events
// are logged; the forward itself already succeeded.
func (p *eventPublisher) publish(ev domain.ForwardEvent) bool {
	if p == nil {
		return false
	}
	if ok, closed := trySendNonBlocking(p.jobs, ev); closed {
		return false
	} else if ok {
		return true
	}

	if p.handoffTimeout > 0 {
		timer := time.NewTimer(p.handoffTimeout)
		defer timer.Stop()
		if ok, closed := sendWithTimer(p.jobs, ev, timer.C); ok && !closed {
			return true
		}
	}
	p.logger.WithField("revision_id", ev.RevisionID).Warn("event publisher saturated; dropping forward event")
	return false
}

// shutdown drains queued events and stops the workers.
func (p *eventPublisher) shutdown() {
	if p == nil {
		return
	}
	p.closeOnce.Do(func() { close(p.jobs) })
	p.wg.Wait()
}

func trySendNonBlocking(ch chan domain.ForwardEvent, ev domain.ForwardEvent) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- ev:
		return true, false
	default:
		return false, false
	}
}

func sendWithTimer(ch chan domain.ForwardEvent, ev domain.ForwardEvent, timer <-chan time.Time) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- ev:
		return true, false
	case <-timer:
		return false, false
	}
}
