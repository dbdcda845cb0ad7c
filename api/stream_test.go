package api

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
)

func TestBrokerKeepsNewestVersion(t *testing.T) {
	b := NewBroker(nil, log.New())
	ch := b.subscribe()

	b.Notify(context.Background(), 1)
	b.Notify(context.Background(), 2)
	b.Notify(context.Background(), 3)

	select {
	case v := <-ch:
		if v != 3 {
			t.Fatalf("expected newest version 3, got %d", v)
		}
	default:
		t.Fatal("expected a pending version")
	}

	b.unsubscribe(ch)
	b.Notify(context.Background(), 4)
	select {
	case v := <-ch:
		t.Fatalf("unsubscribed channel received %d", v)
	default:
	}
}

func TestBrokerRelaysThroughRedis(t *testing.T) {
	t.Cleanup(func() {
		atomic.StoreInt64(&lastVersion, 0)
	})
	m, client := newTestRedis(t)

	// two brokers stand in for two instances sharing one Redis
	sender := NewBroker(client, log.New())
	receiver := NewBroker(client, log.New())
	ch := receiver.subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		receiver.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	deadline := time.Now().Add(time.Second)
	for m.PubSubNumSub(updatesChannel)[updatesChannel] < 1 {
		if time.Now().After(deadline) {
			t.Fatal("receiver never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	future := time.Now().Add(time.Hour).UnixNano()
	sender.Notify(context.Background(), future)

	select {
	case v := <-ch:
		if v != future {
			t.Fatalf("expected %d, got %d", future, v)
		}
	case <-time.After(time.Second):
		t.Fatal("expected relayed version")
	}
	if next := nextVersion(); next <= future {
		t.Fatalf("local versions must move past relayed ones, got %d", next)
	}
}

func TestBrokerRunWithoutRedisReturns(t *testing.T) {
	done := make(chan struct{})
	go func() {
		NewBroker(nil, log.New()).Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run without Redis should return immediately")
	}
}
