package storage

import (
	"context"
	"runtime"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"
	"golang.org/x/sync/errgroup"

	"agenda-tracker/domain"
)

const (
	queuePerCPU             = 10
	defaultQueueConcurrency = queuePerCPU
	maxQueueConcurrency     = 64
)

type queueClient interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
}

// EventQueue publishes forward events for downstream notifiers.
type EventQueue struct {
	queue       queueClient
	concurrency int
}

// NewEventQueue connects to the named queue.
func NewEventQueue(connStr, name string) (*EventQueue, error) {
	opts := azqueue.ClientOptions{ClientOptions: retryOptions(5, time.Minute*5, time.Second*60)}
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, name, &opts)
	if err != nil {
		return nil, err
	}
	return &EventQueue{queue: q, concurrency: queueConcurrencyForCPU(runtime.NumCPU())}, nil
}

func queueConcurrencyForCPU(cpu int) int {
	if cpu < 1 {
		return defaultQueueConcurrency
	}
	n := cpu * queuePerCPU
	if n > maxQueueConcurrency {
		return maxQueueConcurrency
	}
	return n
}

// Publish enqueues one message per event. The first failure cancels the
// remaining sends.
func (q *EventQueue) Publish(ctx context.Context, events ...domain.ForwardEvent) error {
	g, ctx := errgroup.WithContext(ctx)
	limit := q.concurrency
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)
	for _, ev := range events {
		data, err := sonic.Marshal(ev)
		if err != nil {
			return err
		}
		g.Go(func() error {
			_, err := q.queue.EnqueueMessage(ctx, string(data), nil)
			return err
		})
	}
	return g.Wait()
}
