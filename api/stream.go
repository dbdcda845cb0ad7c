package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	updatesChannel    = "agenda:updates"
	streamKeepAlive   = 25 * time.Second
	resubscribeDelay  = time.Second
	streamContentType = "text/event-stream"
)

// Broker fans snapshot versions out to SSE subscribers. With a Redis client
// versions travel through pub/sub so every instance hears every forward.
type Broker struct {
	redis  *redis.Client
	logger *log.Logger

	mu   sync.Mutex
	subs map[chan int64]struct{}
}

func NewBroker(client *redis.Client, logger *log.Logger) *Broker {
	return &Broker{redis: client, logger: logger, subs: make(map[chan int64]struct{})}
}

func (b *Broker) subscribe() chan int64 {
	ch := make(chan int64, 1)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) unsubscribe(ch chan int64) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
}

// Notify announces version v.
func (b *Broker) Notify(ctx context.Context, v int64) {
	if b.redis != nil {
		err := b.redis.Publish(ctx, updatesChannel, strconv.FormatInt(v, 10)).Err()
		if err == nil {
			return
		}
		b.logger.WithError(err).Warn("publish update failed; notifying local subscribers only")
	}
	b.broadcast(v)
}

// broadcast keeps only the newest version per subscriber.
func (b *Broker) broadcast(v int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- v:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- v:
			default:
			}
		}
	}
}

// Run relays versions published by any instance until ctx is done. It is a
// no-op without Redis.
func (b *Broker) Run(ctx context.Context) {
	if b.redis == nil {
		return
	}
	for {
		sub := b.redis.Subscribe(ctx, updatesChannel)
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				v, err := strconv.ParseInt(msg.Payload, 10, 64)
				if err != nil {
					b.logger.Errorf("unable to parse update: %v", err)
					continue
				}
				observeVersion(v)
				b.broadcast(v)
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		b.logger.Error("pubsub channel closed, reconnecting")
		time.Sleep(resubscribeDelay)
	}
}

func streamVersions(broker *Broker) echo.HandlerFunc {
	return func(c echo.Context) error {
		res := c.Response()
		res.Header().Set(echo.HeaderContentType, streamContentType)
		res.Header().Set(echo.HeaderCacheControl, "no-cache")
		res.Header().Set(echo.HeaderConnection, "keep-alive")
		res.Header().Set("X-Accel-Buffering", "no")
		flusher, ok := res.Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}
		res.WriteHeader(http.StatusOK)

		ctx := c.Request().Context()
		ch := broker.subscribe()
		defer broker.unsubscribe(ch)

		if err := writeVersion(res, nextVersion()); err != nil {
			return nil
		}
		flusher.Flush()

		ticker := time.NewTicker(streamKeepAlive)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case v := <-ch:
				if err := writeVersion(res, v); err != nil {
					return nil
				}
			case <-ticker.C:
				if _, err := res.Write([]byte(": keep-alive\n\n")); err != nil {
					return nil
				}
			}
			flusher.Flush()
		}
	}
}

func writeVersion(w http.ResponseWriter, v int64) error {
	_, err := fmt.Fprintf(w, "event: version\ndata: %d\n\n", v)
	return err
}
