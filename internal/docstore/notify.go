package docstore

import (
	"context"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Notifier fans out "collection changed" signals to watchers. The local
// notifier only reaches watchers in this process; the Redis notifier reaches
// every process sharing the Redis instance.
type Notifier interface {
	Notify(ctx context.Context, collection string) error
	// Subscribe returns a signal channel and a cancel func that closes it.
	Subscribe(ctx context.Context, collection string) (<-chan struct{}, func(), error)
}

// LocalNotifier is an in-process Notifier.
type LocalNotifier struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]chan struct{}
}

func NewLocalNotifier() *LocalNotifier {
	return &LocalNotifier{subs: make(map[string]map[int]chan struct{})}
}

func (n *LocalNotifier) Notify(_ context.Context, collection string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs[collection] {
		signal(ch)
	}
	return nil
}

func (n *LocalNotifier) Subscribe(_ context.Context, collection string) (<-chan struct{}, func(), error) {
	ch := make(chan struct{}, 1)
	n.mu.Lock()
	n.nextID++
	id := n.nextID
	if n.subs[collection] == nil {
		n.subs[collection] = make(map[int]chan struct{})
	}
	n.subs[collection][id] = ch
	n.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs[collection], id)
			n.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel, nil
}

// signal coalesces: a pending signal already means "re-query".
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

const redisChannelPrefix = "docstore:"

// RedisNotifier publishes change signals over Redis pub/sub.
type RedisNotifier struct {
	rdb *redis.Client
	log *slog.Logger
}

func NewRedisNotifier(rdb *redis.Client, log *slog.Logger) *RedisNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &RedisNotifier{rdb: rdb, log: log}
}

func (n *RedisNotifier) Notify(ctx context.Context, collection string) error {
	return n.rdb.Publish(ctx, redisChannelPrefix+collection, "changed").Err()
}

func (n *RedisNotifier) Subscribe(ctx context.Context, collection string) (<-chan struct{}, func(), error) {
	ps := n.rdb.Subscribe(ctx, redisChannelPrefix+collection)
	// Receive blocks until the subscription is confirmed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, err
	}

	out := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		defer close(out)
		msgs := ps.Channel()
		for {
			select {
			case <-done:
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				signal(out)
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			if err := ps.Close(); err != nil {
				n.log.Warn("redis unsubscribe failed", "collection", collection, "err", err)
			}
		})
	}
	return out, cancel, nil
}

type queryFunc func(ctx context.Context, collection string, q Query) ([]Document, error)

// watch implements Store.Watch on top of a query func and a notifier.
func watch(ctx context.Context, n Notifier, query queryFunc, collection string, q Query, log *slog.Logger) (<-chan []Document, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}
	signals, cancel, err := n.Subscribe(ctx, collection)
	if err != nil {
		return nil, err
	}
	initial, err := query(ctx, collection, q)
	if err != nil {
		cancel()
		return nil, err
	}

	out := make(chan []Document, 1)
	go func() {
		defer close(out)
		defer cancel()

		send := func(docs []Document) bool {
			select {
			case out <- docs:
				return true
			case <-ctx.Done():
				return false
			}
		}
		if !send(initial) {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-signals:
				if !ok {
					return
				}
				docs, err := query(ctx, collection, q)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					log.Warn("watch re-query failed", "collection", collection, "err", err)
					continue
				}
				if !send(docs) {
					return
				}
			}
		}
	}()
	return out, nil
}
